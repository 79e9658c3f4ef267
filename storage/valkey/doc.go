// Package valkey provides a Valkey storage backend for the token repository.
//
// Valkey is a key-value store that is wire-compatible with Redis. The Store
// type implements [storage.TokenRepository] and suits deployments where
// several token servers share one record store.
//
// # Key Schema
//
// All keys use a configurable prefix (default "oauth:") to avoid conflicts
// with other applications sharing the same Valkey instance:
//
//	{prefix}{kind}:{id}               -> JSON(record)       (PX TTL)
//	{prefix}{kind}:hash:{secretHash}  -> id                 (PX TTL)
//
// where kind is one of "access", "refresh" or "code". A record and its hash
// index entry are written by one Lua script and share one TTL, so Valkey
// expires both together.
//
// # Single Use
//
// Consume runs a Lua script that reads the record and deletes it and its
// index entry in one step. Of several concurrent callers for the same id,
// exactly one receives the record.
//
// # Failures
//
// Every call is bounded by Config.OperationTimeout. Connection errors,
// timeouts and server errors are returned wrapping
// [storage.ErrStorageUnavailable]; the store never retries.
//
// # Usage
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "localhost:6379",
//	    KeyPrefix: "oauth:",
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
package valkey
