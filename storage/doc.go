// Package storage provides the token records and the repository contract used
// by the token manager.
//
// Three record kinds exist, each in its own namespace: access tokens, refresh
// tokens and authorization codes. Records are built by a Factory and are not
// modified after creation. Only the hash of a raw secret is stored; records
// are found by hash through TokenRepository.Lookup and then read by id.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-memory repository for development, tests and the CLI
//   - storage/mock: function-field mock for failure injection in tests
//   - storage/valkey: Valkey/Redis-compatible distributed repository
package storage
