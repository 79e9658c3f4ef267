package valkey

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/giantswarm/oauth-tokens/internal/util"
	"github.com/giantswarm/oauth-tokens/security"
	"github.com/giantswarm/oauth-tokens/storage"
)

// ============================================================
// Lua Scripts
// ============================================================

// luaScriptPut stores a record and its hash index under one TTL. If the id
// already held a record, that record's index entry is dropped first.
//
// KEYS[1] record key, KEYS[2] hash index key
// ARGV[1] record JSON, ARGV[2] id, ARGV[3] TTL in ms,
// ARGV[4] hash index prefix, ARGV[5] JSON field holding the hash
const luaScriptPut = `
local old = redis.call('GET', KEYS[1])
if old then
  local ok, rec = pcall(cjson.decode, old)
  if ok and type(rec) == 'table' and rec[ARGV[5]] then
    local oldIdx = ARGV[4] .. rec[ARGV[5]]
    if oldIdx ~= KEYS[2] and redis.call('GET', oldIdx) == ARGV[2] then
      redis.call('DEL', oldIdx)
    end
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 'OK'
`

// luaScriptTake reads a record, deletes it and the index entry pointing at
// it, and returns the record. A missing record yields nil.
//
// KEYS[1] record key
// ARGV[1] hash index prefix, ARGV[2] JSON field holding the hash, ARGV[3] id
const luaScriptTake = `
local v = redis.call('GET', KEYS[1])
if not v then
  return false
end
redis.call('DEL', KEYS[1])
local ok, rec = pcall(cjson.decode, v)
if ok and type(rec) == 'table' and rec[ARGV[2]] then
  local idx = ARGV[1] .. rec[ARGV[2]]
  if redis.call('GET', idx) == ARGV[3] then
    redis.call('DEL', idx)
  end
end
return v
`

// ============================================================
// TokenRepository Implementation
// ============================================================

// Put stores r with a PX TTL derived from its expiry. Records that are
// already expired are not written.
func (s *Store) Put(ctx context.Context, r storage.Record) (err error) {
	if r == nil {
		return fmt.Errorf("%w: record cannot be nil", storage.ErrInvalidRecord)
	}
	kind := r.Kind()

	ctx, span, start := s.startStorageSpan(ctx, "put", kind)
	defer func() { s.recordStorageOperation(ctx, span, "put", err, start) }()

	if err = validateKind(kind); err != nil {
		return err
	}
	if err = validateLength(r.RecordID(), "id"); err != nil {
		return err
	}
	if err = validateLength(r.SecretHash(), "secret hash"); err != nil {
		return err
	}

	ttl := security.TTL(s.clock.Now(), r.Expiry())
	if ttl <= 0 {
		s.logger.Debug("Skipped put of expired record",
			"kind", kind,
			"id_prefix", util.SafeTruncate(r.RecordID(), tokenIDLogLength))
		return nil
	}
	ttlMs := ttl.Milliseconds()
	if ttlMs < 1 {
		ttlMs = 1
	}

	data, err := storage.MarshalRecord(r)
	if err != nil {
		return err
	}
	if len(data) > MaxRecordSize {
		err = fmt.Errorf("%w: record exceeds maximum size", storage.ErrInvalidRecord)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.client.Do(ctx,
		s.client.B().Eval().Script(luaScriptPut).
			Numkeys(2).
			Key(s.recordKey(kind, r.RecordID()), s.hashKey(kind, r.SecretHash())).
			Arg(string(data), r.RecordID(), strconv.FormatInt(ttlMs, 10), s.hashKeyPrefix(kind), hashField(kind)).
			Build(),
	).Error()
	if err != nil {
		err = unavailable("put record", err)
		return err
	}

	s.logger.Debug("Stored record",
		"kind", kind,
		"id_prefix", util.SafeTruncate(r.RecordID(), tokenIDLogLength),
		"ttl", ttl)
	return nil
}

// Get returns the record stored under kind and id.
func (s *Store) Get(ctx context.Context, kind storage.Kind, id string) (rec storage.Record, err error) {
	ctx, span, start := s.startStorageSpan(ctx, "get", kind)
	defer func() { s.recordStorageOperation(ctx, span, "get", err, start) }()

	if err = validateKind(kind); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.recordKey(kind, id)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			err = storage.ErrNotFound
			return nil, err
		}
		err = unavailable("get record", err)
		return nil, err
	}

	rec, err = storage.UnmarshalRecord(kind, []byte(data))
	return rec, err
}

// Lookup resolves a secret hash to a record id through the hash index.
func (s *Store) Lookup(ctx context.Context, kind storage.Kind, secretHash string) (id string, err error) {
	ctx, span, start := s.startStorageSpan(ctx, "lookup", kind)
	defer func() { s.recordStorageOperation(ctx, span, "lookup", err, start) }()

	if err = validateKind(kind); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id, err = s.client.Do(ctx, s.client.B().Get().Key(s.hashKey(kind, secretHash)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			err = storage.ErrNotFound
			return "", err
		}
		err = unavailable("lookup record", err)
		return "", err
	}
	return id, nil
}

// Consume atomically reads and deletes a record and its hash index.
//
// SECURITY: This operation is atomic via Lua script - only ONE concurrent request can succeed.
func (s *Store) Consume(ctx context.Context, kind storage.Kind, id string) (rec storage.Record, err error) {
	ctx, span, start := s.startStorageSpan(ctx, "consume", kind)
	defer func() { s.recordStorageOperation(ctx, span, "consume", err, start) }()

	if err = validateKind(kind); err != nil {
		return nil, err
	}

	data, err := s.take(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	rec, err = storage.UnmarshalRecord(kind, []byte(data))
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Consumed record",
		"kind", kind,
		"id_prefix", util.SafeTruncate(id, tokenIDLogLength))
	return rec, nil
}

// Delete removes a record and its hash index. A missing record is not an error.
func (s *Store) Delete(ctx context.Context, kind storage.Kind, id string) (err error) {
	ctx, span, start := s.startStorageSpan(ctx, "delete", kind)
	defer func() { s.recordStorageOperation(ctx, span, "delete", err, start) }()

	if err = validateKind(kind); err != nil {
		return err
	}

	if _, err = s.take(ctx, kind, id); err != nil {
		if err == storage.ErrNotFound {
			err = nil
		}
		return err
	}
	return nil
}

// take runs luaScriptTake for one record.
func (s *Store) take(ctx context.Context, kind storage.Kind, id string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaScriptTake).
			Numkeys(1).
			Key(s.recordKey(kind, id)).
			Arg(s.hashKeyPrefix(kind), hashField(kind), id).
			Build(),
	).ToString()
	if err != nil {
		if isNilError(err) {
			return "", storage.ErrNotFound
		}
		return "", unavailable("take record", err)
	}
	return data, nil
}

// GetAll lists the live records of a kind, ordered by id. It walks the
// keyspace with SCAN and is meant for administrative use.
func (s *Store) GetAll(ctx context.Context, kind storage.Kind) (recs []storage.Record, err error) {
	ctx, span, start := s.startStorageSpan(ctx, "get_all", kind)
	defer func() { s.recordStorageOperation(ctx, span, "get_all", err, start) }()

	if err = validateKind(kind); err != nil {
		return nil, err
	}

	// The scan as a whole gets a larger budget than a single call.
	ctx, cancel := context.WithTimeout(ctx, 10*s.timeout)
	defer cancel()

	pattern := s.prefix + string(kind) + ":*"
	indexPrefix := s.hashKeyPrefix(kind)

	var cursor uint64
	for {
		entry, scanErr := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if scanErr != nil {
			err = unavailable("scan records", scanErr)
			return nil, err
		}

		for _, key := range entry.Elements {
			if strings.HasPrefix(key, indexPrefix) {
				continue
			}

			data, getErr := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
			if getErr != nil {
				// Expired between SCAN and GET.
				if isNilError(getErr) {
					continue
				}
				err = unavailable("get record", getErr)
				return nil, err
			}

			rec, decErr := storage.UnmarshalRecord(kind, []byte(data))
			if decErr != nil {
				s.logger.Warn("Skipping undecodable record",
					"kind", kind,
					"key", key,
					"error", decErr)
				continue
			}
			recs = append(recs, rec)
		}

		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].RecordID() < recs[j].RecordID() })
	return recs, nil
}

// ttlOf returns the remaining TTL Valkey holds for a record, for diagnostics.
func (s *Store) ttlOf(ctx context.Context, kind storage.Kind, id string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ms, err := s.client.Do(ctx, s.client.B().Pttl().Key(s.recordKey(kind, id)).Build()).AsInt64()
	if err != nil {
		return 0, unavailable("read ttl", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
