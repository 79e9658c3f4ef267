package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-tokens/instrumentation"
	"github.com/giantswarm/oauth-tokens/internal/util"
	"github.com/giantswarm/oauth-tokens/security"
	"github.com/giantswarm/oauth-tokens/storage"
)

const (
	// tokenIDLogLength is the number of characters to include when logging record ids
	tokenIDLogLength = 8

	backendName = "memory"
)

// namespace holds the records of one kind and their hash index
type namespace struct {
	records map[string]storage.Record // id -> record
	byHash  map[string]string         // secret hash -> id
}

// Store is an in-memory TokenRepository.
//
// Like a real backing store, expired records are reclaimed by a background
// reaper, not on read: a record read between its expiry and the next sweep
// is still returned.
type Store struct {
	mu     sync.RWMutex
	spaces map[storage.Kind]*namespace

	clock  security.Clock
	logger *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

var _ storage.TokenRepository = (*Store)(nil)

// New creates a new in-memory store with default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		spaces:          make(map[storage.Kind]*namespace, len(storage.Kinds)),
		clock:           security.SystemClock{},
		logger:          slog.Default(),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	for _, k := range storage.Kinds {
		s.spaces[k] = &namespace{
			records: make(map[string]storage.Record),
			byHash:  make(map[string]string),
		}
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SetClock sets the clock used to compute TTLs and to reap expired records
func (s *Store) SetClock(clock security.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if clock != nil {
		s.clock = clock
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.mu.Unlock()

	if inst == nil {
		return
	}

	kinds := make([]string, len(storage.Kinds))
	for i, k := range storage.Kinds {
		kinds[i] = string(k)
	}
	if err := inst.RegisterRecordCountCallback(func(kind string) int64 {
		return int64(s.Count(storage.Kind(kind)))
	}, kinds...); err != nil {
		s.logger.Warn("Failed to register record count callback", "error", err)
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// Count returns the number of stored records of a kind, expired or not.
func (s *Store) Count(kind storage.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ns, ok := s.spaces[kind]; ok {
		return len(ns.records)
	}
	return 0
}

// ============================================================
// TokenRepository Implementation
// ============================================================

// Put stores a copy of r until its expiry. An already expired record is not stored.
func (s *Store) Put(ctx context.Context, r storage.Record) (err error) {
	if r == nil {
		return fmt.Errorf("%w: nil record", storage.ErrInvalidRecord)
	}
	ctx, span, start := s.startStorageSpan(ctx, "put", r.Kind())
	defer func() { s.recordStorageOperation(ctx, span, "put", err, start) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, err := s.space(r.Kind())
	if err != nil {
		return err
	}
	if r.RecordID() == "" || r.SecretHash() == "" {
		err = fmt.Errorf("%w: record requires an id and a secret hash", storage.ErrInvalidRecord)
		return err
	}

	ttl := security.TTL(s.clock.Now(), r.Expiry())
	if ttl <= 0 {
		s.logger.Debug("Skipped put of expired record",
			"kind", r.Kind(),
			"id_prefix", util.SafeTruncate(r.RecordID(), tokenIDLogLength))
		return nil
	}

	if old, ok := ns.records[r.RecordID()]; ok {
		ns.dropIndex(old)
	}
	ns.records[r.RecordID()] = storage.CloneRecord(r)
	ns.byHash[r.SecretHash()] = r.RecordID()

	s.logger.Debug("Stored record",
		"kind", r.Kind(),
		"id_prefix", util.SafeTruncate(r.RecordID(), tokenIDLogLength),
		"ttl", ttl)
	return nil
}

// Get returns a copy of the record.
func (s *Store) Get(ctx context.Context, kind storage.Kind, id string) (rec storage.Record, err error) {
	ctx, span, start := s.startStorageSpan(ctx, "get", kind)
	defer func() { s.recordStorageOperation(ctx, span, "get", err, start) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, err := s.space(kind)
	if err != nil {
		return nil, err
	}
	r, ok := ns.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return storage.CloneRecord(r), nil
}

// Lookup returns the id of the record holding secretHash.
func (s *Store) Lookup(ctx context.Context, kind storage.Kind, secretHash string) (id string, err error) {
	ctx, span, start := s.startStorageSpan(ctx, "lookup", kind)
	defer func() { s.recordStorageOperation(ctx, span, "lookup", err, start) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, err := s.space(kind)
	if err != nil {
		return "", err
	}
	id, ok := ns.byHash[secretHash]
	if !ok {
		return "", storage.ErrNotFound
	}
	return id, nil
}

// Consume removes and returns the record under the write lock, so exactly
// one of any number of concurrent callers receives it.
func (s *Store) Consume(ctx context.Context, kind storage.Kind, id string) (rec storage.Record, err error) {
	ctx, span, start := s.startStorageSpan(ctx, "consume", kind)
	defer func() { s.recordStorageOperation(ctx, span, "consume", err, start) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, err := s.space(kind)
	if err != nil {
		return nil, err
	}
	r, ok := ns.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	delete(ns.records, id)
	ns.dropIndex(r)

	s.logger.Debug("Consumed record",
		"kind", kind,
		"id_prefix", util.SafeTruncate(id, tokenIDLogLength))
	return r, nil
}

// Delete removes the record and its hash index.
func (s *Store) Delete(ctx context.Context, kind storage.Kind, id string) (err error) {
	ctx, span, start := s.startStorageSpan(ctx, "delete", kind)
	defer func() { s.recordStorageOperation(ctx, span, "delete", err, start) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, err := s.space(kind)
	if err != nil {
		return err
	}
	if r, ok := ns.records[id]; ok {
		delete(ns.records, id)
		ns.dropIndex(r)
	}
	return nil
}

// GetAll returns copies of all records of a kind, ordered by id.
func (s *Store) GetAll(ctx context.Context, kind storage.Kind) (recs []storage.Record, err error) {
	ctx, span, start := s.startStorageSpan(ctx, "get_all", kind)
	defer func() { s.recordStorageOperation(ctx, span, "get_all", err, start) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, err := s.space(kind)
	if err != nil {
		return nil, err
	}
	recs = make([]storage.Record, 0, len(ns.records))
	for _, r := range ns.records {
		recs = append(recs, storage.CloneRecord(r))
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].RecordID() < recs[j].RecordID() })
	return recs, nil
}

// dropIndex removes the hash index entry of r only while it still points at
// r. A later record with the same hash keeps its entry. Caller holds s.mu.
func (ns *namespace) dropIndex(r storage.Record) {
	if ns.byHash[r.SecretHash()] == r.RecordID() {
		delete(ns.byHash, r.SecretHash())
	}
}

// space returns the namespace for kind. Caller holds s.mu.
func (s *Store) space(kind storage.Kind) (*namespace, error) {
	ns, ok := s.spaces[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownKind, kind)
	}
	return ns, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes every record whose expiry has passed and returns how many it removed.
func (s *Store) cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	cleaned := 0
	for _, ns := range s.spaces {
		for id, r := range ns.records {
			if security.IsExpired(now, r.Expiry()) {
				delete(ns.records, id)
				ns.dropIndex(r)
				cleaned++
			}
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired records", "count", cleaned)
	}
	return cleaned
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a span for a storage operation and returns its start time
func (s *Store) startStorageSpan(ctx context.Context, operation string, kind storage.Kind) (context.Context, trace.Span, time.Time) {
	s.mu.RLock()
	tracer := s.tracer
	s.mu.RUnlock()

	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx), time.Now()
	}

	ctx, span := tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, backendName, string(kind))
	return ctx, span, time.Now()
}

// recordStorageOperation records metrics for a storage operation, sets span status and ends the span
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, start time.Time) {
	s.mu.RLock()
	inst := s.instrumentation
	s.mu.RUnlock()

	if inst == nil {
		return
	}
	defer span.End()

	result := instrumentation.ResultSuccess
	// A miss is an answer, not a failed operation.
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		result = instrumentation.ResultError
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	durationMs := float64(time.Since(start).Microseconds()) / 1000
	inst.Metrics().RecordStorageOperation(ctx, backendName, operation, result, durationMs)
}
