package valkey

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-tokens/instrumentation"
	"github.com/giantswarm/oauth-tokens/security"
	"github.com/giantswarm/oauth-tokens/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauth:"

	// DefaultOperationTimeout bounds every single store operation
	DefaultOperationTimeout = 3 * time.Second

	// tokenIDLogLength is the number of characters to include when logging record ids
	tokenIDLogLength = 8

	// scanBatchSize is the number of keys to fetch per SCAN iteration
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// MaxIDLength is the maximum allowed length for record ids and secret hashes
	MaxIDLength = 256

	// MaxRecordSize is the maximum size of a serialized record (64KB)
	MaxRecordSize = 64 * 1024

	backendName = "valkey"
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// OperationTimeout bounds each store call (default 3s). A call that
	// runs out of time fails with storage.ErrStorageUnavailable.
	OperationTimeout time.Duration
}

// Store is a Valkey-backed storage.TokenRepository.
type Store struct {
	client  valkeygo.Client
	prefix  string
	logger  *slog.Logger
	timeout time.Duration
	clock   security.Clock

	instMu          sync.RWMutex
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

var _ storage.TokenRepository = (*Store)(nil)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client:  client,
		prefix:  prefix,
		logger:  logger,
		timeout: timeout,
		clock:   security.SystemClock{},
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetClock sets the clock used to turn a record's expiry into a TTL.
// Valkey itself still expires keys on its own clock.
func (s *Store) SetClock(clock security.Clock) {
	if clock != nil {
		s.clock = clock
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instMu.Lock()
	defer s.instMu.Unlock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	} else {
		s.tracer = nil
	}
}

// ============================================================
// Key Helpers
// ============================================================

// recordKey is {prefix}{kind}:{id}
func (s *Store) recordKey(kind storage.Kind, id string) string {
	return s.prefix + string(kind) + ":" + id
}

// hashKeyPrefix is {prefix}{kind}:hash:
func (s *Store) hashKeyPrefix(kind storage.Kind) string {
	return s.prefix + string(kind) + ":hash:"
}

// hashKey is {prefix}{kind}:hash:{secretHash}
func (s *Store) hashKey(kind storage.Kind, secretHash string) string {
	return s.hashKeyPrefix(kind) + secretHash
}

// hashField is the JSON field of a record that holds its secret hash
func hashField(kind storage.Kind) string {
	if kind == storage.KindCode {
		return "code"
	}
	return "token"
}

// ============================================================
// Error Helpers
// ============================================================

// isNilError checks if the error indicates a nil/not-found result from Valkey.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// unavailable wraps a backing-store failure
func unavailable(action string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s timed out: %v", storage.ErrStorageUnavailable, action, err)
	}
	return fmt.Errorf("%w: failed to %s: %v", storage.ErrStorageUnavailable, action, err)
}

func validateKind(kind storage.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", storage.ErrUnknownKind, kind)
	}
	return nil
}

func validateLength(value string, field string) error {
	if value == "" {
		return fmt.Errorf("%w: %s cannot be empty", storage.ErrInvalidRecord, field)
	}
	if len(value) > MaxIDLength {
		return fmt.Errorf("%w: %s exceeds maximum length", storage.ErrInvalidRecord, field)
	}
	return nil
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a span for a storage operation and returns its start time
func (s *Store) startStorageSpan(ctx context.Context, operation string, kind storage.Kind) (context.Context, trace.Span, time.Time) {
	s.instMu.RLock()
	tracer := s.tracer
	s.instMu.RUnlock()

	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx), time.Now()
	}

	ctx, span := tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, backendName, string(kind))
	return ctx, span, time.Now()
}

// recordStorageOperation records metrics for a storage operation, sets span status and ends the span
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, start time.Time) {
	s.instMu.RLock()
	inst := s.instrumentation
	s.instMu.RUnlock()

	if inst == nil {
		return
	}
	defer span.End()

	result := instrumentation.ResultSuccess
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		result = instrumentation.ResultError
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	durationMs := float64(time.Since(start).Microseconds()) / 1000
	inst.Metrics().RecordStorageOperation(ctx, backendName, operation, result, durationMs)
}
