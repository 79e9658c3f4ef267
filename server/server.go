package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-tokens/identity"
	"github.com/giantswarm/oauth-tokens/instrumentation"
	"github.com/giantswarm/oauth-tokens/internal/util"
	"github.com/giantswarm/oauth-tokens/security"
	"github.com/giantswarm/oauth-tokens/storage"
)

// Grant flow names used in logs, audit events and metrics.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantAccessToken       = "access_token"
	GrantRefreshToken      = "refresh_token"
)

// Token types used when recording issuance and revocation.
const (
	TokenTypeAccess  = "access_token"
	TokenTypeRefresh = "refresh_token"
	TokenTypeCode    = "authorization_code"
)

// tokenIDLogLength is the number of characters to include when logging record ids
const tokenIDLogLength = 8

// Manager issues and validates authorization codes, access tokens and
// refresh tokens. It holds no mutable state of its own and is safe for
// concurrent use; single-use redemption relies on the repository's Consume.
type Manager struct {
	repo    storage.TokenRepository
	codec   security.TicketCodec
	lookup  identity.Lookup
	factory *storage.Factory

	clock     security.Clock
	hasher    *security.SecretHasher
	newSecret security.SecretGenerator

	logger          *slog.Logger
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	auditor         *security.Auditor
	rateLimiter     *security.RateLimiter
}

// New creates a Manager over a repository, a ticket codec and the identity
// lookup used by the refresh grant.
func New(repo storage.TokenRepository, codec security.TicketCodec, lookup identity.Lookup, opts ...Option) (*Manager, error) {
	if repo == nil {
		return nil, fmt.Errorf("token repository is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("ticket codec is required")
	}
	if lookup == nil {
		return nil, fmt.Errorf("identity lookup is required")
	}

	m := &Manager{
		repo:      repo,
		codec:     codec,
		lookup:    lookup,
		clock:     security.SystemClock{},
		hasher:    security.NewSecretHasher(nil),
		newSecret: security.GenerateSecret,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.factory == nil {
		m.factory = storage.NewFactory(m.clock, nil)
	}
	if m.instrumentation != nil {
		m.tracer = m.instrumentation.Tracer("server")
	}

	return m, nil
}

// ============================================================
// Caller Identity
// ============================================================

type callerKey struct{}

// WithCaller returns a context carrying the caller identifier (client id,
// remote address, ...) that rate limiting and audit events are keyed on.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller set by WithCaller, or "".
func CallerFromContext(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey{}).(string)
	return caller
}

// allow applies the rate limiter to a grant attempt.
func (m *Manager) allow(ctx context.Context, grant string) error {
	if m.rateLimiter == nil {
		return nil
	}

	caller := CallerFromContext(ctx)
	if caller == "" {
		caller = "unknown"
	}
	if m.rateLimiter.Allow(caller) {
		return nil
	}

	m.logger.Warn("Grant rate limit exceeded", "grant", grant, "caller", caller)
	m.auditor.LogRateLimitExceeded(caller)
	if m.instrumentation != nil {
		m.instrumentation.Metrics().RecordRateLimitExceeded(ctx, "caller")
	}
	return ErrRateLimited
}

// ============================================================
// Storage Helpers
// ============================================================

// storageError maps any repository failure other than ErrNotFound to
// ErrStorageUnavailable so that grants fail closed.
func storageError(action string, err error) error {
	if errors.Is(err, storage.ErrStorageUnavailable) {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	return fmt.Errorf("failed to %s: %w: %v", action, storage.ErrStorageUnavailable, err)
}

// resolve maps a secret hash to the id of its record. found is false when
// the index has no entry.
func (m *Manager) resolve(ctx context.Context, kind storage.Kind, hash string) (id string, found bool, err error) {
	id, err = m.repo.Lookup(ctx, kind, hash)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageError("look up "+string(kind)+" record", err)
	}
	return id, true, nil
}

// matchesHash checks a fetched record against the hash that located it.
func matchesHash(r storage.Record, hash string) bool {
	return util.EqualConstantTime(r.SecretHash(), hash)
}

// ============================================================
// Ticket Helpers
// ============================================================

func (m *Manager) seal(ctx context.Context, p *identity.Principal) (string, error) {
	start := time.Now()
	ticket, err := m.codec.Seal(p)
	m.recordEncryption(ctx, "seal", err, start)
	if err != nil {
		return "", fmt.Errorf("failed to seal principal: %w", err)
	}
	return ticket, nil
}

func (m *Manager) open(ctx context.Context, ticket string) (*identity.Principal, error) {
	start := time.Now()
	p, err := m.codec.Open(ticket)
	m.recordEncryption(ctx, "open", err, start)
	if err != nil {
		if errors.Is(err, security.ErrInvalidTicket) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", security.ErrInvalidTicket, err)
	}
	return p, nil
}

func (m *Manager) recordEncryption(ctx context.Context, operation string, err error, start time.Time) {
	if m.instrumentation == nil {
		return
	}
	result := instrumentation.ResultSuccess
	if err != nil {
		result = instrumentation.ResultFailure
	}
	durationMs := float64(time.Since(start).Microseconds()) / 1000
	m.instrumentation.Metrics().RecordEncryptionOperation(ctx, operation, result, durationMs)
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startSpan starts a span for a Manager operation and returns its start time
func (m *Manager) startSpan(ctx context.Context, name string) (context.Context, trace.Span, time.Time) {
	if m.tracer == nil {
		return ctx, trace.SpanFromContext(ctx), time.Now()
	}
	ctx, span := m.tracer.Start(ctx, "oauth."+name)
	return ctx, span, time.Now()
}

// errorCode returns the protocol error code for a Manager error
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limit_exceeded"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrStorageUnavailable):
		return "temporarily_unavailable"
	case errors.Is(err, ErrInvalidTicket):
		return "server_error"
	default:
		return "invalid_grant"
	}
}

// finishGrant logs, audits and records the outcome of a validation flow and
// ends its span. reason is empty on success.
func (m *Manager) finishGrant(ctx context.Context, span trace.Span, grant string, start time.Time, reason string, err error) {
	result := instrumentation.ResultSuccess
	if err != nil {
		result = instrumentation.ResultFailure
		if errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrInvalidTicket) {
			result = instrumentation.ResultError
			m.logger.Error("Grant failed", "grant", grant, "reason", reason, "error", err)
		} else {
			m.logger.Debug("Grant rejected", "grant", grant, "reason", reason)
		}
		if reason != reasonRateLimited {
			m.auditor.LogGrantFailed(grant, CallerFromContext(ctx), reason)
		}
	}

	if m.instrumentation == nil {
		return
	}
	defer span.End()

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, grant))
	if err != nil {
		instrumentation.AddGrantFailure(span, errorCode(err), reason)
		if result == instrumentation.ResultError {
			instrumentation.RecordError(span, err)
		} else {
			instrumentation.SetSpanError(span, errorCode(err))
		}
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	durationMs := float64(time.Since(start).Microseconds()) / 1000
	m.instrumentation.Metrics().RecordGrant(ctx, grant, result, reason, durationMs)
}
