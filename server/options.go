package server

import (
	"log/slog"

	"github.com/giantswarm/oauth-tokens/instrumentation"
	"github.com/giantswarm/oauth-tokens/security"
	"github.com/giantswarm/oauth-tokens/storage"
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for issuance and expiry checks.
func WithClock(clock security.Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithFactory sets the record factory. Without it the Manager builds one
// on its own clock.
func WithFactory(f *storage.Factory) Option {
	return func(m *Manager) {
		m.factory = f
	}
}

// WithHasher sets the secret hasher, e.g. a keyed HMAC hasher.
func WithHasher(h *security.SecretHasher) Option {
	return func(m *Manager) {
		if h != nil {
			m.hasher = h
		}
	}
}

// WithSecretGenerator replaces the raw secret source.
func WithSecretGenerator(gen security.SecretGenerator) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newSecret = gen
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithInstrumentation enables tracing and metrics.
func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(m *Manager) {
		m.instrumentation = inst
	}
}

// WithAuditor enables security audit events.
func WithAuditor(a *security.Auditor) Option {
	return func(m *Manager) {
		m.auditor = a
	}
}

// WithRateLimiter limits grant attempts per caller. See WithCaller.
func WithRateLimiter(rl *security.RateLimiter) Option {
	return func(m *Manager) {
		m.rateLimiter = rl
	}
}
