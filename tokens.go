// Package tokens wires the token lifecycle core into a ready-to-use
// service: a record store, a ticket codec, instrumentation and the grant
// Manager, built from one Config.
//
// Example usage:
//
//	cfg, err := tokens.LoadConfig("tokens.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := tokens.New(cfg, directory)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(context.Background())
//
//	raw, err := svc.Manager.CreateAccessToken(ctx, principal,
//	    cfg.Lifetimes.AccessToken, "c1", "https://a/cb", []string{"read"})
package tokens

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"

	"github.com/giantswarm/oauth-tokens/identity"
	"github.com/giantswarm/oauth-tokens/instrumentation"
	"github.com/giantswarm/oauth-tokens/security"
	"github.com/giantswarm/oauth-tokens/server"
	"github.com/giantswarm/oauth-tokens/storage"
	"github.com/giantswarm/oauth-tokens/storage/memory"
	"github.com/giantswarm/oauth-tokens/storage/valkey"
)

// Service is a configured token Manager together with the resources it owns.
type Service struct {
	Manager         *server.Manager
	Repository      storage.TokenRepository
	Instrumentation *instrumentation.Instrumentation
	RateLimiter     *security.RateLimiter
	Config          Config

	logger  *slog.Logger
	closers []func(context.Context) error
}

// New builds a Service from cfg. lookup re-derives principals for the
// refresh grant. The configuration is validated first.
func New(cfg Config, lookup identity.Lookup, opts ...server.Option) (*Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{Config: cfg, logger: logger}

	inst, err := instrumentation.New(instrumentation.Config{
		Enabled:        cfg.Instrumentation.Enabled,
		ServiceName:    cfg.Instrumentation.ServiceName,
		ServiceVersion: cfg.Instrumentation.ServiceVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation: %w", err)
	}
	svc.Instrumentation = inst
	svc.closers = append(svc.closers, inst.Shutdown)

	repo, err := svc.newRepository(inst)
	if err != nil {
		_ = svc.Close(context.Background())
		return nil, err
	}
	svc.Repository = repo

	key, err := security.KeyFromBase64(cfg.Ticket.Key)
	if err != nil {
		_ = svc.Close(context.Background())
		return nil, fmt.Errorf("invalid ticket key: %w", err)
	}
	codec, err := security.NewTicketCodec(cfg.Ticket.Algorithm, key)
	if err != nil {
		_ = svc.Close(context.Background())
		return nil, fmt.Errorf("failed to create ticket codec: %w", err)
	}

	var hashKey []byte
	if cfg.Ticket.HashKey != "" {
		if hashKey, err = security.KeyFromBase64(cfg.Ticket.HashKey); err != nil {
			_ = svc.Close(context.Background())
			return nil, fmt.Errorf("invalid hash key: %w", err)
		}
	}

	managerOpts := []server.Option{
		server.WithLogger(logger),
		server.WithInstrumentation(inst),
		server.WithHasher(security.NewSecretHasher(hashKey)),
	}
	if cfg.EnableAuditLogging {
		managerOpts = append(managerOpts, server.WithAuditor(security.NewAuditor(logger, true)))
	}
	if cfg.RateLimit.Rate > 0 {
		svc.RateLimiter = security.NewRateLimiterWithConfig(security.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.Rate,
			Burst:             cfg.RateLimit.Burst,
			MaxEntries:        cfg.RateLimit.MaxEntries,
			Logger:            logger,
		})
		rl := svc.RateLimiter
		svc.closers = append(svc.closers, func(context.Context) error {
			rl.Stop()
			return nil
		})
		managerOpts = append(managerOpts, server.WithRateLimiter(rl))
	}
	managerOpts = append(managerOpts, opts...)

	mgr, err := server.New(repo, codec, lookup, managerOpts...)
	if err != nil {
		_ = svc.Close(context.Background())
		return nil, err
	}
	svc.Manager = mgr

	logger.Info("Token service ready",
		"backend", cfg.Storage.Backend,
		"ticket_algorithm", cfg.Ticket.Algorithm,
		"keyed_hashes", hashKey != nil,
		"audit", cfg.EnableAuditLogging)

	return svc, nil
}

func (s *Service) newRepository(inst *instrumentation.Instrumentation) (storage.TokenRepository, error) {
	switch s.Config.Storage.Backend {
	case BackendMemory:
		store := memory.NewWithInterval(s.Config.Storage.CleanupInterval)
		store.SetLogger(s.logger)
		store.SetInstrumentation(inst)
		s.closers = append(s.closers, func(context.Context) error {
			store.Stop()
			return nil
		})
		return store, nil

	case BackendValkey:
		vc := s.Config.Storage.Valkey
		var tlsConfig *tls.Config
		if vc.TLS {
			tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		store, err := valkey.New(valkey.Config{
			Address:          vc.Address,
			Password:         vc.Password,
			DB:               vc.DB,
			KeyPrefix:        vc.KeyPrefix,
			TLS:              tlsConfig,
			Logger:           s.logger,
			OperationTimeout: vc.OperationTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create valkey store: %w", err)
		}
		store.SetInstrumentation(inst)
		s.closers = append(s.closers, func(context.Context) error {
			store.Close()
			return nil
		})
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", s.Config.Storage.Backend)
	}
}

// Close releases the store connection, stops background workers and
// flushes instrumentation, in reverse order of creation.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
