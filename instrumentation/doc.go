// Package instrumentation provides OpenTelemetry metrics and tracing for the
// token packages.
//
// # Quick Start
//
//	reader := sdkmetric.NewManualReader() // or a periodic exporter reader
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "token-service",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//		MetricReader:   reader,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
// When Enabled is false, no-op providers are used and recording costs nothing.
//
// # Available Metrics
//
// Grant flows:
//   - oauth.grant.total{grant, result, reason} - grant attempts
//   - oauth.grant.duration{grant} - grant duration in milliseconds
//   - oauth.token.issued{token_type, client_id} - tokens and codes issued
//   - oauth.code.exchanged{client_id} - codes redeemed
//   - oauth.token.refreshed{client_id} - refresh tokens accepted
//   - oauth.token.revoked{token_type} - administrative deletions
//
// Security:
//   - oauth.rate_limit.exceeded{limiter_type}
//   - oauth.encryption.operations.total{operation, result} - ticket seal/open
//   - oauth.encryption.duration{operation}
//
// Storage:
//   - storage.operation.total{backend, operation, result}
//   - storage.operation.duration{backend, operation}
//   - storage.records{kind} - live records, for backends that can count them
//
// # Tracing
//
// Each grant flow opens a span on the "server" tracer and each repository
// call a child span on the "storage" tracer:
//
//	oauth.authenticate_authorization_code
//	├── storage.lookup
//	└── storage.consume
//
// # Cardinality
//
// client_id is the only unbounded label. Deployments with many clients
// should drop it with a view on the meter provider.
//
// # Security Considerations
//
// Raw tokens, codes and tickets never appear in spans or metrics. Failure
// reasons are recorded on spans and metrics only; callers always see the
// undifferentiated invalid_grant.
package instrumentation
