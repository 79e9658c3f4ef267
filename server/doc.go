// Package server implements the token Manager, the one component that
// interprets OAuth 2.0 grant semantics.
//
// The Manager coordinates the storage.Factory, a storage.TokenRepository,
// a security.TicketCodec and an identity.Lookup:
//
//   - AuthenticateAuthorizationCode consumes a code exactly once and checks
//     its redirect URI binding and expiry before opening its ticket.
//   - AuthenticateAccessToken resolves a raw token to its record and opens
//     the sealed principal.
//   - AuthenticateRefreshToken checks client and redirect binding and
//     re-derives the principal from the stored subject.
//   - CreateAuthorizationCode, CreateAccessToken and CreateRefreshToken
//     generate a raw secret, persist only its hash and return the raw value.
//
// Every grant failure that could reveal whether a secret exists is reported
// as ErrInvalidGrant. Store failures surface as ErrStorageUnavailable and
// never as success.
//
// Example usage:
//
//	store := memory.New()
//	codec, _ := security.NewTicketCodec("aes-gcm", key)
//
//	mgr, err := server.New(store, codec, directory,
//	    server.WithLogger(logger),
//	    server.WithAuditor(security.NewAuditor(logger, true)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	raw, err := mgr.CreateAccessToken(ctx, principal, 5*time.Minute,
//	    "c1", "https://a/cb", []string{"read"})
package server
