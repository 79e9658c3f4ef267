// Package security holds the cryptographic and protective glue of the token
// core.
//
// # Secrets
//
// GenerateSecret produces the raw value handed to a client. Only its digest,
// from HashSecret or a keyed SecretHasher, is persisted, so a copy of the
// store does not yield usable tokens.
//
// # Tickets
//
// A TicketCodec seals an identity.Principal into an opaque string and opens
// it again. Two schemes are available, selected at construction:
//
//	codec, err := security.NewTicketCodec("xchacha20-poly1305", key)
//	ticket, err := codec.Seal(principal)
//	principal, err := codec.Open(ticket)
//
// Every ticket starts with a version byte naming its scheme, so a ticket
// sealed by one scheme is rejected by the other with ErrInvalidTicket.
//
// # Time
//
// Expiry checks take the instant from a Clock. IsExpired treats the
// validTo instant itself as expired.
//
// # Audit and throttling
//
// Auditor writes security_audit log records with subjects hashed.
// RateLimiter is a per-caller token bucket with LRU eviction, bounded by
// MaxEntries so a flood of distinct callers cannot exhaust memory.
package security
