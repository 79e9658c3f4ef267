package security

// Event type constants for security audit logging.
const (
	// Issuance

	// EventTokenIssued is logged when an access or refresh token is issued
	EventTokenIssued = "token_issued"

	// EventAuthorizationCodeIssued is logged when an authorization code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// Grant flows

	// EventCodeRedeemed is logged when an authorization code is exchanged
	EventCodeRedeemed = "code_redeemed"

	// EventTokenRefreshed is logged when a refresh token is accepted
	EventTokenRefreshed = "token_refreshed"

	// EventGrantFailed is logged when any grant flow rejects its input
	EventGrantFailed = "grant_failed"

	// Administrative

	// EventTokenRevoked is logged when a record is deleted outside a grant flow
	EventTokenRevoked = "token_revoked"

	// Security violations

	// EventRateLimitExceeded is logged when a caller is throttled
	EventRateLimitExceeded = "rate_limit_exceeded"
)
