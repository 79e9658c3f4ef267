package tokens

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/giantswarm/oauth-tokens/server"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest         = "invalid_request"
	ErrorCodeInvalidGrant           = "invalid_grant"
	ErrorCodeInvalidToken           = "invalid_token"
	ErrorCodeServerError            = "server_error"
	ErrorCodeTemporarilyUnavailable = "temporarily_unavailable"
	ErrorCodeRateLimitExceeded      = "rate_limit_exceeded"
)

// OAuthError represents an OAuth 2.0 error response
type OAuthError struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common OAuth errors as reusable constructors
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidGrant indicates the authorization code or refresh token is invalid or expired
	ErrInvalidGrant = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
	}

	// ErrInvalidToken indicates the access token is invalid or expired
	ErrInvalidToken = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidToken, desc, http.StatusUnauthorized)
	}

	// ErrServerError indicates an internal server error occurred
	ErrServerError = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}

	// ErrTemporarilyUnavailable indicates the record store could not be reached
	ErrTemporarilyUnavailable = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeTemporarilyUnavailable, desc, http.StatusServiceUnavailable)
	}

	// ErrRateLimitExceeded indicates the caller has been throttled
	ErrRateLimitExceeded = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
	}
)

// FromError maps an error returned by the token Manager to the OAuth error
// a caller may see. grant selects the code for unusable tokens: bearer
// access tokens are reported as invalid_token, codes and refresh tokens as
// invalid_grant. Descriptions are fixed strings and never carry the cause.
func FromError(err error, grant string) *OAuthError {
	if err == nil {
		return nil
	}

	var oe *OAuthError
	if errors.As(err, &oe) {
		return oe
	}

	switch {
	case errors.Is(err, server.ErrInvalidRequest):
		return ErrInvalidRequest("The request is missing a required parameter or is otherwise malformed")
	case errors.Is(err, server.ErrRateLimited):
		return ErrRateLimitExceeded("Too many requests")
	case errors.Is(err, server.ErrStorageUnavailable):
		return ErrTemporarilyUnavailable("The service is temporarily unavailable")
	case errors.Is(err, server.ErrInvalidTicket):
		return ErrServerError("The token could not be processed")
	case errors.Is(err, server.ErrInvalidGrant), errors.Is(err, server.ErrTokenExpired):
		if grant == server.GrantAccessToken {
			return ErrInvalidToken("The access token is invalid or expired")
		}
		return ErrInvalidGrant("The provided authorization grant is invalid or expired")
	default:
		return ErrServerError("An unexpected error occurred")
	}
}
