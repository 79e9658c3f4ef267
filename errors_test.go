package tokens

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/giantswarm/oauth-tokens/server"
)

func TestOAuthError_Error(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		description string
		want        string
	}{
		{
			name:        "simple error",
			code:        "invalid_request",
			description: "Missing required parameter",
			want:        "invalid_request: Missing required parameter",
		},
		{
			name:        "error with empty description",
			code:        "server_error",
			description: "",
			want:        "server_error: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &OAuthError{
				Code:        tt.code,
				Description: tt.description,
			}
			if got := e.Error(); got != tt.want {
				t.Errorf("OAuthError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		grant      string
		wantCode   string
		wantStatus int
	}{
		{"invalid grant", server.ErrInvalidGrant, server.GrantAuthorizationCode, ErrorCodeInvalidGrant, http.StatusBadRequest},
		{"expired refresh", server.ErrTokenExpired, server.GrantRefreshToken, ErrorCodeInvalidGrant, http.StatusBadRequest},
		{"invalid access token", server.ErrInvalidGrant, server.GrantAccessToken, ErrorCodeInvalidToken, http.StatusUnauthorized},
		{"expired access token", server.ErrTokenExpired, server.GrantAccessToken, ErrorCodeInvalidToken, http.StatusUnauthorized},
		{"invalid request", fmt.Errorf("%w: expiry must be positive", server.ErrInvalidRequest), "", ErrorCodeInvalidRequest, http.StatusBadRequest},
		{"rate limited", server.ErrRateLimited, server.GrantAccessToken, ErrorCodeRateLimitExceeded, http.StatusTooManyRequests},
		{"storage", fmt.Errorf("failed to get: %w", server.ErrStorageUnavailable), server.GrantAccessToken, ErrorCodeTemporarilyUnavailable, http.StatusServiceUnavailable},
		{"ticket", fmt.Errorf("%w: failed to decrypt", server.ErrInvalidTicket), server.GrantAccessToken, ErrorCodeServerError, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), server.GrantAccessToken, ErrorCodeServerError, http.StatusInternalServerError},
		{"passthrough", ErrInvalidRequest("custom"), "", ErrorCodeInvalidRequest, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err, tt.grant)
			if got == nil {
				t.Fatal("FromError() = nil")
			}
			if got.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", got.Status, tt.wantStatus)
			}
		})
	}

	if FromError(nil, "") != nil {
		t.Error("FromError(nil) should be nil")
	}
}

func TestFromError_DoesNotLeakCause(t *testing.T) {
	err := fmt.Errorf("failed to look up code record: %w: dial tcp 10.0.0.7:6379: connection refused", server.ErrStorageUnavailable)
	got := FromError(err, server.GrantAuthorizationCode)
	if got.Description == "" {
		t.Fatal("empty description")
	}
	for _, leak := range []string{"10.0.0.7", "dial tcp", "code record"} {
		if strings.Contains(got.Error(), leak) {
			t.Errorf("OAuth error %q leaks %q", got.Error(), leak)
		}
	}
}
