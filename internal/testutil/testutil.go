package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giantswarm/oauth-tokens/claims"
	"github.com/giantswarm/oauth-tokens/identity"
	"github.com/giantswarm/oauth-tokens/security"
	"github.com/giantswarm/oauth-tokens/storage"
)

// Epoch is the default start instant for mock clocks.
var Epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// MockTime provides a controllable time source for deterministic testing.
// It is safe for concurrent use.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

var _ security.Clock = (*MockTime)(nil)

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// SequentialIDs returns an id generator yielding prefix-1, prefix-2, ...
func SequentialIDs(prefix string) storage.IDGenerator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// NewTestPrincipal returns a principal with a couple of claims, including a
// duplicated role.
func NewTestPrincipal(subject string) *identity.Principal {
	c := &claims.Set{}
	c.Add(claims.Subject, subject)
	c.Add("role", "admin")
	c.Add("role", "user")
	return identity.NewPrincipal(subject, "pwd", c)
}

// GenerateTestAccessToken creates an access token record valid for ttl from now.
func GenerateTestAccessToken(now time.Time, ttl time.Duration) *storage.AccessToken {
	return &storage.AccessToken{
		ID:          GenerateRandomString(16),
		ClientID:    "test-client-id",
		RedirectURI: "https://example.com/callback",
		Subject:     "test-user-123",
		Scope:       []string{"read"},
		TokenHash:   security.HashSecret(GenerateRandomString(32)),
		Ticket:      "test-ticket",
		ValidTo:     now.Add(ttl),
		Created:     now,
	}
}

// GenerateTestRefreshToken creates a refresh token record valid for ttl from now.
func GenerateTestRefreshToken(now time.Time, ttl time.Duration) *storage.RefreshToken {
	return &storage.RefreshToken{
		ID:          GenerateRandomString(16),
		ClientID:    "test-client-id",
		RedirectURI: "https://example.com/callback",
		Subject:     "test-user-123",
		TokenHash:   security.HashSecret(GenerateRandomString(32)),
		ValidTo:     now.Add(ttl),
	}
}

// GenerateTestAuthorizationCode creates an authorization code record valid for ttl from now.
func GenerateTestAuthorizationCode(now time.Time, ttl time.Duration) *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		ID:          GenerateRandomString(16),
		ClientID:    "test-client-id",
		RedirectURI: "https://example.com/callback",
		Subject:     "test-user-123",
		Scope:       []string{"openid", "email"},
		CodeHash:    security.HashSecret(GenerateRandomString(32)),
		Ticket:      "test-ticket",
		ValidTo:     now.Add(ttl),
		Created:     now,
	}
}

// GenerateRandomString generates a random base64-encoded string
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// AssertTimeEqual asserts two times are equal within a tolerance
func AssertTimeEqual(t *testing.T, got, want time.Time, tolerance time.Duration) {
	t.Helper()
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Errorf("time mismatch: got %v, want %v (tolerance: %v, diff: %v)", got, want, tolerance, diff)
	}
}
