package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	clock   Clock
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		clock:   SystemClock{},
	}
}

// WithClock sets the clock used to timestamp events.
func (a *Auditor) WithClock(c Clock) *Auditor {
	if c != nil {
		a.clock = c
	}
	return a
}

// Event represents a security audit event
type Event struct {
	Type      string
	Subject   string
	ClientID  string
	Caller    string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with the subject hashed
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = a.clock.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"subject_hash", hashForLogging(event.Subject),
		"client_id", event.ClientID,
		"caller", event.Caller,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogTokenIssued logs when an access or refresh token is issued
func (a *Auditor) LogTokenIssued(subject, clientID, tokenType string, scope []string) {
	a.LogEvent(Event{
		Type:     EventTokenIssued,
		Subject:  subject,
		ClientID: clientID,
		Details: map[string]any{
			"token_type": tokenType,
			"scope":      strings.Join(scope, " "),
		},
	})
}

// LogCodeIssued logs when an authorization code is issued
func (a *Auditor) LogCodeIssued(subject, clientID string, scope []string) {
	a.LogEvent(Event{
		Type:     EventAuthorizationCodeIssued,
		Subject:  subject,
		ClientID: clientID,
		Details: map[string]any{
			"scope": strings.Join(scope, " "),
		},
	})
}

// LogCodeRedeemed logs a successful authorization code exchange
func (a *Auditor) LogCodeRedeemed(subject, clientID string) {
	a.LogEvent(Event{
		Type:     EventCodeRedeemed,
		Subject:  subject,
		ClientID: clientID,
	})
}

// LogTokenRefreshed logs when a refresh token is accepted
func (a *Auditor) LogTokenRefreshed(subject, clientID string) {
	a.LogEvent(Event{
		Type:     EventTokenRefreshed,
		Subject:  subject,
		ClientID: clientID,
	})
}

// LogTokenRevoked logs when a record is deleted administratively
func (a *Auditor) LogTokenRevoked(subject, clientID, tokenType string) {
	a.LogEvent(Event{
		Type:     EventTokenRevoked,
		Subject:  subject,
		ClientID: clientID,
		Details: map[string]any{
			"token_type": tokenType,
		},
	})
}

// LogGrantFailed logs a rejected grant. The reason is internal and is never
// returned to the caller.
func (a *Auditor) LogGrantFailed(grant, caller, reason string) {
	a.LogEvent(Event{
		Type:   EventGrantFailed,
		Caller: caller,
		Details: map[string]any{
			"grant":  grant,
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(caller string) {
	a.LogEvent(Event{
		Type:   EventRateLimitExceeded,
		Caller: caller,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
