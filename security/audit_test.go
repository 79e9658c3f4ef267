package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewAuditor(t *testing.T) {
	tests := []struct {
		name    string
		logger  *slog.Logger
		enabled bool
	}{
		{
			name:    "enabled with logger",
			logger:  slog.Default(),
			enabled: true,
		},
		{
			name:    "disabled with logger",
			logger:  slog.Default(),
			enabled: false,
		},
		{
			name:    "enabled with nil logger",
			logger:  nil,
			enabled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := NewAuditor(tt.logger, tt.enabled)
			if auditor == nil {
				t.Fatal("NewAuditor() returned nil")
			}
			if auditor.enabled != tt.enabled {
				t.Errorf("enabled = %v, want %v", auditor.enabled, tt.enabled)
			}
			if auditor.logger == nil {
				t.Error("logger should not be nil")
			}
		})
	}
}

func TestAuditor_LogEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	tests := []struct {
		name    string
		enabled bool
		event   Event
		wantLog bool
	}{
		{
			name:    "enabled",
			enabled: true,
			event: Event{
				Type:     "test_event",
				Subject:  "user-123",
				ClientID: "client-456",
				Caller:   "caller-1",
				Details:  map[string]any{"key": "value"},
			},
			wantLog: true,
		},
		{
			name:    "disabled",
			enabled: false,
			event: Event{
				Type:     "test_event",
				Subject:  "user-123",
				ClientID: "client-456",
			},
			wantLog: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			auditor := NewAuditor(logger, tt.enabled)

			auditor.LogEvent(tt.event)

			hasLog := buf.Len() > 0
			if hasLog != tt.wantLog {
				t.Errorf("LogEvent() logged = %v, want %v", hasLog, tt.wantLog)
			}
			if strings.Contains(buf.String(), "user-123") {
				t.Error("LogEvent() wrote the raw subject")
			}
		})
	}
}

func TestAuditor_NilSafe(t *testing.T) {
	var a *Auditor
	a.LogCodeRedeemed("u1", "c1")
}

func TestAuditor_Helpers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	auditor := NewAuditor(logger, true).WithClock(ClockFunc(func() time.Time { return fixed }))

	tests := []struct {
		name      string
		log       func()
		wantEvent string
		wantText  string
	}{
		{
			name:      "token issued",
			log:       func() { auditor.LogTokenIssued("u1", "c1", "access", []string{"read", "write"}) },
			wantEvent: EventTokenIssued,
			wantText:  "read write",
		},
		{
			name:      "code issued",
			log:       func() { auditor.LogCodeIssued("u1", "c1", []string{"openid"}) },
			wantEvent: EventAuthorizationCodeIssued,
			wantText:  "openid",
		},
		{
			name:      "code redeemed",
			log:       func() { auditor.LogCodeRedeemed("u1", "c1") },
			wantEvent: EventCodeRedeemed,
			wantText:  "client_id=c1",
		},
		{
			name:      "token refreshed",
			log:       func() { auditor.LogTokenRefreshed("u1", "c1") },
			wantEvent: EventTokenRefreshed,
			wantText:  "client_id=c1",
		},
		{
			name:      "token revoked",
			log:       func() { auditor.LogTokenRevoked("u1", "c1", "refresh") },
			wantEvent: EventTokenRevoked,
			wantText:  "refresh",
		},
		{
			name:      "grant failed",
			log:       func() { auditor.LogGrantFailed("authorization_code", "caller-9", "redirect_uri mismatch") },
			wantEvent: EventGrantFailed,
			wantText:  "redirect_uri mismatch",
		},
		{
			name:      "rate limit",
			log:       func() { auditor.LogRateLimitExceeded("caller-9") },
			wantEvent: EventRateLimitExceeded,
			wantText:  "caller=caller-9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()

			out := buf.String()
			if !strings.Contains(out, "event_type="+tt.wantEvent) {
				t.Errorf("log output %q missing event %s", out, tt.wantEvent)
			}
			if !strings.Contains(out, tt.wantText) {
				t.Errorf("log output %q missing %q", out, tt.wantText)
			}
			if !strings.Contains(out, "2026-03-01") {
				t.Errorf("log output %q missing clock timestamp", out)
			}
		})
	}
}

func Test_hashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want <empty>", got)
	}

	got := hashForLogging("sensitive-data")
	if got == "sensitive-data" {
		t.Error("hashForLogging() returned unhashed sensitive data")
	}
	if len(got) != 16 {
		t.Errorf("hashForLogging() returned hash of length %d, want 16", len(got))
	}
	if hashForLogging("sensitive-data") != got {
		t.Error("hashForLogging() should return same hash for same input")
	}
	if hashForLogging("data1") == hashForLogging("data2") {
		t.Error("hashForLogging() should return different hashes for different inputs")
	}
}
