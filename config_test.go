package tokens

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/oauth-tokens/security"
)

func testKey(t *testing.T) string {
	t.Helper()
	key, err := security.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return security.KeyToBase64(key)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Storage.Backend != BackendValkey {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, BackendValkey)
	}
	if cfg.Storage.Valkey.KeyPrefix != "oauth:" {
		t.Errorf("KeyPrefix = %q, want oauth:", cfg.Storage.Valkey.KeyPrefix)
	}
	if cfg.Storage.Valkey.OperationTimeout != 3*time.Second {
		t.Errorf("OperationTimeout = %v, want 3s", cfg.Storage.Valkey.OperationTimeout)
	}
	if cfg.Ticket.Algorithm != "aes-gcm" {
		t.Errorf("Ticket.Algorithm = %q, want aes-gcm", cfg.Ticket.Algorithm)
	}
	if cfg.Lifetimes.AuthorizationCode != 10*time.Minute {
		t.Errorf("Lifetimes.AuthorizationCode = %v, want 10m", cfg.Lifetimes.AuthorizationCode)
	}
	if cfg.Lifetimes.AccessToken != time.Hour {
		t.Errorf("Lifetimes.AccessToken = %v, want 1h", cfg.Lifetimes.AccessToken)
	}
	if cfg.RateLimit.Rate != 0 {
		t.Errorf("RateLimit.Rate = %v, want 0 (disabled)", cfg.RateLimit.Rate)
	}
	if cfg.Logger != nil {
		t.Error("Logger should be nil by default")
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	key := testKey(t)
	path := writeConfig(t, `
storage:
  backend: memory
  cleanup_interval: 30s
ticket:
  algorithm: xchacha20-poly1305
  key: `+key+`
lifetimes:
  access_token: 5m
rate_limit:
  rate: 2.5
audit_logging: true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("Storage.Backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Storage.CleanupInterval != 30*time.Second {
		t.Errorf("CleanupInterval = %v, want 30s", cfg.Storage.CleanupInterval)
	}
	if cfg.Ticket.Algorithm != "xchacha20-poly1305" {
		t.Errorf("Ticket.Algorithm = %q", cfg.Ticket.Algorithm)
	}
	if cfg.Lifetimes.AccessToken != 5*time.Minute {
		t.Errorf("Lifetimes.AccessToken = %v, want 5m", cfg.Lifetimes.AccessToken)
	}
	// Unset values still get defaults.
	if cfg.Lifetimes.RefreshToken != 30*24*time.Hour {
		t.Errorf("Lifetimes.RefreshToken = %v, want 720h", cfg.Lifetimes.RefreshToken)
	}
	if cfg.RateLimit.Rate != 2.5 || cfg.RateLimit.Burst != 3 {
		t.Errorf("RateLimit = %+v, want rate 2.5 burst 3", cfg.RateLimit)
	}
	if !cfg.EnableAuditLogging {
		t.Error("EnableAuditLogging = false, want true")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	key := testKey(t)
	path := writeConfig(t, `
storage:
  valkey:
    address: file-host:6379
ticket:
  key: not-used
`)

	t.Setenv(EnvValkeyAddr, "env-host:6380")
	t.Setenv(EnvValkeyPassword, "s3cret")
	t.Setenv(EnvValkeyDB, "2")
	t.Setenv(EnvTicketKey, key)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Storage.Valkey.Address != "env-host:6380" {
		t.Errorf("Address = %q, want env-host:6380", cfg.Storage.Valkey.Address)
	}
	if cfg.Storage.Valkey.Password != "s3cret" {
		t.Errorf("Password = %q, want s3cret", cfg.Storage.Valkey.Password)
	}
	if cfg.Storage.Valkey.DB != 2 {
		t.Errorf("DB = %d, want 2", cfg.Storage.Valkey.DB)
	}
	if cfg.Ticket.Key != key {
		t.Error("ticket key was not taken from the environment")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("LoadConfig() expected error for missing file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "storage: [unclosed")
		if _, err := LoadConfig(path); err == nil {
			t.Error("LoadConfig() expected parse error")
		}
	})

	t.Run("bad db env", func(t *testing.T) {
		t.Setenv(EnvValkeyDB, "zero")
		if _, err := LoadConfig(""); err == nil || !strings.Contains(err.Error(), EnvValkeyDB) {
			t.Errorf("LoadConfig() error = %v, want %s error", err, EnvValkeyDB)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	key := testKey(t)

	valid := func() Config {
		cfg := DefaultConfig()
		cfg.Storage.Backend = BackendMemory
		cfg.Ticket.Key = key
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid memory", func(c *Config) {}, ""},
		{"valid valkey", func(c *Config) {
			c.Storage.Backend = BackendValkey
			c.Storage.Valkey.Address = "localhost:6379"
		}, ""},
		{"valkey without address", func(c *Config) { c.Storage.Backend = BackendValkey }, "address is required"},
		{"negative db", func(c *Config) {
			c.Storage.Backend = BackendValkey
			c.Storage.Valkey.Address = "localhost:6379"
			c.Storage.Valkey.DB = -1
		}, "db must not be negative"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, "unknown storage backend"},
		{"unknown algorithm", func(c *Config) { c.Ticket.Algorithm = "rot13" }, "unsupported ticket algorithm"},
		{"missing key", func(c *Config) { c.Ticket.Key = "" }, "ticket key is required"},
		{"short key", func(c *Config) { c.Ticket.Key = "c2hvcnQ=" }, "invalid ticket key"},
		{"bad hash key", func(c *Config) { c.Ticket.HashKey = "%%%" }, "invalid hash key"},
		{"zero lifetime", func(c *Config) { c.Lifetimes.AccessToken = 0 }, "lifetimes must be positive"},
		{"negative rate", func(c *Config) { c.RateLimit.Rate = -1 }, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
