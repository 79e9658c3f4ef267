package tokens

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/oauth-tokens/security"
)

// Storage backends
const (
	BackendValkey = "valkey"
	BackendMemory = "memory"
)

// Environment variables that override file configuration
const (
	EnvValkeyAddr     = "TOKENS_VALKEY_ADDR"
	EnvValkeyPassword = "TOKENS_VALKEY_PASSWORD"
	EnvValkeyDB       = "TOKENS_VALKEY_DB"
	EnvTicketKey      = "TOKENS_TICKET_KEY"
	EnvHashKey        = "TOKENS_HASH_KEY"
)

// Config holds the token service configuration
// Structured using composition for better organization and maintainability
type Config struct {
	// Storage selects and configures the record store
	Storage StorageConfig `yaml:"storage"`

	// Ticket configures principal sealing and secret hashing
	Ticket TicketConfig `yaml:"ticket"`

	// Lifetimes are the default validity windows used by callers that do
	// not pass their own
	Lifetimes LifetimeConfig `yaml:"lifetimes"`

	// Rate limiting configuration for grant attempts
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Instrumentation configures OpenTelemetry
	Instrumentation InstrumentationConfig `yaml:"instrumentation"`

	// EnableAuditLogging enables security audit logging.
	// Logs issuance, redemption and failures (subjects hashed).
	EnableAuditLogging bool `yaml:"audit_logging"`

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger `yaml:"-"`
}

// StorageConfig holds record store configuration
type StorageConfig struct {
	// Backend is "valkey" (default) or "memory"
	Backend string `yaml:"backend"`

	// Valkey holds the Valkey connection settings
	Valkey ValkeyConfig `yaml:"valkey"`

	// CleanupInterval is how often the memory backend reclaims expired records.
	// Default: 1 minute
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// ValkeyConfig holds Valkey connection settings
type ValkeyConfig struct {
	// Address is the Valkey server address, e.g. "localhost:6379"
	Address string `yaml:"address"`

	// Password is the optional Valkey password. Prefer TOKENS_VALKEY_PASSWORD.
	Password string `yaml:"password"`

	// DB is the database number
	DB int `yaml:"db"`

	// KeyPrefix namespaces all keys. Default: "oauth:"
	KeyPrefix string `yaml:"key_prefix"`

	// TLS enables TLS with the system roots
	TLS bool `yaml:"tls"`

	// OperationTimeout bounds each store call. Default: 3s
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// TicketConfig holds ticket codec settings
type TicketConfig struct {
	// Algorithm is "aes-gcm" (default) or "xchacha20-poly1305"
	Algorithm string `yaml:"algorithm"`

	// Key is the base64-encoded 32-byte ticket key. Prefer TOKENS_TICKET_KEY.
	Key string `yaml:"key"`

	// HashKey is an optional base64-encoded HMAC key for secret hashes.
	// Empty selects plain SHA-256.
	HashKey string `yaml:"hash_key"`
}

// LifetimeConfig holds default token lifetimes
type LifetimeConfig struct {
	// AuthorizationCode default: 10 minutes
	AuthorizationCode time.Duration `yaml:"authorization_code"`

	// AccessToken default: 1 hour
	AccessToken time.Duration `yaml:"access_token"`

	// RefreshToken default: 30 days
	RefreshToken time.Duration `yaml:"refresh_token"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Rate is grant attempts per second allowed per caller. Zero disables limiting.
	Rate float64 `yaml:"rate"`

	// Burst is the maximum burst size allowed per caller.
	Burst int `yaml:"burst"`

	// MaxEntries caps the number of tracked callers. Default: 10000
	MaxEntries int `yaml:"max_entries"`
}

// InstrumentationConfig holds OpenTelemetry settings
type InstrumentationConfig struct {
	// Enabled turns on SDK meter and tracer providers
	Enabled bool `yaml:"enabled"`

	// ServiceName default: "oauth-tokens"
	ServiceName string `yaml:"service_name"`

	// ServiceVersion default: "unknown"
	ServiceVersion string `yaml:"service_version"`
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with defaults
func (c *Config) ApplyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendValkey
	}
	if c.Storage.CleanupInterval == 0 {
		c.Storage.CleanupInterval = time.Minute
	}
	if c.Storage.Valkey.KeyPrefix == "" {
		c.Storage.Valkey.KeyPrefix = "oauth:"
	}
	if c.Storage.Valkey.OperationTimeout == 0 {
		c.Storage.Valkey.OperationTimeout = 3 * time.Second
	}
	if c.Ticket.Algorithm == "" {
		c.Ticket.Algorithm = "aes-gcm"
	}
	if c.Lifetimes.AuthorizationCode == 0 {
		c.Lifetimes.AuthorizationCode = 10 * time.Minute
	}
	if c.Lifetimes.AccessToken == 0 {
		c.Lifetimes.AccessToken = time.Hour
	}
	if c.Lifetimes.RefreshToken == 0 {
		c.Lifetimes.RefreshToken = 30 * 24 * time.Hour
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = int(c.RateLimit.Rate) + 1
	}
	if c.RateLimit.MaxEntries == 0 {
		c.RateLimit.MaxEntries = 10000
	}
}

// LoadConfig reads a YAML configuration file, applies defaults and
// environment overrides, and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadConfig reads a YAML configuration file and applies environment
// overrides without defaults or validation. An empty path reads only the
// environment.
func ReadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and connection settings from the environment.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvValkeyAddr); ok {
		c.Storage.Valkey.Address = v
	}
	if v, ok := os.LookupEnv(EnvValkeyPassword); ok {
		c.Storage.Valkey.Password = v
	}
	if v, ok := os.LookupEnv(EnvValkeyDB); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvValkeyDB, err)
		}
		c.Storage.Valkey.DB = db
	}
	if v, ok := os.LookupEnv(EnvTicketKey); ok {
		c.Ticket.Key = v
	}
	if v, ok := os.LookupEnv(EnvHashKey); ok {
		c.Ticket.HashKey = v
	}
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendValkey:
		if c.Storage.Valkey.Address == "" {
			errs = append(errs, fmt.Errorf("storage.valkey.address is required for the valkey backend"))
		}
		if c.Storage.Valkey.DB < 0 {
			errs = append(errs, fmt.Errorf("storage.valkey.db must not be negative"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	switch c.Ticket.Algorithm {
	case "aes-gcm", "xchacha20-poly1305":
	default:
		errs = append(errs, fmt.Errorf("unsupported ticket algorithm %q", c.Ticket.Algorithm))
	}

	if c.Ticket.Key == "" {
		errs = append(errs, fmt.Errorf("ticket key is required (set %s)", EnvTicketKey))
	} else if _, err := security.KeyFromBase64(c.Ticket.Key); err != nil {
		errs = append(errs, fmt.Errorf("invalid ticket key: %w", err))
	}
	if c.Ticket.HashKey != "" {
		if _, err := security.KeyFromBase64(c.Ticket.HashKey); err != nil {
			errs = append(errs, fmt.Errorf("invalid hash key: %w", err))
		}
	}

	if c.Lifetimes.AuthorizationCode <= 0 || c.Lifetimes.AccessToken <= 0 || c.Lifetimes.RefreshToken <= 0 {
		errs = append(errs, fmt.Errorf("token lifetimes must be positive"))
	}

	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("rate limit values must not be negative"))
	}

	return errors.Join(errs...)
}
