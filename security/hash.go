package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HashSecret returns the hex-encoded SHA-256 digest of a raw token or code.
// Only this digest is ever persisted.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// HashSecretWithKey returns the hex-encoded HMAC-SHA256 of raw under key.
// A server-side key means a leaked store cannot be checked offline against
// guessed secrets.
func HashSecretWithKey(key []byte, raw string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// SecretHasher hashes raw secrets with either plain SHA-256 or keyed HMAC.
// The zero value uses plain SHA-256.
type SecretHasher struct {
	key []byte
}

// NewSecretHasher returns a hasher. A nil or empty key selects plain SHA-256.
func NewSecretHasher(key []byte) *SecretHasher {
	if len(key) == 0 {
		return &SecretHasher{}
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &SecretHasher{key: k}
}

// Hash returns the storage digest of raw.
func (h *SecretHasher) Hash(raw string) string {
	if h == nil || len(h.key) == 0 {
		return HashSecret(raw)
	}
	return HashSecretWithKey(h.key, raw)
}

// Keyed reports whether the hasher uses an HMAC key.
func (h *SecretHasher) Keyed() bool {
	return h != nil && len(h.key) > 0
}
