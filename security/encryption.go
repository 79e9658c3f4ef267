package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/giantswarm/oauth-tokens/identity"
)

// KeySize is the required key length for every ticket codec.
const KeySize = 32

// Ticket format versions. The version byte prefixes every ticket and is bound
// into the AEAD as additional data.
const (
	ticketVersionAESGCM  byte = 0x01
	ticketVersionXChaCha byte = 0x02
)

// ErrInvalidTicket is returned when a ticket is malformed, tampered with or
// sealed under a different key or scheme.
var ErrInvalidTicket = errors.New("invalid ticket")

// TicketCodec seals a principal into an opaque, tamper-evident string and opens it again.
type TicketCodec interface {
	Seal(p *identity.Principal) (string, error)
	Open(ticket string) (*identity.Principal, error)
}

// aeadCodec implements TicketCodec over any AEAD.
type aeadCodec struct {
	aead    cipher.AEAD
	version byte
}

// NewAESGCMCodec returns a codec using AES-256-GCM. The key must be exactly 32 bytes.
func NewAESGCMCodec(key []byte) (TicketCodec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes for AES-256, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aeadCodec{aead: gcm, version: ticketVersionAESGCM}, nil
}

// NewXChaChaCodec returns a codec using XChaCha20-Poly1305, whose 24-byte
// random nonces are safe for very high ticket volumes under one key.
func NewXChaChaCodec(key []byte) (TicketCodec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes for XChaCha20-Poly1305, got %d", KeySize, len(key))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create XChaCha20-Poly1305: %w", err)
	}

	return &aeadCodec{aead: aead, version: ticketVersionXChaCha}, nil
}

// NewTicketCodec returns the codec named by algorithm: "aes-gcm" (default) or "xchacha20-poly1305".
func NewTicketCodec(algorithm string, key []byte) (TicketCodec, error) {
	switch algorithm {
	case "", "aes-gcm":
		return NewAESGCMCodec(key)
	case "xchacha20-poly1305":
		return NewXChaChaCodec(key)
	default:
		return nil, fmt.Errorf("unsupported ticket algorithm %q", algorithm)
	}
}

// Seal serializes and encrypts the principal.
// Output format: base64url([version][nonce][ciphertext]).
func (c *aeadCodec) Seal(p *identity.Principal) (string, error) {
	plaintext, err := identity.MarshalTicket(p)
	if err != nil {
		return "", err
	}

	nonceSize := c.aead.NonceSize()
	buf := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+c.aead.Overhead())
	buf[0] = c.version
	nonce := buf[1 : 1+nonceSize]
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(buf, nonce, plaintext, []byte{c.version})
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts and deserializes a ticket produced by Seal.
func (c *aeadCodec) Open(ticket string) (*identity.Principal, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ticket)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode base64: %v", ErrInvalidTicket, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < 1+nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ticket too short", ErrInvalidTicket)
	}
	if raw[0] != c.version {
		return nil, fmt.Errorf("%w: unexpected ticket version %#x", ErrInvalidTicket, raw[0])
	}

	nonce, ciphertext := raw[1:1+nonceSize], raw[1+nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte{c.version})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt", ErrInvalidTicket)
	}

	p, err := identity.UnmarshalTicket(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	return p, nil
}

// GenerateKey generates a new 32-byte ticket key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// KeyFromBase64 decodes a base64-encoded ticket key
func KeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// KeyToBase64 encodes a ticket key to base64
func KeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
