package security

import "golang.org/x/oauth2"

// SecretLength is the length of a raw secret returned by GenerateSecret:
// 32 random bytes, unpadded base64url.
const SecretLength = 43

// SecretGenerator produces raw token and code secrets.
type SecretGenerator func() (string, error)

// GenerateSecret returns a fresh 256-bit secret from crypto/rand, encoded as
// unpadded base64url.
func GenerateSecret() (string, error) {
	return oauth2.GenerateVerifier(), nil
}
