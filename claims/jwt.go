package claims

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Registered claim names (RFC 7519 section 4.1).
const (
	Issuer    = "iss"
	Subject   = "sub"
	Audience  = "aud"
	ExpiresAt = "exp"
	NotBefore = "nbf"
	IssuedAt  = "iat"
	JWTID     = "jti"
)

var _ jwt.Claims = (*Set)(nil)

// GetExpirationTime implements jwt.Claims.
func (s *Set) GetExpirationTime() (*jwt.NumericDate, error) {
	return s.numericDate(ExpiresAt)
}

// GetIssuedAt implements jwt.Claims.
func (s *Set) GetIssuedAt() (*jwt.NumericDate, error) {
	return s.numericDate(IssuedAt)
}

// GetNotBefore implements jwt.Claims.
func (s *Set) GetNotBefore() (*jwt.NumericDate, error) {
	return s.numericDate(NotBefore)
}

// GetIssuer implements jwt.Claims.
func (s *Set) GetIssuer() (string, error) {
	return s.optionalString(Issuer)
}

// GetSubject implements jwt.Claims.
func (s *Set) GetSubject() (string, error) {
	return s.optionalString(Subject)
}

// GetAudience implements jwt.Claims.
func (s *Set) GetAudience() (jwt.ClaimStrings, error) {
	aud, err := s.Strings(Audience)
	if errors.Is(err, ErrClaimNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return jwt.ClaimStrings(aud), nil
}

func (s *Set) numericDate(key string) (*jwt.NumericDate, error) {
	t, err := s.Time(key)
	if errors.Is(err, ErrClaimNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return jwt.NewNumericDate(t), nil
}

func (s *Set) optionalString(key string) (string, error) {
	v, err := s.String(key)
	if errors.Is(err, ErrClaimNotFound) {
		return "", nil
	}
	return v, err
}

// Sign encodes the set as the payload of a compact JWT signed with method and key.
// A duplicated key is written as one array member, so Parse returns it as a
// single claim holding []any.
func Sign(s *Set, method jwt.SigningMethod, key any) (string, error) {
	signed, err := jwt.NewWithClaims(method, s).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign claims: %w", err)
	}
	return signed, nil
}

// Parse verifies a compact JWT and returns its payload as a Set, preserving
// the member order of the encoded payload.
func Parse(token string, keyFunc jwt.Keyfunc, opts ...jwt.ParserOption) (*Set, error) {
	s := &Set{}
	if _, err := jwt.ParseWithClaims(token, s, keyFunc, opts...); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return s, nil
}
