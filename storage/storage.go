// Package storage defines the token records, the factory that builds them and
// the repository contract that persists them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrNotFound is returned when no live record exists for a kind and id or hash.
	ErrNotFound = errors.New("record not found")

	// ErrStorageUnavailable wraps every failure of the backing store,
	// including timeouts.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidRecord is returned when a record is missing required fields.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrUnknownKind is returned for a kind outside access, refresh and code.
	ErrUnknownKind = errors.New("unknown record kind")
)

// Kind names a record type. Each kind is its own key namespace.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
	KindCode    Kind = "code"
)

// Kinds lists every record kind.
var Kinds = []Kind{KindAccess, KindRefresh, KindCode}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds, k)
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Record is the common view of the three record types.
type Record interface {
	Kind() Kind
	RecordID() string
	// SecretHash is the digest of the raw secret handed to the client.
	SecretHash() string
	Expiry() time.Time
}

// AccessToken is a persisted access token. TokenHash is the digest of the
// raw token; the raw token is never stored.
type AccessToken struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	Subject     string    `json:"subject"`
	Scope       []string  `json:"scope,omitempty"`
	TokenHash   string    `json:"token"`
	Ticket      string    `json:"ticket"`
	ValidTo     time.Time `json:"valid_to"`
	Created     time.Time `json:"created"`
}

func (t *AccessToken) Kind() Kind         { return KindAccess }
func (t *AccessToken) RecordID() string   { return t.ID }
func (t *AccessToken) SecretHash() string { return t.TokenHash }
func (t *AccessToken) Expiry() time.Time  { return t.ValidTo }

// RefreshToken is a persisted refresh token. It carries no ticket; the
// principal is looked up again from Subject when the token is used.
type RefreshToken struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	Subject     string    `json:"subject"`
	Scope       []string  `json:"scope,omitempty"`
	TokenHash   string    `json:"token"`
	ValidTo     time.Time `json:"valid_to"`
}

func (t *RefreshToken) Kind() Kind         { return KindRefresh }
func (t *RefreshToken) RecordID() string   { return t.ID }
func (t *RefreshToken) SecretHash() string { return t.TokenHash }
func (t *RefreshToken) Expiry() time.Time  { return t.ValidTo }

// AuthorizationCode is a persisted, single-use authorization code.
type AuthorizationCode struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	Subject     string    `json:"subject"`
	Scope       []string  `json:"scope,omitempty"`
	CodeHash    string    `json:"code"`
	Ticket      string    `json:"ticket"`
	ValidTo     time.Time `json:"valid_to"`
	Created     time.Time `json:"created"`
}

func (c *AuthorizationCode) Kind() Kind         { return KindCode }
func (c *AuthorizationCode) RecordID() string   { return c.ID }
func (c *AuthorizationCode) SecretHash() string { return c.CodeHash }
func (c *AuthorizationCode) Expiry() time.Time  { return c.ValidTo }

// TokenRepository persists records with store-enforced TTL.
//
// Implementations map every backing-store failure to an error wrapping
// ErrStorageUnavailable and do not retry.
type TokenRepository interface {
	// Put stores r with a TTL of r.Expiry() minus now. A record whose TTL is
	// not positive is not stored and Put returns nil.
	Put(ctx context.Context, r Record) error

	// Get returns the record, or ErrNotFound. Expiry is whatever the store
	// enforces; callers range-check Expiry themselves.
	Get(ctx context.Context, kind Kind, id string) (Record, error)

	// Lookup resolves a secret hash to the id of the record holding it.
	Lookup(ctx context.Context, kind Kind, secretHash string) (string, error)

	// Consume atomically fetches and deletes a record and its hash index.
	// Among concurrent callers for the same id at most one receives the
	// record; the rest get ErrNotFound.
	Consume(ctx context.Context, kind Kind, id string) (Record, error)

	// Delete removes a record and its hash index. Deleting an absent record
	// is not an error.
	Delete(ctx context.Context, kind Kind, id string) error

	// GetAll lists the live records of a kind. Administrative use only.
	GetAll(ctx context.Context, kind Kind) ([]Record, error)
}
