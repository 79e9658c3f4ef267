package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/oauth-tokens/security"
)

// IDGenerator returns a fresh record id.
type IDGenerator func() string

// Factory builds records. It performs no I/O.
//
// Ids are random and carry no information about the record's fields, so two
// grants with identical inputs in the same instant still get distinct ids.
type Factory struct {
	clock security.Clock
	newID IDGenerator
}

// NewFactory returns a factory. Nil arguments select the system clock and
// random UUIDv4 ids.
func NewFactory(clock security.Clock, newID IDGenerator) *Factory {
	if clock == nil {
		clock = security.SystemClock{}
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Factory{clock: clock, newID: newID}
}

// CreateAccessToken builds an access token record.
func (f *Factory) CreateAccessToken(clientID, redirectURI, subject string, scope []string, tokenHash, ticket string, validTo time.Time) (*AccessToken, error) {
	now := f.clock.Now()
	if err := validate(KindAccess, clientID, subject, tokenHash, now, validTo); err != nil {
		return nil, err
	}
	if ticket == "" {
		return nil, fmt.Errorf("%w: access record requires a ticket", ErrInvalidRecord)
	}
	return &AccessToken{
		ID:          f.newID(),
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Subject:     subject,
		Scope:       cloneScope(scope),
		TokenHash:   tokenHash,
		Ticket:      ticket,
		ValidTo:     validTo,
		Created:     now,
	}, nil
}

// CreateRefreshToken builds a refresh token record. Refresh tokens have no
// ticket and no creation time.
func (f *Factory) CreateRefreshToken(clientID, redirectURI, subject string, scope []string, tokenHash string, validTo time.Time) (*RefreshToken, error) {
	if err := validate(KindRefresh, clientID, subject, tokenHash, f.clock.Now(), validTo); err != nil {
		return nil, err
	}
	return &RefreshToken{
		ID:          f.newID(),
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Subject:     subject,
		Scope:       cloneScope(scope),
		TokenHash:   tokenHash,
		ValidTo:     validTo,
	}, nil
}

// CreateAuthorizationCode builds an authorization code record.
func (f *Factory) CreateAuthorizationCode(clientID, redirectURI, subject string, scope []string, codeHash, ticket string, validTo time.Time) (*AuthorizationCode, error) {
	now := f.clock.Now()
	if err := validate(KindCode, clientID, subject, codeHash, now, validTo); err != nil {
		return nil, err
	}
	if ticket == "" {
		return nil, fmt.Errorf("%w: code record requires a ticket", ErrInvalidRecord)
	}
	return &AuthorizationCode{
		ID:          f.newID(),
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Subject:     subject,
		Scope:       cloneScope(scope),
		CodeHash:    codeHash,
		Ticket:      ticket,
		ValidTo:     validTo,
		Created:     now,
	}, nil
}

func validate(kind Kind, clientID, subject, hash string, now, validTo time.Time) error {
	switch {
	case clientID == "":
		return fmt.Errorf("%w: %s record requires a client id", ErrInvalidRecord, kind)
	case subject == "":
		return fmt.Errorf("%w: %s record requires a subject", ErrInvalidRecord, kind)
	case hash == "":
		return fmt.Errorf("%w: %s record requires a secret hash", ErrInvalidRecord, kind)
	case !validTo.After(now):
		return fmt.Errorf("%w: %s record validTo %s is not after %s", ErrInvalidRecord, kind,
			validTo.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	}
	return nil
}
