// Package identity defines the authenticated principal carried by tokens and
// the lookup used to re-derive a principal from a subject identifier.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/giantswarm/oauth-tokens/claims"
)

// ErrPrincipalNotFound is returned by a Lookup when the subject is unknown.
var ErrPrincipalNotFound = errors.New("principal not found")

// Principal is an authenticated identity and its claims. The token core only
// reads Subject; everything else is carried through tickets unchanged.
type Principal struct {
	Subject            string
	AuthenticationType string
	Claims             *claims.Set
}

// NewPrincipal returns a principal for subject. A nil claim set is replaced by an empty one.
func NewPrincipal(subject, authenticationType string, c *claims.Set) *Principal {
	if c == nil {
		c = &claims.Set{}
	}
	return &Principal{
		Subject:            subject,
		AuthenticationType: authenticationType,
		Claims:             c,
	}
}

// Equal reports whether p and o carry the same subject, authentication type
// and claims. Claims compare by JSON value (see claims.Set.Equal), which is
// the equality a ticket round trip preserves.
func (p *Principal) Equal(o *Principal) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.Subject == o.Subject &&
		p.AuthenticationType == o.AuthenticationType &&
		p.Claims.Equal(o.Claims)
}

// Lookup resolves a subject identifier to its current principal.
type Lookup interface {
	FindPrincipalBySubject(ctx context.Context, subject string) (*Principal, error)
}

// ticketJSON is the serialized form sealed into tickets. Claims are written
// as a list so duplicate keys and their order survive the round trip.
type ticketJSON struct {
	Subject            string      `json:"sub"`
	AuthenticationType string      `json:"amr,omitempty"`
	Claims             []claimJSON `json:"claims,omitempty"`
}

type claimJSON struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// MarshalTicket serializes a principal for sealing.
func MarshalTicket(p *Principal) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("principal cannot be nil")
	}
	j := ticketJSON{
		Subject:            p.Subject,
		AuthenticationType: p.AuthenticationType,
	}
	for k, v := range p.Claims.All() {
		j.Claims = append(j.Claims, claimJSON{Type: k, Value: v})
	}
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal principal: %w", err)
	}
	return data, nil
}

// UnmarshalTicket restores a principal serialized by MarshalTicket.
// Numeric claim values come back as json.Number.
func UnmarshalTicket(data []byte) (*Principal, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var j ticketJSON
	if err := dec.Decode(&j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal principal: %w", err)
	}
	if j.Subject == "" {
		return nil, fmt.Errorf("principal has no subject")
	}

	set := &claims.Set{}
	for _, c := range j.Claims {
		set.Add(c.Type, c.Value)
	}
	return NewPrincipal(j.Subject, j.AuthenticationType, set), nil
}

// Directory is an in-memory Lookup.
type Directory struct {
	mu         sync.RWMutex
	principals map[string]*Principal
}

var _ Lookup = (*Directory)(nil)

// NewDirectory returns a directory seeded with the given principals.
func NewDirectory(principals ...*Principal) *Directory {
	d := &Directory{principals: make(map[string]*Principal, len(principals))}
	for _, p := range principals {
		d.Put(p)
	}
	return d
}

// Put adds or replaces the principal stored under its subject.
func (d *Directory) Put(p *Principal) {
	if p == nil || p.Subject == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.principals[p.Subject] = p
}

// Remove deletes the principal for subject.
func (d *Directory) Remove(subject string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.principals, subject)
}

// FindPrincipalBySubject returns a copy of the stored principal.
func (d *Directory) FindPrincipalBySubject(_ context.Context, subject string) (*Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.principals[subject]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPrincipalNotFound, subject)
	}
	return NewPrincipal(p.Subject, p.AuthenticationType, p.Claims.Clone()), nil
}
