package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/oauth-tokens/identity"
	"github.com/giantswarm/oauth-tokens/instrumentation"
	"github.com/giantswarm/oauth-tokens/internal/util"
	"github.com/giantswarm/oauth-tokens/storage"
)

// issueRequest carries the arguments shared by the three create paths.
type issueRequest struct {
	kind        storage.Kind
	principal   *identity.Principal
	expire      time.Duration
	clientID    string
	redirectURI string
	scope       []string
}

// CreateAuthorizationCode issues a single-use authorization code for
// principal, bound to clientID and redirectURI, valid for expire. It returns
// the raw code; only its hash is stored.
func (m *Manager) CreateAuthorizationCode(ctx context.Context, principal *identity.Principal, expire time.Duration, clientID, redirectURI string, scope []string) (string, error) {
	return m.issue(ctx, issueRequest{
		kind:        storage.KindCode,
		principal:   principal,
		expire:      expire,
		clientID:    clientID,
		redirectURI: redirectURI,
		scope:       scope,
	})
}

// CreateAccessToken issues an access token for principal valid for expire
// and returns the raw token.
func (m *Manager) CreateAccessToken(ctx context.Context, principal *identity.Principal, expire time.Duration, clientID, redirectURI string, scope []string) (string, error) {
	return m.issue(ctx, issueRequest{
		kind:        storage.KindAccess,
		principal:   principal,
		expire:      expire,
		clientID:    clientID,
		redirectURI: redirectURI,
		scope:       scope,
	})
}

// CreateRefreshToken issues a refresh token for principal valid for expire
// and returns the raw token. The record keeps only the subject; no ticket
// is sealed.
func (m *Manager) CreateRefreshToken(ctx context.Context, principal *identity.Principal, expire time.Duration, clientID, redirectURI string, scope []string) (string, error) {
	return m.issue(ctx, issueRequest{
		kind:        storage.KindRefresh,
		principal:   principal,
		expire:      expire,
		clientID:    clientID,
		redirectURI: redirectURI,
		scope:       scope,
	})
}

func tokenType(kind storage.Kind) string {
	switch kind {
	case storage.KindCode:
		return TokenTypeCode
	case storage.KindRefresh:
		return TokenTypeRefresh
	default:
		return TokenTypeAccess
	}
}

func (m *Manager) issue(ctx context.Context, req issueRequest) (raw string, err error) {
	ctx, span, _ := m.startSpan(ctx, "create_"+tokenType(req.kind))
	defer func() {
		if m.instrumentation == nil {
			return
		}
		defer span.End()
		instrumentation.SetSpanAttributes(span,
			attribute.String(instrumentation.AttrTokenType, tokenType(req.kind)),
			attribute.Int64(instrumentation.AttrExpiresIn, int64(req.expire.Seconds())))
		if err != nil {
			instrumentation.RecordError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
	}()

	if req.principal == nil || req.principal.Subject == "" {
		return "", fmt.Errorf("%w: principal with a subject is required", ErrInvalidRequest)
	}
	if req.expire <= 0 {
		return "", fmt.Errorf("%w: expiry must be positive, got %s", ErrInvalidRequest, req.expire)
	}
	if req.clientID == "" {
		return "", fmt.Errorf("%w: client id is required", ErrInvalidRequest)
	}
	instrumentation.AddOAuthFlowAttributes(span, req.clientID, "", strings.Join(req.scope, " "))

	// SECURITY: Only this call ever sees the raw secret.
	raw, err = m.newSecret()
	if err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	hash := m.hasher.Hash(raw)
	validTo := m.clock.Now().Add(req.expire)

	var rec storage.Record
	switch req.kind {
	case storage.KindCode:
		ticket, sealErr := m.seal(ctx, req.principal)
		if sealErr != nil {
			return "", sealErr
		}
		rec, err = m.factory.CreateAuthorizationCode(req.clientID, req.redirectURI, req.principal.Subject, req.scope, hash, ticket, validTo)
	case storage.KindAccess:
		ticket, sealErr := m.seal(ctx, req.principal)
		if sealErr != nil {
			return "", sealErr
		}
		rec, err = m.factory.CreateAccessToken(req.clientID, req.redirectURI, req.principal.Subject, req.scope, hash, ticket, validTo)
	case storage.KindRefresh:
		rec, err = m.factory.CreateRefreshToken(req.clientID, req.redirectURI, req.principal.Subject, req.scope, hash, validTo)
	default:
		return "", fmt.Errorf("%w: unsupported record kind %q", ErrInvalidRequest, req.kind)
	}
	if err != nil {
		if errors.Is(err, storage.ErrInvalidRecord) {
			return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return "", err
	}

	if err = m.repo.Put(ctx, rec); err != nil {
		return "", storageError("store "+string(req.kind)+" record", err)
	}

	if req.kind == storage.KindCode {
		m.auditor.LogCodeIssued(req.principal.Subject, req.clientID, req.scope)
	} else {
		m.auditor.LogTokenIssued(req.principal.Subject, req.clientID, tokenType(req.kind), req.scope)
	}
	if m.instrumentation != nil {
		m.instrumentation.Metrics().RecordTokenIssued(ctx, tokenType(req.kind), req.clientID)
	}
	m.logger.Debug("Issued record",
		"kind", req.kind,
		"client_id", req.clientID,
		"id_prefix", util.SafeTruncate(rec.RecordID(), tokenIDLogLength),
		"valid_to", validTo)

	return raw, nil
}

// Revoke deletes the record a raw secret of the given kind belongs to.
// Revoking an unknown or already expired secret succeeds.
func (m *Manager) Revoke(ctx context.Context, kind storage.Kind, raw string) (err error) {
	ctx, span, _ := m.startSpan(ctx, "revoke")
	defer func() {
		if m.instrumentation == nil {
			return
		}
		defer span.End()
		if err != nil {
			instrumentation.RecordError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
	}()

	if !kind.Valid() {
		return fmt.Errorf("%w: unknown record kind %q", ErrInvalidRequest, kind)
	}
	if raw == "" {
		return nil
	}

	hash := m.hasher.Hash(raw)
	id, found, err := m.resolve(ctx, kind, hash)
	if err != nil || !found {
		return err
	}

	return m.RevokeByID(ctx, kind, id)
}

// RevokeByID deletes a record by id. It is meant for administrative tools
// that list records and have no raw secret.
func (m *Manager) RevokeByID(ctx context.Context, kind storage.Kind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown record kind %q", ErrInvalidRequest, kind)
	}

	subject, clientID := "", ""
	if rec, err := m.repo.Get(ctx, kind, id); err == nil {
		subject, clientID = recordParties(rec)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storageError("get "+string(kind)+" record", err)
	}

	if err := m.repo.Delete(ctx, kind, id); err != nil {
		return storageError("delete "+string(kind)+" record", err)
	}

	m.auditor.LogTokenRevoked(subject, clientID, tokenType(kind))
	if m.instrumentation != nil {
		m.instrumentation.Metrics().RecordTokenRevocation(ctx, tokenType(kind))
	}
	m.logger.Info("Revoked record",
		"kind", kind,
		"id_prefix", util.SafeTruncate(id, tokenIDLogLength))
	return nil
}

// List returns the live records of a kind as stored. Administrative use only.
func (m *Manager) List(ctx context.Context, kind storage.Kind) ([]storage.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown record kind %q", ErrInvalidRequest, kind)
	}
	recs, err := m.repo.GetAll(ctx, kind)
	if err != nil {
		return nil, storageError("list "+string(kind)+" records", err)
	}

	now := m.clock.Now()
	live := recs[:0]
	for _, r := range recs {
		if now.Before(r.Expiry()) {
			live = append(live, r)
		}
	}
	return live, nil
}

func recordParties(r storage.Record) (subject, clientID string) {
	switch rec := r.(type) {
	case *storage.AccessToken:
		return rec.Subject, rec.ClientID
	case *storage.RefreshToken:
		return rec.Subject, rec.ClientID
	case *storage.AuthorizationCode:
		return rec.Subject, rec.ClientID
	}
	return "", ""
}
