package server

import (
	"context"
	"errors"

	"github.com/giantswarm/oauth-tokens/identity"
	"github.com/giantswarm/oauth-tokens/instrumentation"
	"github.com/giantswarm/oauth-tokens/internal/util"
	"github.com/giantswarm/oauth-tokens/security"
	"github.com/giantswarm/oauth-tokens/storage"
)

// AuthenticateAuthorizationCode redeems a raw authorization code issued for
// redirectURI and returns the principal sealed into it.
//
// SECURITY: The code is consumed before any other check. Whatever the
// outcome, it cannot be presented again.
func (m *Manager) AuthenticateAuthorizationCode(ctx context.Context, redirectURI, code string) (p *identity.Principal, err error) {
	ctx, span, start := m.startSpan(ctx, "authenticate_authorization_code")
	var reason string
	defer func() { m.finishGrant(ctx, span, GrantAuthorizationCode, start, reason, err) }()

	reject := func(r string, e error) (*identity.Principal, error) {
		reason = r
		return nil, e
	}

	if err := m.allow(ctx, GrantAuthorizationCode); err != nil {
		return reject(reasonRateLimited, err)
	}
	if code == "" {
		return reject(reasonNotFound, ErrInvalidGrant)
	}

	hash := m.hasher.Hash(code)
	id, found, err := m.resolve(ctx, storage.KindCode, hash)
	if err != nil {
		return reject(reasonStorage, err)
	}
	if !found {
		return reject(reasonNotFound, ErrInvalidGrant)
	}

	rec, err := m.repo.Consume(ctx, storage.KindCode, id)
	if errors.Is(err, storage.ErrNotFound) {
		// Lost a race with a concurrent redemption, or the TTL fired.
		return reject(reasonNotFound, ErrInvalidGrant)
	}
	if err != nil {
		return reject(reasonStorage, storageError("consume authorization code", err))
	}

	authCode, ok := rec.(*storage.AuthorizationCode)
	if !ok {
		return reject(reasonWrongKind, ErrInvalidGrant)
	}
	if !matchesHash(authCode, hash) {
		return reject(reasonHashMismatch, ErrInvalidGrant)
	}

	// SECURITY: Redirect URI binding prevents an intercepted code from being
	// redeemed through a different redirect.
	if !util.EqualConstantTime(authCode.RedirectURI, redirectURI) {
		m.logger.Debug("Authorization code validation failed",
			"reason", reasonRedirectMismatch,
			"client_id", authCode.ClientID,
			"code_id_prefix", util.SafeTruncate(authCode.ID, tokenIDLogLength))
		return reject(reasonRedirectMismatch, ErrInvalidGrant)
	}

	if security.IsExpired(m.clock.Now(), authCode.ValidTo) {
		return reject(reasonExpired, ErrTokenExpired)
	}

	p, err = m.open(ctx, authCode.Ticket)
	if err != nil {
		return reject(reasonInvalidTicket, err)
	}

	instrumentation.AddOAuthFlowAttributes(span, authCode.ClientID, "", "")
	m.auditor.LogCodeRedeemed(authCode.Subject, authCode.ClientID)
	if m.instrumentation != nil {
		m.instrumentation.Metrics().RecordCodeExchange(ctx, authCode.ClientID)
	}
	m.logger.Debug("Redeemed authorization code",
		"client_id", authCode.ClientID,
		"code_id_prefix", util.SafeTruncate(authCode.ID, tokenIDLogLength))
	return p, nil
}

// AuthenticateAccessToken validates a raw access token and returns the
// principal sealed into it.
func (m *Manager) AuthenticateAccessToken(ctx context.Context, rawToken string) (p *identity.Principal, err error) {
	ctx, span, start := m.startSpan(ctx, "authenticate_access_token")
	var reason string
	defer func() { m.finishGrant(ctx, span, GrantAccessToken, start, reason, err) }()

	reject := func(r string, e error) (*identity.Principal, error) {
		reason = r
		return nil, e
	}

	if err := m.allow(ctx, GrantAccessToken); err != nil {
		return reject(reasonRateLimited, err)
	}
	if rawToken == "" {
		return reject(reasonNotFound, ErrInvalidGrant)
	}

	hash := m.hasher.Hash(rawToken)
	rec, r, err := m.fetch(ctx, storage.KindAccess, hash)
	if err != nil {
		return reject(r, err)
	}

	token, ok := rec.(*storage.AccessToken)
	if !ok {
		return reject(reasonWrongKind, ErrInvalidGrant)
	}

	if security.IsExpired(m.clock.Now(), token.ValidTo) {
		return reject(reasonExpired, ErrTokenExpired)
	}

	p, err = m.open(ctx, token.Ticket)
	if err != nil {
		return reject(reasonInvalidTicket, err)
	}

	instrumentation.AddOAuthFlowAttributes(span, token.ClientID, "", "")
	return p, nil
}

// AuthenticateRefreshToken validates a raw refresh token presented by
// clientID for redirectURI. The principal is looked up again by subject,
// so claims reflect the subject's current state.
func (m *Manager) AuthenticateRefreshToken(ctx context.Context, clientID, rawToken, redirectURI string) (p *identity.Principal, err error) {
	ctx, span, start := m.startSpan(ctx, "authenticate_refresh_token")
	var reason string
	defer func() { m.finishGrant(ctx, span, GrantRefreshToken, start, reason, err) }()

	reject := func(r string, e error) (*identity.Principal, error) {
		reason = r
		return nil, e
	}

	if err := m.allow(ctx, GrantRefreshToken); err != nil {
		return reject(reasonRateLimited, err)
	}
	if rawToken == "" {
		return reject(reasonNotFound, ErrInvalidGrant)
	}

	hash := m.hasher.Hash(rawToken)
	rec, r, err := m.fetch(ctx, storage.KindRefresh, hash)
	if err != nil {
		return reject(r, err)
	}

	token, ok := rec.(*storage.RefreshToken)
	if !ok {
		return reject(reasonWrongKind, ErrInvalidGrant)
	}

	// SECURITY: A refresh token is bound to the client and redirect it was
	// issued for.
	if !util.EqualConstantTime(token.ClientID, clientID) {
		return reject(reasonClientMismatch, ErrInvalidGrant)
	}
	if !util.EqualConstantTime(token.RedirectURI, redirectURI) {
		return reject(reasonRedirectMismatch, ErrInvalidGrant)
	}

	if security.IsExpired(m.clock.Now(), token.ValidTo) {
		return reject(reasonExpired, ErrTokenExpired)
	}

	// A vanished subject is indistinguishable from a bad token.
	p, err = m.lookup.FindPrincipalBySubject(ctx, token.Subject)
	if err != nil || p == nil {
		m.logger.Debug("Refresh token subject lookup failed",
			"client_id", clientID,
			"token_id_prefix", util.SafeTruncate(token.ID, tokenIDLogLength),
			"error", err)
		return reject(reasonSubjectLookup, ErrInvalidGrant)
	}

	instrumentation.AddOAuthFlowAttributes(span, clientID, "", "")
	m.auditor.LogTokenRefreshed(token.Subject, clientID)
	if m.instrumentation != nil {
		m.instrumentation.Metrics().RecordTokenRefresh(ctx, clientID)
	}
	return p, nil
}

// fetch resolves a secret hash and reads the record it points at. On
// failure it returns the reason and the error to hand back to the caller.
func (m *Manager) fetch(ctx context.Context, kind storage.Kind, hash string) (storage.Record, string, error) {
	id, found, err := m.resolve(ctx, kind, hash)
	if err != nil {
		return nil, reasonStorage, err
	}
	if !found {
		return nil, reasonNotFound, ErrInvalidGrant
	}

	rec, err := m.repo.Get(ctx, kind, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, reasonNotFound, ErrInvalidGrant
	}
	if err != nil {
		return nil, reasonStorage, storageError("get "+string(kind)+" record", err)
	}
	if !matchesHash(rec, hash) {
		return nil, reasonHashMismatch, ErrInvalidGrant
	}
	return rec, "", nil
}
