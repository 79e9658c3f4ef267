package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth-tokens/identity"
	"github.com/giantswarm/oauth-tokens/internal/testutil"
	"github.com/giantswarm/oauth-tokens/security"
	"github.com/giantswarm/oauth-tokens/storage"
)

type createFunc func(m *Manager, ctx context.Context, p *identity.Principal, expire time.Duration, clientID, redirectURI string, scope []string) (string, error)

var createFuncs = map[string]createFunc{
	"code":    (*Manager).CreateAuthorizationCode,
	"access":  (*Manager).CreateAccessToken,
	"refresh": (*Manager).CreateRefreshToken,
}

func TestCreate_InvalidRequest(t *testing.T) {
	valid := testutil.NewTestPrincipal(testSubject)

	tests := []struct {
		name      string
		principal *identity.Principal
		expire    time.Duration
		clientID  string
	}{
		{"nil principal", nil, time.Minute, testClientID},
		{"empty subject", identity.NewPrincipal("", "", nil), time.Minute, testClientID},
		{"zero expiry", valid, 0, testClientID},
		{"negative expiry", valid, -time.Second, testClientID},
		{"missing client", valid, time.Minute, ""},
	}

	for kind, create := range createFuncs {
		for _, tt := range tests {
			t.Run(kind+"/"+tt.name, func(t *testing.T) {
				env, repo := setupMockManager(t)

				raw, err := create(env.mgr, context.Background(), tt.principal, tt.expire, tt.clientID, testRedirectURI, testScope)
				assert.ErrorIs(t, err, ErrInvalidRequest)
				assert.Empty(t, raw)
				assert.Equal(t, 0, repo.Calls("Put"))
			})
		}
	}
}

func TestCreate_RawSecretNeverStored(t *testing.T) {
	env, repo := setupMockManager(t)
	ctx := context.Background()
	principal := testutil.NewTestPrincipal(testSubject)

	var raws []string
	for kind, create := range createFuncs {
		for i := 0; i < 5; i++ {
			raw, err := create(env.mgr, ctx, principal, time.Minute, testClientID, testRedirectURI, testScope)
			require.NoError(t, err, kind)
			assert.Len(t, raw, security.SecretLength)
			raws = append(raws, raw)
		}
	}

	records := repo.Records()
	require.Len(t, records, len(raws))

	var dump strings.Builder
	for _, r := range records {
		data, err := json.Marshal(r)
		require.NoError(t, err)
		dump.Write(data)
	}
	for _, raw := range raws {
		assert.NotContains(t, dump.String(), raw)
	}
}

func TestCreate_SecretsAndIDsAreUnique(t *testing.T) {
	env, repo := setupMockManager(t)
	ctx := context.Background()
	principal := testutil.NewTestPrincipal(testSubject)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		// Identical logical inputs at the same instant.
		raw, err := env.mgr.CreateAccessToken(ctx, principal, time.Minute, testClientID, testRedirectURI, testScope)
		require.NoError(t, err)
		require.False(t, seen[raw], "duplicate secret")
		seen[raw] = true
	}

	ids := map[string]bool{}
	for _, r := range repo.Records() {
		require.False(t, ids[r.RecordID()], "duplicate id")
		ids[r.RecordID()] = true
	}
	assert.Len(t, ids, 100)
}

func TestCreate_RecordFields(t *testing.T) {
	env, repo := setupMockManager(t, WithSecretGenerator(func() (string, error) { return "fixed-secret", nil }))
	ctx := context.Background()

	raw, err := env.mgr.CreateAuthorizationCode(ctx, testutil.NewTestPrincipal(testSubject), 10*time.Minute, testClientID, testRedirectURI, []string{"openid", "email"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-secret", raw)

	records := repo.Records()
	require.Len(t, records, 1)
	code, ok := records[0].(*storage.AuthorizationCode)
	require.True(t, ok)

	assert.Equal(t, testClientID, code.ClientID)
	assert.Equal(t, testRedirectURI, code.RedirectURI)
	assert.Equal(t, testSubject, code.Subject)
	assert.Equal(t, []string{"openid", "email"}, code.Scope)
	assert.Equal(t, security.HashSecret("fixed-secret"), code.CodeHash)
	assert.Equal(t, testutil.Epoch, code.Created)
	assert.Equal(t, testutil.Epoch.Add(10*time.Minute), code.ValidTo)

	p, err := env.codec.Open(code.Ticket)
	require.NoError(t, err)
	assert.Equal(t, testSubject, p.Subject)
}

func TestCreate_RefreshHasNoTicket(t *testing.T) {
	env, repo := setupMockManager(t)

	_, err := env.mgr.CreateRefreshToken(context.Background(), testutil.NewTestPrincipal(testSubject), time.Hour, testClientID, testRedirectURI, testScope)
	require.NoError(t, err)

	records := repo.Records()
	require.Len(t, records, 1)
	data, err := json.Marshal(records[0])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ticket")
}

func TestCreate_KeyedHasher(t *testing.T) {
	hasher := security.NewSecretHasher([]byte("server-side-pepper"))
	env, repo := setupMockManager(t, WithHasher(hasher))
	ctx := context.Background()

	raw, err := env.mgr.CreateAccessToken(ctx, testutil.NewTestPrincipal(testSubject), time.Minute, testClientID, testRedirectURI, testScope)
	require.NoError(t, err)

	rec := repo.Records()[0]
	assert.Equal(t, hasher.Hash(raw), rec.SecretHash())
	assert.NotEqual(t, security.HashSecret(raw), rec.SecretHash())

	_, err = env.mgr.AuthenticateAccessToken(ctx, raw)
	assert.NoError(t, err)
}

func TestCreate_Failures(t *testing.T) {
	t.Run("secret generator", func(t *testing.T) {
		env, repo := setupMockManager(t, WithSecretGenerator(func() (string, error) {
			return "", errors.New("entropy exhausted")
		}))
		raw, err := env.mgr.CreateAccessToken(context.Background(), testutil.NewTestPrincipal(testSubject), time.Minute, testClientID, testRedirectURI, testScope)
		assert.Error(t, err)
		assert.Empty(t, raw)
		assert.Equal(t, 0, repo.Calls("Put"))
	})

	t.Run("store unavailable", func(t *testing.T) {
		env, repo := setupMockManager(t)
		repo.PutFunc = func(context.Context, storage.Record) error {
			return fmt.Errorf("%w: i/o timeout", storage.ErrStorageUnavailable)
		}
		for kind, create := range createFuncs {
			raw, err := create(env.mgr, context.Background(), testutil.NewTestPrincipal(testSubject), time.Minute, testClientID, testRedirectURI, testScope)
			assert.ErrorIs(t, err, ErrStorageUnavailable, kind)
			assert.Empty(t, raw, kind)
		}
	})
}

func TestRevoke(t *testing.T) {
	env, store := setupTestManager(t)
	ctx := context.Background()
	principal := testutil.NewTestPrincipal(testSubject)

	access, err := env.mgr.CreateAccessToken(ctx, principal, time.Minute, testClientID, testRedirectURI, testScope)
	require.NoError(t, err)
	refresh, err := env.mgr.CreateRefreshToken(ctx, principal, time.Hour, testClientID, testRedirectURI, testScope)
	require.NoError(t, err)

	require.NoError(t, env.mgr.Revoke(ctx, storage.KindAccess, access))
	_, err = env.mgr.AuthenticateAccessToken(ctx, access)
	assert.ErrorIs(t, err, ErrInvalidGrant)

	// The refresh token is untouched.
	_, err = env.mgr.AuthenticateRefreshToken(ctx, testClientID, refresh, testRedirectURI)
	assert.NoError(t, err)

	// Unknown or repeated revocation succeeds.
	assert.NoError(t, env.mgr.Revoke(ctx, storage.KindAccess, access))
	assert.NoError(t, env.mgr.Revoke(ctx, storage.KindAccess, "never-issued"))
	assert.NoError(t, env.mgr.Revoke(ctx, storage.KindAccess, ""))

	assert.ErrorIs(t, env.mgr.Revoke(ctx, storage.Kind("bogus"), refresh), ErrInvalidRequest)

	recs, err := env.mgr.List(ctx, storage.KindRefresh)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NoError(t, env.mgr.RevokeByID(ctx, storage.KindRefresh, recs[0].RecordID()))
	assert.Equal(t, 0, store.Count(storage.KindRefresh))
}

func TestList_SkipsExpired(t *testing.T) {
	env, _ := setupTestManager(t)
	ctx := context.Background()
	principal := testutil.NewTestPrincipal(testSubject)

	_, err := env.mgr.CreateAccessToken(ctx, principal, time.Minute, testClientID, testRedirectURI, testScope)
	require.NoError(t, err)
	_, err = env.mgr.CreateAccessToken(ctx, principal, time.Hour, testClientID, testRedirectURI, testScope)
	require.NoError(t, err)

	env.clock.Advance(2 * time.Minute)

	recs, err := env.mgr.List(ctx, storage.KindAccess)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, testutil.Epoch.Add(time.Hour), recs[0].Expiry())

	_, err = env.mgr.List(ctx, storage.Kind("bogus"))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
