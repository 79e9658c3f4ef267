// Package storagetest holds the behavioural test suite every
// storage.TokenRepository implementation must pass.
package storagetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth-tokens/internal/testutil"
	"github.com/giantswarm/oauth-tokens/storage"
)

// Run exercises repo against the TokenRepository contract. now must report
// the same instant the repository uses for TTLs.
func Run(t *testing.T, repo storage.TokenRepository, now func() time.Time) {
	t.Helper()

	t.Run("PutGetLookup", func(t *testing.T) { testPutGetLookup(t, repo, now) })
	t.Run("PutExpiredIsNoop", func(t *testing.T) { testPutExpired(t, repo, now) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, repo) })
	t.Run("KindsAreSeparate", func(t *testing.T) { testKindsSeparate(t, repo, now) })
	t.Run("ConsumeOnce", func(t *testing.T) { testConsumeOnce(t, repo, now) })
	t.Run("ConsumeConcurrent", func(t *testing.T) { testConsumeConcurrent(t, repo, now) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, repo, now) })
	t.Run("GetAll", func(t *testing.T) { testGetAll(t, repo, now) })
	t.Run("SharedHashIndex", func(t *testing.T) { testSharedHashIndex(t, repo, now) })
}

func testPutGetLookup(t *testing.T, repo storage.TokenRepository, now func() time.Time) {
	ctx := context.Background()
	records := []storage.Record{
		testutil.GenerateTestAccessToken(now(), time.Minute),
		testutil.GenerateTestRefreshToken(now(), time.Minute),
		testutil.GenerateTestAuthorizationCode(now(), time.Minute),
	}

	for _, r := range records {
		require.NoError(t, repo.Put(ctx, r))

		id, err := repo.Lookup(ctx, r.Kind(), r.SecretHash())
		require.NoError(t, err)
		assert.Equal(t, r.RecordID(), id)

		got, err := repo.Get(ctx, r.Kind(), id)
		require.NoError(t, err)
		assert.Equal(t, r.RecordID(), got.RecordID())
		assert.Equal(t, r.SecretHash(), got.SecretHash())
		assert.True(t, r.Expiry().Equal(got.Expiry()), "expiry %v != %v", got.Expiry(), r.Expiry())
	}
}

func testPutExpired(t *testing.T, repo storage.TokenRepository, now func() time.Time) {
	ctx := context.Background()

	for _, ttl := range []time.Duration{-time.Minute, 0} {
		r := testutil.GenerateTestAccessToken(now(), ttl)
		require.NoError(t, repo.Put(ctx, r))

		_, err := repo.Get(ctx, storage.KindAccess, r.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.Lookup(ctx, storage.KindAccess, r.TokenHash)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func testNotFound(t *testing.T, repo storage.TokenRepository) {
	ctx := context.Background()
	for _, kind := range storage.Kinds {
		_, err := repo.Get(ctx, kind, "missing-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = repo.Lookup(ctx, kind, "missing-hash")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = repo.Consume(ctx, kind, "missing-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		assert.NoError(t, repo.Delete(ctx, kind, "missing-id"))
	}
}

func testKindsSeparate(t *testing.T, repo storage.TokenRepository, now func() time.Time) {
	ctx := context.Background()
	at := testutil.GenerateTestAccessToken(now(), time.Minute)
	require.NoError(t, repo.Put(ctx, at))

	_, err := repo.Get(ctx, storage.KindRefresh, at.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.Lookup(ctx, storage.KindCode, at.TokenHash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testConsumeOnce(t *testing.T, repo storage.TokenRepository, now func() time.Time) {
	ctx := context.Background()
	code := testutil.GenerateTestAuthorizationCode(now(), time.Minute)
	require.NoError(t, repo.Put(ctx, code))

	got, err := repo.Consume(ctx, storage.KindCode, code.ID)
	require.NoError(t, err)
	assert.Equal(t, code.CodeHash, got.SecretHash())
	assert.Equal(t, code.RedirectURI, got.(*storage.AuthorizationCode).RedirectURI)

	_, err = repo.Consume(ctx, storage.KindCode, code.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The hash index goes with the record.
	_, err = repo.Lookup(ctx, storage.KindCode, code.CodeHash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testConsumeConcurrent(t *testing.T, repo storage.TokenRepository, now func() time.Time) {
	ctx := context.Background()
	code := testutil.GenerateTestAuthorizationCode(now(), time.Minute)
	require.NoError(t, repo.Put(ctx, code))

	const workers = 32
	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		winners  atomic.Int32
		notFound atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.Consume(ctx, storage.KindCode, code.ID)
			switch {
			case err == nil:
				winners.Add(1)
			case assert.ErrorIs(t, err, storage.ErrNotFound):
				notFound.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, winners.Load(), "exactly one Consume must win")
	assert.EqualValues(t, workers-1, notFound.Load())
}

func testDelete(t *testing.T, repo storage.TokenRepository, now func() time.Time) {
	ctx := context.Background()
	rt := testutil.GenerateTestRefreshToken(now(), time.Minute)
	require.NoError(t, repo.Put(ctx, rt))

	require.NoError(t, repo.Delete(ctx, storage.KindRefresh, rt.ID))

	_, err := repo.Get(ctx, storage.KindRefresh, rt.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.Lookup(ctx, storage.KindRefresh, rt.TokenHash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// testSharedHashIndex covers two records carrying the same secret hash: the
// index follows the latest Put, and removing the other record leaves it alone.
func testSharedHashIndex(t *testing.T, repo storage.TokenRepository, now func() time.Time) {
	ctx := context.Background()
	a := testutil.GenerateTestAccessToken(now(), time.Minute)
	b := testutil.GenerateTestAccessToken(now(), time.Minute)
	b.TokenHash = a.TokenHash

	require.NoError(t, repo.Put(ctx, a))
	require.NoError(t, repo.Put(ctx, b))

	id, err := repo.Lookup(ctx, storage.KindAccess, a.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, b.ID, id)

	require.NoError(t, repo.Delete(ctx, storage.KindAccess, a.ID))
	id, err = repo.Lookup(ctx, storage.KindAccess, a.TokenHash)
	require.NoError(t, err, "deleting a must keep the index of b")
	assert.Equal(t, b.ID, id)

	require.NoError(t, repo.Put(ctx, a))
	_, err = repo.Consume(ctx, storage.KindAccess, b.ID)
	require.NoError(t, err)
	id, err = repo.Lookup(ctx, storage.KindAccess, a.TokenHash)
	require.NoError(t, err, "consuming b must keep the index of a")
	assert.Equal(t, a.ID, id)

	require.NoError(t, repo.Delete(ctx, storage.KindAccess, a.ID))
	_, err = repo.Lookup(ctx, storage.KindAccess, a.TokenHash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testGetAll(t *testing.T, repo storage.TokenRepository, now func() time.Time) {
	ctx := context.Background()

	before, err := repo.GetAll(ctx, storage.KindAccess)
	require.NoError(t, err)

	added := map[string]bool{}
	for i := 0; i < 3; i++ {
		at := testutil.GenerateTestAccessToken(now(), time.Minute)
		require.NoError(t, repo.Put(ctx, at))
		added[at.ID] = true
	}

	all, err := repo.GetAll(ctx, storage.KindAccess)
	require.NoError(t, err)
	assert.Len(t, all, len(before)+3)

	found := 0
	for _, r := range all {
		assert.Equal(t, storage.KindAccess, r.Kind())
		if added[r.RecordID()] {
			found++
		}
	}
	assert.Equal(t, 3, found)
}
