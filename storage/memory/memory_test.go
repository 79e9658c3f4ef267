package memory

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/giantswarm/oauth-tokens/instrumentation"
	"github.com/giantswarm/oauth-tokens/internal/testutil"
	"github.com/giantswarm/oauth-tokens/storage"
	"github.com/giantswarm/oauth-tokens/storage/storagetest"
)

func newTestStore(t *testing.T) (*Store, *testutil.MockTime) {
	t.Helper()
	clock := testutil.NewMockTime(testutil.Epoch)
	s := NewWithInterval(time.Hour)
	s.SetClock(clock)
	s.SetLogger(slog.Default())
	t.Cleanup(s.Stop)
	return s, clock
}

func TestStore_Contract(t *testing.T) {
	s, clock := newTestStore(t)
	storagetest.Run(t, s, clock.Now)
}

func TestStore_ReadAfterExpiryBeforeSweep(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	at := testutil.GenerateTestAccessToken(clock.Now(), 5*time.Minute)
	require.NoError(t, s.Put(ctx, at))

	clock.Advance(6 * time.Minute)

	// Still physically present until the reaper runs.
	got, err := s.Get(ctx, storage.KindAccess, at.ID)
	require.NoError(t, err)
	assert.Equal(t, at.ID, got.RecordID())

	assert.Equal(t, 1, s.cleanup())

	_, err = s.Get(ctx, storage.KindAccess, at.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Lookup(ctx, storage.KindAccess, at.TokenHash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_CleanupKeepsLive(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	short := testutil.GenerateTestAuthorizationCode(clock.Now(), time.Minute)
	long := testutil.GenerateTestRefreshToken(clock.Now(), time.Hour)
	require.NoError(t, s.Put(ctx, short))
	require.NoError(t, s.Put(ctx, long))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, s.cleanup())
	assert.Equal(t, 0, s.Count(storage.KindCode))
	assert.Equal(t, 1, s.Count(storage.KindRefresh))
}

func TestStore_CleanupKeepsSharedHashIndex(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	expiring := testutil.GenerateTestAccessToken(clock.Now(), time.Minute)
	live := testutil.GenerateTestAccessToken(clock.Now(), time.Hour)
	live.TokenHash = expiring.TokenHash
	require.NoError(t, s.Put(ctx, expiring))
	require.NoError(t, s.Put(ctx, live))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, s.cleanup())

	id, err := s.Lookup(ctx, storage.KindAccess, live.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, live.ID, id)
}

func TestStore_CopiesRecords(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	code := testutil.GenerateTestAuthorizationCode(clock.Now(), time.Minute)
	require.NoError(t, s.Put(ctx, code))

	code.Scope[0] = "mutated"
	code.RedirectURI = "https://evil/cb"

	got, err := s.Get(ctx, storage.KindCode, code.ID)
	require.NoError(t, err)
	stored := got.(*storage.AuthorizationCode)
	assert.Equal(t, "openid", stored.Scope[0])
	assert.Equal(t, "https://example.com/callback", stored.RedirectURI)
}

func TestStore_PutReplacesHashIndex(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	at := testutil.GenerateTestAccessToken(clock.Now(), time.Minute)
	require.NoError(t, s.Put(ctx, at))

	replacement := *at
	replacement.TokenHash = "new-hash"
	require.NoError(t, s.Put(ctx, &replacement))

	_, err := s.Lookup(ctx, storage.KindAccess, at.TokenHash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	id, err := s.Lookup(ctx, storage.KindAccess, "new-hash")
	require.NoError(t, err)
	assert.Equal(t, at.ID, id)
}

func TestStore_InvalidInput(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	assert.ErrorIs(t, s.Put(ctx, nil), storage.ErrInvalidRecord)

	noID := testutil.GenerateTestAccessToken(clock.Now(), time.Minute)
	noID.ID = ""
	assert.ErrorIs(t, s.Put(ctx, noID), storage.ErrInvalidRecord)

	_, err := s.Get(ctx, "session", "x")
	assert.ErrorIs(t, err, storage.ErrUnknownKind)
}

func TestStore_Instrumentation(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	reader := sdkmetric.NewManualReader()
	inst, err := instrumentation.New(instrumentation.Config{Enabled: true, MetricReader: reader})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })
	s.SetInstrumentation(inst)

	require.NoError(t, s.Put(ctx, testutil.GenerateTestAccessToken(clock.Now(), time.Minute)))
	require.NoError(t, s.Put(ctx, testutil.GenerateTestAccessToken(clock.Now(), time.Minute)))
	_, _ = s.Get(ctx, storage.KindAccess, "missing")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var ops, records int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "storage.operation.total":
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					ops += dp.Value
				}
			case "storage.records":
				for _, dp := range m.Data.(metricdata.Gauge[int64]).DataPoints {
					if v, _ := dp.Attributes.Value("kind"); v.AsString() == "access" {
						records = dp.Value
					}
				}
			}
		}
	}
	assert.EqualValues(t, 3, ops)
	assert.EqualValues(t, 2, records)
}

func TestStore_StopTwice(t *testing.T) {
	s := New()
	s.Stop()
	s.Stop()
}
