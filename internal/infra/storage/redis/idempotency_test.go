package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motorent/internal/app/middleware"
)

func newTestStore(t *testing.T) (*IdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotencyStore(client, time.Hour), mr
}

func TestIdempotencyStoreRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	rec := middleware.IdempotencyRecord{
		Key:        "req-1",
		Payload:    []byte(`{"booking_id":"bk-1"}`),
		OccurredAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(ctx, rec))

	got, found, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.Key, got.Key)
	assert.JSONEq(t, string(rec.Payload), string(got.Payload))
	assert.True(t, rec.OccurredAt.Equal(got.OccurredAt))
}

func TestIdempotencyStoreKeepsFailureOutcome(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, middleware.IdempotencyRecord{
		Key:        "req-err",
		Error:      "booking: no available vehicle for the requested window",
		OccurredAt: time.Now().UTC(),
	}))

	got, found, err := store.Get(ctx, "req-err")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "booking: no available vehicle for the requested window", got.Error)
	assert.Empty(t, got.Payload)
}

func TestIdempotencyStoreExpiresRecords(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, middleware.IdempotencyRecord{
		Key:        "req-ttl",
		Payload:    []byte(`{}`),
		OccurredAt: time.Now().UTC(),
	}))

	mr.FastForward(2 * time.Hour)

	_, found, err := store.Get(ctx, "req-ttl")
	require.NoError(t, err)
	assert.False(t, found)
}
