package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

func newTestRepository(t *testing.T) (*Repository, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), srv
}

func TestProfileHashMerge(t *testing.T) {
	repo, srv := newTestRepository(t)
	ctx := context.Background()

	_, ok, err := repo.GetCachedProfile(ctx, "0xabc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetCachedProfile(ctx, "0xabc", models.CachedProfile{"phoneNumber": "+250788000000"}))
	require.NoError(t, repo.SetCachedProfile(ctx, "0xabc", models.CachedProfile{
		"farmName":     "Green Acres",
		"location":     "Kigali",
		"contactInfo":  "0788000000",
		"isRegistered": "true",
	}))

	assert.Equal(t, "Green Acres", srv.HGet("user_0xabc", "farmName"))
	assert.Empty(t, srv.HGet("user_0xabc", "isRegistered"))

	got, ok, err := repo.GetCachedProfile(ctx, "0xabc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.CachedProfile{
		"farmName":    "Green Acres",
		"location":    "Kigali",
		"contactInfo": "0788000000",
		"phoneNumber": "+250788000000",
	}, got)
}

func TestTryLock(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	release, err := repo.TryLock(ctx, "digest:0xabc", time.Minute)
	require.NoError(t, err)

	_, err = repo.TryLock(ctx, "digest:0xabc", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release(ctx))
	release, err = repo.TryLock(ctx, "digest:0xabc", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}
