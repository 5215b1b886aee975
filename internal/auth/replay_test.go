package auth

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcogenualdo/qf-auth/internal/cache"
	"github.com/marcogenualdo/qf-auth/internal/config"
)

func TestReplayGuard_Memory(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	guard := NewReplayGuard(mc)
	ctx := context.Background()

	require.NoError(t, guard.Claim(ctx, "state-1"))
	assert.ErrorIs(t, guard.Claim(ctx, "state-1"), ErrReplayed)
	assert.NoError(t, guard.Claim(ctx, "state-2"))
}

func TestReplayGuard_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()

	guard := NewReplayGuard(rc)
	ctx := context.Background()

	require.NoError(t, guard.Claim(ctx, "state-1"))
	assert.ErrorIs(t, guard.Claim(ctx, "state-1"), ErrReplayed)
	assert.Equal(t, PendingMaxAge, mr.TTL("pending:used:state-1"))
}

func TestReplayGuard_CacheError(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()
	mr.Close()

	err = NewReplayGuard(rc).Claim(context.Background(), "state-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrReplayed)
}
