package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpRateLimiter(t *testing.T) {
	limiter := &NoOpRateLimiter{}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(ctx, "any-key")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	assert.NoError(t, limiter.Close())
}

func TestNewRedisRateLimiterInvalidURL(t *testing.T) {
	_, err := NewRedisRateLimiter("not-a-valid-url", 100, time.Minute)
	assert.Error(t, err)
}

func TestNewRedisRateLimiterConnectionFailed(t *testing.T) {
	_, err := NewRedisRateLimiter("redis://localhost:1", 100, time.Minute)
	assert.Error(t, err)
}

func TestRedisRateLimiterEnforcesLimit(t *testing.T) {
	srv := miniredis.RunT(t)

	limiter, err := NewRedisRateLimiter("redis://"+srv.Addr(), 5, time.Minute)
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "proj-1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "proj-1")
	require.NoError(t, err)
	assert.False(t, allowed, "request over the limit should be denied")
}

func TestRedisRateLimiterKeysAreIndependent(t *testing.T) {
	srv := miniredis.RunT(t)

	limiter, err := NewRedisRateLimiter("redis://"+srv.Addr(), 2, time.Minute)
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "proj-a")
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = limiter.Allow(ctx, "proj-b")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "proj-a")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = limiter.Allow(ctx, "proj-b")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRedisRateLimiterWindowExpiry(t *testing.T) {
	srv := miniredis.RunT(t)

	limiter, err := NewRedisRateLimiter("redis://"+srv.Addr(), 1, time.Second)
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "proj-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "proj-1")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Entries older than the window no longer count. The limiter uses
	// real clock scores, so waiting past the window frees a slot.
	time.Sleep(1100 * time.Millisecond)

	allowed, err = limiter.Allow(ctx, "proj-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}
