package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "request %d", i+1)
	}

	ok, err := l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok, "other keys are counted separately")

	now = now.Add(time.Minute)
	ok, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok, "a new window resets the count")
}

func TestMemoryLimiterSweep(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(5, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	require.Equal(t, 2, l.Len())

	removed, err := l.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	now = now.Add(2 * time.Minute)
	_, _ = l.Allow(ctx, "c")

	removed, err = l.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, l.Len())
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set, skipping")
	}

	ctx := context.Background()
	l, err := NewRedisLimiter(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0, 2, time.Minute)
	require.NoError(t, err)
	defer l.Close()

	key := "test-" + uuid.NewString()
	for i, want := range []bool{true, true, false} {
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "request %d", i+1)
	}
	assert.NoError(t, l.HealthCheck(ctx))
}
