package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterSpacesCallsPerKey(t *testing.T) {
	t.Parallel()

	l := New(Config{Interval: 100 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "github"))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "first call is immediate")

	start = time.Now()
	require.NoError(t, l.Wait(ctx, "github"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// Keys do not share buckets.
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "hunter"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background(), "quake"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Zero(t, l.Interval())
}

func TestLimiterContextCancel(t *testing.T) {
	t.Parallel()

	l := New(Config{Interval: time.Hour})
	require.NoError(t, l.Wait(context.Background(), "ddg"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "ddg")
	require.ErrorContains(t, err, "rate limit wait")
}
