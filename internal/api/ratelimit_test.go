package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterFirstCallDoesNotBlock(t *testing.T) {
	limiter := NewLimiter(time.Second)

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterEnforcesMinimumInterval(t *testing.T) {
	const interval = 50 * time.Millisecond
	limiter := NewLimiter(interval)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Wait(context.Background()))
	}
	// Two inter-call gaps of at least interval each.
	require.GreaterOrEqual(t, time.Since(start), 2*interval)
}

func TestLimiterWaitCancellable(t *testing.T) {
	limiter := NewLimiter(time.Hour)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	require.Error(t, err)
}
