package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	assert.Nil(t, New(0))
	assert.Nil(t, New(-5))
	assert.InDelta(t, 20.0, New(20).Rate(), 1e-9)
}

func TestNilLimiterNeverBlocks(t *testing.T) {
	var l *Limiter
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Zero(t, l.Rate())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestWait_PacesPermits(t *testing.T) {
	l := New(100) // 10ms interval
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 6; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	elapsed := time.Since(start)

	// The first permit is immediate, the next five are 10ms apart.
	assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestWait_NoBurstAfterIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(1)
	l.now = func() time.Time { return now }
	l.next = now

	require.NoError(t, l.Wait(context.Background()))

	// After a long idle period the schedule restarts from now.
	now = now.Add(time.Hour)
	require.NoError(t, l.Wait(context.Background()))
	assert.Equal(t, now.Add(time.Second), l.next)
}

func TestWait_ContextCancelled(t *testing.T) {
	l := New(0.001) // one permit every 1000s
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
