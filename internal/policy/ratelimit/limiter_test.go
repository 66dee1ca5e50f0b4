package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLimiterAllowBurstThenRefill(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(Config{RPS: 1, Burst: 2, Now: clock.Now})

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"), "burst exhausted")

	clock.Advance(time.Second)
	assert.True(t, l.Allow("10.0.0.1"), "one token refilled")
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(Config{RPS: 1, Burst: 1, Now: clock.Now})

	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "client b must not be blocked by a")
	assert.Equal(t, 2, l.Len())
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("client"))
	}
}

func TestLimiterObserve(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var decisions []bool
	l := New(Config{RPS: 1, Burst: 1, Now: clock.Now, Observe: func(key string, allowed bool) {
		assert.Equal(t, "k", key)
		decisions = append(decisions, allowed)
	}})

	l.Allow("k")
	l.Allow("k")
	assert.Equal(t, []bool{true, false}, decisions)
}

func TestLimiterSweep(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(Config{RPS: 5, Burst: 5, IdleTTL: time.Minute, Now: clock.Now})

	l.Allow("old")
	clock.Advance(50 * time.Second)
	l.Allow("fresh")
	clock.Advance(20 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 0, l.Sweep())
}

func TestLimiterWait(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://test.com"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://test.com"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterWaitCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "k"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx, "k"))
}
