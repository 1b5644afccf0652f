package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiter_SlidingWindow(t *testing.T) {
	l := NewMemoryRateLimiter(2, time.Minute).(*memoryLimiter)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "alice")
	assert.False(t, ok, "third event in window must be denied")

	ok, _ = l.Allow(ctx, "bob")
	assert.True(t, ok, "keys are independent")

	now = now.Add(2 * time.Minute)
	ok, _ = l.Allow(ctx, "alice")
	assert.True(t, ok, "window slid past earlier events")
}

func TestMemoryRedeemer_SingleUse(t *testing.T) {
	r := NewMemoryRedeemer()
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.Redeem(ctx, "jti-1", time.Minute)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryRedeemer_ExpiredEntriesForgotten(t *testing.T) {
	r := NewMemoryRedeemer().(*memoryRedeemer)
	now := time.Now()
	r.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := r.Redeem(ctx, "jti", time.Second)
	require.True(t, ok)
	now = now.Add(2 * time.Second)
	ok, _ = r.Redeem(ctx, "jti", time.Second)
	assert.True(t, ok)
}
