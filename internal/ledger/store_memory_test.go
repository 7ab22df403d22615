package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epitomedu/epi/pkg/platform/sentinel"
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
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestInMemoryLedger(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 10, 12, 8, 0, 0, 0, time.UTC)}
	store := NewInMemory(WithClock(clock.Now))

	t.Run("Get on missing key reports not found", func(t *testing.T) {
		v, found, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, v)
	})

	t.Run("Put without ttl never expires", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "apply:1", `{"id":"1"}`, 0))
		clock.Advance(365 * 24 * time.Hour)

		v, found, err := store.Get(ctx, "apply:1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `{"id":"1"}`, v)
	})

	t.Run("Put with ttl expires at the boundary", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "rl:1.2.3.4", "1", time.Minute))

		clock.Advance(59 * time.Second)
		_, found, err := store.Get(ctx, "rl:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, found, "marker should exist inside its window")

		clock.Advance(time.Second)
		_, found, err = store.Get(ctx, "rl:1.2.3.4")
		require.NoError(t, err)
		assert.False(t, found, "marker should be gone once the window elapses")
	})

	t.Run("PutIfAbsent only succeeds once per window", func(t *testing.T) {
		ok, err := store.PutIfAbsent(ctx, "dup:abc", "first", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.PutIfAbsent(ctx, "dup:abc", "second", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		v, _, _ := store.Get(ctx, "dup:abc")
		assert.Equal(t, "first", v, "losing claim must not overwrite the marker")

		clock.Advance(time.Minute)
		ok, err = store.PutIfAbsent(ctx, "dup:abc", "third", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "expired marker can be claimed again")
	})

	t.Run("ListKeysByPrefix is ordered, filtered and limited", func(t *testing.T) {
		s := NewInMemory()
		for _, k := range []string{"apply:0003", "apply:0001", "rl:x", "apply:0002", "log"} {
			require.NoError(t, s.Put(ctx, k, "v", 0))
		}

		keys, err := s.ListKeysByPrefix(ctx, "apply:", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"apply:0001", "apply:0002", "apply:0003"}, keys)

		keys, err = s.ListKeysByPrefix(ctx, "apply:", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"apply:0001", "apply:0002"}, keys)
	})

	t.Run("cancelled context reports unavailable", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, _, err := store.Get(cctx, "apply:1")
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})
}

func TestInMemoryLedger_ConcurrentClaim(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	const goroutines = 100
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			ok, err := Claim(ctx, store, "dup:same-child", "1", time.Minute)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one concurrent claim should win")
}
