package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_FreshValueIsServedFromCache(t *testing.T) {
	c := New(nil)
	var calls int32
	fn := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.Fetch(context.Background(), "k", time.Minute, fn)
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_StaleTimeExpires(t *testing.T) {
	c := New(nil)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	var calls int32
	fn := func(context.Context) (any, error) {
		return atomic.AddInt32(&calls, 1), nil
	}

	_, err := c.Fetch(context.Background(), "k", 30*time.Second, fn)
	require.NoError(t, err)
	now = now.Add(29 * time.Second)
	_, err = c.Fetch(context.Background(), "k", 30*time.Second, fn)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	now = now.Add(2 * time.Second)
	v, err := c.Fetch(context.Background(), "k", 30*time.Second, fn)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)
}

func TestFetch_ZeroStaleTimeAlwaysRefetches(t *testing.T) {
	c := New(nil)
	var calls int32
	fn := func(context.Context) (any, error) {
		return atomic.AddInt32(&calls, 1), nil
	}

	_, _ = c.Fetch(context.Background(), "k", 0, fn)
	v, err := c.Fetch(context.Background(), "k", 0, fn)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)
}

func TestFetch_InvalidateForcesRefetch(t *testing.T) {
	c := New(nil)
	var calls int32
	fn := func(context.Context) (any, error) {
		return atomic.AddInt32(&calls, 1), nil
	}

	_, _ = c.Fetch(context.Background(), "items:a", time.Hour, fn)
	c.InvalidatePrefix("items:")
	assert.True(t, c.IsStale("items:a", time.Hour))

	v, err := c.Fetch(context.Background(), "items:a", time.Hour, fn)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)
}

func TestFetch_ConcurrentCallsShareOneRequest(t *testing.T) {
	c := New(nil)
	var calls int32
	release := make(chan struct{})
	fn := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Fetch(context.Background(), "k", 0, fn)
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_ErrorIsNotCached(t *testing.T) {
	c := New(nil)
	boom := errors.New("boom")

	_, err := c.Fetch(context.Background(), "k", time.Hour, func(context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok := c.Peek("k")
	assert.False(t, ok)
}

func TestCancelFetch_DiscardsInFlightResult(t *testing.T) {
	c := New(nil)
	c.Set("k", "server-old")
	c.Invalidate("k")

	started := make(chan struct{})
	release := make(chan struct{})
	fetchErr := make(chan error, 1)
	done := make(chan any, 1)
	go func() {
		v, _ := c.Fetch(context.Background(), "k", time.Hour, func(ctx context.Context) (any, error) {
			close(started)
			<-release
			fetchErr <- ctx.Err()
			return "server-stale", nil
		})
		done <- v
	}()
	<-started

	c.CancelFetch("k")
	c.Set("k", "optimistic")
	close(release)

	assert.ErrorIs(t, <-fetchErr, context.Canceled)
	select {
	case v := <-done:
		assert.Equal(t, "optimistic", v)
	case <-time.After(time.Second):
		t.Fatal("fetch did not return")
	}

	v, ok := c.Peek("k")
	require.True(t, ok)
	assert.Equal(t, "optimistic", v)
}

func TestFetch_CallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	c := New(nil)
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, "k", time.Hour, func(fctx context.Context) (any, error) {
			<-release
			return "v", fctx.Err()
		})
		errCh <- err
	}()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	close(release)

	require.Eventually(t, func() bool {
		v, ok := c.Peek("k")
		return ok && v == "v"
	}, time.Second, time.Millisecond)
}

func TestSnapshotRestore(t *testing.T) {
	c := New(nil)

	absent := c.Snapshot("k")
	c.Set("k", []int{1})
	c.Restore(absent)
	_, ok := c.Peek("k")
	assert.False(t, ok)

	c.Set("k", []int{1, 2})
	snap := c.Snapshot("k")
	c.Update("k", func(v any, ok bool) (any, bool) { return []int{9}, true })
	c.Restore(snap)

	got, ok := Get[[]int](c, "k")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, got)
}

func TestClear(t *testing.T) {
	c := New(nil)
	c.Set(KeyOpenItems, 1)
	c.Set(KeyLabels, 2)

	c.Clear()

	_, ok := c.Peek(KeyOpenItems)
	assert.False(t, ok)
	_, ok = c.Peek(KeyLabels)
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, Key("items:#5"), ItemKey(5))
	assert.Equal(t, Key(`items:search:milk,true,home`), SearchKey("milk", true, "home"))
	assert.NotEqual(t, SearchKey("milk", true, ""), SearchKey("milk", false, ""))
}
