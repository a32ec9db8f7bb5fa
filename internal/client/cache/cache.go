// Package cache is the client's query cache: read-through queries with
// per-key stale times, plus optimistic mutations that roll back on failure.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/atinyakov/ato/internal/logger"
)

// Key identifies a cached query.
type Key string

type entry struct {
	value     any
	hasValue  bool
	fetchedAt time.Time
	stale     bool
	// gen changes on every write, cancel and invalidation. A fetch that
	// finishes under a different gen than it started with is not stored.
	gen    uint64
	cancel context.CancelFunc
}

// Cache maps keys to query results. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	group   singleflight.Group
	now     func() time.Time
	log     *zap.Logger
}

// New returns an empty Cache.
func New(log *zap.Logger) *Cache {
	return &Cache{
		entries: map[Key]*entry{},
		now:     time.Now,
		log:     logger.OrNop(log).Named("cache"),
	}
}

func (c *Cache) entry(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// Peek returns the cached value for key, fresh or not.
func (c *Cache) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.hasValue {
		return nil, false
	}
	return e.value, true
}

// Get returns the cached value for key as T.
func Get[T any](c *Cache, key Key) (T, bool) {
	v, ok := c.Peek(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Set stores value under key as fresh.
func (c *Cache) Set(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(c.entry(key), value)
}

func (c *Cache) store(e *entry, value any) {
	e.value = value
	e.hasValue = true
	e.fetchedAt = c.now()
	e.stale = false
	e.gen++
}

// Update replaces the value under key with fn's result. fn receives the
// current value and whether one exists; it returns the new value and false
// to leave the entry untouched. fn runs under the cache lock and must not
// call back into the Cache.
func (c *Cache) Update(key Key, fn func(v any, ok bool) (any, bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(key)
	next, changed := fn(e.value, e.hasValue)
	if changed {
		c.store(e, next)
	}
}

// Snapshot captures one key for Restore.
type Snapshot struct {
	key   Key
	value any
	had   bool
}

// Snapshot captures the current value under key.
func (c *Cache) Snapshot(key Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{key: key}
	if e, ok := c.entries[key]; ok && e.hasValue {
		s.value, s.had = e.value, true
	}
	return s
}

// Restore puts back exactly what s captured, including absence.
func (c *Cache) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(s.key)
	if !s.had {
		e.value, e.hasValue = nil, false
		e.gen++
		return
	}
	c.store(e, s.value)
}

// CancelFetch aborts the in-flight fetch for key, if any, and makes sure its
// result is discarded.
func (c *Cache) CancelFetch(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return
	}
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	c.group.Forget(string(key))
}

// Invalidate marks key stale so the next Fetch goes to the network.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.invalidate(key, e)
	}
}

// InvalidatePrefix marks every key starting with prefix stale.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if strings.HasPrefix(string(k), prefix) {
			c.invalidate(k, e)
		}
	}
}

func (c *Cache) invalidate(key Key, e *entry) {
	e.stale = true
	e.gen++
	c.group.Forget(string(key))
}

// IsStale reports whether Fetch for key with staleTime would hit the network.
func (c *Cache) IsStale(key Key, staleTime time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return !ok || !c.fresh(e, staleTime)
}

func (c *Cache) fresh(e *entry, staleTime time.Duration) bool {
	return e.hasValue && !e.stale && staleTime > 0 && c.now().Sub(e.fetchedAt) < staleTime
}

// Clear drops every entry and cancels every in-flight fetch.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.cancel != nil {
			e.cancel()
		}
		c.group.Forget(string(k))
	}
	c.entries = map[Key]*entry{}
}

// Fetch returns the value for key, calling fn when the cached value is
// missing, invalidated or older than staleTime. A staleTime of zero always
// refetches. Concurrent fetches of one key share a single call to fn.
//
// fn runs with a context detached from ctx's cancellation so one caller
// giving up does not fail the others; CancelFetch cancels it.
func (c *Cache) Fetch(ctx context.Context, key Key, staleTime time.Duration, fn func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.fresh(e, staleTime) {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan(string(key), func() (any, error) {
		return c.run(ctx, key, fn)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (c *Cache) run(ctx context.Context, key Key, fn func(context.Context) (any, error)) (any, error) {
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	c.mu.Lock()
	e := c.entry(key)
	gen := e.gen
	e.cancel = cancel
	c.mu.Unlock()

	v, err := fn(fctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[key]; !ok || cur != e {
		// Cleared while fetching.
		return v, err
	}
	if e.gen != gen {
		c.log.Debug("discarding superseded fetch", zap.String("key", string(key)))
		if e.hasValue {
			return e.value, nil
		}
		return v, err
	}
	e.cancel = nil
	if err != nil {
		return nil, err
	}
	c.store(e, v)
	return v, nil
}
