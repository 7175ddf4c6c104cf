package cve

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// lookupCache shares collaborator calls between correlations. Concurrent
// callers of one key wait on a single call, and successful results are
// reused until ttl expires. Errors are never cached. A zero ttl keeps only
// the in-flight sharing.
type lookupCache[V any] struct {
	group singleflight.Group
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	items map[string]cacheEntry[V]
}

type cacheEntry[V any] struct {
	value   V
	expires time.Time
}

func newLookupCache[V any](ttl time.Duration, now func() time.Time) *lookupCache[V] {
	return &lookupCache[V]{ttl: ttl, now: now, items: make(map[string]cacheEntry[V])}
}

// do returns the cached value for key or runs fn once for all concurrent
// callers. The shared call is detached from any single caller's
// cancellation and bounded by timeout; each caller still stops waiting
// when its own ctx ends.
func (lc *lookupCache[V]) do(ctx context.Context, key string, timeout time.Duration, fn func(context.Context) (V, error)) (V, error) {
	if v, ok := lc.get(key); ok {
		return v, nil
	}

	ch := lc.group.DoChan(key, func() (any, error) {
		// A flight that finished between get and DoChan has filled the cache.
		if v, ok := lc.get(key); ok {
			return v, nil
		}
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		v, err := fn(callCtx)
		if err == nil {
			lc.put(key, v)
		}
		return v, err
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

func (lc *lookupCache[V]) get(key string) (V, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	e, ok := lc.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !lc.now().Before(e.expires) {
		delete(lc.items, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (lc *lookupCache[V]) put(key string, v V) {
	if lc.ttl <= 0 {
		return
	}
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.items[key] = cacheEntry[V]{value: v, expires: lc.now().Add(lc.ttl)}
}
