// Package objectloader batches and deduplicates concurrent fetches that
// key on the same identifier — many goroutines asking to load the same
// sliver or node resource within a short window collapse into one
// underlying batch call, the way a DataLoader coalesces a request graph's
// scattered point-lookups into one round trip.
package objectloader

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMissing is returned for a key the batch function's result map
// doesn't contain an entry for.
var ErrMissing = errors.New("objectloader: key missing from batch result")

// BatchFunc resolves a set of keys in one call.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

type result[V any] struct {
	val V
	err error
}

// Loader collapses concurrent Load calls for the same key into a single
// underlying batch call, and caches resolved values until Clear or
// ClearKey is called.
type Loader[K comparable, V any] struct {
	batch  BatchFunc[K, V]
	window time.Duration

	mu     sync.Mutex
	queued map[K][]chan result[V]
	timer  *time.Timer
	cache  map[K]V
}

// New creates a Loader that flushes its queued keys into one batch call
// window after the first Load in that window arrives.
func New[K comparable, V any](batch BatchFunc[K, V], window time.Duration) *Loader[K, V] {
	return &Loader[K, V]{
		batch:  batch,
		window: window,
		queued: make(map[K][]chan result[V]),
		cache:  make(map[K]V),
	}
}

// Load resolves key, either from cache, from an in-flight batch another
// caller already joined, or by joining a new one.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	l.mu.Lock()
	if v, ok := l.cache[key]; ok {
		l.mu.Unlock()
		return v, nil
	}

	ch := make(chan result[V], 1)
	l.queued[key] = append(l.queued[key], ch)

	if l.timer == nil {
		l.timer = time.AfterFunc(l.window, l.flush)
	}
	l.mu.Unlock()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// LoadAll resolves every key, joining or starting batches as needed, and
// waits for all of them.
func (l *Loader[K, V]) LoadAll(ctx context.Context, keys []K) (map[K]V, error) {
	out := make(map[K]V, len(keys))
	for _, k := range keys {
		v, err := l.Load(ctx, k)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// Prime seeds the cache with an already-known value, so a future Load
// for that key skips the batch round trip entirely.
func (l *Loader[K, V]) Prime(key K, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[key] = value
}

// Clear drops every cached value, forcing the next Load for any key to
// go through the batch function again. Used on committee epoch change.
func (l *Loader[K, V]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[K]V)
}

// ClearKey drops one cached value.
func (l *Loader[K, V]) ClearKey(key K) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, key)
}

func (l *Loader[K, V]) flush() {
	l.mu.Lock()
	queued := l.queued
	l.queued = make(map[K][]chan result[V])
	l.timer = nil
	l.mu.Unlock()

	keys := make([]K, 0, len(queued))
	for k := range queued {
		keys = append(keys, k)
	}

	vals, err := l.batch(context.Background(), keys)

	if err == nil {
		l.mu.Lock()
		for k, v := range vals {
			l.cache[k] = v
		}
		l.mu.Unlock()
	}

	for k, chans := range queued {
		var r result[V]
		switch {
		case err != nil:
			r.err = err
		default:
			v, ok := vals[k]
			if !ok {
				r.err = ErrMissing
			} else {
				r.val = v
			}
		}
		for _, ch := range chans {
			ch <- r
		}
	}
}
