package objectloader

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoadSingleKey(t *testing.T) {
	l := New(func(ctx context.Context, keys []string) (map[string]int, error) {
		out := make(map[string]int, len(keys))
		for _, k := range keys {
			out[k] = len(k)
		}
		return out, nil
	}, 5*time.Millisecond)

	v, err := l.Load(context.Background(), "hello")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if v != 5 {
		t.Errorf("got %d, want 5", v)
	}
}

func TestLoadBatchesConcurrentCalls(t *testing.T) {
	var batchCalls int32
	var keysSeen sync.Map

	l := New(func(ctx context.Context, keys []string) (map[string]int, error) {
		atomic.AddInt32(&batchCalls, 1)
		out := make(map[string]int, len(keys))
		for _, k := range keys {
			keysSeen.Store(k, true)
			out[k] = len(k)
		}
		return out, nil
	}, 20*time.Millisecond)

	var wg sync.WaitGroup
	keys := []string{"a", "bb", "ccc", "dddd"}
	for _, k := range keys {
		k := k
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Load(context.Background(), k); err != nil {
				t.Errorf("load %q: %v", k, err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&batchCalls); got != 1 {
		t.Errorf("batch called %d times, want exactly 1", got)
	}
	for _, k := range keys {
		if _, ok := keysSeen.Load(k); !ok {
			t.Errorf("key %q never reached the batch function", k)
		}
	}
}

func TestLoadCachesAfterFirstBatch(t *testing.T) {
	var batchCalls int32

	l := New(func(ctx context.Context, keys []string) (map[string]int, error) {
		atomic.AddInt32(&batchCalls, 1)
		out := make(map[string]int, len(keys))
		for _, k := range keys {
			out[k] = len(k)
		}
		return out, nil
	}, 5*time.Millisecond)

	if _, err := l.Load(context.Background(), "x"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := l.Load(context.Background(), "x"); err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := atomic.LoadInt32(&batchCalls); got != 1 {
		t.Errorf("batch called %d times, want 1 (second load should hit cache)", got)
	}
}

func TestClearForcesRefetch(t *testing.T) {
	var batchCalls int32

	l := New(func(ctx context.Context, keys []string) (map[string]int, error) {
		atomic.AddInt32(&batchCalls, 1)
		out := make(map[string]int, len(keys))
		for _, k := range keys {
			out[k] = len(k)
		}
		return out, nil
	}, 5*time.Millisecond)

	l.Load(context.Background(), "y")
	l.Clear()
	l.Load(context.Background(), "y")

	if got := atomic.LoadInt32(&batchCalls); got != 2 {
		t.Errorf("batch called %d times, want 2 (Clear should force a refetch)", got)
	}
}

func TestPrimeSkipsBatch(t *testing.T) {
	var batchCalls int32

	l := New(func(ctx context.Context, keys []string) (map[string]int, error) {
		atomic.AddInt32(&batchCalls, 1)
		return nil, nil
	}, 5*time.Millisecond)

	l.Prime("primed", 42)

	v, err := l.Load(context.Background(), "primed")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if v != 42 {
		t.Errorf("got %d, want 42", v)
	}
	if got := atomic.LoadInt32(&batchCalls); got != 0 {
		t.Errorf("batch called %d times, want 0 for a primed key", got)
	}
}

func TestLoadMissingKeyErrors(t *testing.T) {
	l := New(func(ctx context.Context, keys []string) (map[string]int, error) {
		return map[string]int{}, nil // deliberately omit every key
	}, 5*time.Millisecond)

	if _, err := l.Load(context.Background(), "gone"); err != ErrMissing {
		t.Errorf("got %v, want ErrMissing", err)
	}
}
