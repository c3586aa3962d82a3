package swr

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// newTestCache returns a string cache with quiet logging. Callers own Close.
func newTestCache(t *testing.T, opts Options) *Cache[string] {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c, err := New[string](opts, logger)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func staticFetcher(value string, calls *int32) FetchFunc[string] {
	return func(ctx context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		return value, nil
	}
}

func failingFetcher(err error, calls *int32) FetchFunc[string] {
	return func(ctx context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		return "", err
	}
}

func waitNotify(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for subscriber notification")
		return ""
	}
}

func TestFetchDedup(t *testing.T) {
	c := newTestCache(t, Options{})

	var calls int32
	release := make(chan struct{})
	fetcher := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	const concurrency = 5
	results := make([]Result[string], concurrency)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			res, err := c.Fetch(context.Background(), "session-1", fetcher)
			if err != nil {
				t.Errorf("fetch %d error: %v", idx, err)
			}
			results[idx] = res
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly one fetcher call, got %d", got)
	}
	for i, res := range results {
		if res.Data != "shared" {
			t.Fatalf("result %d: unexpected data %q", i, res.Data)
		}
	}
}

func TestFetchFreshWindowSkipsFetcher(t *testing.T) {
	c := newTestCache(t, Options{StaleTime: time.Second, CacheTime: time.Minute})

	var calls int32
	fetcher := staticFetcher("payload", &calls)

	for i := 0; i < 3; i++ {
		res, err := c.Fetch(context.Background(), "status", fetcher)
		if err != nil {
			t.Fatalf("fetch %d error: %v", i, err)
		}
		if res.Data != "payload" {
			t.Fatalf("fetch %d: unexpected data %q", i, res.Data)
		}
		if i == 0 && res.FromCache {
			t.Fatalf("first fetch should not come from cache")
		}
		if i > 0 && !res.FromCache {
			t.Fatalf("fetch %d should hit cache", i)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one fetcher call within fresh window, got %d", got)
	}
}

func TestFetchStaleServesCachedAndRevalidates(t *testing.T) {
	c := newTestCache(t, Options{StaleTime: 10 * time.Millisecond, CacheTime: time.Minute})

	var calls int32
	if _, err := c.Fetch(context.Background(), "runs", staticFetcher("v1", &calls)); err != nil {
		t.Fatalf("seed fetch error: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	updates := make(chan string, 1)
	unsubscribe := c.Subscribe("runs", func(data string, ok bool) {
		if ok {
			updates <- data
		}
	})
	defer unsubscribe()

	res, err := c.Fetch(context.Background(), "runs", staticFetcher("v2", &calls))
	if err != nil {
		t.Fatalf("stale fetch error: %v", err)
	}
	if !res.FromCache || !res.Revalidating {
		t.Fatalf("expected stale hit with revalidation, got %+v", res)
	}
	if res.Data != "v1" {
		t.Fatalf("stale fetch should serve cached value, got %q", res.Data)
	}

	if got := waitNotify(t, updates); got != "v2" {
		t.Fatalf("expected revalidated value v2, got %q", got)
	}

	res, err = c.Fetch(context.Background(), "runs", staticFetcher("v3", &calls))
	if err != nil {
		t.Fatalf("post-revalidate fetch error: %v", err)
	}
	if res.Data != "v2" || !res.FromCache {
		t.Fatalf("expected fresh v2 after revalidation, got %+v", res)
	}
}

func TestFetchFailSoftServesExpiredValue(t *testing.T) {
	c := newTestCache(t, Options{StaleTime: 5 * time.Millisecond, CacheTime: 10 * time.Millisecond})

	var calls int32
	if _, err := c.Fetch(context.Background(), "agent-1", staticFetcher("old", &calls)); err != nil {
		t.Fatalf("seed fetch error: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	fetchErr := errors.New("upstream down")
	res, err := c.Fetch(context.Background(), "agent-1", failingFetcher(fetchErr, &calls))
	if err != nil {
		t.Fatalf("fail-soft path should not surface the error, got %v", err)
	}
	if !res.FromCache || res.Data != "old" {
		t.Fatalf("expected degraded cached value, got %+v", res)
	}
	if !errors.Is(res.Err, fetchErr) {
		t.Fatalf("expected fetch error recorded on result, got %v", res.Err)
	}
}

func TestFetchErrorWithoutFallbackPropagates(t *testing.T) {
	c := newTestCache(t, Options{})

	fetchErr := errors.New("boom")
	var calls int32
	_, err := c.Fetch(context.Background(), "missing", failingFetcher(fetchErr, &calls))
	if !errors.Is(err, fetchErr) {
		t.Fatalf("expected propagated fetch error, got %v", err)
	}
}

func TestFetchExpiredEntryRefetches(t *testing.T) {
	c := newTestCache(t, Options{StaleTime: 10 * time.Millisecond, CacheTime: 50 * time.Millisecond})

	var calls int32
	if _, err := c.Fetch(context.Background(), "events", staticFetcher("v1", &calls)); err != nil {
		t.Fatalf("seed fetch error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	res, err := c.Fetch(context.Background(), "events", staticFetcher("v2", &calls))
	if err != nil {
		t.Fatalf("refetch error: %v", err)
	}
	if res.FromCache || res.Data != "v2" {
		t.Fatalf("expected hard refetch after expiry, got %+v", res)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected two fetcher calls, got %d", got)
	}
}

func TestFetchNilFetcherOnMiss(t *testing.T) {
	c := newTestCache(t, Options{})

	if _, err := c.Fetch(context.Background(), "nobody", nil); !errors.Is(err, ErrNoFetcher) {
		t.Fatalf("expected ErrNoFetcher, got %v", err)
	}
}

func TestFetchPanickingFetcherSettlesWaiters(t *testing.T) {
	c := newTestCache(t, Options{})

	_, err := c.Fetch(context.Background(), "panic", func(ctx context.Context) (string, error) {
		panic("bad fetcher")
	})
	if err == nil {
		t.Fatalf("expected error from panicking fetcher")
	}

	// The in-flight slot must be cleared so later fetches still work.
	var calls int32
	res, err := c.Fetch(context.Background(), "panic", staticFetcher("recovered", &calls))
	if err != nil {
		t.Fatalf("fetch after panic error: %v", err)
	}
	if res.Data != "recovered" {
		t.Fatalf("unexpected data after panic recovery: %q", res.Data)
	}
}

func TestNewRejectsWindowOrder(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if _, err := New[string](Options{StaleTime: 2 * time.Minute, CacheTime: time.Minute}, logger); !errors.Is(err, ErrWindowOrder) {
		t.Fatalf("expected ErrWindowOrder, got %v", err)
	}
}

func TestPerCallStaleTimeClampedToCacheTime(t *testing.T) {
	c := newTestCache(t, Options{StaleTime: time.Minute, CacheTime: time.Hour})

	cfg := c.fetchConfig([]FetchOption{WithStaleTime(time.Hour), WithCacheTime(time.Minute)})
	if cfg.staleTime != cfg.cacheTime {
		t.Fatalf("expected stale window clamped to cache window, got stale=%v cache=%v", cfg.staleTime, cfg.cacheTime)
	}
}

func TestCloseRejectsFurtherFetches(t *testing.T) {
	c := newTestCache(t, Options{})

	if err := c.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}

	var calls int32
	if _, err := c.Fetch(context.Background(), "late", staticFetcher("x", &calls)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestClearRemovesEntries(t *testing.T) {
	c := newTestCache(t, Options{})

	c.Mutate("a", "1")
	c.Mutate("b", "2")
	if got := c.Len(); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}

	c.Clear()
	if got := c.Len(); got != 0 {
		t.Fatalf("expected empty cache after clear, got %d", got)
	}
}
