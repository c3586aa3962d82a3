package swr

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestMutateTakesPrecedenceOverFetch(t *testing.T) {
	c := newTestCache(t, Options{})

	c.Mutate("brand-42", "confirmed")

	var calls int32
	res, err := c.Fetch(context.Background(), "brand-42", failingFetcher(errors.New("must not run"), &calls))
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if !res.FromCache || res.Data != "confirmed" {
		t.Fatalf("expected mutated value from cache, got %+v", res)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("fetcher should not run after mutate, got %d calls", got)
	}
}

func TestMutateNotifiesSubscribers(t *testing.T) {
	c := newTestCache(t, Options{})

	var got []string
	unsubscribe := c.Subscribe("feed", func(data string, ok bool) {
		if ok {
			got = append(got, data)
		}
	})
	defer unsubscribe()

	c.Mutate("feed", "v1")
	c.Mutate("feed", "v2")

	if len(got) != 2 || got[0] != "v1" || got[1] != "v2" {
		t.Fatalf("unexpected notifications: %v", got)
	}
}

func TestOptimisticRollbackRestoresPriorValue(t *testing.T) {
	c := newTestCache(t, Options{})

	c.Mutate("brand-1", "original")

	rolledBack := false
	update := c.Optimistic("brand-1", func(old string, ok bool) string {
		if !ok || old != "original" {
			t.Fatalf("updater saw wrong prior state: %q ok=%v", old, ok)
		}
		return "tentative"
	}, func() { rolledBack = true })

	res, err := c.Fetch(context.Background(), "brand-1", nil)
	if err != nil || res.Data != "tentative" {
		t.Fatalf("expected tentative value, got %+v err=%v", res, err)
	}

	// Unrelated writes must not disturb the captured prior value.
	c.Mutate("brand-2", "noise")

	update.Rollback()
	if !rolledBack {
		t.Fatalf("onRollback callback was not invoked")
	}

	res, err = c.Fetch(context.Background(), "brand-1", nil)
	if err != nil || res.Data != "original" {
		t.Fatalf("expected original value restored, got %+v err=%v", res, err)
	}
}

func TestOptimisticRollbackOnAbsentKeyInvalidates(t *testing.T) {
	c := newTestCache(t, Options{})

	invalidated := false
	unsubscribe := c.Subscribe("ghost", func(data string, ok bool) {
		if !ok {
			invalidated = true
		}
	})
	defer unsubscribe()

	update := c.Optimistic("ghost", func(old string, ok bool) string {
		if ok {
			t.Fatalf("key should have been absent")
		}
		return "speculative"
	}, nil)

	update.Rollback()

	if c.Len() != 0 {
		t.Fatalf("expected key removed after rollback, len=%d", c.Len())
	}
	if !invalidated {
		t.Fatalf("expected invalidation notification after rollback")
	}
}

func TestOptimisticRollbackIsIdempotent(t *testing.T) {
	c := newTestCache(t, Options{})

	c.Mutate("once", "v1")

	rollbacks := 0
	update := c.Optimistic("once", func(old string, ok bool) string { return "v2" }, func() { rollbacks++ })

	update.Rollback()
	update.Rollback()

	if rollbacks != 1 {
		t.Fatalf("expected single rollback, got %d", rollbacks)
	}
}
