package server

import (
	"slices"
	"testing"
	"time"
)

func TestStateStore(t *testing.T) {
	newClockedStore := func(ttl time.Duration) (*StateStore, *time.Time) {
		now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		store := NewStateStore(ttl)
		store.now = func() time.Time { return now }
		return store, &now
	}

	t.Run("Consume Once", func(t *testing.T) {
		store, _ := newClockedStore(time.Minute)
		store.Put("abc", "run-1")

		runID, ok, expired := store.Consume("abc")
		if !ok || expired || runID != "run-1" {
			t.Fatalf("expected run-1, got %q (ok=%v)", runID, ok)
		}

		if _, ok, _ := store.Consume("abc"); ok {
			t.Error("expected second consume to fail")
		}
	})

	t.Run("Unknown State", func(t *testing.T) {
		store, _ := newClockedStore(time.Minute)

		runID, ok, expired := store.Consume("nope")
		if ok || expired || runID != "" {
			t.Errorf("expected unknown state to be rejected, got %q (ok=%v, expired=%v)", runID, ok, expired)
		}
	})

	t.Run("Expired State", func(t *testing.T) {
		store, now := newClockedStore(time.Minute)
		store.Put("abc", "run-1")
		*now = now.Add(2 * time.Minute)

		runID, ok, expired := store.Consume("abc")
		if ok {
			t.Error("expected expired state to be rejected")
		}
		if !expired || runID != "run-1" {
			t.Errorf("expected expired run-1, got %q (expired=%v)", runID, expired)
		}
		if store.Len() != 0 {
			t.Errorf("expected expired state to be removed, got %d pending", store.Len())
		}
	})

	t.Run("Prune", func(t *testing.T) {
		store, now := newClockedStore(time.Minute)
		store.Put("old", "run-old")
		*now = now.Add(45 * time.Second)
		store.Put("new", "run-new")
		*now = now.Add(30 * time.Second)

		expired := store.Prune()
		if !slices.Equal(expired, []string{"run-old"}) {
			t.Errorf("expected [run-old], got %v", expired)
		}
		if store.Len() != 1 {
			t.Errorf("expected 1 pending state, got %d", store.Len())
		}
		if runID, ok, _ := store.Consume("new"); !ok || runID != "run-new" {
			t.Errorf("expected run-new to survive, got %q", runID)
		}
	})

	t.Run("Default TTL", func(t *testing.T) {
		if store := NewStateStore(0); store.ttl != DefaultStateTTL {
			t.Errorf("expected %v, got %v", DefaultStateTTL, store.ttl)
		}
	})
}
