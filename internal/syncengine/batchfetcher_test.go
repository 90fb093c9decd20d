package syncengine

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

func TestBatchFetcherReturnsAccumulatedEvents(t *testing.T) {
	pool := newFakePool().withBatches([]*nostr.Event{ev("a", 100), ev("b", 90)})
	f := NewBatchFetcher(pool, 20, time.Second)

	got, err := f.Fetch(context.Background(), []string{"wss://a"}, nostr.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
}

func TestBatchFetcherEmptyBatchSucceeds(t *testing.T) {
	pool := newFakePool().withBatches(nil)
	f := NewBatchFetcher(pool, 20, time.Second)

	got, err := f.Fetch(context.Background(), []string{"wss://a"}, nostr.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty slice, got %d events", len(got))
	}
}

func TestBatchFetcherUnexpectedCloseFails(t *testing.T) {
	pool := newFakePool()
	pool.unexpected = map[string]string{"wss://a": "closed unexpectedly"}
	f := NewBatchFetcher(pool, 20, time.Second)

	_, err := f.Fetch(context.Background(), []string{"wss://a"}, nostr.Filter{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*FetchClosedUnexpectedlyError); !ok {
		t.Fatalf("expected *FetchClosedUnexpectedlyError, got %T: %v", err, err)
	}
}

func TestBatchFetcherTimeout(t *testing.T) {
	pool := newFakePool()
	pool.hang = true
	f := NewBatchFetcher(pool, 20, 30*time.Millisecond)

	_, err := f.Fetch(context.Background(), []string{"wss://a"}, nostr.Filter{})
	if _, ok := err.(*FetchTimeoutError); !ok {
		t.Fatalf("expected *FetchTimeoutError, got %T: %v", err, err)
	}
}

func TestNewBatchFetcherSubTimeoutLeavesSlack(t *testing.T) {
	f := NewBatchFetcher(newFakePool(), 20, 15*time.Second)
	if f.subTimeout != 12*time.Second {
		t.Errorf("subTimeout = %v, want 12s", f.subTimeout)
	}
}

func TestNewBatchFetcherSubTimeoutFloor(t *testing.T) {
	f := NewBatchFetcher(newFakePool(), 20, 2*time.Second)
	if f.subTimeout != 2*time.Second {
		t.Errorf("subTimeout = %v, want 2s when timeout <= slack", f.subTimeout)
	}
}
