package syncengine

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func ev(id string, createdAt int64) *nostr.Event {
	return &nostr.Event{ID: id, CreatedAt: nostr.Timestamp(createdAt)}
}

func TestSortNewestFirst(t *testing.T) {
	events := []*nostr.Event{ev("a", 10), ev("b", 30), ev("c", 20)}
	sortNewestFirst(events)

	want := []string{"b", "c", "a"}
	for i, id := range want {
		if events[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, events[i].ID, id)
		}
	}
}

func TestSortNewestFirstIsStableOnTies(t *testing.T) {
	events := []*nostr.Event{ev("a", 10), ev("b", 10), ev("c", 10)}
	sortNewestFirst(events)

	for i, id := range []string{"a", "b", "c"} {
		if events[i].ID != id {
			t.Fatalf("expected stable order to preserve arrival order, got %v", events)
		}
	}
}

func TestTakeBatchBoundsToSize(t *testing.T) {
	events := []*nostr.Event{ev("a", 30), ev("b", 20), ev("c", 10)}

	got := takeBatch(events, 2)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected slice: %v", got)
	}

	got = takeBatch(events, 10)
	if len(got) != 3 {
		t.Fatalf("expected full slice when n exceeds length, got %d", len(got))
	}
}

func TestNextCursorIsOldestMinusOne(t *testing.T) {
	kept := []*nostr.Event{ev("a", 30), ev("b", 20), ev("c", 10)}
	if got := nextCursor(kept); got != 9 {
		t.Errorf("nextCursor() = %d, want 9", got)
	}
}

func TestNextCursorEmptyIsZero(t *testing.T) {
	if got := nextCursor(nil); got != 0 {
		t.Errorf("nextCursor(nil) = %d, want 0", got)
	}
}

func TestNextCursorToleratesOutOfBoundEvent(t *testing.T) {
	// A misbehaving relay returns an event newer than the requested until.
	// The next cursor is still computed from the sorted, kept slice alone.
	kept := []*nostr.Event{ev("a", 999), ev("b", 50)}
	if got := nextCursor(kept); got != 49 {
		t.Errorf("nextCursor() = %d, want 49", got)
	}
}
