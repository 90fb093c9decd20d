package identity

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/relaysync/nip65sync/internal/relay"
)

func TestDiscoverRelayListRequiresSeeds(t *testing.T) {
	pool := relay.NewPool(nil, nil)
	_, err := DiscoverRelayList(context.Background(), pool, nil, "abc123")
	if err == nil {
		t.Fatal("expected an error when no seed relays are configured")
	}
}

func TestFinishDiscoverRequiresAnEvent(t *testing.T) {
	if _, err := finishDiscover(nil); err == nil {
		t.Error("expected an error when no kind 10002 event was found")
	}
}

func TestFinishDiscoverParsesNewestEvent(t *testing.T) {
	event := &nostr.Event{
		PubKey: "abc123",
		Kind:   nip65Kind,
		Tags:   nostr.Tags{{"r", "wss://relay.example"}},
	}
	list, err := finishDiscover(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list.Pubkey != "abc123" {
		t.Errorf("Pubkey = %q, want abc123", list.Pubkey)
	}
}
