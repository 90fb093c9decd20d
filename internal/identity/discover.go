package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/relaysync/nip65sync/internal/relay"
)

const discoverTimeout = 10 * time.Second

// DiscoverRelayList fetches and parses pubkey's NIP-65 relay list (kind
// 10002) from the given seed relays. Fetching the document itself is out
// of the sync engine's scope (spec §1); this is the CLI's own default
// implementation of that step, grounded on the teacher's
// Discovery.BootstrapFromSeeds.
func DiscoverRelayList(ctx context.Context, pool *relay.Pool, seedRelays []string, pubkey string) (*RelayList, error) {
	if len(seedRelays) == 0 {
		return nil, fmt.Errorf("discover relay list: no seed relays configured")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()

	filter := nostr.Filter{
		Kinds:   []int{nip65Kind},
		Authors: []string{pubkey},
		Limit:   1,
	}

	handle, err := pool.Subscribe(fetchCtx, seedRelays, filter, relay.SubscribeOptions{MaxWait: discoverTimeout})
	if err != nil {
		return nil, fmt.Errorf("discover relay list: %w", err)
	}
	defer handle.Close()

	var newest *nostr.Event
	eose := handle.EOSE
	unexpected := handle.Unexpected
	for {
		select {
		case event, ok := <-handle.Events:
			if !ok {
				return finishDiscover(newest)
			}
			if newest == nil || event.CreatedAt > newest.CreatedAt {
				newest = event
			}
		case <-eose:
			// Every seed has EOSE'd or closed; close cooperatively and
			// drain whatever is still buffered before deciding.
			eose = nil
			handle.Close()
		case reasons, ok := <-unexpected:
			if !ok {
				unexpected = nil
				continue
			}
			return nil, fmt.Errorf("discover relay list: relays closed unexpectedly: %v", reasons)
		case <-fetchCtx.Done():
			return nil, fmt.Errorf("discover relay list: %w", fetchCtx.Err())
		}
	}
}

func finishDiscover(newest *nostr.Event) (*RelayList, error) {
	if newest == nil {
		return nil, fmt.Errorf("discover relay list: no kind %d event found on seed relays", nip65Kind)
	}
	return ParseRelayList(newest)
}
