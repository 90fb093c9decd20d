package syncengine

import (
	"context"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/relaysync/nip65sync/internal/relay"
)

// fakePool is a hand-written test double for Pool (no mocking framework,
// matching the teacher's test style). Each call to Subscribe pops the next
// queued batch; Publish records a sighting on success and is otherwise
// driven by publishErr, keyed by event id.
type fakePool struct {
	mu sync.Mutex

	batches  [][]*nostr.Event
	batchIdx int

	subscribeErr error
	unexpected   map[string]string // non-nil: Subscribe's batch closes unexpectedly instead
	hang         bool              // never fires EOSE or Unexpected; used to exercise timeouts

	sightings map[string]map[string]struct{}

	publishErr   map[string]error // eventID -> error Publish should return
	publishCalls []publishCall

	connected map[string]bool
}

type publishCall struct {
	eventID string
	targets []string
	at      time.Time
}

func newFakePool() *fakePool {
	return &fakePool{
		sightings:  make(map[string]map[string]struct{}),
		publishErr: make(map[string]error),
		connected:  make(map[string]bool),
	}
}

func (f *fakePool) withBatches(batches ...[]*nostr.Event) *fakePool {
	f.batches = batches
	return f
}

func (f *fakePool) withSighting(eventID string, urls ...string) *fakePool {
	set := f.sightings[eventID]
	if set == nil {
		set = make(map[string]struct{})
		f.sightings[eventID] = set
	}
	for _, u := range urls {
		set[u] = struct{}{}
	}
	return f
}

func (f *fakePool) withConnected(urls ...string) *fakePool {
	for _, u := range urls {
		f.connected[u] = true
	}
	return f
}

func (f *fakePool) Subscribe(ctx context.Context, targets []string, filter nostr.Filter, opts relay.SubscribeOptions) (*relay.BatchHandle, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}

	f.mu.Lock()
	var batch []*nostr.Event
	if f.batchIdx < len(f.batches) {
		batch = f.batches[f.batchIdx]
	}
	f.batchIdx++
	unexpected := f.unexpected
	hang := f.hang
	f.mu.Unlock()

	events := make(chan *nostr.Event, len(batch)+1)
	for _, e := range batch {
		events <- e
	}

	eose := make(chan struct{})
	unexpectedCh := make(chan map[string]string, 1)
	switch {
	case hang:
		// leave events open and both signals unfired.
	case unexpected != nil:
		// Leave Events open (unclosed): a real pool would not close its
		// merged Events channel until every target's goroutine has
		// returned, which does not happen just because one relay closed
		// unexpectedly while others are still subscribed. Closing it here
		// too would race the Unexpected signal in the fetcher's select.
		unexpectedCh <- unexpected
	default:
		close(events)
		close(eose)
	}

	return &relay.BatchHandle{Events: events, EOSE: eose, Unexpected: unexpectedCh}, nil
}

func (f *fakePool) Publish(ctx context.Context, targets []string, event *nostr.Event, timeout time.Duration, minSuccess int) error {
	f.mu.Lock()
	f.publishCalls = append(f.publishCalls, publishCall{eventID: event.ID, targets: append([]string{}, targets...), at: time.Now()})
	err := f.publishErr[event.ID]
	f.mu.Unlock()

	if err != nil {
		return err
	}

	f.mu.Lock()
	set := f.sightings[event.ID]
	if set == nil {
		set = make(map[string]struct{})
		f.sightings[event.ID] = set
	}
	for _, t := range targets {
		set[t] = struct{}{}
	}
	f.mu.Unlock()
	return nil
}

func (f *fakePool) SightingLookup(eventID string) map[string]struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]struct{})
	for u := range f.sightings[eventID] {
		out[u] = struct{}{}
	}
	return out
}

func (f *fakePool) IsConnected(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[url]
}

func (f *fakePool) CloseAll() {}
