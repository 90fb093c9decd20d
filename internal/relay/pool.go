package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/relaysync/nip65sync/internal/ops"
)

// BatchHandle is a merged, deduplicated view over a Subscribe call issued
// against several transports at once.
type BatchHandle struct {
	// Events delivers each distinct event exactly once, regardless of how
	// many transports delivered it.
	Events chan *nostr.Event
	// EOSE fires once every target has either signalled EOSE or closed.
	EOSE chan struct{}
	// Unexpected fires with the set of per-relay close reasons if any
	// relay closes the subscription for a reason other than the pool's own
	// Close call.
	Unexpected chan map[string]string

	cancel context.CancelFunc
}

// Close cooperatively tears down every transport's subscription in this
// batch.
func (b *BatchHandle) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

// PublishError enumerates the per-relay reason a publish failed to reach
// the requested minimum success count.
type PublishError struct {
	EventID string
	Errors  map[string]string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed for event %s: %d relay errors", e.EventID, len(e.Errors))
}

// ErrorsByURL exposes the per-relay rejection reasons for callers that only
// hold the error interface.
func (e *PublishError) ErrorsByURL() map[string]string { return e.Errors }

// AllDeletionReasons reports whether every recorded rejection reason names
// a deletion — the one publish failure the sync engine tolerates.
func (e *PublishError) AllDeletionReasons() bool {
	if len(e.Errors) == 0 {
		return false
	}
	for _, reason := range e.Errors {
		if !containsDeletion(reason) {
			return false
		}
	}
	return true
}

func containsDeletion(reason string) bool {
	const needle = "deletion"
	if len(reason) < len(needle) {
		return false
	}
	for i := 0; i+len(needle) <= len(reason); i++ {
		match := true
		for j := 0; j < len(needle); j++ {
			a, b := reason[i+j], needle[j]
			if a >= 'A' && a <= 'Z' {
				a += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// SubscribeOptions configures a pool-level Subscribe call.
type SubscribeOptions struct {
	MaxWait    time.Duration
	GroupDelay time.Duration
}

// Pool owns a set of Transports keyed by normalized URL, multiplexes
// subscriptions and publications across them, and maintains the append-only
// sighting index: event-id -> set of relay URLs known to have delivered or
// acknowledged that event.
type Pool struct {
	authPolicy AuthPolicy
	signer     Signer
	logger     *ops.Logger

	mu         sync.Mutex
	transports map[string]*Transport
	sightings  map[string]map[string]struct{}
}

// NewPool constructs an empty pool.
func NewPool(policy AuthPolicy, signer Signer) *Pool {
	return &Pool{
		authPolicy: policy,
		signer:     signer,
		logger:     ops.Default(),
		transports: make(map[string]*Transport),
		sightings:  make(map[string]map[string]struct{}),
	}
}

// SetLogger overrides the pool's logger and that of every transport it has
// already opened. A nil logger is ignored.
func (p *Pool) SetLogger(l *ops.Logger) {
	if l == nil {
		return
	}
	p.mu.Lock()
	p.logger = l
	transports := make([]*Transport, 0, len(p.transports))
	for _, t := range p.transports {
		transports = append(transports, t)
	}
	p.mu.Unlock()
	for _, t := range transports {
		t.SetLogger(l)
	}
}

// Ensure returns the transport for url, opening a new one and connecting it
// if this is the first time the pool has seen that URL.
func (p *Pool) Ensure(ctx context.Context, url string) (*Transport, error) {
	p.mu.Lock()
	t, ok := p.transports[url]
	if !ok {
		t = NewTransport(url, p.authPolicy, p.signer)
		t.SetLogger(p.logger)
		p.transports[url] = t
	}
	p.mu.Unlock()

	if !t.IsConnected() {
		if err := t.Open(ctx); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (p *Pool) recordSighting(eventID, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.sightings[eventID]
	if !ok {
		set = make(map[string]struct{})
		p.sightings[eventID] = set
	}
	set[url] = struct{}{}
}

// SightingLookup returns a read-only snapshot of which relays are known to
// have the given event.
func (p *Pool) SightingLookup(eventID string) map[string]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	src := p.sightings[eventID]
	out := make(map[string]struct{}, len(src))
	for url := range src {
		out[url] = struct{}{}
	}
	return out
}

// Subscribe opens parallel subscriptions on every target URL with the same
// filter and merges the streams, deduplicating events for the consumer
// while still recording a sighting for every relay that delivered it.
func (p *Pool) Subscribe(ctx context.Context, targets []string, filter nostr.Filter, opts SubscribeOptions) (*BatchHandle, error) {
	subCtx, cancel := context.WithCancel(ctx)
	if opts.MaxWait > 0 {
		subCtx, cancel = context.WithTimeout(ctx, opts.MaxWait)
	}

	handle := &BatchHandle{
		Events:     make(chan *nostr.Event, 256),
		EOSE:       make(chan struct{}),
		Unexpected: make(chan map[string]string, 1),
		cancel:     cancel,
	}

	if len(targets) == 0 {
		close(handle.EOSE)
		return handle, nil
	}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		seen        = make(map[string]struct{})
		done        = make(map[string]struct{})
		unexpected  = make(map[string]string)
		eoseFired   bool
		unexpFired  bool
		remaining   = len(targets)
		fireEOSEMu  sync.Mutex
	)

	markDone := func(url string, closeReason *CloseReason) {
		mu.Lock()
		done[url] = struct{}{}
		if closeReason != nil && *closeReason == CloseUnexpected {
			unexpected[url] = "closed unexpectedly"
		}
		allDone := len(done) >= remaining
		mu.Unlock()

		if allDone {
			fireEOSEMu.Lock()
			defer fireEOSEMu.Unlock()
			if len(unexpected) > 0 && !unexpFired {
				unexpFired = true
				handle.Unexpected <- unexpected
			} else if !eoseFired {
				eoseFired = true
				close(handle.EOSE)
			}
		}
	}

	for _, url := range targets {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()

			t, err := p.Ensure(subCtx, url)
			if err != nil {
				markDone(url, nil)
				return
			}

			stream, err := t.Subscribe(subCtx, filter)
			if err != nil {
				markDone(url, nil)
				return
			}

			for item := range stream {
				switch {
				case item.Event != nil:
					p.recordSighting(item.Event.ID, url)
					mu.Lock()
					_, dup := seen[item.Event.ID]
					if !dup {
						seen[item.Event.ID] = struct{}{}
					}
					mu.Unlock()
					if !dup {
						select {
						case handle.Events <- item.Event:
						case <-subCtx.Done():
							return
						}
					}
				case item.EOSE:
					markDone(url, nil)
				case item.Closed != nil:
					markDone(url, item.Closed)
					return
				}
			}
		}(url)
	}

	go func() {
		wg.Wait()
		close(handle.Events)
	}()

	return handle, nil
}

// Publish issues event concurrently to every target URL and resolves once
// the number of acknowledged relays reaches minSuccess, or returns a
// PublishError enumerating every per-relay failure reason otherwise.
func (p *Pool) Publish(ctx context.Context, targets []string, event *nostr.Event, timeout time.Duration, minSuccess int) error {
	if len(targets) == 0 {
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		url    string
		ok     bool
		reason string
	}
	results := make(chan result, len(targets))

	var wg sync.WaitGroup
	for _, url := range targets {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			t, err := p.Ensure(pubCtx, url)
			if err != nil {
				results <- result{url: url, ok: false, reason: err.Error()}
				return
			}
			outcome, reason, err := t.Publish(pubCtx, event)
			if err != nil {
				results <- result{url: url, ok: false, reason: err.Error()}
				return
			}
			if outcome == PublishAccepted {
				p.recordSighting(event.ID, url)
				results <- result{url: url, ok: true}
				return
			}
			results <- result{url: url, ok: false, reason: reason}
		}(url)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	success := 0
	errs := make(map[string]string)
	for r := range results {
		if r.ok {
			success++
		} else {
			errs[r.url] = r.reason
		}
	}

	if success >= minSuccess {
		p.logger.LogPublish(event.ID, targets, nil)
		return nil
	}
	pubErr := &PublishError{EventID: event.ID, Errors: errs}
	p.logger.LogPublish(event.ID, targets, pubErr)
	return pubErr
}

// IsConnected reports whether the pool currently holds a live, connected
// transport for url. A URL the pool has never seen reports false.
func (p *Pool) IsConnected(url string) bool {
	p.mu.Lock()
	t, ok := p.transports[url]
	p.mu.Unlock()
	if !ok {
		return false
	}
	return t.IsConnected()
}

// CloseAll drains and terminates every transport the pool has opened.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	transports := make([]*Transport, 0, len(p.transports))
	for _, t := range p.transports {
		transports = append(transports, t)
	}
	p.mu.Unlock()

	sort.Slice(transports, func(i, j int) bool { return transports[i].URL() < transports[j].URL() })
	for _, t := range transports {
		_ = t.Close()
	}
}
