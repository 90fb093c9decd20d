package syncengine

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/relaysync/nip65sync/internal/ops"
	"github.com/relaysync/nip65sync/internal/relay"
)

// Pool is the subset of *relay.Pool the sync engine depends on. Narrowing
// it to an interface lets tests drive the engine against a fake pool
// without opening real websocket connections.
type Pool interface {
	Subscribe(ctx context.Context, targets []string, filter nostr.Filter, opts relay.SubscribeOptions) (*relay.BatchHandle, error)
	Publish(ctx context.Context, targets []string, event *nostr.Event, timeout time.Duration, minSuccess int) error
	SightingLookup(eventID string) map[string]struct{}
	IsConnected(url string) bool
	CloseAll()
}

// BatchFetcher runs one bounded subscription across a relay set and
// collects every event delivered before aggregate EOSE, a wall-clock
// timeout, or an unexpected close (spec §4.3).
type BatchFetcher struct {
	pool       Pool
	batchSize  int
	timeout    time.Duration
	subTimeout time.Duration
	logger     *ops.Logger
}

// NewBatchFetcher constructs a fetcher. timeout is the wall-clock bound T;
// the internal subscription deadline is T-3s to leave closing slack
// (spec §4.3).
func NewBatchFetcher(pool Pool, batchSize int, timeout time.Duration) *BatchFetcher {
	subTimeout := timeout - 3*time.Second
	if subTimeout <= 0 {
		subTimeout = timeout
	}
	return &BatchFetcher{
		pool:       pool,
		batchSize:  batchSize,
		timeout:    timeout,
		subTimeout: subTimeout,
		logger:     ops.Default(),
	}
}

// SetLogger overrides the fetcher's logger. A nil logger is ignored.
func (f *BatchFetcher) SetLogger(l *ops.Logger) {
	if l != nil {
		f.logger = l
	}
}

// Fetch runs one batch. filter.Until must already be set by the caller.
func (f *BatchFetcher) Fetch(ctx context.Context, targets []string, filter nostr.Filter) ([]*nostr.Event, error) {
	start := time.Now()
	events, err := f.fetch(ctx, targets, filter)
	f.logger.LogBatchFetch(untilOf(filter), len(targets), len(events), time.Since(start), err)
	return events, err
}

func untilOf(filter nostr.Filter) int64 {
	if filter.Until != nil {
		return int64(*filter.Until)
	}
	return 0
}

func (f *BatchFetcher) fetch(ctx context.Context, targets []string, filter nostr.Filter) ([]*nostr.Event, error) {
	subCtx, cancel := context.WithTimeout(ctx, f.subTimeout)
	defer cancel()

	handle, err := f.pool.Subscribe(subCtx, targets, filter, relay.SubscribeOptions{MaxWait: f.subTimeout})
	if err != nil {
		return nil, err
	}

	until := untilOf(filter)

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	var events []*nostr.Event
	eose := handle.EOSE
	unexpected := handle.Unexpected
	for {
		select {
		case ev, ok := <-handle.Events:
			if !ok {
				if eose != nil && subCtx.Err() == context.DeadlineExceeded {
					return nil, &FetchTimeoutError{Until: until}
				}
				return events, nil
			}
			events = append(events, ev)

		case <-eose:
			// Aggregate EOSE: every target has either delivered its stored
			// events or had its subscription closed. Once the subscription
			// deadline has passed, those closes are the deadline's own and
			// the batch is incomplete, so it fails as a timeout.
			if subCtx.Err() == context.DeadlineExceeded {
				handle.Close()
				return nil, &FetchTimeoutError{Until: until}
			}
			// The subscriptions stay open per-relay (spec §4.1), so close
			// cooperatively and drain whatever is still buffered.
			eose = nil
			handle.Close()

		case reasons, ok := <-unexpected:
			if !ok {
				unexpected = nil
				continue
			}
			handle.Close()
			return nil, &FetchClosedUnexpectedlyError{Reasons: reasons}

		case <-timer.C:
			handle.Close()
			return nil, &FetchTimeoutError{Until: until}

		case <-ctx.Done():
			handle.Close()
			return nil, ctx.Err()
		}
	}
}
