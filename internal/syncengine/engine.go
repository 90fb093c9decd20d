// Package syncengine implements the backward-paginating sync state machine:
// it walks a relay set's history newest-first in bounded batches, computes
// per-event missing-relay sets from the pool's sighting index, republishes
// to whichever targets lack an event, paces publications to respect relay
// anti-spam policy, and preserves enough state on failure to resume.
package syncengine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/relaysync/nip65sync/internal/ops"
)

// Result is returned by a completed (non-erroring) run.
type Result struct {
	TotalSynced int
	CursorUntil int64
}

// Engine runs one sync at a time against a shared Pool. It carries no
// state between calls to Sync beyond the pool's own sighting index and the
// timing held by its pacer's limiters; the
// run's cursor, phase, and counters live entirely on the stack of a single
// Sync call (spec §5: cooperative, single task).
type Engine struct {
	pool    Pool
	fetcher *BatchFetcher
	pacer   *pacer

	batchSize      int
	publishTimeout time.Duration
}

// Config collects the engine's policy knobs (spec §6 constants).
type Config struct {
	BatchSize       int
	BatchTimeout    time.Duration
	PublishTimeout  time.Duration
	InterEventDelay time.Duration
	InterBatchDelay time.Duration
}

// DefaultConfig returns the spec's own constants (§6).
func DefaultConfig() Config {
	return Config{
		BatchSize:       20,
		BatchTimeout:    15 * time.Second,
		PublishTimeout:  5 * time.Second,
		InterEventDelay: 10 * time.Second,
		InterBatchDelay: 10 * time.Second,
	}
}

// New constructs an Engine bound to pool with the given policy knobs.
func New(pool Pool, cfg Config) *Engine {
	return &Engine{
		pool:           pool,
		fetcher:        NewBatchFetcher(pool, cfg.BatchSize, cfg.BatchTimeout),
		pacer:          newPacer(cfg.InterEventDelay, cfg.InterBatchDelay),
		batchSize:      cfg.BatchSize,
		publishTimeout: cfg.PublishTimeout,
	}
}

// SetLogger overrides the logger the engine's batch fetcher reports
// through. A nil logger is ignored.
func (e *Engine) SetLogger(l *ops.Logger) {
	e.fetcher.SetLogger(l)
}

// Sync is the engine's only entry point (spec §6). targets is the target
// relay set treated as a logical union; filter's Until/Limit are
// overwritten by the engine on every batch. initialUntil is the exclusive
// upper bound for the first batch; stopAt, if non-zero, is the inclusive
// lower cutoff at which the run finishes early.
func (e *Engine) Sync(ctx context.Context, targets []string, filter nostr.Filter, initialUntil int64, stopAt int64, sink Sink) (*Result, error) {
	if len(targets) == 0 {
		return nil, &NoRelaysError{}
	}

	if stopAt != 0 && stopAt > initialUntil {
		emit(sink, Progress{Phase: PhaseComplete, Message: "stop-at is newer than initial-until, nothing to do", CursorUntil: initialUntil, FloorUntil: stopAt})
		return &Result{CursorUntil: initialUntil}, nil
	}

	cursorUntil := initialUntil
	totalSynced := 0

	emit(sink, Progress{Phase: PhaseFetchingRelays, Message: "connecting to target relays", CursorUntil: cursorUntil, FloorUntil: stopAt})

	for {
		if err := ctx.Err(); err != nil {
			emit(sink, Progress{Phase: PhaseError, Message: "cancelled", CursorUntil: cursorUntil, FloorUntil: stopAt})
			return nil, &SyncError{Err: &CancelledError{CursorUntil: cursorUntil}, CursorUntil: cursorUntil}
		}

		batchFilter := filter
		until := nostr.Timestamp(cursorUntil)
		batchFilter.Until = &until
		batchFilter.Limit = e.batchSize

		emit(sink, Progress{Phase: PhaseFetchingBatch, Message: fmt.Sprintf("fetching batch until=%d", cursorUntil), CursorUntil: cursorUntil, FloorUntil: stopAt})

		events, err := e.fetcher.Fetch(ctx, targets, batchFilter)
		if err != nil {
			if ctx.Err() != nil {
				emit(sink, Progress{Phase: PhaseError, Message: "cancelled during batch fetch", CursorUntil: cursorUntil, FloorUntil: stopAt})
				return nil, &SyncError{Err: &CancelledError{CursorUntil: cursorUntil}, CursorUntil: cursorUntil}
			}
			emit(sink, Progress{Phase: PhaseError, Message: "batch fetch failed", CursorUntil: cursorUntil, FloorUntil: stopAt, ErrorDetails: err.Error()})
			return nil, &SyncError{Err: err, CursorUntil: cursorUntil}
		}

		for _, url := range targets {
			if !e.pool.IsConnected(url) {
				derr := &DisconnectedError{URL: url}
				emit(sink, Progress{Phase: PhaseError, Message: derr.Error(), CursorUntil: cursorUntil, FloorUntil: stopAt})
				return nil, &SyncError{Err: derr, CursorUntil: cursorUntil}
			}
		}

		if len(events) == 0 {
			msg := "end of history"
			if stopAt != 0 {
				msg = "end of range"
			}
			emit(sink, Progress{Phase: PhaseComplete, Message: msg, CursorUntil: cursorUntil, FloorUntil: stopAt})
			return &Result{TotalSynced: totalSynced, CursorUntil: cursorUntil}, nil
		}

		sortNewestFirst(events)
		kept := takeBatch(events, e.batchSize)

		stoppedEarly := false
		for _, event := range kept {
			if stopAt != 0 && int64(event.CreatedAt) < stopAt {
				stoppedEarly = true
				break
			}

			emit(sink, Progress{Phase: PhaseSyncingEvent, Message: "syncing event", CursorUntil: cursorUntil, FloorUntil: stopAt, CurrentEventID: event.ID})

			have := e.pool.SightingLookup(event.ID)
			missing := subtract(targets, have)

			if len(missing) == 0 {
				totalSynced++
				continue
			}

			// Every publish takes an inter-event pacing token first, so
			// successive publishes, within a batch and across batch
			// boundaries, are at least InterEventDelay apart (spec §4.4
			// step 6h, §8 scenario 1: a 10s gap between E1 and E2's
			// publishes).
			if err := e.pacer.waitEvent(ctx); err != nil {
				emit(sink, Progress{Phase: PhaseError, Message: "cancelled during pacing", CursorUntil: cursorUntil, FloorUntil: stopAt})
				return nil, &SyncError{Err: &CancelledError{CursorUntil: cursorUntil}, CursorUntil: cursorUntil}
			}

			pubErr := e.pool.Publish(ctx, missing, event, e.publishTimeout, len(missing))
			if pubErr == nil {
				totalSynced++
			} else if isAllDeletion(pubErr) {
				// Tolerated: the relay has already processed a deletion
				// request for this id (spec §7, §9).
				emit(sink, Progress{Phase: PhaseSyncingEvent, Message: "publish skipped: deletion", CursorUntil: cursorUntil, FloorUntil: stopAt, CurrentEventID: event.ID})
			} else {
				reasons := publishReasons(pubErr)
				emit(sink, Progress{Phase: PhaseError, Message: "publish rejected", CursorUntil: cursorUntil, FloorUntil: stopAt, CurrentEventID: event.ID, ErrorDetails: formatReasons(reasons)})
				return nil, &SyncError{Err: &PublishRejectedError{EventID: event.ID, Reasons: reasons}, CursorUntil: cursorUntil, CurrentEventID: event.ID}
			}
		}

		oldest := oldestCreatedAt(kept)
		cursorUntil = nextCursor(kept)

		if stoppedEarly || (stopAt != 0 && oldest <= stopAt) {
			emit(sink, Progress{Phase: PhaseComplete, Message: "reached stop-at", CursorUntil: cursorUntil, FloorUntil: stopAt})
			return &Result{TotalSynced: totalSynced, CursorUntil: cursorUntil}, nil
		}

		emit(sink, Progress{Phase: PhaseBatchComplete, Message: "batch complete", CursorUntil: cursorUntil, FloorUntil: stopAt})

		if err := e.pacer.waitBatch(ctx); err != nil {
			emit(sink, Progress{Phase: PhaseError, Message: "cancelled during pacing", CursorUntil: cursorUntil, FloorUntil: stopAt})
			return nil, &SyncError{Err: &CancelledError{CursorUntil: cursorUntil}, CursorUntil: cursorUntil}
		}
	}
}

// subtract returns the elements of targets not present in have.
func subtract(targets []string, have map[string]struct{}) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if _, ok := have[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// publishErrorReasons is the minimal interface the pool's PublishError
// satisfies; declared here so the engine does not need to import relay
// just for error inspection types beyond this.
type publishErrorReasons interface {
	error
	AllDeletionReasons() bool
}

func isAllDeletion(err error) bool {
	pe, ok := err.(publishErrorReasons)
	return ok && pe.AllDeletionReasons()
}

func publishReasons(err error) map[string]string {
	type withErrors interface {
		ErrorsByURL() map[string]string
	}
	if we, ok := err.(withErrors); ok {
		return we.ErrorsByURL()
	}
	return map[string]string{"_": err.Error()}
}

// formatReasons renders a per-relay reason map as "url: reason" entries,
// sorted by URL for a deterministic message.
func formatReasons(reasons map[string]string) string {
	urls := make([]string, 0, len(reasons))
	for url := range reasons {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	parts := make([]string, 0, len(urls))
	for _, url := range urls {
		parts = append(parts, fmt.Sprintf("%s: %s", url, reasons[url]))
	}
	return strings.Join(parts, ", ")
}
