package syncengine

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// pacer enforces the engine's two pacing floors (spec §4.4 steps 6h and
// 10; §9 "pacing knobs"). Each kind of wait gets its own single-token
// limiter, so a wait returns once the configured delay has passed since the
// previous wait of that kind returned: the engine does not want bursts, it
// wants a floor between successive events and between successive batches.
// A wait made when more than the delay has already passed returns at once
// rather than sleeping the full delay again.
type pacer struct {
	interEvent *rate.Limiter
	interBatch *rate.Limiter
}

func newPacer(interEventDelay, interBatchDelay time.Duration) *pacer {
	interEvent := rate.NewLimiter(rate.Every(interEventDelay), 1)
	interBatch := rate.NewLimiter(rate.Every(interBatchDelay), 1)

	// A fresh limiter starts with its burst token already available, so
	// the first Wait call would return immediately instead of enforcing a
	// delay. Drain that token up front so the first Wait call, like every
	// later one, returns no earlier than the configured delay after the
	// previous token, which for the first call is construction.
	interEvent.Allow()
	interBatch.Allow()

	return &pacer{interEvent: interEvent, interBatch: interBatch}
}

// waitEvent blocks until the inter-event delay has elapsed since the last
// call, or ctx is cancelled.
func (p *pacer) waitEvent(ctx context.Context) error {
	return p.interEvent.Wait(ctx)
}

// waitBatch blocks until the inter-batch delay has elapsed since the last
// call, or ctx is cancelled.
func (p *pacer) waitBatch(ctx context.Context) error {
	return p.interBatch.Wait(ctx)
}
