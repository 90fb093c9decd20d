package syncengine

import (
	"context"
	"testing"
	"time"
)

func TestPacerWaitEventBlocksOnFirstCall(t *testing.T) {
	p := newPacer(20*time.Millisecond, time.Hour)

	start := time.Now()
	if err := p.waitEvent(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("first waitEvent returned after %v, want at least 20ms (initial burst token must be drained)", elapsed)
	}
}

func TestPacerWaitBatchBlocksOnFirstCall(t *testing.T) {
	p := newPacer(time.Hour, 20*time.Millisecond)

	start := time.Now()
	if err := p.waitBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("first waitBatch returned after %v, want at least 20ms (initial burst token must be drained)", elapsed)
	}
}
