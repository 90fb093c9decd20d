package syncengine

import "fmt"

// FetchTimeoutError is raised by the batch fetcher when the subscription
// deadline or the wall-clock timeout passes before every target has
// delivered its stored events.
type FetchTimeoutError struct {
	Until int64
}

func (e *FetchTimeoutError) Error() string {
	return fmt.Sprintf("batch fetch timed out before EOSE (until=%d)", e.Until)
}

// FetchClosedUnexpectedlyError is raised when one or more relays close the
// batch subscription for a reason other than the fetcher's own close.
type FetchClosedUnexpectedlyError struct {
	Reasons map[string]string
}

func (e *FetchClosedUnexpectedlyError) Error() string {
	return fmt.Sprintf("batch fetch closed unexpectedly by %d relay(s)", len(e.Reasons))
}

// DisconnectedError is raised by the pre-batch health check when a target
// relay is no longer connected.
type DisconnectedError struct {
	URL string
}

func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("unable to connect %s", e.URL)
}

// CancelledError is raised when the caller's context is cancelled mid-run.
type CancelledError struct {
	CursorUntil int64
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("sync cancelled (cursor_until=%d)", e.CursorUntil)
}

// NoRelaysError is raised when the target set is empty.
type NoRelaysError struct{}

func (e *NoRelaysError) Error() string { return "no relays" }

// PublishRejectedError wraps a non-deletion publish rejection: the engine
// treats this as fatal.
type PublishRejectedError struct {
	EventID string
	Reasons map[string]string
}

func (e *PublishRejectedError) Error() string {
	return fmt.Sprintf("publish rejected for event %s: %d relay reason(s)", e.EventID, len(e.Reasons))
}

// SyncError wraps any run-terminating error together with the cursor at
// which it occurred, so a caller can resume from exactly that point.
type SyncError struct {
	Err                error
	CursorUntil         int64
	CurrentEventID      string
}

func (e *SyncError) Error() string {
	if e.CurrentEventID != "" {
		return fmt.Sprintf("%v (cursor_until=%d, event_id=%s)", e.Err, e.CursorUntil, e.CurrentEventID)
	}
	return fmt.Sprintf("%v (cursor_until=%d)", e.Err, e.CursorUntil)
}

func (e *SyncError) Unwrap() error { return e.Err }
