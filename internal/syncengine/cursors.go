package syncengine

import (
	"sort"

	"github.com/nbd-wtf/go-nostr"
)

// sortNewestFirst orders events by created_at descending in place. Ties
// keep their relative arrival order (stable), since the protocol gives no
// secondary ordering guarantee across relays.
func sortNewestFirst(events []*nostr.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt > events[j].CreatedAt
	})
}

// takeBatch returns the first n events of a newest-first-sorted slice, or
// the whole slice if it is shorter than n. A misbehaving relay that
// delivers events newer than the requesting until is tolerated here: the
// caller already bounded the filter, this only trims the union down to
// the batch size.
func takeBatch(sorted []*nostr.Event, n int) []*nostr.Event {
	if len(sorted) <= n {
		return sorted
	}
	return sorted[:n]
}

// nextCursor computes the next backward-paginating until from the oldest
// event in a kept, newest-first-sorted slice. The -1 prevents re-delivering
// the boundary event on the next batch (spec §4.5).
func nextCursor(kept []*nostr.Event) int64 {
	if len(kept) == 0 {
		return 0
	}
	oldest := kept[len(kept)-1].CreatedAt
	return int64(oldest) - 1
}

// oldestCreatedAt returns the created_at of the oldest event in a
// newest-first-sorted, non-empty slice.
func oldestCreatedAt(sorted []*nostr.Event) int64 {
	return int64(sorted[len(sorted)-1].CreatedAt)
}
