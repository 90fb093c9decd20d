package syncengine

// Phase is the sync run's current state machine position (spec §4.4, §6).
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseFetchingRelays Phase = "fetching-relays"
	PhaseFetchingBatch  Phase = "fetching-batch"
	PhaseSyncingEvent   Phase = "syncing-event"
	PhaseBatchComplete  Phase = "batch-complete"
	PhaseError          Phase = "error"
	PhaseComplete       Phase = "complete"
)

// Progress is one status record emitted by the engine. External observers
// subscribe without influencing the run (spec §3, §6).
type Progress struct {
	Phase          Phase
	Message        string
	CursorUntil    int64
	FloorUntil     int64
	CurrentEventID string
	ErrorDetails   string
}

// Sink is the one-way channel through which the engine emits progress. A
// nil sink is valid: the engine simply drops progress records.
type Sink func(Progress)

func emit(sink Sink, p Progress) {
	if sink != nil {
		sink(p)
	}
}
