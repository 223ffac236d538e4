package lifecycle

import "time"

// State is the position of the loop within one tunnel cycle.
type State string

const (
	StateConnecting State = "connecting"
	StateAnnounced  State = "announced"
	StateWaiting    State = "waiting"
	StateRecycling  State = "recycling"
	StateStopped    State = "stopped"
)

// Session is the lifetime of one tunnel, from connect to disconnect.
type Session struct {
	ID        string
	PublicURL string
	StartedAt time.Time
}

// Snapshot is a point-in-time copy of the loop state.
type Snapshot struct {
	State   State
	Cycle   int
	Session *Session // nil when no tunnel is up
}
