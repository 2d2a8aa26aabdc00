package raffle

// State is the lifecycle state of the current round.
type State int

const (
	// StateOpen accepts entries.
	StateOpen State = iota
	// StateCalculating waits for the randomness callback; entries are rejected.
	StateCalculating
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCalculating:
		return "calculating"
	default:
		return "unknown"
	}
}
