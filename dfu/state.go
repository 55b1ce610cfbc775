package dfu

// State is the position of the updater in a DFU session.
type State int

const (
	// StateIdle means no session has started
	StateIdle State = iota

	// StateInitializing means the init command is outstanding
	StateInitializing

	// StateTransferring means chunks are being written
	StateTransferring

	// StateApplying means a phase is being committed
	StateApplying

	// StateCompleted means the last session succeeded
	StateCompleted

	// StateFailed means the last session failed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateTransferring:
		return "transferring"
	case StateApplying:
		return "applying"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
