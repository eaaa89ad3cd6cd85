package controller

// State is the conversational lifecycle state. Exactly one state is current
// at any time; transitions are serialized by the controller's run loop.
type State int

const (
	// StateIdle means no session exists; the wake gate is armed.
	StateIdle State = iota

	// StateConnecting means a session is being established with the remote
	// agent.
	StateConnecting

	// StateListening means a session is open and user audio streams to the
	// agent.
	StateListening

	// StateSpeaking means the agent is speaking; user audio still streams.
	StateSpeaking

	// StateSleeping means the session is open but dormant: capture audio is
	// gated again and nothing is forwarded until a wake action.
	StateSleeping

	// StateClosed is terminal: the controller was stopped and all resources
	// released.
	StateClosed

	// StateFailed is terminal: an unrecoverable error occurred; resources are
	// released and the reason is available via FailureReason.
	StateFailed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateSpeaking:
		return "speaking"
	case StateSleeping:
		return "sleeping"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// terminal reports whether the state admits no further transitions.
func (s State) terminal() bool {
	return s == StateClosed || s == StateFailed
}

// sessionOpen reports whether a remote session exists in this state.
func (s State) sessionOpen() bool {
	switch s {
	case StateListening, StateSpeaking, StateSleeping:
		return true
	}
	return false
}

// Transition describes one state change, for subscribers.
type Transition struct {
	From   State
	To     State
	Reason string
}
