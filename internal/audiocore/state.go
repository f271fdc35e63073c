package audiocore

import "fmt"

// State of a stream's lifecycle
type State int32

const (
	StateUninitialized State = iota
	StateUnknown
	StateOpen
	StateStarting
	StateStarted
	StatePausing
	StatePaused
	StateFlushing
	StateFlushed
	StateStopping
	StateStopped
	StateClosing
	StateClosed
	StateDisconnected
)

var stateNames = [...]string{
	StateUninitialized: "uninitialized",
	StateUnknown:       "unknown",
	StateOpen:          "open",
	StateStarting:      "starting",
	StateStarted:       "started",
	StatePausing:       "pausing",
	StatePaused:        "paused",
	StateFlushing:      "flushing",
	StateFlushed:       "flushed",
	StateStopping:      "stopping",
	StateStopped:       "stopped",
	StateClosing:       "closing",
	StateClosed:        "closed",
	StateDisconnected:  "disconnected",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// IsTransient reports whether s is an in-between state that the backend
// will leave on its own.
func (s State) IsTransient() bool {
	switch s {
	case StateStarting, StatePausing, StateFlushing, StateStopping, StateClosing:
		return true
	}
	return false
}

// IsTerminal reports whether a stream in s can no longer be used for audio.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateDisconnected
}

// IsActive reports whether the stream has been opened and not yet closed.
func (s State) IsActive() bool {
	return s >= StateOpen && s <= StateStopped
}
