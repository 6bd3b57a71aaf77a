package feed

import "sync/atomic"

// State captures the state of the feed connection: Disconnected, Connecting,
// Connected or Closed.
type State uint32

const (
	// Disconnected is the initial state, and the state between a connection
	// loss and the next attempt.
	Disconnected State = iota
	// Connecting is dialing
	Connecting
	// Connected is receiving
	Connected
	// Closed is terminal
	Closed
)

// String ...
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type state struct {
	state State
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}
