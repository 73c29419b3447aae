package channelmux

// State is the lifecycle state of a Connection.
type State int32

const (
	// StateConnecting is the initial state; sends are buffered.
	StateConnecting State = iota
	// StateOpen means the transport has reported it is ready.
	StateOpen
	// StateClosed is terminal and entered only through Close.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
