package connection

// State is the lifecycle state of the managed socket.
type State int

const (
	// Uninitialized covers the time between starting a dial and the socket
	// opening. Sends are queued.
	Uninitialized State = iota
	// Ready means the socket is open and the pending queue has been flushed.
	Ready
	// Closed means the socket is gone. A reconnect may be scheduled.
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
