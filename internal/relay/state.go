package relay

// State is the connection state owned by the Manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
