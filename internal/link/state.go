package link

// State is the connectivity state of one Connect call.
type State int32

const (
	StateIdle State = iota
	StateAssociating
	StateAssociated
	StateFailed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAssociating:
		return "associating"
	case StateAssociated:
		return "associated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateAssociated || s == StateFailed
}

// Credentials identify the network to associate with.
type Credentials struct {
	SSID       string
	Passphrase string
}
