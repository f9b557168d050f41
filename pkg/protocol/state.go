package protocol

// ConnState is the connection driver's per-connection state.
type ConnState uint8

const (
	StateInitialized ConnState = iota
	StateScopeBuilt
	StateAppRunning
	StateResponseStarted
	StateResponseComplete // terminal, success
	StateAborted          // terminal, failure
)

// String returns the string representation of the state.
func (s ConnState) String() string {
	switch s {
	case StateInitialized:
		return "Initialized"
	case StateScopeBuilt:
		return "ScopeBuilt"
	case StateAppRunning:
		return "AppRunning"
	case StateResponseStarted:
		return "ResponseStarted"
	case StateResponseComplete:
		return "ResponseComplete"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s ConnState) Terminal() bool {
	return s == StateResponseComplete || s == StateAborted
}
