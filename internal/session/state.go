package session

// State is the lifecycle position of a session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateHandshaking
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseReason says why a session reached StateClosed.
type CloseReason int

const (
	CloseNormal CloseReason = iota
	CloseKicked
	CloseLoggedOut
	CloseHandshakeRejected
	CloseTransportFailed
)

func (r CloseReason) String() string {
	switch r {
	case CloseNormal:
		return "normal"
	case CloseKicked:
		return "kicked"
	case CloseLoggedOut:
		return "logged_out"
	case CloseHandshakeRejected:
		return "handshake_rejected"
	case CloseTransportFailed:
		return "transport_failed"
	default:
		return "unknown"
	}
}

// EventKind identifies a session event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventKicked
	EventLoggedOut
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventKicked:
		return "kicked"
	case EventLoggedOut:
		return "logged_out"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is emitted on the channel returned by Session.Events. Reason and
// Err are set on EventClosed only.
type Event struct {
	Kind   EventKind
	Reason CloseReason
	Err    error
}
