package conn

// DeviceState is the connection lifecycle state of a single peer device.
// Exactly one value is active per device at any time; all changes go
// through the Machine so illegal transitions are caught in one place.
type DeviceState int

const (
	// StateDisconnected is the initial state and the recovery target after
	// any liveness timeout. A disconnected device has no quality and no
	// UWB session.
	StateDisconnected DeviceState = iota

	// StateConnected means the BLE link is up but no ranging session has
	// been started yet.
	StateConnected

	// StateSessionActive means a UWB session has been established but no
	// ranging measurement has been received so far.
	StateSessionActive

	// StateRanging means the UWB session is live and producing measurements.
	StateRanging

	// StateError is terminal: the device stays here until an explicit
	// reset command. Reconnection retries were exhausted or the radio
	// reported an unrecoverable fault.
	StateError
)

func (s DeviceState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateSessionActive:
		return "session_active"
	case StateRanging:
		return "ranging"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionQuality classifies how stable the ranging exchange with a peer
// is. It is only meaningful while the device is in StateSessionActive or
// StateRanging.
type ConnectionQuality int

const (
	QualityPoor ConnectionQuality = iota
	QualityFair
	QualityGood
	QualityExcellent
)

func (q ConnectionQuality) String() string {
	switch q {
	case QualityPoor:
		return "poor"
	case QualityFair:
		return "fair"
	case QualityGood:
		return "good"
	case QualityExcellent:
		return "excellent"
	default:
		return "unknown"
	}
}

// EventKind identifies the stimulus driving a state transition.
type EventKind int

const (
	// EventConnected: the BLE stack reports the link to the peer is up.
	EventConnected EventKind = iota

	// EventSessionStarted: a UWB session was established for the peer.
	EventSessionStarted

	// EventRangingSample: an in-range measurement was accepted for the peer.
	EventRangingSample

	// EventSessionStopped: the session was stopped by explicit request,
	// leaving the BLE link up.
	EventSessionStopped

	// EventHeartbeatTimeout: no liveness signal within the connection budget.
	EventHeartbeatTimeout

	// EventSessionTimeout: session idle too long or past its maximum age.
	EventSessionTimeout

	// EventPeerDisconnected: the BLE stack reports the link dropped.
	EventPeerDisconnected

	// EventFault: unrecoverable radio fault or reconnect retries exhausted.
	EventFault

	// EventReset: explicit operator reset of a device in StateError.
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventSessionStarted:
		return "session_started"
	case EventRangingSample:
		return "ranging_sample"
	case EventSessionStopped:
		return "session_stopped"
	case EventHeartbeatTimeout:
		return "heartbeat_timeout"
	case EventSessionTimeout:
		return "session_timeout"
	case EventPeerDisconnected:
		return "peer_disconnected"
	case EventFault:
		return "fault"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}
