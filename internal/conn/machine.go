package conn

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/pilotd/internal/trace"
)

// InvalidTransitionError reports an event that does not apply to the
// device's current state. It is non-fatal: the caller logs it and leaves
// the state unchanged.
type InvalidTransitionError struct {
	Device string
	From   DeviceState
	Event  EventKind
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: device %s cannot handle %s while %s", e.Device, e.Event, e.From)
}

// transitionKey indexes the transition table by (current state, event).
type transitionKey struct {
	from  DeviceState
	event EventKind
}

// transitions is the single authority on which state changes are legal.
// Anything absent from this table is an InvalidTransitionError.
var transitions = map[transitionKey]DeviceState{
	{StateDisconnected, EventConnected}: StateConnected,

	{StateConnected, EventSessionStarted}:   StateSessionActive,
	{StateConnected, EventHeartbeatTimeout}: StateDisconnected,
	{StateConnected, EventPeerDisconnected}: StateDisconnected,

	{StateSessionActive, EventRangingSample}:    StateRanging,
	{StateSessionActive, EventSessionStopped}:   StateConnected,
	{StateSessionActive, EventHeartbeatTimeout}: StateDisconnected,
	{StateSessionActive, EventSessionTimeout}:   StateDisconnected,
	{StateSessionActive, EventPeerDisconnected}: StateDisconnected,

	{StateRanging, EventRangingSample}:    StateRanging,
	{StateRanging, EventSessionStopped}:   StateConnected,
	{StateRanging, EventHeartbeatTimeout}: StateDisconnected,
	{StateRanging, EventSessionTimeout}:   StateDisconnected,
	{StateRanging, EventPeerDisconnected}: StateDisconnected,

	// EventFault is legal from every non-terminal state, see Transition.

	{StateError, EventReset}: StateDisconnected,
}

// Machine validates and records per-device state transitions. It is the
// only component allowed to decide the next state of a slot; monitors and
// session bookkeeping raise events, they never pick states themselves.
type Machine struct {
	logger *logrus.Logger
	trace  *trace.Collector
	now    func() time.Time
}

// NewMachine creates a state machine. The trace collector is optional.
func NewMachine(logger *logrus.Logger, tc *trace.Collector) *Machine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Machine{
		logger: logger,
		trace:  tc,
		now:    time.Now,
	}
}

// Transition returns the state that follows from applying event to the
// device's current state. The device id is only used for logging and
// tracing. An *InvalidTransitionError is returned for events the table
// does not allow; the caller must leave the state untouched in that case.
func (m *Machine) Transition(device string, from DeviceState, event EventKind) (DeviceState, error) {
	next, ok := transitions[transitionKey{from, event}]
	if !ok {
		// Faults are terminal from everywhere except StateError itself,
		// which only an explicit reset may leave.
		if event == EventFault && from != StateError {
			next = StateError
		} else {
			err := &InvalidTransitionError{Device: device, From: from, Event: event}
			m.logger.WithFields(logrus.Fields{
				"device": device,
				"state":  from.String(),
				"event":  event.String(),
			}).Warn("Ignoring invalid state transition")
			return from, err
		}
	}

	m.logger.WithFields(logrus.Fields{
		"device": device,
		"from":   from.String(),
		"to":     next.String(),
		"event":  event.String(),
	}).Debug("Device state transition")

	if m.trace != nil {
		m.trace.Record(trace.Record{
			At:     m.now(),
			Device: device,
			From:   from.String(),
			To:     next.String(),
			Event:  event.String(),
		})
	}

	return next, nil
}
