// Package radio defines the boundary to the BLE and UWB stacks. The core
// never talks to a radio directly: stacks deliver events through an
// EmitFunc and receive commands through the BLE/UWB interfaces, so the
// control loop stays testable without hardware.
package radio

import (
	"context"
	"time"
)

// EventKind identifies an asynchronous radio callback.
type EventKind int

const (
	// DeviceDiscovered: an advertisement from a new or known peer was seen.
	DeviceDiscovered EventKind = iota

	// DeviceConnected: the BLE link to the peer came up.
	DeviceConnected

	// DeviceDisconnected: the BLE link to the peer dropped.
	DeviceDisconnected

	// Heartbeat: an explicit liveness signal from the peer.
	Heartbeat

	// RangingSample: a UWB distance measurement for the peer.
	RangingSample
)

func (k EventKind) String() string {
	switch k {
	case DeviceDiscovered:
		return "device_discovered"
	case DeviceConnected:
		return "device_connected"
	case DeviceDisconnected:
		return "device_disconnected"
	case Heartbeat:
		return "heartbeat"
	case RangingSample:
		return "ranging_sample"
	default:
		return "unknown"
	}
}

// Event is one radio callback. Events are queued and drained by the
// control loop; they are never processed in the callback context.
type Event struct {
	Kind     EventKind
	Identity string
	Name     string

	// Distance in meters, only meaningful for RangingSample events.
	Distance float64

	At time.Time
}

// EmitFunc delivers a radio event into the core. Implementations must be
// safe to call from radio callback goroutines and must never block.
type EmitFunc func(Event)

// BLE is the command surface of the Bluetooth stack.
type BLE interface {
	// Advertise broadcasts the device name at the given interval until the
	// context is cancelled.
	Advertise(ctx context.Context, name string, interval time.Duration) error

	// Connect initiates a connection to the peer. Success is reported
	// asynchronously via a DeviceConnected event.
	Connect(ctx context.Context, identity string) error

	// Disconnect tears down the link to the peer.
	Disconnect(identity string) error
}

// UWB is the command surface of the ranging stack.
type UWB interface {
	// BeginRanging starts the measurement exchange with the peer.
	// Samples arrive asynchronously as RangingSample events.
	BeginRanging(identity string) error

	// EndRanging stops the measurement exchange with the peer.
	EndRanging(identity string) error
}
