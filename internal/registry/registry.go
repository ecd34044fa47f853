// Package registry holds the bounded table of peer device slots. Capacity
// is fixed at construction; once full, new devices are rejected rather
// than evicting an existing session.
package registry

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/pilotd/internal/conn"
)

var (
	// ErrCapacityExceeded is returned by Add when all slots are occupied.
	ErrCapacityExceeded = errors.New("registry: capacity exceeded")

	// ErrNotFound is returned when a device id has no slot.
	ErrNotFound = errors.New("registry: device not found")
)

// Slot tracks one peer device. The State field is owned by the connection
// state machine; every other component treats it as read-only.
type Slot struct {
	// ID is the stable device address used as the registry key.
	ID string

	// Name is the advertised device name, truncated to the configured limit.
	Name string

	State   conn.DeviceState
	Quality conn.ConnectionQuality

	ConnectedAt      time.Time
	SessionStartedAt time.Time
	LastHeartbeatAt  time.Time

	// SessionID identifies the current UWB session, empty when none is active.
	SessionID string

	// ReconnectAttempts counts consecutive failed reconnects in the current
	// disconnect streak. Reset to zero on a successful connection.
	ReconnectAttempts int

	// DroppedSamples counts out-of-range measurements discarded for this
	// device. Kept for observability only.
	DroppedSamples int64
}

// SessionRunning reports whether the slot currently holds a UWB session.
func (s *Slot) SessionRunning() bool {
	return s.State == conn.StateSessionActive || s.State == conn.StateRanging
}

// Registry is a bounded, insertion-ordered table of device slots.
// It is not safe for concurrent use; all access happens on the control loop.
type Registry struct {
	slots    *orderedmap.OrderedMap[string, *Slot]
	capacity int
	maxName  int
	logger   *logrus.Logger
}

// New creates a registry with the given slot capacity and device name limit.
func New(capacity, maxNameLength int, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		slots:    orderedmap.New[string, *Slot](),
		capacity: capacity,
		maxName:  maxNameLength,
		logger:   logger,
	}
}

// Add creates a slot for the device, or returns the existing one if the
// device is already registered. Fails with ErrCapacityExceeded when all
// slots are taken; existing sessions are never evicted to make room.
func (r *Registry) Add(id, name string) (*Slot, error) {
	if slot, ok := r.slots.Get(id); ok {
		return slot, nil
	}
	if r.slots.Len() >= r.capacity {
		r.logger.WithFields(logrus.Fields{
			"device":   id,
			"capacity": r.capacity,
		}).Warn("Rejecting device, registry full")
		return nil, ErrCapacityExceeded
	}

	if len(name) > r.maxName {
		// Back off to a rune boundary so a multi-byte name is never cut
		// mid-character.
		cut := r.maxName
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}

	slot := &Slot{
		ID:    id,
		Name:  name,
		State: conn.StateDisconnected,
	}
	r.slots.Set(id, slot)

	r.logger.WithFields(logrus.Fields{
		"device": id,
		"name":   name,
		"slots":  r.slots.Len(),
	}).Info("Registered device")

	return slot, nil
}

// Get returns the slot for the device id.
func (r *Registry) Get(id string) (*Slot, bool) {
	return r.slots.Get(id)
}

// Remove frees the device's slot. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	if _, ok := r.slots.Get(id); !ok {
		return
	}
	r.slots.Delete(id)
	r.logger.WithField("device", id).Info("Removed device")
}

// ForEach visits every slot in insertion order. The visitor returns false
// to stop early.
func (r *Registry) ForEach(visit func(*Slot) bool) {
	for pair := r.slots.Oldest(); pair != nil; pair = pair.Next() {
		if !visit(pair.Value) {
			return
		}
	}
}

// Len returns the number of occupied slots.
func (r *Registry) Len() int {
	return r.slots.Len()
}

// Capacity returns the maximum number of slots.
func (r *Registry) Capacity() int {
	return r.capacity
}
