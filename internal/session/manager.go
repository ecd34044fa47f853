// Package session owns the UWB ranging session lifecycle for each device.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/srg/pilotd/internal/conn"
	"github.com/srg/pilotd/internal/quality"
	"github.com/srg/pilotd/internal/registry"
	"github.com/srg/pilotd/pkg/radio"
)

var (
	// ErrAlreadyActive is returned when starting a session on a device
	// that already has one.
	ErrAlreadyActive = errors.New("session: already active")

	// ErrDeviceNotConnected is returned when the device is not in the
	// connected state.
	ErrDeviceNotConnected = errors.New("session: device not connected")
)

// SampleOutcome describes what a ranging sample did to the session.
type SampleOutcome struct {
	// Accepted is true when the measurement was in range and fed to the
	// quality estimator.
	Accepted bool

	// Expired is true when the session exceeded its maximum age; the
	// caller must tear it down regardless of sample validity.
	Expired bool

	// Quality is the recomputed tier, valid only when Accepted.
	Quality conn.ConnectionQuality
}

// Manager starts and stops UWB sessions and screens incoming measurements.
// It updates session bookkeeping on the slot but never its State field;
// state changes are requested through the connection state machine by the
// control loop.
type Manager struct {
	uwb    radio.UWB
	logger *logrus.Logger

	// estimators holds one quality window per device, kept across
	// sessions and reset on every stop.
	estimators map[string]*quality.Estimator
	active     int

	minRange float64
	maxRange float64
	maxAge   time.Duration
}

// NewManager creates a session manager. minRange and maxRange bound
// acceptable measurements in meters; maxAge bounds session lifetime.
func NewManager(uwb radio.UWB, minRange, maxRange float64, maxAge time.Duration, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		uwb:        uwb,
		logger:     logger,
		estimators: make(map[string]*quality.Estimator),
		minRange:   minRange,
		maxRange:   maxRange,
		maxAge:     maxAge,
	}
}

// StartSession begins ranging against the device. The device must be
// connected and must not already have a session.
func (m *Manager) StartSession(slot *registry.Slot, now time.Time) error {
	if slot.SessionRunning() {
		return ErrAlreadyActive
	}
	if slot.State != conn.StateConnected {
		return ErrDeviceNotConnected
	}

	if err := m.uwb.BeginRanging(slot.ID); err != nil {
		return fmt.Errorf("begin ranging for %s: %w", slot.ID, err)
	}

	slot.SessionID = uuid.NewString()
	slot.SessionStartedAt = now
	slot.LastHeartbeatAt = now
	if est, ok := m.estimators[slot.ID]; ok {
		est.Reset()
	} else {
		m.estimators[slot.ID] = quality.NewEstimator(quality.DefaultWindowSize)
	}
	m.active++

	m.logger.WithFields(logrus.Fields{
		"device":  slot.ID,
		"session": slot.SessionID,
	}).Info("Started UWB session")

	return nil
}

// StopSession tears the session down. It is unconditional and idempotent:
// stopping a device without a session is a no-op.
func (m *Manager) StopSession(slot *registry.Slot) {
	if slot.SessionID == "" {
		return
	}

	if err := m.uwb.EndRanging(slot.ID); err != nil {
		m.logger.WithError(err).WithField("device", slot.ID).Warn("Error ending ranging")
	}

	samples := 0
	if est, ok := m.estimators[slot.ID]; ok {
		samples = est.Len()
		est.Reset()
	}

	m.logger.WithFields(logrus.Fields{
		"device":  slot.ID,
		"session": slot.SessionID,
		"samples": samples,
	}).Info("Stopped UWB session")

	slot.SessionID = ""
	slot.SessionStartedAt = time.Time{}
	slot.Quality = conn.QualityPoor
	m.active--
}

// OnRangingSample screens one measurement. Every sample, valid or not,
// counts as a liveness signal and refreshes the heartbeat clock. The
// session age is checked first: a session past its maximum age expires
// even if samples keep arriving.
func (m *Manager) OnRangingSample(slot *registry.Slot, distance float64, at time.Time) SampleOutcome {
	if slot.SessionID == "" {
		return SampleOutcome{}
	}

	slot.LastHeartbeatAt = at

	if at.Sub(slot.SessionStartedAt) >= m.maxAge {
		return SampleOutcome{Expired: true}
	}

	if distance < m.minRange || distance > m.maxRange {
		slot.DroppedSamples++
		m.logger.WithFields(logrus.Fields{
			"device":   slot.ID,
			"distance": distance,
		}).Debug("Discarding out-of-range measurement")
		return SampleOutcome{}
	}

	est, ok := m.estimators[slot.ID]
	if !ok {
		est = quality.NewEstimator(quality.DefaultWindowSize)
		m.estimators[slot.ID] = est
	}

	q := est.Observe(distance)
	slot.Quality = q
	return SampleOutcome{Accepted: true, Quality: q}
}

// ActiveSessions returns the number of devices with a running session.
func (m *Manager) ActiveSessions() int {
	return m.active
}

// Forget drops the quality window for a device that left the registry.
func (m *Manager) Forget(id string) {
	delete(m.estimators, id)
}
