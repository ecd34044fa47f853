// Package heartbeat scans the registry for devices whose liveness clocks
// have run out. The monitor is strictly an event source: it reports
// breaches and leaves all state changes to the connection state machine.
package heartbeat

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/pilotd/internal/conn"
	"github.com/srg/pilotd/internal/registry"
)

// SessionGraceMultiplier sets the idle budget for sessioned devices as a
// multiple of the heartbeat interval. Ranging traffic normally arrives
// every 100ms, so three missed heartbeat periods means the peer is gone.
const SessionGraceMultiplier = 3

// TimeoutKind says which liveness budget a device blew.
type TimeoutKind int

const (
	// ConnectionTimeout: a connected, non-sessioned device went silent
	// past the connection budget.
	ConnectionTimeout TimeoutKind = iota

	// SessionIdle: a sessioned device stopped producing liveness signals.
	SessionIdle

	// SessionExpired: a session reached its maximum age.
	SessionExpired
)

func (k TimeoutKind) String() string {
	switch k {
	case ConnectionTimeout:
		return "connection_timeout"
	case SessionIdle:
		return "session_idle"
	case SessionExpired:
		return "session_expired"
	default:
		return "unknown"
	}
}

// Timeout is one detected liveness breach.
type Timeout struct {
	Device string
	Kind   TimeoutKind
	Age    time.Duration
}

// Monitor evaluates liveness deadlines against the registry.
type Monitor struct {
	reg           *registry.Registry
	connTimeout   time.Duration
	interval      time.Duration
	sessionMaxAge time.Duration
	logger        *logrus.Logger
}

// NewMonitor creates a monitor. interval is the heartbeat period,
// connTimeout the silence budget for connected devices, sessionMaxAge the
// hard cap on session lifetime.
func NewMonitor(reg *registry.Registry, interval, connTimeout, sessionMaxAge time.Duration, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{
		reg:           reg,
		connTimeout:   connTimeout,
		interval:      interval,
		sessionMaxAge: sessionMaxAge,
		logger:        logger,
	}
}

// Check scans every occupied slot once and returns the breaches found.
// A single scan reports at most one breach per device. Devices already
// disconnected or in error are skipped, so a breach is reported exactly
// once: handling it moves the device out of the monitored states.
func (m *Monitor) Check(now time.Time) []Timeout {
	var breaches []Timeout

	m.reg.ForEach(func(slot *registry.Slot) bool {
		switch slot.State {
		case conn.StateConnected:
			silence := now.Sub(slot.LastHeartbeatAt)
			if silence > m.connTimeout {
				breaches = append(breaches, Timeout{Device: slot.ID, Kind: ConnectionTimeout, Age: silence})
			}

		case conn.StateSessionActive, conn.StateRanging:
			if age := now.Sub(slot.SessionStartedAt); age >= m.sessionMaxAge {
				breaches = append(breaches, Timeout{Device: slot.ID, Kind: SessionExpired, Age: age})
				return true
			}
			silence := now.Sub(slot.LastHeartbeatAt)
			if silence > m.interval*SessionGraceMultiplier {
				breaches = append(breaches, Timeout{Device: slot.ID, Kind: SessionIdle, Age: silence})
			}
		}
		return true
	})

	for _, b := range breaches {
		m.logger.WithFields(logrus.Fields{
			"device": b.Device,
			"kind":   b.Kind.String(),
			"age":    b.Age,
		}).Warn("Liveness timeout")
	}

	return breaches
}
