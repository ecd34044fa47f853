// Package controller runs the control loop tying the registry, state
// machine, session manager, heartbeat monitor and reconnection policy
// together. Radio callbacks are queued and drained once per loop
// iteration so every device sees at most one transition in flight and no
// callback can mutate a slot mid-check.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/pilotd/internal/conn"
	"github.com/srg/pilotd/internal/heartbeat"
	"github.com/srg/pilotd/internal/reconnect"
	"github.com/srg/pilotd/internal/registry"
	"github.com/srg/pilotd/internal/ringchan"
	"github.com/srg/pilotd/internal/session"
	"github.com/srg/pilotd/internal/trace"
	"github.com/srg/pilotd/pkg/config"
	"github.com/srg/pilotd/pkg/radio"
	"github.com/srg/pilotd/pkg/status"
)

// EventQueueCapacity bounds the radio event queue. At the 100ms ranging
// cadence 8 devices produce ~80 events per loop iteration, so this leaves
// ample headroom before drop-oldest kicks in.
const EventQueueCapacity = 256

// TraceCapacity bounds the transition trace kept for snapshots.
const TraceCapacity = 128

// ErrUnknownDevice is returned by command methods for ids without a slot.
var ErrUnknownDevice = errors.New("controller: unknown device")

// pendingRetry tracks one scheduled or in-flight reconnection attempt.
type pendingRetry struct {
	due      time.Time
	inFlight bool
}

// SnapshotFunc receives periodic status snapshots from the control loop.
type SnapshotFunc func(status.Snapshot)

// Controller owns all per-device state and serializes every transition
// through its loop. None of its methods except Emit are safe to call
// concurrently with Run.
type Controller struct {
	cfg    *config.Config
	logger *logrus.Logger

	reg      *registry.Registry
	machine  *conn.Machine
	sessions *session.Manager
	monitor  *heartbeat.Monitor
	policy   *reconnect.Policy
	tracer   *trace.Collector

	events *ringchan.Ring[radio.Event]

	ble radio.BLE
	uwb radio.UWB

	retries map[string]*pendingRetry

	lastScan   time.Time
	lastStatus time.Time

	onSnapshot SnapshotFunc

	ctx context.Context
	now func() time.Time
}

// New assembles a controller from its collaborators.
func New(cfg *config.Config, ble radio.BLE, uwb radio.UWB, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}

	tracer := trace.NewCollector(TraceCapacity)
	reg := registry.New(cfg.MaxConnectedDevices, cfg.MaxDeviceNameLength, logger)

	return &Controller{
		cfg:      cfg,
		logger:   logger,
		reg:      reg,
		machine:  conn.NewMachine(logger, tracer),
		sessions: session.NewManager(uwb, cfg.UWBMinRange, cfg.UWBMaxRange, cfg.UWBSessionTimeout, logger),
		monitor:  heartbeat.NewMonitor(reg, cfg.HeartbeatInterval, cfg.ConnectionTimeout, cfg.UWBSessionTimeout, logger),
		policy:   reconnect.New(cfg.MaxReconnectAttempts, cfg.ReconnectDelay),
		tracer:   tracer,
		events:   ringchan.New[radio.Event](EventQueueCapacity),
		ble:      ble,
		uwb:      uwb,
		retries:  make(map[string]*pendingRetry),
		ctx:      context.Background(),
		now:      time.Now,
	}
}

// OnSnapshot registers a callback invoked from the loop at the status
// update interval. Must be set before Run.
func (c *Controller) OnSnapshot(fn SnapshotFunc) {
	c.onSnapshot = fn
}

// Emit queues a radio event for the next loop iteration. Safe to call
// from radio callback goroutines; it never blocks. When the loop falls
// behind, the oldest undrained event is dropped.
func (c *Controller) Emit(ev radio.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if dropped := c.events.Send(ev); dropped {
		c.logger.Warn("Event queue overflow, dropped oldest radio event")
	}
}

// Run drives the control loop until the context is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx

	c.logger.WithFields(logrus.Fields{
		"loop_delay": c.cfg.LoopDelay,
		"capacity":   c.reg.Capacity(),
	}).Info("Control loop starting")

	ticker := time.NewTicker(c.cfg.LoopDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Control loop stopped")
			return ctx.Err()
		case <-ticker.C:
			c.Step(c.now())
		}
	}
}

// Step executes one loop iteration at the given instant: drain queued
// radio events, run due heartbeat scans, issue due reconnection attempts
// and publish a status snapshot when its interval elapses. A fault in one
// device's handling never stops the iteration.
func (c *Controller) Step(now time.Time) {
	// Drain only what was queued before this iteration so a chatty radio
	// cannot starve the timers below.
	for n := c.events.Len(); n > 0; n-- {
		ev, ok := c.events.TryReceive()
		if !ok {
			break
		}
		c.handleEvent(ev, now)
	}

	if now.Sub(c.lastScan) >= c.cfg.HeartbeatInterval {
		c.lastScan = now
		for _, breach := range c.monitor.Check(now) {
			c.handleTimeout(breach, now)
		}
	}

	c.runDueRetries(now)

	if c.onSnapshot != nil && now.Sub(c.lastStatus) >= c.cfg.StatusUpdateInterval {
		c.lastStatus = now
		c.onSnapshot(c.Snapshot(now))
	}
}

// handleEvent applies one queued radio event.
func (c *Controller) handleEvent(ev radio.Event, now time.Time) {
	switch ev.Kind {
	case radio.DeviceDiscovered:
		// Admission control only. Registry rejection is logged there and
		// intentionally not treated as a fault.
		_, _ = c.reg.Add(ev.Identity, ev.Name)

	case radio.DeviceConnected:
		slot, err := c.reg.Add(ev.Identity, ev.Name)
		if err != nil {
			return
		}
		if c.fire(slot, conn.EventConnected) {
			slot.ConnectedAt = ev.At
			slot.LastHeartbeatAt = ev.At
			slot.ReconnectAttempts = 0
			delete(c.retries, slot.ID)
		}

	case radio.DeviceDisconnected:
		slot, ok := c.reg.Get(ev.Identity)
		if !ok {
			return
		}
		if c.fire(slot, conn.EventPeerDisconnected) {
			c.sessions.StopSession(slot)
			c.consultPolicy(slot, now)
		}

	case radio.Heartbeat:
		slot, ok := c.reg.Get(ev.Identity)
		if !ok {
			return
		}
		if slot.State == conn.StateConnected || slot.SessionRunning() {
			slot.LastHeartbeatAt = ev.At
		}

	case radio.RangingSample:
		slot, ok := c.reg.Get(ev.Identity)
		if !ok || !slot.SessionRunning() {
			return
		}
		outcome := c.sessions.OnRangingSample(slot, ev.Distance, ev.At)
		switch {
		case outcome.Expired:
			c.teardown(slot, conn.EventSessionTimeout, now)
		case outcome.Accepted:
			c.fire(slot, conn.EventRangingSample)
		}
	}
}

// handleTimeout converts a liveness breach into a state transition plus
// reconnection handling.
func (c *Controller) handleTimeout(breach heartbeat.Timeout, now time.Time) {
	slot, ok := c.reg.Get(breach.Device)
	if !ok {
		return
	}

	event := conn.EventHeartbeatTimeout
	if breach.Kind == heartbeat.SessionExpired {
		event = conn.EventSessionTimeout
	}
	c.teardown(slot, event, now)
}

// teardown moves a device to disconnected, stops any session and consults
// the reconnection policy.
func (c *Controller) teardown(slot *registry.Slot, event conn.EventKind, now time.Time) {
	if !c.fire(slot, event) {
		return
	}
	c.sessions.StopSession(slot)
	c.consultPolicy(slot, now)
}

// fire requests a state transition. Invalid transitions are logged by the
// machine and leave the slot untouched.
func (c *Controller) fire(slot *registry.Slot, event conn.EventKind) bool {
	next, err := c.machine.Transition(slot.ID, slot.State, event)
	if err != nil {
		return false
	}
	slot.State = next
	return true
}

// consultPolicy decides whether a freshly disconnected device gets
// another connection attempt or is parked in the error state.
func (c *Controller) consultPolicy(slot *registry.Slot, now time.Time) {
	decision := c.policy.OnDisconnect(slot.ReconnectAttempts)
	if !decision.Retry {
		c.logger.WithFields(logrus.Fields{
			"device":   slot.ID,
			"attempts": slot.ReconnectAttempts,
		}).Error("Reconnect attempts exhausted")
		delete(c.retries, slot.ID)
		c.fire(slot, conn.EventFault)
		return
	}

	slot.ReconnectAttempts++
	c.retries[slot.ID] = &pendingRetry{due: now.Add(decision.Delay)}

	c.logger.WithFields(logrus.Fields{
		"device":  slot.ID,
		"attempt": slot.ReconnectAttempts,
		"delay":   decision.Delay,
	}).Info("Scheduling reconnect")
}

// runDueRetries issues scheduled connection attempts and expires attempts
// the peer never answered.
func (c *Controller) runDueRetries(now time.Time) {
	for id, retry := range c.retries {
		if now.Before(retry.due) {
			continue
		}

		slot, ok := c.reg.Get(id)
		if !ok || slot.State != conn.StateDisconnected {
			delete(c.retries, id)
			continue
		}

		if retry.inFlight {
			// The connect attempt timed out without a connected event.
			delete(c.retries, id)
			c.consultPolicy(slot, now)
			continue
		}

		if err := c.ble.Connect(c.ctx, id); err != nil {
			c.logger.WithError(err).WithField("device", id).Warn("Reconnect attempt failed")
			delete(c.retries, id)
			c.consultPolicy(slot, now)
			continue
		}

		retry.inFlight = true
		retry.due = now.Add(c.cfg.ConnectionTimeout)
	}
}

// StartSession establishes a UWB session against a connected device.
func (c *Controller) StartSession(id string) error {
	slot, ok := c.reg.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	if err := c.sessions.StartSession(slot, c.now()); err != nil {
		return err
	}
	c.fire(slot, conn.EventSessionStarted)
	return nil
}

// StopSession stops a device's session immediately, superseding any
// in-flight timeout. The BLE link stays up.
func (c *Controller) StopSession(id string) error {
	slot, ok := c.reg.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	if slot.SessionRunning() {
		c.fire(slot, conn.EventSessionStopped)
	}
	c.sessions.StopSession(slot)
	return nil
}

// Remove frees a device's slot immediately and unconditionally.
func (c *Controller) Remove(id string) error {
	slot, ok := c.reg.Get(id)
	if !ok {
		return nil
	}
	c.sessions.StopSession(slot)
	if slot.State == conn.StateConnected || slot.SessionRunning() {
		if err := c.ble.Disconnect(id); err != nil {
			c.logger.WithError(err).WithField("device", id).Warn("Error disconnecting removed device")
		}
	}
	delete(c.retries, id)
	c.sessions.Forget(id)
	c.reg.Remove(id)
	return nil
}

// Reset clears a device out of the error state back to disconnected and
// zeroes its reconnect counter. Only valid for devices in error.
func (c *Controller) Reset(id string) error {
	slot, ok := c.reg.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	next, err := c.machine.Transition(slot.ID, slot.State, conn.EventReset)
	if err != nil {
		return err
	}
	slot.State = next
	slot.ReconnectAttempts = 0
	return nil
}

// Registry exposes the device table for read access.
func (c *Controller) Registry() *registry.Registry {
	return c.reg
}

// Snapshot collects the reportable view of every slot plus the
// transitions recorded since the previous snapshot.
func (c *Controller) Snapshot(now time.Time) status.Snapshot {
	snap := status.Snapshot{
		TakenAt:  now,
		Capacity: c.reg.Capacity(),
	}

	c.reg.ForEach(func(slot *registry.Slot) bool {
		d := status.DeviceStatus{
			ID:                slot.ID,
			Name:              slot.Name,
			State:             slot.State.String(),
			ReconnectAttempts: slot.ReconnectAttempts,
			DroppedSamples:    slot.DroppedSamples,
		}
		if slot.SessionRunning() {
			d.Quality = slot.Quality.String()
			d.SessionFor = now.Sub(slot.SessionStartedAt)
		}
		if slot.State != conn.StateDisconnected && slot.State != conn.StateError {
			d.ConnectedFor = now.Sub(slot.ConnectedAt)
		}
		snap.Devices = append(snap.Devices, d)
		return true
	})

	snap.Transitions = c.tracer.Drain(TraceCapacity)
	return snap
}
