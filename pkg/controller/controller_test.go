package controller

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/pilotd/internal/conn"
	"github.com/srg/pilotd/internal/testutils"
	"github.com/srg/pilotd/pkg/config"
	"github.com/srg/pilotd/pkg/radio"
	"github.com/srg/pilotd/pkg/status"
)

type harness struct {
	ctl   *Controller
	ble   *testutils.FakeBLE
	uwb   *testutils.FakeUWB
	start time.Time
	now   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	ble := &testutils.FakeBLE{}
	uwb := &testutils.FakeUWB{}

	h := &harness{
		ctl:   New(cfg, ble, uwb, nil),
		ble:   ble,
		uwb:   uwb,
		start: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.now = h.start
	h.ctl.now = func() time.Time { return h.now }
	return h
}

// stepAt advances simulated time to start+offset and runs one iteration.
func (h *harness) stepAt(offset time.Duration) {
	h.now = h.start.Add(offset)
	h.ctl.Step(h.now)
}

func (h *harness) emit(kind radio.EventKind, id string, offset time.Duration) {
	h.ctl.Emit(radio.Event{Kind: kind, Identity: id, At: h.start.Add(offset)})
}

func (h *harness) emitSample(id string, distance float64, offset time.Duration) {
	h.ctl.Emit(radio.Event{Kind: radio.RangingSample, Identity: id, Distance: distance, At: h.start.Add(offset)})
}

func (h *harness) connect(t *testing.T, id string, offset time.Duration) {
	t.Helper()
	h.emit(radio.DeviceConnected, id, offset)
	h.stepAt(offset)
	slot, ok := h.ctl.Registry().Get(id)
	require.True(t, ok)
	require.Equal(t, conn.StateConnected, slot.State)
}

func (h *harness) state(t *testing.T, id string) conn.DeviceState {
	t.Helper()
	slot, ok := h.ctl.Registry().Get(id)
	require.True(t, ok)
	return slot.State
}

func TestRegistryNeverExceedsCapacity(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 8; i++ {
		h.emit(radio.DeviceDiscovered, fmt.Sprintf("dev-%d", i), 0)
	}
	h.emit(radio.DeviceDiscovered, "dev-9th", 0)
	h.stepAt(0)

	assert.Equal(t, 8, h.ctl.Registry().Len())
	_, ok := h.ctl.Registry().Get("dev-9th")
	assert.False(t, ok)

	// A connect for the rejected device is also refused admission.
	h.emit(radio.DeviceConnected, "dev-9th", time.Second)
	h.stepAt(time.Second)
	assert.Equal(t, 8, h.ctl.Registry().Len())
}

func TestConnectionTimeoutScenario(t *testing.T) {
	// Device connects at t=0, never sends a heartbeat; at t=30.001s it is
	// disconnected with one reconnect attempt consumed.
	h := newHarness(t)
	h.connect(t, "dev-1", 0)

	h.stepAt(30*time.Second + time.Millisecond)

	slot, _ := h.ctl.Registry().Get("dev-1")
	assert.Equal(t, conn.StateDisconnected, slot.State)
	assert.Equal(t, 1, slot.ReconnectAttempts)
}

func TestTimeoutFiresOncePerBreach(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "dev-1", 0)

	h.stepAt(30*time.Second + time.Millisecond)
	slot, _ := h.ctl.Registry().Get("dev-1")
	require.Equal(t, 1, slot.ReconnectAttempts)

	// Further scans while waiting for the reconnect must not re-raise the
	// breach or bump the counter.
	h.stepAt(36 * time.Second)
	h.stepAt(41 * time.Second)
	assert.Equal(t, 1, slot.ReconnectAttempts)
}

func TestHeartbeatKeepsConnectionAlive(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "dev-1", 0)

	for offset := 5 * time.Second; offset <= 60*time.Second; offset += 5 * time.Second {
		h.emit(radio.Heartbeat, "dev-1", offset)
		h.stepAt(offset)
	}

	assert.Equal(t, conn.StateConnected, h.state(t, "dev-1"))
}

func TestReconnectAttemptsExhaustToError(t *testing.T) {
	h := newHarness(t)
	h.ble.ConnectErr = fmt.Errorf("peer unreachable")
	h.connect(t, "dev-1", 0)

	// Breach at 30.001s consumes attempt 1 and schedules a retry; each
	// failing retry consumes the next attempt.
	h.stepAt(30*time.Second + time.Millisecond)
	h.stepAt(32 * time.Second)
	h.stepAt(34 * time.Second)
	h.stepAt(36 * time.Second)

	slot, _ := h.ctl.Registry().Get("dev-1")
	assert.Equal(t, conn.StateError, slot.State)
	assert.Equal(t, 3, slot.ReconnectAttempts)
	assert.Len(t, h.ble.Connects(), 3)

	// Error is terminal: nothing happens without an explicit reset.
	h.stepAt(10 * time.Minute)
	assert.Equal(t, conn.StateError, slot.State)
}

func TestSuccessfulReconnectResetsCounter(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "dev-1", 0)

	h.stepAt(30*time.Second + time.Millisecond)
	slot, _ := h.ctl.Registry().Get("dev-1")
	require.Equal(t, 1, slot.ReconnectAttempts)

	// Retry is issued after the reconnect delay; the peer answers.
	h.stepAt(32 * time.Second)
	require.Len(t, h.ble.Connects(), 1)
	h.emit(radio.DeviceConnected, "dev-1", 33*time.Second)
	h.stepAt(33 * time.Second)

	assert.Equal(t, conn.StateConnected, slot.State)
	assert.Equal(t, 0, slot.ReconnectAttempts)
}

func TestSilentConnectAttemptCountsAsFailure(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "dev-1", 0)

	h.stepAt(30*time.Second + time.Millisecond)
	h.stepAt(32 * time.Second) // retry issued, peer never answers
	require.Len(t, h.ble.Connects(), 1)

	slot, _ := h.ctl.Registry().Get("dev-1")
	require.Equal(t, 1, slot.ReconnectAttempts)

	// Attempt deadline passes with no connected event: next attempt.
	h.stepAt(63 * time.Second)
	assert.Equal(t, 2, slot.ReconnectAttempts)
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "dev-1", 0)

	require.NoError(t, h.ctl.StartSession("dev-1"))
	assert.Equal(t, conn.StateSessionActive, h.state(t, "dev-1"))
	assert.Equal(t, []string{"dev-1"}, h.uwb.BeginCalls)

	// First accepted sample moves the device to ranging.
	h.emitSample("dev-1", 2.5, 100*time.Millisecond)
	h.stepAt(100 * time.Millisecond)
	assert.Equal(t, conn.StateRanging, h.state(t, "dev-1"))

	// Explicit stop returns it to connected, session gone.
	require.NoError(t, h.ctl.StopSession("dev-1"))
	assert.Equal(t, conn.StateConnected, h.state(t, "dev-1"))
	assert.Equal(t, []string{"dev-1"}, h.uwb.Ends())
}

func TestStartSessionRequiresConnectedDevice(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.ctl.StartSession("dev-1"), ErrUnknownDevice)

	h.emit(radio.DeviceDiscovered, "dev-1", 0)
	h.stepAt(0)
	assert.Error(t, h.ctl.StartSession("dev-1"))
}

func TestOutOfRangeSamplesDoNotEnterRanging(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "dev-1", 0)
	require.NoError(t, h.ctl.StartSession("dev-1"))

	h.emitSample("dev-1", 500, 100*time.Millisecond)
	h.emitSample("dev-1", 0.01, 200*time.Millisecond)
	h.stepAt(200 * time.Millisecond)

	slot, _ := h.ctl.Registry().Get("dev-1")
	assert.Equal(t, conn.StateSessionActive, slot.State)
	assert.Equal(t, int64(2), slot.DroppedSamples)
	// Discarded samples still refreshed the liveness clock.
	assert.Equal(t, h.start.Add(200*time.Millisecond), slot.LastHeartbeatAt)
}

func TestSessionForceStoppedAtTimeout(t *testing.T) {
	// Device ranges happily with valid samples every 100ms for 61s; the
	// session is force-stopped at the 60s mark regardless.
	h := newHarness(t)
	h.connect(t, "dev-1", 0)
	require.NoError(t, h.ctl.StartSession("dev-1"))

	var stoppedAt time.Duration
	for offset := 100 * time.Millisecond; offset <= 61*time.Second; offset += 100 * time.Millisecond {
		h.emitSample("dev-1", 2.5, offset)
		h.stepAt(offset)
		if stoppedAt == 0 && h.state(t, "dev-1") != conn.StateRanging {
			stoppedAt = offset
		}
	}

	assert.Equal(t, conn.StateDisconnected, h.state(t, "dev-1"))
	assert.Equal(t, []string{"dev-1"}, h.uwb.Ends())
	assert.InDelta(t, float64(60*time.Second), float64(stoppedAt), float64(200*time.Millisecond))
}

func TestSessionIdleTimeout(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "dev-1", 0)
	require.NoError(t, h.ctl.StartSession("dev-1"))

	// No samples at all: three missed heartbeat periods end the session.
	h.stepAt(15*time.Second + time.Millisecond)

	assert.Equal(t, conn.StateDisconnected, h.state(t, "dev-1"))
	assert.Equal(t, []string{"dev-1"}, h.uwb.Ends())
}

func TestResetClearsErrorState(t *testing.T) {
	h := newHarness(t)
	h.ble.ConnectErr = fmt.Errorf("peer unreachable")
	h.connect(t, "dev-1", 0)
	h.stepAt(30*time.Second + time.Millisecond)
	h.stepAt(32 * time.Second)
	h.stepAt(34 * time.Second)
	h.stepAt(36 * time.Second)
	require.Equal(t, conn.StateError, h.state(t, "dev-1"))

	require.NoError(t, h.ctl.Reset("dev-1"))

	slot, _ := h.ctl.Registry().Get("dev-1")
	assert.Equal(t, conn.StateDisconnected, slot.State)
	assert.Equal(t, 0, slot.ReconnectAttempts)
}

func TestResetRequiresErrorState(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "dev-1", 0)

	var invalid *conn.InvalidTransitionError
	assert.ErrorAs(t, h.ctl.Reset("dev-1"), &invalid)
	assert.Equal(t, conn.StateConnected, h.state(t, "dev-1"))
}

func TestRemoveIsImmediateAndUnconditional(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "dev-1", 0)
	require.NoError(t, h.ctl.StartSession("dev-1"))

	require.NoError(t, h.ctl.Remove("dev-1"))
	assert.Equal(t, 0, h.ctl.Registry().Len())
	assert.Equal(t, []string{"dev-1"}, h.uwb.Ends())
	assert.Equal(t, []string{"dev-1"}, h.ble.DisconnectCalls)

	// Removing an unknown device is a no-op success.
	assert.NoError(t, h.ctl.Remove("dev-1"))
}

func TestFaultIsolationBetweenDevices(t *testing.T) {
	h := newHarness(t)
	h.ble.ConnectErr = fmt.Errorf("peer unreachable")

	h.connect(t, "dev-1", 0)
	h.connect(t, "dev-2", 0)
	require.NoError(t, h.ctl.StartSession("dev-2"))

	// dev-2 keeps ranging while dev-1 burns through its retries.
	for offset := 100 * time.Millisecond; offset <= 40*time.Second; offset += 100 * time.Millisecond {
		h.emitSample("dev-2", 1.5, offset)
		h.stepAt(offset)
	}

	assert.Equal(t, conn.StateError, h.state(t, "dev-1"))
	assert.Equal(t, conn.StateRanging, h.state(t, "dev-2"))
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "dev-1", 0)
	require.NoError(t, h.ctl.StartSession("dev-1"))
	h.emitSample("dev-1", 2.5, 100*time.Millisecond)
	h.stepAt(100 * time.Millisecond)

	snap := h.ctl.Snapshot(h.start.Add(10 * time.Second))
	require.Len(t, snap.Devices, 1)
	assert.Equal(t, 8, snap.Capacity)

	d := snap.Devices[0]
	assert.Equal(t, "dev-1", d.ID)
	assert.Equal(t, "ranging", d.State)
	assert.NotEmpty(t, d.Quality)
	assert.Equal(t, 10*time.Second, d.ConnectedFor)

	// Transitions since startup: connect, session start, ranging.
	assert.NotEmpty(t, snap.Transitions)
}

func TestSnapshotCallbackAtInterval(t *testing.T) {
	h := newHarness(t)

	var got []status.Snapshot
	h.ctl.OnSnapshot(func(s status.Snapshot) { got = append(got, s) })

	// First step publishes immediately, then once per interval.
	h.stepAt(0)
	require.Len(t, got, 1)

	h.stepAt(time.Second)
	assert.Len(t, got, 1)

	h.stepAt(5 * time.Second)
	assert.Len(t, got, 2)
}
