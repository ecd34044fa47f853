package status

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/pilotd/internal/trace"
)

func sampleSnapshot() Snapshot {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return Snapshot{
		TakenAt:  at,
		Capacity: 8,
		Devices: []DeviceStatus{
			{
				ID:           "aa:bb:cc:dd:ee:01",
				Name:         "tag-1",
				State:        "ranging",
				Quality:      "good",
				ConnectedFor: 42 * time.Second,
				SessionFor:   10 * time.Second,
			},
			{
				ID:                "aa:bb:cc:dd:ee:02",
				State:             "error",
				ReconnectAttempts: 3,
			},
		},
		Transitions: []trace.Record{
			{At: at, Device: "aa:bb:cc:dd:ee:02", From: "disconnected", To: "error", Event: "fault"},
		},
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	sampleSnapshot().Render(&buf, false)
	out := buf.String()

	assert.Contains(t, out, "Devices: 2/8")
	assert.Contains(t, out, "aa:bb:cc:dd:ee:01")
	assert.Contains(t, out, "ranging")
	assert.Contains(t, out, "quality=good")
	assert.Contains(t, out, "up=42s")
	assert.Contains(t, out, "session=10s")
	assert.Contains(t, out, "retries=3")
	assert.Contains(t, out, "disconnected -> error (fault)")
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	Snapshot{TakenAt: time.Now(), Capacity: 8}.Render(&buf, false)
	assert.Contains(t, buf.String(), "(no devices)")
}

func TestSnapshotJSON(t *testing.T) {
	data, err := json.Marshal(sampleSnapshot())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(8), decoded["capacity"])

	devices, ok := decoded["devices"].([]any)
	require.True(t, ok)
	assert.Len(t, devices, 2)
}

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pilotd.status")
	snap := sampleSnapshot()

	require.NoError(t, snap.WriteFile(path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.True(t, got.TakenAt.Equal(snap.TakenAt))
	assert.Equal(t, snap.Capacity, got.Capacity)
	assert.Equal(t, snap.Devices, got.Devices)
	require.Len(t, got.Transitions, 1)
	assert.Equal(t, "fault", got.Transitions[0].Event)
}

func TestWriteFileReplacesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pilotd.status")

	first := sampleSnapshot()
	require.NoError(t, first.WriteFile(path))

	second := Snapshot{TakenAt: first.TakenAt.Add(5 * time.Second), Capacity: 8}
	require.NoError(t, second.WriteFile(path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.True(t, got.TakenAt.Equal(second.TakenAt))
	assert.Empty(t, got.Devices)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
