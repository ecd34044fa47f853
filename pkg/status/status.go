// Package status exposes point-in-time snapshots of the controller for
// operators: per-slot state, quality, ages and the recent transition
// trace. Snapshots are plain data; collection happens on the control loop.
package status

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/srg/pilotd/internal/trace"
)

// DeviceStatus is the reportable view of one registry slot.
type DeviceStatus struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	State   string `json:"state"`
	Quality string `json:"quality,omitempty"`

	ConnectedFor time.Duration `json:"connected_for,omitempty"`
	SessionFor   time.Duration `json:"session_for,omitempty"`

	ReconnectAttempts int   `json:"reconnect_attempts"`
	DroppedSamples    int64 `json:"dropped_samples,omitempty"`
}

// Snapshot is the controller state at one instant.
type Snapshot struct {
	TakenAt  time.Time      `json:"taken_at"`
	Capacity int            `json:"capacity"`
	Devices  []DeviceStatus `json:"devices"`

	// Transitions are the state changes since the previous snapshot.
	Transitions []trace.Record `json:"transitions,omitempty"`
}

var (
	stateColors = map[string]*color.Color{
		"disconnected":   color.New(color.FgYellow),
		"connected":      color.New(color.FgCyan),
		"session_active": color.New(color.FgGreen),
		"ranging":        color.New(color.FgGreen, color.Bold),
		"error":          color.New(color.FgRed, color.Bold),
	}

	qualityColors = map[string]*color.Color{
		"poor":      color.New(color.FgRed),
		"fair":      color.New(color.FgYellow),
		"good":      color.New(color.FgGreen),
		"excellent": color.New(color.FgGreen, color.Bold),
	}
)

// Render writes a human-readable table of the snapshot. Colors are
// applied only when colored is true.
func (s Snapshot) Render(w io.Writer, colored bool) {
	prev := color.NoColor
	if !colored {
		color.NoColor = true
	}
	defer func() { color.NoColor = prev }()

	fmt.Fprintf(w, "Devices: %d/%d at %s\n", len(s.Devices), s.Capacity, s.TakenAt.Format(time.RFC3339))
	if len(s.Devices) == 0 {
		fmt.Fprintln(w, "  (no devices)")
		return
	}

	for _, d := range s.Devices {
		state := d.State
		if c, ok := stateColors[d.State]; ok {
			state = c.Sprint(d.State)
		}

		line := fmt.Sprintf("  %-18s %-14s", d.ID, state)
		if d.Quality != "" {
			q := d.Quality
			if c, ok := qualityColors[d.Quality]; ok {
				q = c.Sprint(d.Quality)
			}
			line += fmt.Sprintf(" quality=%s", q)
		}
		if d.ConnectedFor > 0 {
			line += fmt.Sprintf(" up=%s", d.ConnectedFor.Round(time.Second))
		}
		if d.SessionFor > 0 {
			line += fmt.Sprintf(" session=%s", d.SessionFor.Round(time.Second))
		}
		if d.ReconnectAttempts > 0 {
			line += fmt.Sprintf(" retries=%d", d.ReconnectAttempts)
		}
		if d.DroppedSamples > 0 {
			line += fmt.Sprintf(" dropped=%d", d.DroppedSamples)
		}
		fmt.Fprintln(w, line)
	}

	for _, t := range s.Transitions {
		fmt.Fprintf(w, "  %s %s: %s -> %s (%s)\n",
			t.At.Format("15:04:05.000"), t.Device, t.From, t.To, t.Event)
	}
}
