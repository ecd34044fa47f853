// Package trace keeps a bounded in-memory record of recent state
// transitions for diagnostics. The buffer overwrites its oldest entries
// under pressure so tracing can never stall or grow without bound.
package trace

import (
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// Record is one state transition as seen by the state machine.
// From, To and Event are the string forms of the corresponding enums so
// the package stays free of dependencies on the state machine itself.
type Record struct {
	At     time.Time `json:"at"`
	Device string    `json:"device"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Event  string    `json:"event"`
}

// Metrics provides lock-free counters for the collector.
// All fields use atomic operations for thread-safe access.
type Metrics struct {
	Recorded    int64
	Overwritten int64
	Drained     int64
}

// Collector accumulates transition records in an overlapped ring buffer.
// Producers never block: when the buffer is full the oldest records are
// dropped and counted in Metrics.Overwritten.
type Collector struct {
	buffer  mpmc.RichOverlappedRingBuffer[Record]
	metrics Metrics
}

// NewCollector creates a collector holding up to capacity records.
func NewCollector(capacity uint32) *Collector {
	if capacity == 0 {
		capacity = 64
	}
	return &Collector{
		buffer: mpmc.NewOverlappedRingBuffer[Record](capacity),
	}
}

// Record appends a transition, overwriting the oldest entry if full.
func (c *Collector) Record(rec Record) {
	overwrites, err := c.buffer.EnqueueM(rec)
	if err != nil {
		// Overlapped buffers do not reject writes; treat any error as a drop.
		atomic.AddInt64(&c.metrics.Overwritten, 1)
		return
	}
	atomic.AddInt64(&c.metrics.Overwritten, int64(overwrites))
	atomic.AddInt64(&c.metrics.Recorded, 1)
}

// Drain removes and returns up to max buffered records, oldest first.
func (c *Collector) Drain(max int) []Record {
	if max <= 0 {
		return nil
	}
	out := make([]Record, 0, max)
	for len(out) < max {
		rec, err := c.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, rec)
	}
	atomic.AddInt64(&c.metrics.Drained, int64(len(out)))
	return out
}

// GetMetrics returns a snapshot of the current counter values.
func (c *Collector) GetMetrics() Metrics {
	return Metrics{
		Recorded:    atomic.LoadInt64(&c.metrics.Recorded),
		Overwritten: atomic.LoadInt64(&c.metrics.Overwritten),
		Drained:     atomic.LoadInt64(&c.metrics.Drained),
	}
}
