// Package ringchan provides a bounded channel with drop-oldest overflow,
// used to queue radio callbacks for the control loop. Producers (BLE/UWB
// callbacks) must never block; when the loop falls behind, the oldest
// undrained events are discarded and counted.
package ringchan

import "sync/atomic"

// Ring is a bounded channel-like buffer with overwrite-oldest semantics.
// Writers always succeed; readers drain it like a normal channel.
type Ring[T any] struct {
	ch      chan T
	metrics Metrics
}

// New creates a Ring with the given capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// Send inserts an item, discarding the oldest buffered item when full.
// It never blocks indefinitely. Returns true if an item was dropped.
func (r *Ring[T]) Send(v T) bool {
	dropped := false

	select {
	case r.ch <- v:
		r.metrics.addWritten(1)
	default:
		select {
		case <-r.ch: // drop oldest
			r.metrics.addOverwritten(1)
			dropped = true
		default:
		}
		r.ch <- v
		r.metrics.addWritten(1)
	}

	return dropped
}

// TryReceive attempts a non-blocking receive.
// Returns (zero, false) if no value is ready.
func (r *Ring[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-r.ch:
		if ok {
			r.metrics.addProcessed(1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// C returns the underlying receive-only channel. Reads through C bypass
// the Processed metric.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int {
	return cap(r.ch)
}

// Close closes the buffer. Send panics after Close.
func (r *Ring[T]) Close() {
	close(r.ch)
}

// GetMetrics returns a snapshot of the current counters.
func (r *Ring[T]) GetMetrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&r.metrics.Written),
		Overwritten: atomic.LoadInt64(&r.metrics.Overwritten),
		Processed:   atomic.LoadInt64(&r.metrics.Processed),
	}
}

// Metrics tracks ring activity with lock-free counters.
type Metrics struct {
	Written     int64
	Overwritten int64
	Processed   int64
}

func (m *Metrics) addWritten(n int) {
	atomic.AddInt64(&m.Written, int64(n))
}

func (m *Metrics) addOverwritten(n int) {
	atomic.AddInt64(&m.Overwritten, int64(n))
}

func (m *Metrics) addProcessed(n int) {
	atomic.AddInt64(&m.Processed, int64(n))
}
