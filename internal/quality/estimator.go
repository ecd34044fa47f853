// Package quality grades the stability of a UWB ranging exchange.
package quality

import (
	"math"

	"github.com/srg/pilotd/internal/conn"
)

// DefaultWindowSize is the number of recent measurements considered.
// At the 100ms ranging cadence this covers roughly the last 1.6 seconds.
const DefaultWindowSize = 16

// Jitter thresholds on the mean relative step between successive
// measurements. Lower jitter means a steadier exchange and a higher tier.
const (
	excellentJitter = 0.02
	goodJitter      = 0.05
	fairJitter      = 0.15
)

// Estimator derives a ConnectionQuality tier from a rolling window of
// accepted distance measurements. Out-of-range samples never reach it.
// The tier is monotonic in measurement consistency: steadier distances
// always grade equal or better.
type Estimator struct {
	window []float64
	size   int
}

// NewEstimator creates an estimator over a rolling window of size samples.
func NewEstimator(size int) *Estimator {
	if size < 2 {
		size = DefaultWindowSize
	}
	return &Estimator{
		window: make([]float64, 0, size),
		size:   size,
	}
}

// Observe records an accepted measurement and returns the recomputed tier.
func (e *Estimator) Observe(distance float64) conn.ConnectionQuality {
	if len(e.window) == e.size {
		copy(e.window, e.window[1:])
		e.window = e.window[:e.size-1]
	}
	e.window = append(e.window, distance)
	return e.grade()
}

// Reset clears the window. Called when the device leaves the ranging state
// so stale measurements cannot inflate the next session's grade.
func (e *Estimator) Reset() {
	e.window = e.window[:0]
}

// Len returns the number of samples currently in the window.
func (e *Estimator) Len() int {
	return len(e.window)
}

// grade maps window contents to a tier. A single sample grades Poor; a
// window still warming up (under half full) is capped at Fair regardless
// of how steady it looks.
func (e *Estimator) grade() conn.ConnectionQuality {
	if len(e.window) < 2 {
		return conn.QualityPoor
	}

	var sum, stepSum float64
	for i, d := range e.window {
		sum += d
		if i > 0 {
			stepSum += math.Abs(d - e.window[i-1])
		}
	}
	mean := sum / float64(len(e.window))
	if mean <= 0 {
		return conn.QualityPoor
	}
	jitter := stepSum / float64(len(e.window)-1) / mean

	var q conn.ConnectionQuality
	switch {
	case jitter <= excellentJitter:
		q = conn.QualityExcellent
	case jitter <= goodJitter:
		q = conn.QualityGood
	case jitter <= fairJitter:
		q = conn.QualityFair
	default:
		q = conn.QualityPoor
	}

	if len(e.window) < e.size/2 && q > conn.QualityFair {
		q = conn.QualityFair
	}
	return q
}
