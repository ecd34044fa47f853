package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/pilotd/internal/conn"
)

func fill(e *Estimator, distances []float64) conn.ConnectionQuality {
	var q conn.ConnectionQuality
	for _, d := range distances {
		q = e.Observe(d)
	}
	return q
}

func steady(n int, base float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base
	}
	return out
}

func TestSingleSampleIsPoor(t *testing.T) {
	e := NewEstimator(16)
	assert.Equal(t, conn.QualityPoor, e.Observe(2.0))
}

func TestSteadyFullWindowIsExcellent(t *testing.T) {
	e := NewEstimator(16)
	q := fill(e, steady(16, 3.5))
	assert.Equal(t, conn.QualityExcellent, q)
}

func TestWarmupIsCappedAtFair(t *testing.T) {
	e := NewEstimator(16)
	// Perfectly steady, but only 4 of 16 samples seen.
	q := fill(e, steady(4, 3.5))
	assert.Equal(t, conn.QualityFair, q)
}

func TestNoisyWindowGradesLower(t *testing.T) {
	steadyQ := fill(NewEstimator(16), steady(16, 5.0))

	noisy := make([]float64, 16)
	for i := range noisy {
		noisy[i] = 5.0
		if i%2 == 0 {
			noisy[i] = 8.0 // 60% swings between samples
		}
	}
	noisyQ := fill(NewEstimator(16), noisy)

	assert.Equal(t, conn.QualityPoor, noisyQ)
	assert.Greater(t, int(steadyQ), int(noisyQ))
}

func TestQualityMonotonicInJitter(t *testing.T) {
	// Increasing relative jitter must never raise the tier.
	prev := conn.QualityExcellent
	for _, swing := range []float64{0.0, 0.1, 0.3, 1.0, 3.0} {
		samples := make([]float64, 16)
		for i := range samples {
			samples[i] = 10.0
			if i%2 == 0 {
				samples[i] = 10.0 + swing
			}
		}
		q := fill(NewEstimator(16), samples)
		assert.LessOrEqual(t, int(q), int(prev), "swing %v graded %s above previous %s", swing, q, prev)
		prev = q
	}
}

func TestWindowSlides(t *testing.T) {
	e := NewEstimator(4)
	fill(e, []float64{1, 50, 1, 50})
	// After enough steady samples the noisy past has slid out.
	q := fill(e, steady(8, 5.0))
	assert.Equal(t, conn.QualityExcellent, q)
}

func TestResetClearsWindow(t *testing.T) {
	e := NewEstimator(16)
	fill(e, steady(16, 3.0))
	e.Reset()
	assert.Equal(t, 0, e.Len())
	assert.Equal(t, conn.QualityPoor, e.Observe(3.0))
}
