package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow_RingOverwritesOldest(t *testing.T) {
	t.Parallel()

	w := newWindow(3)

	for _, v := range []float64{1, 2, 3, 4, 5} {
		w.push(v)
	}

	assert.Equal(t, 3, w.len())
	assert.Equal(t, []float64{3, 4, 5}, w.values())
}

func TestStdev_SampleDeviation(t *testing.T) {
	t.Parallel()

	assert.Zero(t, stdev([]float64{5}))
	assert.InDelta(t, 2.138, stdev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 0.001)
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	t.Parallel()

	xs := []float64{1, 2, 3, 4}

	assert.InDelta(t, 2.5, percentile(xs, 50), 1e-9)
	assert.InDelta(t, 1.75, percentile(xs, 25), 1e-9)
	assert.InDelta(t, 3.25, percentile(xs, 75), 1e-9)
	assert.InDelta(t, 4, percentile(xs, 100), 1e-9)
	assert.InDelta(t, 2.5, median(xs), 1e-9)
}

func TestOLSSlope(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.0, olsSlope([]float64{1, 3, 5, 7, 9}), 1e-9)
	assert.Zero(t, olsSlope([]float64{4, 4, 4}))
	assert.Zero(t, olsSlope(nil))
}

func TestSpan_PythonStyleSlicing(t *testing.T) {
	t.Parallel()

	xs := []float64{0, 1, 2, 3, 4, 5}

	assert.Equal(t, []float64{3, 4, 5}, span(xs, -3, len(xs)))
	assert.Equal(t, []float64{0, 1, 2}, span(xs, -6, -3))
	assert.Empty(t, span(xs, -10, -6))
	assert.Empty(t, span(xs, 4, 2))
}

func TestRoundTo(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 83.33, round2(83.3333), 1e-9)
	assert.InDelta(t, 0.952, round3(0.9518), 1e-9)
	assert.InDelta(t, 0.0012, round4(0.00123), 1e-9)
}
