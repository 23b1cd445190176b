package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 2.0, Median([]float64{math.NaN(), 1, 3, math.Inf(1)}))
	assert.True(t, math.IsNaN(Median(nil)))
}

func TestPercentileMatchesLinearInterpolation(t *testing.T) {
	xs := []float64{10, 20, 30, 40, 50}

	assert.Equal(t, 10.0, Percentile(xs, 0))
	assert.Equal(t, 50.0, Percentile(xs, 100))
	assert.Equal(t, 30.0, Percentile(xs, 50))
	assert.InDelta(t, 14.0, Percentile(xs, 10), 1e-12)
	assert.InDelta(t, 46.0, Percentile(xs, 90), 1e-12)
	assert.InDelta(t, 12.0, Percentile(xs, 5), 1e-12)
	assert.InDelta(t, 48.0, Percentile(xs, 95), 1e-12)

	assert.Equal(t, 7.0, Percentile([]float64{7}, 95))
	assert.True(t, math.IsNaN(Percentile(nil, 50)))
}

func TestPercentileIsMonotone(t *testing.T) {
	xs := []float64{60.1, 61.7, 59.9, 64.2, 62.0, 63.3, 58.8}
	prev := math.Inf(-1)
	for p := 0.0; p <= 100; p += 2.5 {
		v := Percentile(xs, p)
		assert.GreaterOrEqual(t, v, prev, "p=%v", p)
		prev = v
	}
}

func TestMADFilter(t *testing.T) {
	xs := []float64{60, 61, 62, 61, 60, 95}
	filtered := MADFilter(xs, 3)
	assert.NotContains(t, filtered, 95.0)
	assert.Len(t, filtered, 5)

	short := []float64{1, 2, 100}
	assert.Equal(t, short, MADFilter(short, 3))

	flat := []float64{5, 5, 5, 5, 5, 40}
	assert.Equal(t, flat, MADFilter(flat, 3), "zero MAD keeps everything")
}

func TestMAD(t *testing.T) {
	assert.Equal(t, 1.0, MAD([]float64{1, 2, 3, 4, 5}))
	assert.True(t, math.IsNaN(MAD(nil)))
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{100, 110, 120, math.NaN()})
	assert.Equal(t, 3, s.Count)
	assert.InDelta(t, 110.0, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(200.0/3.0), s.StdDev, 1e-12)
	assert.Equal(t, 110.0, s.Median)
	assert.Equal(t, 100.0, s.Min)
	assert.Equal(t, 120.0, s.Max)

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.Count)
	assert.True(t, math.IsNaN(empty.Median))
}

func TestRange(t *testing.T) {
	lo, hi := Range([]float64{3, math.NaN(), -1, 8})
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 8.0, hi)
}
