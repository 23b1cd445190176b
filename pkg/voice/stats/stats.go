// Package stats holds the robust statistics used by the aggregators. Order
// statistics reproduce numpy's default (linear) interpolation exactly so that
// reports regenerated from an archived ledger match the originals bit for bit.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Finite returns the finite values of xs in their original order
func Finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

// Sorted returns a sorted copy of the finite values of xs
func Sorted(xs []float64) []float64 {
	s := Finite(xs)
	sort.Float64s(s)
	return s
}

// Median of the finite values, NaN when there are none
func Median(xs []float64) float64 {
	s := Sorted(xs)
	n := len(s)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// Percentile returns the p-th percentile (0..100) of the finite values of xs
func Percentile(xs []float64, p float64) float64 {
	return PercentileSorted(Sorted(xs), p)
}

// PercentileSorted is Percentile over data that is already sorted and finite
func PercentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}

	index := (p / 100.0) * float64(n-1)
	lower := int(math.Floor(index))
	if lower >= n-1 {
		return sorted[n-1]
	}
	if lower < 0 {
		return sorted[0]
	}
	return lerp(sorted[lower], sorted[lower+1], index-float64(lower))
}

// lerp mirrors numpy's two-sided interpolation, which anchors on the nearer
// endpoint to keep the result monotone in t
func lerp(a, b, t float64) float64 {
	diff := b - a
	if t >= 0.5 {
		return b - diff*(1-t)
	}
	return a + diff*t
}

// MAD is the median absolute deviation of the finite values around their median
func MAD(xs []float64) float64 {
	s := Finite(xs)
	if len(s) == 0 {
		return math.NaN()
	}
	med := Median(s)
	dev := make([]float64, len(s))
	for i, x := range s {
		dev[i] = math.Abs(x - med)
	}
	return Median(dev)
}

// MADFilter drops values further than k·MAD from the median. Fewer than five
// values, or a zero or undefined MAD, return the input unchanged.
func MADFilter(xs []float64, k float64) []float64 {
	if len(xs) < 5 {
		return xs
	}
	med := Median(xs)
	mad := MAD(xs)
	if math.IsNaN(mad) || math.IsInf(mad, 0) || mad == 0 {
		return xs
	}

	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if math.Abs(x-med) <= k*mad {
			out = append(out, x)
		}
	}
	return out
}

// Mean of the finite values, NaN when there are none
func Mean(xs []float64) float64 {
	s := Finite(xs)
	if len(s) == 0 {
		return math.NaN()
	}
	return stat.Mean(s, nil)
}

// PopMeanStdDev returns the mean and population standard deviation of the finite values
func PopMeanStdDev(xs []float64) (mean, std float64) {
	s := Finite(xs)
	if len(s) == 0 {
		return math.NaN(), math.NaN()
	}
	return stat.PopMeanStdDev(s, nil)
}

// Range returns the min and max of the finite values
func Range(xs []float64) (lo, hi float64) {
	s := Finite(xs)
	if len(s) == 0 {
		return math.NaN(), math.NaN()
	}
	return floats.Min(s), floats.Max(s)
}

// Summary is the distribution digest reported for a metric track
type Summary struct {
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
	Min    float64 `json:"min" yaml:"min"`
	P10    float64 `json:"p10" yaml:"p10"`
	Median float64 `json:"median" yaml:"median"`
	P90    float64 `json:"p90" yaml:"p90"`
	Max    float64 `json:"max" yaml:"max"`
}

// Summarize digests the finite values of xs. An empty input yields Count 0 and NaN fields.
func Summarize(xs []float64) Summary {
	s := Sorted(xs)
	if len(s) == 0 {
		nan := math.NaN()
		return Summary{Mean: nan, StdDev: nan, Min: nan, P10: nan, Median: nan, P90: nan, Max: nan}
	}

	mean, std := stat.PopMeanStdDev(s, nil)
	return Summary{
		Count:  len(s),
		Mean:   mean,
		StdDev: std,
		Min:    s[0],
		P10:    PercentileSorted(s, 10),
		Median: Median(s),
		P90:    PercentileSorted(s, 90),
		Max:    s[len(s)-1],
	}
}
