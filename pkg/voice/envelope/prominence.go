package envelope

// Prominence returns how far the envelope peak nearest freqHz stands above the
// higher of its two flanking valleys, searching windowHz on each side. Peaks too
// close to either edge to form both windows score 0.
func Prominence(env *Envelope, freqHz, windowHz float64) float64 {
	n := env.Len()
	if n < 4 {
		return 0
	}
	idx := env.NearestBin(freqHz)
	if idx <= 1 || idx >= n-2 {
		return 0
	}

	k := 1
	if bin := env.BinHz(); bin > 0 {
		k = max(1, int(windowHz/bin))
	}
	l0 := max(0, idx-k)
	r0 := min(n, idx+k+1)

	peak := env.MagnitudeDB[idx]
	valley := max(minOf(env.MagnitudeDB[l0:idx]), minOf(env.MagnitudeDB[idx+1:r0]))
	return peak - valley
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}
