package qc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
)

func frameWith(t, f0, f1, f2 float64) voice.Frame {
	f := voice.NewFrame(t)
	f.F0 = f0
	f.VoicingConfidence = 0.9
	f.Formants[0] = voice.Formant{FrequencyHz: f1, BandwidthHz: 90}
	f.Formants[1] = voice.Formant{FrequencyHz: f2, BandwidthHz: 110}
	return f
}

func f1Track(values ...float64) []voice.Frame {
	frames := make([]voice.Frame, len(values))
	for i, v := range values {
		frames[i] = frameWith(float64(i)*0.01, 150, v, 1200)
	}
	return frames
}

func TestJumpRejectionComparesToLastAccepted(t *testing.T) {
	frames := f1Track(700, 700, 1400, 702)

	gated := Run(DefaultConfig(), frames, logging.NewNopLogger())

	require.Len(t, gated, 4)
	assert.Equal(t, 700.0, gated[1].FormantHz(1))
	assert.True(t, math.IsNaN(gated[2].FormantHz(1)))
	assert.Equal(t, 702.0, gated[3].FormantHz(1))
	assert.Empty(t, gated[3].QCFlags)

	// input frames are untouched
	assert.Equal(t, 1400.0, frames[2].FormantHz(1))
	assert.Empty(t, frames[2].QCFlags)
}

func TestRunGatesInTimeOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FormantRanges.F1 = Range{Min: 150, Max: 2000}
	ordered := f1Track(700, 700, 1400, 702)
	shuffled := []voice.Frame{ordered[3], ordered[1], ordered[2], ordered[0]}

	gated := Run(cfg, shuffled, logging.NewNopLogger())

	require.Len(t, gated, 4)
	for i, f := range gated {
		assert.InDelta(t, float64(i)*0.01, f.Time, 1e-12)
	}
	assert.Equal(t, []string{FlagJumpF1}, gated[2].QCFlags)
	assert.True(t, math.IsNaN(gated[2].FormantHz(1)))
	assert.Equal(t, 702.0, gated[3].FormantHz(1))
	assert.Empty(t, gated[3].QCFlags)
	// the caller's slice keeps its order
	assert.InDelta(t, 0.03, shuffled[0].Time, 1e-12)
}

func TestJumpF1FlagsWithinRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FormantRanges.F1 = Range{Min: 150, Max: 2000}

	gated := Run(cfg, f1Track(700, 700, 1400, 702), logging.NewNopLogger())
	assert.Equal(t, []string{FlagJumpF1}, gated[2].QCFlags)
	assert.True(t, math.IsNaN(gated[2].FormantHz(1)))
	assert.Equal(t, 702.0, gated[3].FormantHz(1))

	gated = Run(DefaultConfig(), f1Track(700, 1100, 710), logging.NewNopLogger())
	assert.Equal(t, []string{FlagJumpF1}, gated[1].QCFlags)
	assert.Empty(t, gated[2].QCFlags)
}

func TestJumpF2(t *testing.T) {
	g := NewGate(DefaultConfig(), logging.NewNopLogger())
	g.Apply(frameWith(0, 150, 700, 1200))
	out := g.Apply(frameWith(0.01, 150, 700, 1800))

	assert.True(t, out.HasFlag(FlagJumpF2))
	assert.True(t, math.IsNaN(out.FormantHz(2)))
	_, prevF2 := g.LastAccepted()
	assert.Equal(t, 1200.0, prevF2)
}

func TestRangeRules(t *testing.T) {
	f := frameWith(0, 250, 100, 4000)
	f.VoicingConfidence = 0.4
	f.Formants[2] = voice.Formant{FrequencyHz: 2500, BandwidthHz: 2500}
	f.IntensityDB = 71

	out := NewGate(DefaultConfig(), logging.NewNopLogger()).Apply(f)

	assert.Equal(t, []string{
		FlagLowVoicingProb,
		"formant_out_of_range_f1",
		"formant_out_of_range_f2",
		"bandwidth_out_of_range_b3",
		FlagHighF0Risk,
	}, out.QCFlags)
	assert.Equal(t, "low_voicing_prob|formant_out_of_range_f1|formant_out_of_range_f2|bandwidth_out_of_range_b3|high_f0_risk", out.FlagString())

	assert.True(t, math.IsNaN(out.FormantHz(1)))
	assert.True(t, math.IsNaN(out.FormantHz(2)))
	assert.Equal(t, 2500.0, out.FormantHz(3))
	assert.True(t, math.IsNaN(out.BandwidthHz(3)))

	// f0 and intensity are never nulled
	assert.Equal(t, 250.0, out.F0)
	assert.Equal(t, 71.0, out.IntensityDB)
}

func TestRangeBoundsAreInclusive(t *testing.T) {
	out := NewGate(DefaultConfig(), logging.NewNopLogger()).Apply(frameWith(0, 200, 150, 3500))
	assert.Empty(t, out.QCFlags)
	assert.Equal(t, 150.0, out.FormantHz(1))
}

func TestOutOfRangeValueIsNotAccepted(t *testing.T) {
	g := NewGate(DefaultConfig(), logging.NewNopLogger())
	g.Apply(frameWith(0, 150, 700, 1200))
	g.Apply(frameWith(0.01, 150, 1300, 1200)) // out of range, nulled

	f1, _ := g.LastAccepted()
	assert.Equal(t, 700.0, f1)

	g.Reset()
	f1, f2 := g.LastAccepted()
	assert.True(t, math.IsNaN(f1))
	assert.True(t, math.IsNaN(f2))
}

func TestCountFlags(t *testing.T) {
	frames := []voice.Frame{
		{QCFlags: []string{FlagJumpF1, FlagHighF0Risk}},
		{QCFlags: []string{FlagHighF0Risk}},
		{},
	}
	assert.Equal(t, map[string]int{FlagJumpF1: 1, FlagHighF0Risk: 2}, CountFlags(frames))
}
