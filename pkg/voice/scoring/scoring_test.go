package scoring

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/envelope"
)

// peakEnvelope builds a 10 Hz grid with triangular peaks of heightDB at each frequency
func peakEnvelope(heightDB float64, peaks ...float64) *envelope.Envelope {
	env := &envelope.Envelope{}
	for f := 0.0; f <= 5000; f += 10 {
		v := 0.0
		for _, p := range peaks {
			if d := math.Abs(f - p); d < 100 {
				v = math.Max(v, heightDB*(1-d/100))
			}
		}
		env.FrequencyHz = append(env.FrequencyHz, f)
		env.MagnitudeDB = append(env.MagnitudeDB, v)
	}
	return env
}

func TestBandwidthScoreBoundaries(t *testing.T) {
	assert.Equal(t, 1.0, BandwidthScore(80))
	assert.Equal(t, 1.0, BandwidthScore(600))
	assert.Equal(t, 1.0, BandwidthScore(340))

	// strictly decreasing away from the plausible range until it reaches zero
	prev := 1.0
	for b := 610.0; b <= 1100; b += 10 {
		cur := BandwidthScore(b)
		assert.Less(t, cur, prev, "b=%v", b)
		prev = cur
	}
	prev = 1.0
	for b := 70.0; b >= 0; b -= 10 {
		cur := BandwidthScore(b)
		assert.Less(t, cur, prev, "b=%v", b)
		prev = cur
	}

	assert.Equal(t, 0.0, BandwidthScore(1100))
	assert.Equal(t, 0.0, BandwidthScore(340+840))
	assert.Equal(t, 0.0, BandwidthScore(5000))
	assert.InDelta(t, 0.8, BandwidthScore(700), 1e-12)
}

func TestMidpointBandwidthScore(t *testing.T) {
	assert.Equal(t, 1.0, MidpointBandwidthScore(600))
	assert.InDelta(t, 1-(700.0-340)/500, MidpointBandwidthScore(700), 1e-12)
	assert.Equal(t, 0.0, MidpointBandwidthScore(900))
}

func TestProminenceScoreRamp(t *testing.T) {
	assert.Equal(t, 0.0, ProminenceScore(0))
	assert.Equal(t, 0.0, ProminenceScore(2.999))
	assert.Equal(t, 0.0, ProminenceScore(3))
	assert.InDelta(t, 0.5, ProminenceScore(4.5), 1e-12)
	assert.InDelta(t, 1.0/3.0, ProminenceScore(4), 1e-12)
	assert.Equal(t, 1.0, ProminenceScore(6))
	assert.Equal(t, 1.0, ProminenceScore(12))

	// linear between 3 and 6 dB
	a, b, c := ProminenceScore(3.5), ProminenceScore(4.5), ProminenceScore(5.5)
	assert.InDelta(t, b-a, c-b, 1e-12)
}

func TestHarmonicProximityPenalty(t *testing.T) {
	assert.Equal(t, HarmonicPenalty, HarmonicProximityPenalty(1200, 300, 4))
	assert.Equal(t, HarmonicPenalty, HarmonicProximityPenalty(1210, 300, 4), "0.8% away")
	assert.Equal(t, 0.0, HarmonicProximityPenalty(1200, 300, 6), "prominent peaks are kept")
	assert.Equal(t, 0.0, HarmonicProximityPenalty(1050, 300, 4), "between harmonics")
	assert.Equal(t, 0.0, HarmonicProximityPenalty(1200, math.NaN(), 4))
	assert.Equal(t, 0.0, HarmonicProximityPenalty(1200, 0, 4))
}

func TestProminenceStrategyComposite(t *testing.T) {
	s, err := NewStrategy(StrategyProminence, 150)
	require.NoError(t, err)

	// no envelope: neutral prominence, 0.6*0.5 + 0.4*1
	got := s.Score(Candidate{Slot: 1, FrequencyHz: 700, BandwidthHz: 90, F0Hz: 150}, nil)
	assert.InDelta(t, 0.7, got.Confidence, 1e-12)
	assert.Equal(t, 0.0, got.ProminenceDB)

	// weak peak on a harmonic: 0.6*0 + 0.4*1 - 0.2
	env := peakEnvelope(2, 1200)
	got = s.Score(Candidate{Slot: 2, FrequencyHz: 1200, BandwidthHz: 110, F0Hz: 300}, env)
	assert.InDelta(t, 0.2, got.Confidence, 1e-12)
	assert.Equal(t, HarmonicPenalty, got.Penalty)

	// clamped at zero
	got = s.Score(Candidate{Slot: 2, FrequencyHz: 1200, BandwidthHz: 3000, F0Hz: 300}, env)
	assert.Equal(t, 0.0, got.Confidence)
}

func TestHNRWeightedStrategy(t *testing.T) {
	s, err := NewStrategy(StrategyHNRWeighted, 150)
	require.NoError(t, err)
	env := peakEnvelope(8, 700)

	high := s.Score(Candidate{Slot: 1, FrequencyHz: 700, BandwidthHz: 90, F0Hz: 130, HNRDB: 25}, env)
	low := s.Score(Candidate{Slot: 1, FrequencyHz: 700, BandwidthHz: 90, F0Hz: 130, HNRDB: 5}, env)
	assert.InDelta(t, 1.0, high.Confidence, 1e-12)
	assert.InDelta(t, 0.7, low.Confidence, 1e-12)
	assert.Equal(t, StrategyHNRWeighted, s.Name())
}

func TestUnknownStrategyIsConfigurationError(t *testing.T) {
	_, err := NewStrategy("periodicity", 150)
	require.Error(t, err)
	assert.True(t, errors.Is(err, voice.ErrConfiguration))
	assert.Equal(t, []string{StrategyHNRWeighted, StrategyLegacyMidpoint, StrategyProminence}, StrategyNames())
}

func syntheticFrame(t float64) voice.Frame {
	f := voice.NewFrame(t)
	f.F0 = 150
	f.Formants[0] = voice.Formant{FrequencyHz: 700, BandwidthHz: 90}
	f.Formants[1] = voice.Formant{FrequencyHz: 1200, BandwidthHz: 110}
	return f
}

func TestScoreFrameSyntheticVowel(t *testing.T) {
	strategy, err := NewStrategy(DefaultStrategy, 150)
	require.NoError(t, err)
	scorer := NewScorer(strategy, logging.NewNopLogger())
	env := peakEnvelope(8, 700, 1200)

	fs := scorer.ScoreFrame(syntheticFrame(0.1), env)

	require.True(t, fs.Present[0])
	require.True(t, fs.Present[1])
	assert.False(t, fs.Present[2])
	assert.InDelta(t, 8.0, fs.Slots[0].ProminenceDB, 1e-9)
	assert.InDelta(t, 8.0, fs.Slots[1].ProminenceDB, 1e-9)
	assert.InDelta(t, 1.0, fs.Confidence(1), 1e-12)
	assert.InDelta(t, 1.0, fs.Confidence(2), 1e-12)
	assert.Equal(t, 0.0, fs.Confidence(3))
}

func TestRecordedProminenceStandsInForEnvelope(t *testing.T) {
	strategy, err := NewStrategy(DefaultStrategy, 150)
	require.NoError(t, err)
	scorer := NewScorer(strategy, logging.NewNopLogger())
	env := peakEnvelope(4.5, 700, 1200)

	measured := scorer.ScoreFrame(syntheticFrame(0.1), env)

	recorded := syntheticFrame(0.1)
	recorded.ProminenceDB = measured.ProminenceDB()
	replayed := scorer.ScoreFrame(recorded, nil)

	for n := 1; n <= 2; n++ {
		assert.Equal(t, measured.Slots[n-1].ProminenceDB, replayed.Slots[n-1].ProminenceDB)
		assert.Equal(t, measured.Confidence(n), replayed.Confidence(n))
	}
	assert.Less(t, measured.Confidence(1), 0.7)
	assert.True(t, math.IsNaN(measured.ProminenceDB()[2]))

	// an envelope always wins over the recorded value
	recorded.ProminenceDB = []float64{20, 20, voice.NaN()}
	withEnv := scorer.ScoreFrame(recorded, env)
	assert.Equal(t, measured.Confidence(1), withEnv.Confidence(1))

	// without either the prominence is neutral
	neutral := scorer.ScoreFrame(syntheticFrame(0.1), nil)
	assert.InDelta(t, 0.7, neutral.Confidence(1), 1e-12)
}

func TestScoringIsDeterministic(t *testing.T) {
	strategy, err := NewStrategy(DefaultStrategy, 150)
	require.NoError(t, err)
	scorer := NewScorer(strategy, logging.NewNopLogger())
	env := peakEnvelope(5, 650, 1150)

	first := scorer.ScoreFrame(syntheticFrame(0.2), env)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, scorer.ScoreFrame(syntheticFrame(0.2), env))
	}
}

func scoredFrame(f1, b1, f2, b2, f3, b3 float64) FrameScores {
	fs := FrameScores{}
	vals := [][2]float64{{f1, b1}, {f2, b2}, {f3, b3}}
	for i, v := range vals {
		if math.IsNaN(v[0]) {
			continue
		}
		fs.Slots[i] = Scored{
			Candidate:  Candidate{Slot: i + 1, FrequencyHz: v[0], BandwidthHz: v[1]},
			Confidence: 0.9,
		}
		fs.Present[i] = true
	}
	return fs
}

func TestOrderingPenalizesCrowdedF1F2(t *testing.T) {
	v := NewValidator(DefaultOrderingRules(), logging.NewNopLogger())

	for _, gap := range []float64{149.9, 100, 0, -50} {
		fs := scoredFrame(700, 90, 700+gap, 110, math.NaN(), 0)
		flags := v.Apply(&fs)
		assert.Contains(t, flags, FlagOrderF1F2)
		assert.LessOrEqual(t, fs.Confidence(1), 0.2*0.9+1e-12, "gap=%v", gap)
		assert.LessOrEqual(t, fs.Confidence(2), 0.2*0.9+1e-12, "gap=%v", gap)
	}

	ok := scoredFrame(700, 90, 850, 110, math.NaN(), 0)
	assert.Empty(t, v.Apply(&ok))
	assert.Equal(t, 0.9, ok.Confidence(1))
}

func TestOrderingPenalizesF2F3(t *testing.T) {
	v := NewValidator(DefaultOrderingRules(), logging.NewNopLogger())
	fs := scoredFrame(500, 90, 1500, 110, 1650, 150)

	flags := v.Apply(&fs)
	assert.Equal(t, []string{FlagOrderF2F3}, flags)
	assert.Equal(t, 0.9, fs.Confidence(1))
	assert.InDelta(t, 0.18, fs.Confidence(2), 1e-12)
	assert.InDelta(t, 0.18, fs.Confidence(3), 1e-12)
}

func TestOrderingPenalizesWideBandwidth(t *testing.T) {
	v := NewValidator(DefaultOrderingRules(), logging.NewNopLogger())

	fs := scoredFrame(500, 750, 1500, 110, 2500, 150)
	assert.Equal(t, []string{FlagWideBandwidth}, v.Apply(&fs))
	assert.InDelta(t, 0.18, fs.Confidence(1), 1e-12)
	assert.InDelta(t, 0.18, fs.Confidence(2), 1e-12)
	assert.Equal(t, 0.9, fs.Confidence(3))

	wide3 := scoredFrame(500, 90, 1500, 110, 2500, 900)
	assert.Equal(t, []string{FlagWideBandwidth}, v.Apply(&wide3))
	assert.Equal(t, 0.9, wide3.Confidence(1))
	assert.InDelta(t, 0.18, wide3.Confidence(3), 1e-12)
}
