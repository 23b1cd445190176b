package engine

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/RyanBlaney/voice-metrics/internal/observe"
	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/envelope"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/qc"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/scoring"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/window"
)

// EngineTestSuite runs the pipeline over synthetic recordings
type EngineTestSuite struct {
	suite.Suite
	logger  logging.Logger
	reader  *sdkmetric.ManualReader
	metrics *observe.Metrics
	engine  *Engine
}

func (s *EngineTestSuite) SetupTest() {
	s.logger = logging.NewNopLogger()

	s.reader = sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(s.reader))
	s.T().Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	var err error
	s.metrics, err = observe.NewMetrics(mp)
	s.Require().NoError(err)

	s.engine, err = NewEngine(s.config(false))
	s.Require().NoError(err)
}

func (s *EngineTestSuite) config(pregated bool) *EngineConfig {
	return &EngineConfig{
		QC:       qc.DefaultConfig(),
		Envelope: envelope.DefaultConfig(),
		Ordering: scoring.DefaultOrderingRules(),
		Window:   window.DefaultConfig(),
		Pregated: pregated,
		Logger:   s.logger,
		Metrics:  s.metrics,
	}
}

// steadyVowel returns n voiced frames 10 ms apart with fixed formants
func steadyVowel(key string, n int) *voice.Recording {
	rec := &voice.Recording{Key: key, SampleRate: 16000, TimeStep: 0.01}
	for i := 0; i < n; i++ {
		f := voice.NewFrame(float64(i) * 0.01)
		f.F0 = 160
		f.VoicingConfidence = 0.9
		f.HNRDB = 15
		f.IntensityDB = 65
		f.SPLDB = 65
		f.Formants[0] = voice.Formant{FrequencyHz: 700, BandwidthHz: 90}
		f.Formants[1] = voice.Formant{FrequencyHz: 1200, BandwidthHz: 110}
		f.Formants[2] = voice.Formant{FrequencyHz: 2600, BandwidthHz: 150}
		rec.Frames = append(rec.Frames, f)
	}
	return rec
}

func (s *EngineTestSuite) TestSteadyVowelSummary() {
	res := s.engine.Analyze(context.Background(), steadyVowel("s/2/2_1.wav", 50))

	s.Equal("2_1.wav", res.File)
	s.Equal(voice.TaskVowelMPT, res.Task)
	s.Equal(50, res.VoicedCount)
	s.Equal(0, res.EnvelopeSegments)

	sum, ok := res.Summary.Get()
	s.Require().True(ok)
	s.Equal(700.0, sum.F1.Float())
	s.Equal(1200.0, sum.F2.Float())
	s.Equal(160.0, sum.F0.Float())
	s.False(sum.Fallback)
	s.False(sum.Unstable)
	// neutral prominence without audio: 0.6*0.5 + 0.4*1
	s.InDelta(0.7, sum.Confidence1, 1e-12)
	s.True(sum.F1Status.Available)
}

func (s *EngineTestSuite) TestUnvoicedRecordingIsUnavailable() {
	rec := steadyVowel("s/5/5_1.wav", 20)
	for i := range rec.Frames {
		rec.Frames[i].F0 = voice.NaN()
	}
	res := s.engine.Analyze(context.Background(), rec)

	s.False(res.Summary.IsAvailable())
	s.Equal(voice.ReasonNoVoicedFrames, res.Summary.Reason())
	s.Equal(0, res.VoicedCount)
	s.Len(res.Gated, 20)
}

func (s *EngineTestSuite) TestGateNullsImplausibleValues() {
	rec := steadyVowel("s/4/4_1.wav", 30)
	rec.Frames[5].Formants[1].FrequencyHz = 4000
	rec.Frames[6].Formants[0].FrequencyHz = 1100

	res := s.engine.Analyze(context.Background(), rec)
	s.Equal(1, res.FlagCounts[qc.FormantOutOfRange(2)])
	s.Equal(1, res.FlagCounts[qc.FlagJumpF1])
	s.True(math.IsNaN(res.Gated[5].FormantHz(2)))
	s.True(math.IsNaN(res.Gated[6].FormantHz(1)))
	// the caller's frames are untouched
	s.Equal(4000.0, rec.Frames[5].FormantHz(2))
}

func (s *EngineTestSuite) TestOrderingFlagsAreCounted() {
	rec := steadyVowel("s/4/4_2.wav", 30)
	for i := range rec.Frames {
		rec.Frames[i].Formants[1].FrequencyHz = 800
	}
	res := s.engine.Analyze(context.Background(), rec)
	s.Equal(30, res.FlagCounts[scoring.FlagOrderF1F2])

	sum, ok := res.Summary.Get()
	s.Require().True(ok)
	s.False(sum.F1Status.Available)
	s.Equal(voice.ReasonLowProminence, sum.F1Status.Reason)
}

func (s *EngineTestSuite) TestPregatedKeepsArchivedFrames() {
	e, err := NewEngine(s.config(true))
	s.Require().NoError(err)

	rec := steadyVowel("s/2/2_1.wav", 30)
	rec.Frames[3].QCFlags = []string{qc.FlagHighF0Risk}
	rec.Frames[4].Formants[0].FrequencyHz = 1400

	res := e.Analyze(context.Background(), rec)
	s.Equal(1400.0, res.Gated[4].FormantHz(1))
	s.Equal(1, res.FlagCounts[qc.FlagHighF0Risk])
	s.Zero(res.FlagCounts[qc.FormantOutOfRange(1)])
}

func (s *EngineTestSuite) TestOutOfOrderFramesMatchSortedAnalysis() {
	rec := steadyVowel("s/2/2_1.wav", 30)
	rec.Frames[10].Formants[0].FrequencyHz = 1100

	shuffled := *rec
	shuffled.Frames = make([]voice.Frame, len(rec.Frames))
	for i, f := range rec.Frames {
		shuffled.Frames[len(rec.Frames)-1-i] = f
	}

	want := s.engine.Analyze(context.Background(), rec)
	got := s.engine.Analyze(context.Background(), &shuffled)

	s.Equal(1, got.FlagCounts[qc.FlagJumpF1])
	s.True(math.IsNaN(got.Gated[10].FormantHz(1)))
	s.Equal(mustMarshal(s.T(), want.Gated), mustMarshal(s.T(), got.Gated))
	s.Equal(mustMarshal(s.T(), want.Summary), mustMarshal(s.T(), got.Summary))

	pregated, err := NewEngine(s.config(true))
	s.Require().NoError(err)
	res := pregated.Analyze(context.Background(), &shuffled)
	for i := 1; i < len(res.Gated); i++ {
		s.Less(res.Gated[i-1].Time, res.Gated[i].Time)
	}
}

func (s *EngineTestSuite) TestSamplesProduceSegmentEnvelopes() {
	rec := steadyVowel("s/2/2_1.wav", 50)
	n := int(0.5 * rec.SampleRate)
	rec.Samples = make([]float64, n)
	for i := range rec.Samples {
		t := float64(i) / rec.SampleRate
		for h := 1; h <= 20; h++ {
			rec.Samples[i] += math.Sin(2*math.Pi*160*float64(h)*t) / float64(h)
		}
	}

	res := s.engine.Analyze(context.Background(), rec)
	s.Equal(1, res.EnvelopeSegments)
	s.True(res.Summary.IsAvailable())
	for _, f := range res.Gated {
		s.Len(f.ProminenceDB, voice.NumFormants)
	}
}

func (s *EngineTestSuite) TestArchivedProminenceReproducesScores() {
	rec := steadyVowel("s/2/2_1.wav", 50)
	rec.Samples = make([]float64, int(0.5*rec.SampleRate))
	for i := range rec.Samples {
		t := float64(i) / rec.SampleRate
		for h := 1; h <= 20; h++ {
			rec.Samples[i] += math.Sin(2*math.Pi*160*float64(h)*t) / float64(h)
		}
	}
	original := s.engine.Analyze(context.Background(), rec)
	s.Require().Equal(1, original.EnvelopeSegments)

	// the archive keeps gated frames but no audio
	archived := &voice.Recording{Key: rec.Key, SampleRate: rec.SampleRate, TimeStep: rec.TimeStep, Frames: original.Gated}
	pregated, err := NewEngine(s.config(true))
	s.Require().NoError(err)
	replayed := pregated.Analyze(context.Background(), archived)

	s.Equal(0, replayed.EnvelopeSegments)
	s.Require().Len(replayed.Scored, len(original.Scored))
	for i := range original.Scored {
		want, got := original.Scored[i].Scores, replayed.Scored[i].Scores
		for n := 1; n <= voice.NumFormants; n++ {
			s.Equal(want.Confidence(n), got.Confidence(n), "frame %d slot %d", i, n)
			s.Equal(want.Slots[n-1].ProminenceDB, got.Slots[n-1].ProminenceDB, "frame %d slot %d", i, n)
		}
	}
	s.Equal(mustMarshal(s.T(), original.Summary), mustMarshal(s.T(), replayed.Summary))
}

func (s *EngineTestSuite) TestShortSegmentsSkipTheEnvelope() {
	rec := steadyVowel("s/2/2_1.wav", 20)
	// unvoiced gaps leave segments of five frames, 50 ms each
	for i := 5; i < 20; i += 6 {
		rec.Frames[i].F0 = voice.NaN()
	}
	rec.Samples = make([]float64, int(0.2*rec.SampleRate))
	for i := range rec.Samples {
		rec.Samples[i] = math.Sin(float64(i))
	}
	res := s.engine.Analyze(context.Background(), rec)
	s.Equal(0, res.EnvelopeSegments)
}

func (s *EngineTestSuite) TestMetricsAreRecorded() {
	s.engine.Analyze(context.Background(), steadyVowel("s/2/2_1.wav", 40))

	var rm metricdata.ResourceMetrics
	s.Require().NoError(s.reader.Collect(context.Background(), &rm))

	var frames int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "voice.frames.processed" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			s.Require().True(ok)
			for _, dp := range sum.DataPoints {
				frames += dp.Value
			}
		}
	}
	s.Equal(int64(40), frames)
}

func (s *EngineTestSuite) TestConcurrentAnalysisIsDeterministic() {
	rec := steadyVowel("s/2/2_1.wav", 60)
	for i := range rec.Frames {
		rec.Frames[i].Formants[0].FrequencyHz = 680 + float64(i%9)*5
		rec.Frames[i].Formants[1].BandwidthHz = 100 + float64(i%4)*60
	}

	want, err := json.Marshal(s.engine.Analyze(context.Background(), rec))
	s.Require().NoError(err)

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = json.Marshal(s.engine.Analyze(context.Background(), rec))
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		s.JSONEq(string(want), string(got))
	}
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func TestUnknownStrategyIsRejectedByRegistry(t *testing.T) {
	_, err := scoring.NewStrategy("periodicity", 150)
	require.Error(t, err)

	strategy, err := scoring.NewStrategy(scoring.StrategyLegacyMidpoint, 150)
	require.NoError(t, err)
	e, err := NewEngine(&EngineConfig{
		QC:       qc.DefaultConfig(),
		Envelope: envelope.DefaultConfig(),
		Ordering: scoring.DefaultOrderingRules(),
		Window:   window.DefaultConfig(),
		Strategy: strategy,
		Logger:   logging.NewNopLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, scoring.StrategyLegacyMidpoint, e.Strategy())
}

func mustMarshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
