package anchor

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
)

// steadyRecording returns n frames 10 ms apart with fixed formants and an SPL ramp
func steadyRecording(key string, task voice.Task, n int) *voice.Recording {
	rec := &voice.Recording{Key: key, Task: task, SampleRate: 16000, TimeStep: 0.01}
	for i := 0; i < n; i++ {
		f := voice.NewFrame(float64(i) * 0.01)
		f.F0 = 200
		f.VoicingConfidence = 0.9
		f.Formants[0] = voice.Formant{FrequencyHz: 700, BandwidthHz: 90}
		f.Formants[1] = voice.Formant{FrequencyHz: 1200, BandwidthHz: 110}
		f.Formants[2] = voice.Formant{FrequencyHz: 2600, BandwidthHz: 180}
		f.SPLDB = 60 + float64(i%5)
		rec.Frames = append(rec.Frames, f)
	}
	return rec
}

func newTestExtractor() *Extractor {
	return NewExtractor(DefaultConfig(), logging.NewNopLogger())
}

func TestExtractUsesMiddleHalf(t *testing.T) {
	rec := steadyRecording("s1/4/4_1.wav", voice.TaskSoftA, 41)
	// onset and offset frames fall outside the middle half and must not move the medians
	for i := 0; i < 5; i++ {
		rec.Frames[i].Formants[0].FrequencyHz = 1100
		rec.Frames[40-i].Formants[0].FrequencyHz = 1100
	}

	a, err := newTestExtractor().Extract(voice.TaskSoftA, []*voice.Recording{rec}, SelectFirst)
	require.NoError(t, err)

	// span 0.4 s, middle half [0.1, 0.3]
	assert.Equal(t, 21, a.FrameCount)
	assert.Equal(t, 700.0, a.F1.Float())
	assert.Equal(t, 1200.0, a.F2.Float())
	assert.Equal(t, 200.0, a.F0.Float())
	assert.Equal(t, 62.0, a.SPL.Float())
	assert.Equal(t, 1.0, a.SPLMadDB.Float())
	assert.Equal(t, "4_1.wav", a.File)
}

func TestLowVoicingFramesAreExcluded(t *testing.T) {
	rec := steadyRecording("s1/4/4_2.wav", voice.TaskLoudA, 41)
	for i := range rec.Frames {
		if i%2 == 0 {
			rec.Frames[i].VoicingConfidence = 0.3
		}
	}
	a, err := newTestExtractor().Extract(voice.TaskLoudA, []*voice.Recording{rec}, SelectFirst)
	require.NoError(t, err)
	assert.Equal(t, 10, a.FrameCount)
}

func TestUnknownVoicingIsKept(t *testing.T) {
	rec := steadyRecording("s1/4/4_2.wav", voice.TaskLoudA, 41)
	for i := range rec.Frames {
		rec.Frames[i].VoicingConfidence = voice.NaN()
	}
	a, err := newTestExtractor().Extract(voice.TaskLoudA, []*voice.Recording{rec}, SelectFirst)
	require.NoError(t, err)
	assert.Equal(t, 21, a.FrameCount)
}

func TestUnvoicedFramesAreExcluded(t *testing.T) {
	rec := steadyRecording("s1/4/4_1.wav", voice.TaskSoftA, 41)
	for i := range rec.Frames {
		if i != 20 {
			rec.Frames[i].F0 = voice.NaN()
		}
	}
	_, err := newTestExtractor().Extract(voice.TaskSoftA, []*voice.Recording{rec}, SelectFirst)
	require.Error(t, err)
	assert.True(t, errors.Is(err, voice.ErrInsufficientEvidence))
	assert.Equal(t, voice.ReasonInsufficientStableFrames, voice.ReasonOf(err))
}

func TestExtractErrors(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		name   string
		recs   []*voice.Recording
		reason string
	}{
		{
			name:   "no recording for task",
			recs:   []*voice.Recording{steadyRecording("s1/4/4_2.wav", voice.TaskLoudA, 20)},
			reason: voice.ReasonNoRows,
		},
		{
			name:   "recording without frames",
			recs:   []*voice.Recording{{Key: "s1/4/4_1.wav"}},
			reason: voice.ReasonNoFileRows,
		},
		{
			name:   "single instant",
			recs:   []*voice.Recording{steadyRecording("s1/4/4_1.wav", voice.TaskSoftA, 1)},
			reason: voice.ReasonInvalidTimeRange,
		},
		{
			name:   "too short for five stable frames",
			recs:   []*voice.Recording{steadyRecording("s1/4/4_1.wav", voice.TaskSoftA, 8)},
			reason: voice.ReasonInsufficientStableFrames,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Result(voice.TaskSoftA, tt.recs, SelectFirst)
			assert.False(t, res.IsAvailable())
			assert.Equal(t, tt.reason, res.Reason())
		})
	}
}

func TestChooseMaxVoiced(t *testing.T) {
	short := steadyRecording("s1/2/2_1.wav", voice.TaskVowelMPT, 30)
	long := steadyRecording("s1/2/2_2.wav", voice.TaskVowelMPT, 80)
	noisy := steadyRecording("s1/2/2_3.wav", voice.TaskVowelMPT, 120)
	for i := range noisy.Frames {
		if i%3 != 0 {
			noisy.Frames[i].VoicingConfidence = 0.2
		}
	}
	recs := []*voice.Recording{short, long, noisy}

	e := newTestExtractor()
	assert.Same(t, short, e.Choose(voice.TaskVowelMPT, recs, SelectFirst))
	assert.Same(t, long, e.Choose(voice.TaskVowelMPT, recs, SelectMaxVoiced))
}

func TestChooseMaxVoicedTieBreaksOnName(t *testing.T) {
	a := steadyRecording("s1/2/2_1.wav", voice.TaskVowelMPT, 30)
	b := steadyRecording("s1/2/2_2.wav", voice.TaskVowelMPT, 30)
	got := newTestExtractor().Choose(voice.TaskVowelMPT, []*voice.Recording{a, b}, SelectMaxVoiced)
	assert.Same(t, b, got)
}

func TestParseSelection(t *testing.T) {
	s, err := ParseSelection("max_voiced")
	require.NoError(t, err)
	assert.Equal(t, SelectMaxVoiced, s)

	s, err = ParseSelection("")
	require.NoError(t, err)
	assert.Equal(t, SelectFirst, s)

	_, err = ParseSelection("loudest")
	assert.True(t, errors.Is(err, voice.ErrConfiguration))
}

func TestLegacyBlock(t *testing.T) {
	e := newTestExtractor()
	rec := steadyRecording("s1/4/4_1.wav", voice.TaskSoftA, 41)

	ok := LegacyBlock(e.Result(voice.TaskSoftA, []*voice.Recording{rec}, SelectFirst))
	assert.Equal(t, voice.ReasonSuccess, ok.Reason)
	assert.False(t, ok.Failed())
	assert.Equal(t, 700.0, ok.F1.Float())
	assert.Equal(t, "4_1.wav", ok.SourceFile)

	missing := LegacyBlock(e.Result(voice.TaskLoudA, []*voice.Recording{rec}, SelectFirst))
	assert.True(t, missing.Failed())
	assert.Equal(t, voice.ReasonNoRows, missing.Reason)

	data, err := json.Marshal(missing)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"F1":null`)
}

func TestExtractIsDeterministic(t *testing.T) {
	rec := steadyRecording("s1/4/4_1.wav", voice.TaskSoftA, 57)
	e := newTestExtractor()
	a1, err := e.Extract(voice.TaskSoftA, []*voice.Recording{rec}, SelectMaxVoiced)
	require.NoError(t, err)
	a2, err := e.Extract(voice.TaskSoftA, []*voice.Recording{rec}, SelectMaxVoiced)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
}
