package scoring

import (
	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/envelope"
)

// FrameScores holds the scored formant slots of one frame
type FrameScores struct {
	Time    float64                   `json:"time_s"`
	Slots   [voice.NumFormants]Scored `json:"slots"`
	Present [voice.NumFormants]bool   `json:"present"`
	Flags   []string                  `json:"ordering_flags,omitempty"`
}

// Confidence returns the confidence of the n-th (1-based) slot, 0 when absent
func (fs *FrameScores) Confidence(n int) float64 {
	if n < 1 || n > voice.NumFormants || !fs.Present[n-1] {
		return 0
	}
	return fs.Slots[n-1].Confidence
}

// Scorer applies a Strategy to every formant slot of a frame
type Scorer struct {
	strategy Strategy
	logger   logging.Logger
}

// NewScorer creates a scorer around strategy
func NewScorer(strategy Strategy, logger logging.Logger) *Scorer {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Scorer{
		strategy: strategy,
		logger: logger.WithFields(logging.Fields{
			"component": "confidence_scorer",
			"strategy":  strategy.Name(),
		}),
	}
}

// Strategy returns the active strategy
func (s *Scorer) Strategy() Strategy {
	return s.strategy
}

// ProminenceDB returns the measured prominence per slot, NaN for absent slots
func (fs *FrameScores) ProminenceDB() []float64 {
	out := make([]float64, voice.NumFormants)
	for i := range out {
		out[i] = voice.NaN()
		if fs.Present[i] {
			out[i] = fs.Slots[i].ProminenceDB
		}
	}
	return out
}

// ScoreFrame scores each slot that has both a frequency and a bandwidth.
// env may be nil, in which case the frame's recorded prominence is used,
// or a neutral prominence when none was recorded.
func (s *Scorer) ScoreFrame(f voice.Frame, env *envelope.Envelope) FrameScores {
	fs := FrameScores{Time: f.Time}
	for i := 0; i < voice.NumFormants; i++ {
		fm := f.Formants[i]
		if !voice.IsFinite(fm.FrequencyHz) || !voice.IsFinite(fm.BandwidthHz) {
			continue
		}
		c := Candidate{
			Slot:        i + 1,
			FrequencyHz: fm.FrequencyHz,
			BandwidthHz: fm.BandwidthHz,
			F0Hz:        f.F0,
			HNRDB:       f.HNRDB,
		}
		if db, ok := f.Prominence(i + 1); ok {
			c.RecordedProminenceDB = &db
		}
		fs.Slots[i] = s.strategy.Score(c, env)
		fs.Present[i] = true
	}
	return fs
}
