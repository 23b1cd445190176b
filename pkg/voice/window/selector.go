// Package window finds the contiguous span of scored frames that best
// represents a recording and summarizes it with per-metric medians.
package window

import (
	"math"
	"sort"

	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/scoring"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/stats"
)

// Config holds the selector constants
type Config struct {
	// WidthS is the maximum time span from a window's first to last frame
	WidthS float64 `json:"width_s" yaml:"width_s" mapstructure:"width_s"`
	// MinFrames is the smallest eligible window
	MinFrames int `json:"min_frames" yaml:"min_frames" mapstructure:"min_frames"`
	// MinVoicing and MinHNRDB define a stable frame
	MinVoicing float64 `json:"min_voicing" yaml:"min_voicing" mapstructure:"min_voicing"`
	MinHNRDB   float64 `json:"min_hnr_db" yaml:"min_hnr_db" mapstructure:"min_hnr_db"`
	// MinConfidence is the median confidence below which a formant is reported unavailable
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence" mapstructure:"min_confidence"`
	// DebugFrames caps the diagnostic frame list
	DebugFrames int `json:"debug_frames" yaml:"debug_frames" mapstructure:"debug_frames"`
}

// DefaultConfig returns the production constants
func DefaultConfig() Config {
	return Config{
		WidthS:        0.25,
		MinFrames:     8,
		MinVoicing:    0.60,
		MinHNRDB:      8,
		MinConfidence: 0.5,
		DebugFrames:   100,
	}
}

// ScoredFrame is a gated frame together with its formant scores
type ScoredFrame struct {
	Frame  voice.Frame
	Scores scoring.FrameScores
}

// Span is a half-open index range [Start, End) over time-sorted frames
type Span struct {
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
}

// Count returns the number of frames in the span
func (s Span) Count() int {
	return s.End - s.Start
}

// Availability reports whether a formant median can be trusted
type Availability struct {
	Available bool   `json:"available" yaml:"available"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// DebugFrame is the diagnostic view of one windowed frame
type DebugFrame struct {
	Time  float64       `json:"time_s" yaml:"time_s"`
	F0    voice.Measure `json:"f0_hz" yaml:"f0_hz"`
	F1    voice.Measure `json:"f1_hz" yaml:"f1_hz"`
	F2    voice.Measure `json:"f2_hz" yaml:"f2_hz"`
	F3    voice.Measure `json:"f3_hz" yaml:"f3_hz"`
	B1    voice.Measure `json:"b1_hz" yaml:"b1_hz"`
	B2    voice.Measure `json:"b2_hz" yaml:"b2_hz"`
	HNR   voice.Measure `json:"hnr_db" yaml:"hnr_db"`
	Conf1 float64       `json:"conf1" yaml:"conf1"`
	Conf2 float64       `json:"conf2" yaml:"conf2"`
	Prom1 voice.Measure `json:"prom1_db" yaml:"prom1_db"`
	Prom2 voice.Measure `json:"prom2_db" yaml:"prom2_db"`
	Flags []string      `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// Summary is the best-estimate measurement for one recording
type Summary struct {
	F0  voice.Measure `json:"f0_hz" yaml:"f0_hz"`
	F1  voice.Measure `json:"f1_hz" yaml:"f1_hz"`
	F2  voice.Measure `json:"f2_hz" yaml:"f2_hz"`
	F3  voice.Measure `json:"f3_hz" yaml:"f3_hz"`
	B1  voice.Measure `json:"b1_hz" yaml:"b1_hz"`
	B2  voice.Measure `json:"b2_hz" yaml:"b2_hz"`
	B3  voice.Measure `json:"b3_hz" yaml:"b3_hz"`
	SPL voice.Measure `json:"spl_db" yaml:"spl_db"`

	BestTime   float64 `json:"best_time_s" yaml:"best_time_s"`
	FrameCount int     `json:"frame_count" yaml:"frame_count"`
	Span       Span    `json:"window" yaml:"window"`

	// Fallback is set when no window reached MinFrames and the summary covers
	// every frame of the recording rather than a validated segment
	Fallback bool `json:"whole_recording_fallback" yaml:"whole_recording_fallback"`
	// Unstable is set when no frame passed the stability gate
	Unstable bool `json:"unstable_frames_used" yaml:"unstable_frames_used"`

	Confidence1 float64      `json:"conf1_median" yaml:"conf1_median"`
	Confidence2 float64      `json:"conf2_median" yaml:"conf2_median"`
	F1Status    Availability `json:"f1_availability" yaml:"f1_availability"`
	F2Status    Availability `json:"f2_availability" yaml:"f2_availability"`

	Debug []DebugFrame `json:"debug_frames,omitempty" yaml:"debug_frames,omitempty"`
}

// Selector runs the sliding-window search
type Selector struct {
	cfg    Config
	logger logging.Logger
}

// NewSelector creates a window selector
func NewSelector(cfg Config, logger logging.Logger) *Selector {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Selector{
		cfg: cfg,
		logger: logger.WithFields(logging.Fields{
			"component": "window_selector",
		}),
	}
}

// Stable keeps voiced frames whose voicing and HNR, where known, meet the
// stability floors. When none qualify the voiced frames are returned with ok=false.
func (s *Selector) Stable(frames []ScoredFrame) (out []ScoredFrame, ok bool) {
	var voiced []ScoredFrame
	for _, f := range frames {
		if !f.Frame.Voiced() {
			continue
		}
		voiced = append(voiced, f)
		if v := f.Frame.VoicingConfidence; voice.IsFinite(v) && v < s.cfg.MinVoicing {
			continue
		}
		if h := f.Frame.HNRDB; voice.IsFinite(h) && h < s.cfg.MinHNRDB {
			continue
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return voiced, false
	}
	return out, true
}

// Best returns the highest-scoring eligible span over time-sorted frames.
// Scores are the sum of F1 and F2 confidences; near-ties go to the wider
// span. ok is false when no span reaches MinFrames.
func (s *Selector) Best(sorted []ScoredFrame) (best Span, ok bool) {
	n := len(sorted)
	bestScore := -1.0
	j := 0
	for i := 0; i < n; i++ {
		t0 := sorted[i].Frame.Time
		for j < n && sorted[j].Frame.Time-t0 <= s.cfg.WidthS {
			j++
		}
		if j-i < s.cfg.MinFrames {
			continue
		}

		score := 0.0
		for k := i; k < j; k++ {
			score += sorted[k].Scores.Confidence(1) + sorted[k].Scores.Confidence(2)
		}

		tie := isClose(score, bestScore)
		if ok && !(score > bestScore && !tie) && !(tie && j-i > best.Count()) {
			continue
		}
		best = Span{Start: i, End: j, Score: score}
		bestScore = score
		ok = true
	}
	return best, ok
}

// Select picks the best window and summarizes it. Frames need not be sorted.
// A recording without frames is unavailable; a recording where no window is
// eligible is summarized over all of its frames with Fallback set.
func (s *Selector) Select(frames []ScoredFrame) voice.Result[Summary] {
	if len(frames) == 0 {
		return voice.Unavailable[Summary](voice.ReasonNoVoicedFrames)
	}

	sorted := make([]ScoredFrame, len(frames))
	copy(sorted, frames)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Frame.Time < sorted[b].Frame.Time
	})

	span, ok := s.Best(sorted)
	if !ok {
		span = Span{Start: 0, End: len(sorted)}
		for _, f := range sorted {
			span.Score += f.Scores.Confidence(1) + f.Scores.Confidence(2)
		}
		s.logger.Debug("No window reached the minimum frame count, using all frames", logging.Fields{
			"frames":     len(sorted),
			"min_frames": s.cfg.MinFrames,
		})
	}

	summary := s.summarize(sorted[span.Start:span.End])
	summary.Span = span
	summary.Fallback = !ok

	s.logger.Debug("Window selected", logging.Fields{
		"start":       span.Start,
		"end":         span.End,
		"score":       span.Score,
		"best_time_s": summary.BestTime,
		"fallback":    summary.Fallback,
	})

	return voice.Available(summary)
}

func (s *Selector) summarize(win []ScoredFrame) Summary {
	collect := func(get func(ScoredFrame) float64) []float64 {
		out := make([]float64, 0, len(win))
		for _, f := range win {
			out = append(out, get(f))
		}
		return out
	}
	median := func(get func(ScoredFrame) float64) voice.Measure {
		return voice.Measure(stats.Median(collect(get)))
	}
	confMedian := func(n int) float64 {
		var vals []float64
		for _, f := range win {
			if f.Scores.Present[n-1] {
				vals = append(vals, f.Scores.Slots[n-1].Confidence)
			}
		}
		if len(vals) == 0 {
			return 0
		}
		return stats.Median(vals)
	}

	sum := Summary{
		F0:  median(func(f ScoredFrame) float64 { return f.Frame.F0 }),
		F1:  median(func(f ScoredFrame) float64 { return f.Frame.FormantHz(1) }),
		F2:  median(func(f ScoredFrame) float64 { return f.Frame.FormantHz(2) }),
		F3:  median(func(f ScoredFrame) float64 { return f.Frame.FormantHz(3) }),
		B1:  median(func(f ScoredFrame) float64 { return f.Frame.BandwidthHz(1) }),
		B2:  median(func(f ScoredFrame) float64 { return f.Frame.BandwidthHz(2) }),
		B3:  median(func(f ScoredFrame) float64 { return f.Frame.BandwidthHz(3) }),
		SPL: median(func(f ScoredFrame) float64 { return f.Frame.SPLDB }),

		BestTime:   stats.Median(collect(func(f ScoredFrame) float64 { return f.Frame.Time })),
		FrameCount: len(win),

		Confidence1: confMedian(1),
		Confidence2: confMedian(2),
	}
	sum.F1Status = s.availability(sum.F1, sum.Confidence1)
	sum.F2Status = s.availability(sum.F2, sum.Confidence2)

	limit := max(0, min(len(win), s.cfg.DebugFrames))
	sum.Debug = make([]DebugFrame, 0, limit)
	for _, f := range win[:limit] {
		sum.Debug = append(sum.Debug, DebugFrame{
			Time:  f.Frame.Time,
			F0:    voice.Measure(f.Frame.F0),
			F1:    voice.Measure(f.Frame.FormantHz(1)),
			F2:    voice.Measure(f.Frame.FormantHz(2)),
			F3:    voice.Measure(f.Frame.FormantHz(3)),
			B1:    voice.Measure(f.Frame.BandwidthHz(1)),
			B2:    voice.Measure(f.Frame.BandwidthHz(2)),
			HNR:   voice.Measure(f.Frame.HNRDB),
			Conf1: f.Scores.Confidence(1),
			Conf2: f.Scores.Confidence(2),
			Prom1: voice.Measure(f.Scores.Slots[0].ProminenceDB),
			Prom2: voice.Measure(f.Scores.Slots[1].ProminenceDB),
			Flags: append(append([]string(nil), f.Frame.QCFlags...), f.Scores.Flags...),
		})
	}
	return sum
}

func (s *Selector) availability(median voice.Measure, conf float64) Availability {
	if !median.Known() || median.Float() == 0 || conf < s.cfg.MinConfidence {
		return Availability{Available: false, Reason: voice.ReasonLowProminence}
	}
	return Availability{Available: true}
}

// isClose matches a relative tolerance of 1e-9
func isClose(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}
