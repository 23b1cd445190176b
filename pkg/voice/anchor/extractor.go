// Package anchor summarizes the stable middle of a labeled phonation task.
package anchor

import (
	"fmt"
	"sort"

	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/stats"
)

// Selection decides which recording of a task the anchor is taken from
type Selection string

const (
	// SelectFirst uses the first recording of the task
	SelectFirst Selection = "first"
	// SelectMaxVoiced uses the recording with the most voiced frames
	SelectMaxVoiced Selection = "max_voiced"
)

// ParseSelection validates a selection policy name
func ParseSelection(s string) (Selection, error) {
	switch Selection(s) {
	case SelectFirst, SelectMaxVoiced:
		return Selection(s), nil
	case "":
		return SelectFirst, nil
	}
	return "", voice.NewConfigurationError(fmt.Sprintf("unknown file selection %q", s), nil)
}

// Config holds the extraction constants
type Config struct {
	// LowerFrac and UpperFrac bound the stable part of the time span
	LowerFrac  float64 `json:"lower_fraction" yaml:"lower_fraction" mapstructure:"lower_fraction"`
	UpperFrac  float64 `json:"upper_fraction" yaml:"upper_fraction" mapstructure:"upper_fraction"`
	MinVoicing float64 `json:"min_voicing" yaml:"min_voicing" mapstructure:"min_voicing"`
	MinFrames  int     `json:"min_frames" yaml:"min_frames" mapstructure:"min_frames"`
}

// DefaultConfig returns the production constants
func DefaultConfig() Config {
	return Config{
		LowerFrac:  0.25,
		UpperFrac:  0.75,
		MinVoicing: 0.60,
		MinFrames:  5,
	}
}

// Anchor is the stable-window summary of one task recording
type Anchor struct {
	Task       voice.Task    `json:"task" yaml:"task"`
	File       string        `json:"file" yaml:"file"`
	F0         voice.Measure `json:"f0_hz" yaml:"f0_hz"`
	F1         voice.Measure `json:"f1_hz" yaml:"f1_hz"`
	F2         voice.Measure `json:"f2_hz" yaml:"f2_hz"`
	F3         voice.Measure `json:"f3_hz" yaml:"f3_hz"`
	B1         voice.Measure `json:"b1_hz" yaml:"b1_hz"`
	B2         voice.Measure `json:"b2_hz" yaml:"b2_hz"`
	B3         voice.Measure `json:"b3_hz" yaml:"b3_hz"`
	SPL        voice.Measure `json:"spl_db" yaml:"spl_db"`
	SPLMadDB   voice.Measure `json:"spl_mad_db" yaml:"spl_mad_db"`
	FrameCount int           `json:"n_frames" yaml:"n_frames"`
}

// Extractor picks and summarizes anchor windows
type Extractor struct {
	cfg    Config
	logger logging.Logger
}

// NewExtractor creates an anchor extractor
func NewExtractor(cfg Config, logger logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Extractor{
		cfg: cfg,
		logger: logger.WithFields(logging.Fields{
			"component": "anchor_extractor",
		}),
	}
}

// voicedFrame counts a frame as voiced when f0 is finite and voicing, where known, passes the floor
func (e *Extractor) voicedFrame(f voice.Frame) bool {
	if !f.Voiced() {
		return false
	}
	return !voice.IsFinite(f.VoicingConfidence) || f.VoicingConfidence >= e.cfg.MinVoicing
}

// VoicedFrames counts the voiced frames of a recording under the voicing floor
func (e *Extractor) VoicedFrames(rec *voice.Recording) int {
	n := 0
	for _, f := range rec.Frames {
		if e.voicedFrame(f) {
			n++
		}
	}
	return n
}

// Choose returns the recording of task selected by policy, nil when none exists
func (e *Extractor) Choose(task voice.Task, recs []*voice.Recording, policy Selection) *voice.Recording {
	var candidates []*voice.Recording
	for _, r := range recs {
		if r != nil && r.ResolvedTask() == task {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	if policy != SelectMaxVoiced {
		return candidates[0]
	}

	type score struct {
		rec    *voice.Recording
		voiced int
		total  int
	}
	scores := make([]score, 0, len(candidates))
	for _, r := range candidates {
		if r.File() == "" {
			continue
		}
		scores = append(scores, score{rec: r, voiced: e.VoicedFrames(r), total: len(r.Frames)})
	}
	if len(scores) == 0 {
		return candidates[0]
	}
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.voiced != b.voiced {
			return a.voiced > b.voiced
		}
		if a.total != b.total {
			return a.total > b.total
		}
		return a.rec.File() > b.rec.File()
	})
	return scores[0].rec
}

// Extract builds the anchor for task. Failures are AnalysisErrors carrying
// one of the no_rows, no_file_rows, invalid_time_range or
// insufficient_stable_frames reason codes.
func (e *Extractor) Extract(task voice.Task, recs []*voice.Recording, policy Selection) (*Anchor, error) {
	logger := e.logger.WithFields(logging.Fields{
		"function": "Extract",
		"task":     task,
		"policy":   policy,
	})

	rec := e.Choose(task, recs, policy)
	if rec == nil {
		return nil, voice.NewInputUnavailable("", voice.ReasonNoRows, fmt.Sprintf("no recording labeled %s", task))
	}
	if len(rec.Frames) == 0 {
		return nil, voice.NewInputUnavailable(rec.File(), voice.ReasonNoFileRows, "selected recording has no frames")
	}

	tmin, tmax := stats.Range(frameTimes(rec.Frames))
	if !voice.IsFinite(tmin) || !voice.IsFinite(tmax) || tmax <= tmin {
		return nil, voice.NewInsufficientEvidence(rec.File(), voice.ReasonInvalidTimeRange,
			fmt.Sprintf("time span [%g, %g] is empty", tmin, tmax))
	}

	span := tmax - tmin
	left := tmin + span*e.cfg.LowerFrac
	right := tmin + span*e.cfg.UpperFrac

	var stable []voice.Frame
	for _, f := range rec.Frames {
		if !voice.IsFinite(f.Time) || f.Time < left || f.Time > right {
			continue
		}
		if !e.voicedFrame(f) {
			continue
		}
		stable = append(stable, f)
	}

	if len(stable) < e.cfg.MinFrames {
		logger.Debug("Too few stable frames for anchor", logging.Fields{
			"file":   rec.File(),
			"stable": len(stable),
			"min":    e.cfg.MinFrames,
		})
		return nil, voice.NewInsufficientEvidence(rec.File(), voice.ReasonInsufficientStableFrames,
			fmt.Sprintf("%d stable frames, need %d", len(stable), e.cfg.MinFrames))
	}

	med := func(get func(voice.Frame) float64) voice.Measure {
		vals := make([]float64, len(stable))
		for i, f := range stable {
			vals[i] = get(f)
		}
		return voice.Measure(stats.Median(vals))
	}
	spl := make([]float64, len(stable))
	for i, f := range stable {
		spl[i] = f.SPLDB
	}

	a := &Anchor{
		Task:       task,
		File:       rec.File(),
		F0:         med(func(f voice.Frame) float64 { return f.F0 }),
		F1:         med(func(f voice.Frame) float64 { return f.FormantHz(1) }),
		F2:         med(func(f voice.Frame) float64 { return f.FormantHz(2) }),
		F3:         med(func(f voice.Frame) float64 { return f.FormantHz(3) }),
		B1:         med(func(f voice.Frame) float64 { return f.BandwidthHz(1) }),
		B2:         med(func(f voice.Frame) float64 { return f.BandwidthHz(2) }),
		B3:         med(func(f voice.Frame) float64 { return f.BandwidthHz(3) }),
		SPL:        voice.Measure(stats.Median(spl)),
		SPLMadDB:   voice.Measure(stats.MAD(spl)),
		FrameCount: len(stable),
	}

	logger.Debug("Anchor extracted", logging.Fields{
		"file":     a.File,
		"n_frames": a.FrameCount,
		"window":   []float64{left, right},
	})
	return a, nil
}

// Result wraps Extract as a tagged result
func (e *Extractor) Result(task voice.Task, recs []*voice.Recording, policy Selection) voice.Result[Anchor] {
	a, err := e.Extract(task, recs, policy)
	if err != nil {
		return voice.UnavailableFrom[Anchor](err)
	}
	return voice.Available(*a)
}

func frameTimes(frames []voice.Frame) []float64 {
	ts := make([]float64, len(frames))
	for i, f := range frames {
		ts[i] = f.Time
	}
	return ts
}
