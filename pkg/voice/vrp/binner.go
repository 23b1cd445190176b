// Package vrp builds the Voice Range Profile: loudness bands per semitone
// across the pitch range covered by glide recordings.
package vrp

import (
	"math"
	"sort"

	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/stats"
)

// EnvelopeKind names how per-bin loudness bounds are computed
type EnvelopeKind string

const (
	// EnvelopePercentile bounds each bin by its 5th and 95th loudness percentile
	EnvelopePercentile EnvelopeKind = "q05_q95"
	// EnvelopeMinMax bounds each bin by its extreme values with no outlier filter
	EnvelopeMinMax EnvelopeKind = "min_max"
)

// Interpretation is attached to every profile so readers do not mistake a
// glide-derived range for a physiological maximum
const Interpretation = "observed_task_induced_range_not_physiological_max"

// Config holds the binning constants
type Config struct {
	MinBinCount int          `json:"min_bin_count" yaml:"min_bin_count" mapstructure:"min_bin_count"`
	MinVoicing  float64      `json:"min_voicing" yaml:"min_voicing" mapstructure:"min_voicing"`
	MADFactor   float64      `json:"mad_factor" yaml:"mad_factor" mapstructure:"mad_factor"`
	LowerPct    float64      `json:"lower_percentile" yaml:"lower_percentile" mapstructure:"lower_percentile"`
	UpperPct    float64      `json:"upper_percentile" yaml:"upper_percentile" mapstructure:"upper_percentile"`
	RangePct    float64      `json:"range_percentile" yaml:"range_percentile" mapstructure:"range_percentile"`
	Envelope    EnvelopeKind `json:"envelope_kind" yaml:"envelope_kind" mapstructure:"envelope_kind"`
}

// DefaultConfig returns the production constants
func DefaultConfig() Config {
	return Config{
		MinBinCount: 5,
		MinVoicing:  0.60,
		MADFactor:   3.0,
		LowerPct:    5,
		UpperPct:    95,
		RangePct:    10,
		Envelope:    EnvelopePercentile,
	}
}

// Bin is one semitone bucket
type Bin struct {
	Semitone    int     `json:"semi" yaml:"semi"`
	F0CenterHz  float64 `json:"f0_center_hz" yaml:"f0_center_hz"`
	SPLMin      float64 `json:"spl_min" yaml:"spl_min"`
	SPLMax      float64 `json:"spl_max" yaml:"spl_max"`
	SPLMean     float64 `json:"spl_mean" yaml:"spl_mean"`
	SampleCount int     `json:"count" yaml:"count"`
}

// Profile is the binned range plus whole-sample headline percentiles
type Profile struct {
	F0P10          float64      `json:"f0_min" yaml:"f0_min"`
	F0P90          float64      `json:"f0_max" yaml:"f0_max"`
	SPLP10         float64      `json:"spl_min" yaml:"spl_min"`
	SPLP90         float64      `json:"spl_max" yaml:"spl_max"`
	Bins           []Bin        `json:"bins" yaml:"bins"`
	EnvelopeKind   EnvelopeKind `json:"envelope_kind" yaml:"envelope_kind"`
	Interpretation string       `json:"interpretation" yaml:"interpretation"`
	FrameCount     int          `json:"frame_count" yaml:"frame_count"`
}

// Semitone converts a frequency to its fractional MIDI note number
func Semitone(f0 float64) float64 {
	return 69.0 + 12.0*math.Log2(f0/440.0)
}

// SemitoneBin rounds a frequency to its nearest semitone, halves to even
func SemitoneBin(f0 float64) int {
	return int(math.RoundToEven(Semitone(f0)))
}

// CenterHz returns the frequency at the center of a semitone bin
func CenterHz(semitone int) float64 {
	return 440.0 * math.Pow(2, float64(semitone-69)/12.0)
}

// Binner aggregates glide frames into a Profile
type Binner struct {
	cfg    Config
	logger logging.Logger
}

// NewBinner creates a binner
func NewBinner(cfg Config, logger logging.Logger) *Binner {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if cfg.Envelope == "" {
		cfg.Envelope = EnvelopePercentile
	}
	return &Binner{
		cfg: cfg,
		logger: logger.WithFields(logging.Fields{
			"component": "vrp_binner",
		}),
	}
}

// Config returns the active constants
func (b *Binner) Config() Config {
	return b.cfg
}

// valid keeps frames with finite f0 and SPL and sufficient voicing. When no
// frame reports a voicing probability the voicing rule is skipped.
func (b *Binner) valid(frames []voice.Frame) (f0, spl []float64) {
	anyVoicing := false
	for _, f := range frames {
		if voice.IsFinite(f.VoicingConfidence) {
			anyVoicing = true
			break
		}
	}
	if !anyVoicing && len(frames) > 0 {
		b.logger.Warn("No frame carries a voicing probability, filtering on f0 and SPL only", logging.Fields{
			"frames": len(frames),
		})
	}

	for _, f := range frames {
		if !f.Voiced() || !voice.IsFinite(f.SPLDB) {
			continue
		}
		if anyVoicing && !(voice.IsFinite(f.VoicingConfidence) && f.VoicingConfidence >= b.cfg.MinVoicing) {
			continue
		}
		f0 = append(f0, f.F0)
		spl = append(spl, f.SPLDB)
	}
	return f0, spl
}

// Build bins every usable frame. Bins with fewer than MinBinCount samples,
// before or after outlier filtering, are dropped. An input with no usable
// frame returns an InputUnavailable error carrying the reason code.
func (b *Binner) Build(frames []voice.Frame) (*Profile, error) {
	if len(frames) == 0 {
		return nil, voice.NewInputUnavailable("", voice.ReasonNoGlideRows, "no glide frames supplied")
	}

	f0, spl := b.valid(frames)
	if len(f0) == 0 {
		return nil, voice.NewInputUnavailable("", voice.ReasonNoValidVoicedGlideFrames, "no voiced glide frame passed the voicing filter")
	}

	groups := make(map[int][]float64)
	for i, hz := range f0 {
		n := SemitoneBin(hz)
		groups[n] = append(groups[n], spl[i])
	}
	keys := make([]int, 0, len(groups))
	for n := range groups {
		keys = append(keys, n)
	}
	sort.Ints(keys)

	bins := make([]Bin, 0, len(keys))
	for _, n := range keys {
		if bin, ok := b.bin(n, groups[n]); ok {
			bins = append(bins, bin)
		}
	}

	profile := &Profile{
		F0P10:          stats.Percentile(f0, b.cfg.RangePct),
		F0P90:          stats.Percentile(f0, 100-b.cfg.RangePct),
		SPLP10:         stats.Percentile(spl, b.cfg.RangePct),
		SPLP90:         stats.Percentile(spl, 100-b.cfg.RangePct),
		Bins:           bins,
		EnvelopeKind:   b.cfg.Envelope,
		Interpretation: Interpretation,
		FrameCount:     len(f0),
	}

	b.logger.Debug("VRP built", logging.Fields{
		"frames":        len(f0),
		"semitones":     len(keys),
		"bins":          len(bins),
		"envelope_kind": b.cfg.Envelope,
	})

	return profile, nil
}

// Result wraps Build as a tagged result
func (b *Binner) Result(frames []voice.Frame) voice.Result[Profile] {
	p, err := b.Build(frames)
	if err != nil {
		return voice.UnavailableFrom[Profile](err)
	}
	return voice.Available(*p)
}

func (b *Binner) bin(n int, values []float64) (Bin, bool) {
	values = stats.Finite(values)
	if len(values) < b.cfg.MinBinCount {
		return Bin{}, false
	}

	var lo, hi float64
	switch b.cfg.Envelope {
	case EnvelopeMinMax:
		lo, hi = stats.Range(values)
	default:
		values = stats.MADFilter(values, b.cfg.MADFactor)
		if len(values) < b.cfg.MinBinCount {
			return Bin{}, false
		}
		sorted := stats.Sorted(values)
		lo = stats.PercentileSorted(sorted, b.cfg.LowerPct)
		hi = stats.PercentileSorted(sorted, b.cfg.UpperPct)
	}

	return Bin{
		Semitone:    n,
		F0CenterHz:  CenterHz(n),
		SPLMin:      lo,
		SPLMax:      hi,
		SPLMean:     stats.Mean(values),
		SampleCount: len(values),
	}, true
}
