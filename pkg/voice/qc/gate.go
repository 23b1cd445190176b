// Package qc gates raw frames against physiological limits and frame-to-frame
// jump limits before they are scored or aggregated.
package qc

import (
	"fmt"

	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
)

// QC flag names, as written to the ledger
const (
	FlagLowVoicingProb = "low_voicing_prob"
	FlagHighF0Risk     = "high_f0_risk"
	FlagJumpF1         = "jump_f1"
	FlagJumpF2         = "jump_f2"
)

// FormantOutOfRange returns the flag for formant n (1-based)
func FormantOutOfRange(n int) string {
	return fmt.Sprintf("formant_out_of_range_f%d", n)
}

// BandwidthOutOfRange returns the flag for bandwidth n (1-based)
func BandwidthOutOfRange(n int) string {
	return fmt.Sprintf("bandwidth_out_of_range_b%d", n)
}

// Range is an inclusive [Min, Max] interval in Hz
type Range struct {
	Min float64 `json:"min" yaml:"min" mapstructure:"min"`
	Max float64 `json:"max" yaml:"max" mapstructure:"max"`
}

// Contains reports whether v lies inside the range
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Ranges holds one range per formant slot
type Ranges struct {
	F1 Range `json:"f1" yaml:"f1" mapstructure:"f1"`
	F2 Range `json:"f2" yaml:"f2" mapstructure:"f2"`
	F3 Range `json:"f3" yaml:"f3" mapstructure:"f3"`
}

// At returns the range of slot n (1-based)
func (r Ranges) At(n int) Range {
	switch n {
	case 1:
		return r.F1
	case 2:
		return r.F2
	default:
		return r.F3
	}
}

// Config holds the gate thresholds
type Config struct {
	VoicingFloor    float64 `json:"voicing_floor" yaml:"voicing_floor" mapstructure:"voicing_floor"`
	HighF0RiskHz    float64 `json:"high_f0_risk_hz" yaml:"high_f0_risk_hz" mapstructure:"high_f0_risk_hz"`
	FormantRanges   Ranges  `json:"formant_ranges" yaml:"formant_ranges" mapstructure:"formant_ranges"`
	BandwidthRanges Ranges  `json:"bandwidth_ranges" yaml:"bandwidth_ranges" mapstructure:"bandwidth_ranges"`
	MaxJumpF1Hz     float64 `json:"max_jump_f1_hz" yaml:"max_jump_f1_hz" mapstructure:"max_jump_f1_hz"`
	MaxJumpF2Hz     float64 `json:"max_jump_f2_hz" yaml:"max_jump_f2_hz" mapstructure:"max_jump_f2_hz"`
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		VoicingFloor: 0.60,
		HighF0RiskHz: 200,
		FormantRanges: Ranges{
			F1: Range{Min: 150, Max: 1200},
			F2: Range{Min: 500, Max: 3500},
			F3: Range{Min: 1500, Max: 4500},
		},
		BandwidthRanges: Ranges{
			F1: Range{Min: 20, Max: 1200},
			F2: Range{Min: 20, Max: 1600},
			F3: Range{Min: 20, Max: 2000},
		},
		MaxJumpF1Hz: 300,
		MaxJumpF2Hz: 500,
	}
}

// Gate applies the QC rules to one recording's frames in time order. The last
// accepted F1/F2 is its only state; create one Gate per recording.
type Gate struct {
	cfg    Config
	logger logging.Logger

	prevF1 float64
	prevF2 float64
}

// NewGate creates a gate with no accepted history
func NewGate(cfg Config, logger logging.Logger) *Gate {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Gate{
		cfg: cfg,
		logger: logger.WithFields(logging.Fields{
			"component": "qc_gate",
		}),
		prevF1: voice.NaN(),
		prevF2: voice.NaN(),
	}
}

// Reset forgets the accepted history
func (g *Gate) Reset() {
	g.prevF1 = voice.NaN()
	g.prevF2 = voice.NaN()
}

// LastAccepted returns the most recent accepted F1 and F2
func (g *Gate) LastAccepted() (f1, f2 float64) {
	return g.prevF1, g.prevF2
}

// Apply returns the gated copy of f. Implausible formants and bandwidths are
// nulled and flagged; f0 and intensity are only ever flagged.
func (g *Gate) Apply(f voice.Frame) voice.Frame {
	out := f.Clone()

	if voice.IsFinite(out.VoicingConfidence) && out.VoicingConfidence < g.cfg.VoicingFloor {
		out.QCFlags = append(out.QCFlags, FlagLowVoicingProb)
	}

	for n := 1; n <= voice.NumFormants; n++ {
		fm := &out.Formants[n-1]
		if voice.IsFinite(fm.FrequencyHz) && !g.cfg.FormantRanges.At(n).Contains(fm.FrequencyHz) {
			out.QCFlags = append(out.QCFlags, FormantOutOfRange(n))
			fm.FrequencyHz = voice.NaN()
		}
	}
	for n := 1; n <= voice.NumFormants; n++ {
		fm := &out.Formants[n-1]
		if voice.IsFinite(fm.BandwidthHz) && !g.cfg.BandwidthRanges.At(n).Contains(fm.BandwidthHz) {
			out.QCFlags = append(out.QCFlags, BandwidthOutOfRange(n))
			fm.BandwidthHz = voice.NaN()
		}
	}

	if voice.IsFinite(out.F0) && out.F0 > g.cfg.HighF0RiskHz {
		out.QCFlags = append(out.QCFlags, FlagHighF0Risk)
	}

	f1 := &out.Formants[0].FrequencyHz
	if voice.IsFinite(g.prevF1) && voice.IsFinite(*f1) && abs(*f1-g.prevF1) > g.cfg.MaxJumpF1Hz {
		out.QCFlags = append(out.QCFlags, FlagJumpF1)
		*f1 = voice.NaN()
	}
	f2 := &out.Formants[1].FrequencyHz
	if voice.IsFinite(g.prevF2) && voice.IsFinite(*f2) && abs(*f2-g.prevF2) > g.cfg.MaxJumpF2Hz {
		out.QCFlags = append(out.QCFlags, FlagJumpF2)
		*f2 = voice.NaN()
	}

	// nulled values never become the reference for the next frame
	if voice.IsFinite(*f1) {
		g.prevF1 = *f1
	}
	if voice.IsFinite(*f2) {
		g.prevF2 = *f2
	}

	if len(out.QCFlags) > len(f.QCFlags) {
		g.logger.Debug("Frame flagged", logging.Fields{
			"time_s":   out.Time,
			"qc_flags": out.FlagString(),
		})
	}
	return out
}

// Run gates a whole recording with a fresh Gate. Jump rules compare each
// frame to its predecessor in time, so the result is in time order whatever
// the order of frames.
func Run(cfg Config, frames []voice.Frame, logger logging.Logger) []voice.Frame {
	g := NewGate(cfg, logger)
	out := voice.SortedByTime(frames)
	for i, f := range out {
		out[i] = g.Apply(f)
	}
	return out
}

// CountFlags tallies QC flags across frames
func CountFlags(frames []voice.Frame) map[string]int {
	counts := make(map[string]int)
	for _, f := range frames {
		for _, fl := range f.QCFlags {
			counts[fl]++
		}
	}
	return counts
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
