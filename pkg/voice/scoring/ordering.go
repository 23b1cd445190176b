package scoring

import (
	"github.com/RyanBlaney/voice-metrics/pkg/logging"
)

// Ordering violation flags
const (
	FlagOrderF1F2     = "order_f1_f2"
	FlagOrderF2F3     = "order_f2_f3"
	FlagWideBandwidth = "wide_bandwidth"
)

// OrderingRules are the spacing and bandwidth limits between adjacent formants
type OrderingRules struct {
	MinSpacingF1F2Hz float64 `json:"min_spacing_f1_f2_hz" yaml:"min_spacing_f1_f2_hz" mapstructure:"min_spacing_f1_f2_hz"`
	MinSpacingF2F3Hz float64 `json:"min_spacing_f2_f3_hz" yaml:"min_spacing_f2_f3_hz" mapstructure:"min_spacing_f2_f3_hz"`
	MaxBandwidthHz   float64 `json:"max_bandwidth_hz" yaml:"max_bandwidth_hz" mapstructure:"max_bandwidth_hz"`
	Penalty          float64 `json:"penalty" yaml:"penalty" mapstructure:"penalty"`
}

// DefaultOrderingRules returns the production limits
func DefaultOrderingRules() OrderingRules {
	return OrderingRules{
		MinSpacingF1F2Hz: 150,
		MinSpacingF2F3Hz: 200,
		MaxBandwidthHz:   700,
		Penalty:          0.2,
	}
}

// Validator multiplies down the confidences of crossing, crowded or overly wide
// formants. Penalized values are kept for diagnostics.
type Validator struct {
	rules  OrderingRules
	logger logging.Logger
}

// NewValidator creates an ordering validator
func NewValidator(rules OrderingRules, logger logging.Logger) *Validator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Validator{
		rules: rules,
		logger: logger.WithFields(logging.Fields{
			"component": "ordering_validator",
		}),
	}
}

// Apply penalizes fs in place and returns the violated rules
func (v *Validator) Apply(fs *FrameScores) []string {
	var flags []string
	s := &fs.Slots
	p := fs.Present

	if p[0] && p[1] {
		if !(s[0].FrequencyHz < s[1].FrequencyHz && s[1].FrequencyHz-s[0].FrequencyHz >= v.rules.MinSpacingF1F2Hz) {
			v.penalize(fs, 0, 1)
			flags = append(flags, FlagOrderF1F2)
		}
	}

	if (p[0] && s[0].BandwidthHz > v.rules.MaxBandwidthHz) || (p[1] && s[1].BandwidthHz > v.rules.MaxBandwidthHz) {
		v.penalize(fs, 0, 1)
		flags = append(flags, FlagWideBandwidth)
	}
	if p[2] && s[2].BandwidthHz > v.rules.MaxBandwidthHz {
		v.penalize(fs, 2)
		if len(flags) == 0 || flags[len(flags)-1] != FlagWideBandwidth {
			flags = append(flags, FlagWideBandwidth)
		}
	}

	if p[1] && p[2] {
		if !(s[1].FrequencyHz < s[2].FrequencyHz && s[2].FrequencyHz-s[1].FrequencyHz >= v.rules.MinSpacingF2F3Hz) {
			v.penalize(fs, 1, 2)
			flags = append(flags, FlagOrderF2F3)
		}
	}

	if len(flags) > 0 {
		fs.Flags = append(fs.Flags, flags...)
		v.logger.Debug("Formant ordering violated", logging.Fields{
			"time_s": fs.Time,
			"flags":  flags,
		})
	}
	return flags
}

func (v *Validator) penalize(fs *FrameScores, slots ...int) {
	for _, i := range slots {
		if fs.Present[i] {
			fs.Slots[i].Confidence *= v.rules.Penalty
		}
	}
}
