package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/anchor"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/envelope"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/qc"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/scoring"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/vrp"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/window"
)

// PipelineEnvVar selects the analysis pipeline for deployments that predate the config file
const PipelineEnvVar = "ONLINE_PRAAT_ANALYSIS_PIPELINE"

// Pipeline names
const (
	PipelineV2     = "v2"
	PipelineLegacy = "legacy"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose      bool   `mapstructure:"verbose" json:"verbose" yaml:"verbose"`
	LogLevel     string `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	OutputFormat string `mapstructure:"output_format" json:"output_format" yaml:"output_format"`
	ConfigDir    string `mapstructure:"config_dir" json:"config_dir,omitempty" yaml:"config_dir,omitempty"`

	// Estimation parameters the frames were produced with
	Params ParamsConfig `mapstructure:"params" json:"params" yaml:"params"`

	QC       qc.Config       `mapstructure:"qc" json:"qc" yaml:"qc"`
	Envelope envelope.Config `mapstructure:"envelope" json:"envelope" yaml:"envelope"`
	Scoring  ScoringConfig   `mapstructure:"scoring" json:"scoring" yaml:"scoring"`
	Window   window.Config   `mapstructure:"window" json:"window" yaml:"window"`
	VRP      vrp.Config      `mapstructure:"vrp" json:"vrp" yaml:"vrp"`
	Anchor   AnchorConfig    `mapstructure:"anchor" json:"anchor" yaml:"anchor"`

	Calibration CalibrationConfig `mapstructure:"calibration" json:"calibration" yaml:"calibration"`
	Session     SessionConfig     `mapstructure:"session" json:"session" yaml:"session"`
	Output      OutputConfig      `mapstructure:"output" json:"output" yaml:"output"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline" json:"pipeline" yaml:"pipeline"`
}

// ParamsConfig mirrors the settings of the acoustic estimation engine. The
// engine itself runs upstream; these values are archived with every ledger.
type ParamsConfig struct {
	TimeStep           float64 `mapstructure:"time_step" json:"time_step" yaml:"time_step"`
	PitchMethod        string  `mapstructure:"pitch_method" json:"pitch_method" yaml:"pitch_method"`
	PitchFloor         float64 `mapstructure:"pitch_floor" json:"pitch_floor" yaml:"pitch_floor"`
	PitchTop           float64 `mapstructure:"pitch_top" json:"pitch_top" yaml:"pitch_top"`
	MaxCandidates      int     `mapstructure:"max_candidates" json:"max_candidates" yaml:"max_candidates"`
	SilenceThreshold   float64 `mapstructure:"silence_threshold" json:"silence_threshold" yaml:"silence_threshold"`
	VoicingThreshold   float64 `mapstructure:"voicing_threshold" json:"voicing_threshold" yaml:"voicing_threshold"`
	OctaveCost         float64 `mapstructure:"octave_cost" json:"octave_cost" yaml:"octave_cost"`
	OctaveJumpCost     float64 `mapstructure:"octave_jump_cost" json:"octave_jump_cost" yaml:"octave_jump_cost"`
	VoicedUnvoicedCost float64 `mapstructure:"voiced_unvoiced_cost" json:"voiced_unvoiced_cost" yaml:"voiced_unvoiced_cost"`
	IntensityFloor     float64 `mapstructure:"intensity_pitch_floor" json:"intensity_pitch_floor" yaml:"intensity_pitch_floor"`
	NumFormants        float64 `mapstructure:"n_formants" json:"n_formants" yaml:"n_formants"`
	FormantCeilingHz   float64 `mapstructure:"formant_ceiling" json:"formant_ceiling" yaml:"formant_ceiling"`
	WindowLength       float64 `mapstructure:"window_length" json:"window_length" yaml:"window_length"`
	PreEmphasisFromHz  float64 `mapstructure:"pre_emphasis_from" json:"pre_emphasis_from" yaml:"pre_emphasis_from"`
}

// ScoringConfig selects the confidence strategy and ordering limits
type ScoringConfig struct {
	Strategy string                `mapstructure:"strategy" json:"strategy" yaml:"strategy"`
	Ordering scoring.OrderingRules `mapstructure:"ordering" json:"ordering" yaml:"ordering"`
}

// AnchorConfig contains the anchor constants and file selection per task family
type AnchorConfig struct {
	anchor.Config `mapstructure:",squash" yaml:",inline"`

	// PhonationSelection applies to soft_a and loud_a
	PhonationSelection string `mapstructure:"phonation_selection" json:"phonation_selection" yaml:"phonation_selection"`
	// SustainedSelection applies to vowel_mpt
	SustainedSelection string `mapstructure:"sustained_selection" json:"sustained_selection" yaml:"sustained_selection"`
}

// CalibrationConfig contains SPL calibration settings
type CalibrationConfig struct {
	Mode       string   `mapstructure:"mode" json:"mode" yaml:"mode"`
	NoiseSPLDB *float64 `mapstructure:"noise_spl_db" json:"noise_spl_db" yaml:"noise_spl_db"`
}

// SessionConfig bounds the work done for one session
type SessionConfig struct {
	MaxRecordingsPerStep int           `mapstructure:"max_recordings_per_step" json:"max_recordings_per_step" yaml:"max_recordings_per_step"`
	MaxConcurrency       int           `mapstructure:"max_concurrency" json:"max_concurrency" yaml:"max_concurrency"`
	Timeout              time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

// OutputConfig contains output formatting settings
type OutputConfig struct {
	Precision   int    `mapstructure:"precision" json:"precision" yaml:"precision"`
	LedgerDir   string `mapstructure:"ledger_dir" json:"ledger_dir" yaml:"ledger_dir"`
	DebugFrames bool   `mapstructure:"debug_frames" json:"debug_frames" yaml:"debug_frames"`
	Colors      bool   `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// PipelineConfig selects between the full and the legacy pipeline
type PipelineConfig struct {
	Version string `mapstructure:"version" json:"version" yaml:"version"`
}

// IsLegacy reports whether the configured version selects the legacy pipeline
func (p PipelineConfig) IsLegacy() bool {
	_, full := ResolvePipeline(p.Version)
	return !full
}

// ResolvePipeline normalizes a pipeline name. v2, new, refactor and
// refactor_v2 select the full pipeline; an empty value defaults to v2.
func ResolvePipeline(name string) (normalized string, full bool) {
	normalized = strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		normalized = PipelineV2
	}
	switch normalized {
	case PipelineV2, "new", "refactor", "refactor_v2":
		return normalized, true
	}
	return normalized, false
}

// RunParams is the constant set archived in run_config.json
type RunParams struct {
	ParamsConfig `yaml:",inline"`

	Pipeline string                `json:"pipeline" yaml:"pipeline"`
	Strategy string                `json:"scoring_strategy" yaml:"scoring_strategy"`
	QC       qc.Config             `json:"qc" yaml:"qc"`
	Envelope envelope.Config       `json:"envelope" yaml:"envelope"`
	Ordering scoring.OrderingRules `json:"ordering" yaml:"ordering"`
	Window   window.Config         `json:"window" yaml:"window"`
	VRP      vrp.Config            `json:"vrp" yaml:"vrp"`
	Anchor   AnchorConfig          `json:"anchor" yaml:"anchor"`
}

// RunParams collects every constant that influences a report
func (c *Config) RunParams() RunParams {
	pipeline, _ := ResolvePipeline(c.Pipeline.Version)
	return RunParams{
		ParamsConfig: c.Params,
		Pipeline:     pipeline,
		Strategy:     c.EffectiveStrategy(),
		QC:           c.QC,
		Envelope:     c.Envelope,
		Ordering:     c.Scoring.Ordering,
		Window:       c.Window,
		VRP:          c.EffectiveVRP(),
		Anchor:       c.Anchor,
	}
}

// WithRunParams returns a copy of c analyzing with the constants in p.
// Session, calibration and output settings are kept from c.
func (c *Config) WithRunParams(p RunParams) *Config {
	out := *c
	out.Params = p.ParamsConfig
	out.Pipeline.Version = p.Pipeline
	out.Scoring.Strategy = p.Strategy
	out.Scoring.Ordering = p.Ordering
	out.QC = p.QC
	out.Envelope = p.Envelope
	out.Window = p.Window
	out.VRP = p.VRP
	out.Anchor = p.Anchor
	return &out
}

// EffectiveStrategy returns the scoring strategy, forcing legacy_midpoint on the legacy pipeline
func (c *Config) EffectiveStrategy() string {
	if c.Pipeline.IsLegacy() {
		return scoring.StrategyLegacyMidpoint
	}
	if c.Scoring.Strategy == "" {
		return scoring.DefaultStrategy
	}
	return c.Scoring.Strategy
}

// EffectiveVRP returns the VRP constants, switching to min/max bounds on the legacy pipeline
func (c *Config) EffectiveVRP() vrp.Config {
	out := c.VRP
	if c.Pipeline.IsLegacy() {
		out.Envelope = vrp.EnvelopeMinMax
	}
	return out
}

// BaseCalibration returns the uncalibrated record for the configured mode
func (c *Config) BaseCalibration() voice.Calibration {
	return voice.NewCalibration(c.Calibration.Mode, c.Calibration.NoiseSPLDB)
}

// LoadConfig loads configuration from viper
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(viper.GetViper())
}

// LoadConfigFrom applies defaults to v and decodes it
func LoadConfigFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	return config, nil
}

// ValidateConfig reports every malformed constant as one ConfigurationError
func ValidateConfig(config *Config) error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	if config.Params.TimeStep <= 0 {
		add("params.time_step must be positive")
	}

	if config.QC.VoicingFloor < 0 || config.QC.VoicingFloor > 1 {
		add("qc.voicing_floor must be between 0 and 1")
	}
	for n := 1; n <= voice.NumFormants; n++ {
		if r := config.QC.FormantRanges.At(n); r.Min >= r.Max {
			add("qc.formant_ranges.f%d is empty [%g, %g]", n, r.Min, r.Max)
		}
		if r := config.QC.BandwidthRanges.At(n); r.Min >= r.Max {
			add("qc.bandwidth_ranges.f%d is empty [%g, %g]", n, r.Min, r.Max)
		}
	}
	if config.QC.MaxJumpF1Hz <= 0 || config.QC.MaxJumpF2Hz <= 0 {
		add("qc jump limits must be positive")
	}

	if config.Envelope.MaxFFTSize <= 0 || config.Envelope.MaxFFTSize&(config.Envelope.MaxFFTSize-1) != 0 {
		add("envelope.max_fft_size must be a positive power of two")
	}
	if config.Envelope.MinLifterMS <= 0 || config.Envelope.MinLifterMS > config.Envelope.MaxLifterMS {
		add("envelope lifter bounds [%g, %g] ms are invalid", config.Envelope.MinLifterMS, config.Envelope.MaxLifterMS)
	}
	if config.Envelope.ProminenceWindowHz <= 0 {
		add("envelope.prominence_window_hz must be positive")
	}

	if _, err := scoring.NewStrategy(config.EffectiveStrategy(), config.Envelope.ProminenceWindowHz); err != nil {
		errs = multierr.Append(errs, err)
	}
	if p := config.Scoring.Ordering.Penalty; p < 0 || p > 1 {
		add("scoring.ordering.penalty must be between 0 and 1")
	}

	if config.Window.WidthS <= 0 {
		add("window.width_s must be positive")
	}
	if config.Window.MinFrames <= 0 {
		add("window.min_frames must be positive")
	}
	if config.Window.DebugFrames < 0 {
		add("window.debug_frames cannot be negative")
	}
	if v := config.Window.MinVoicing; v < 0 || v > 1 {
		add("window.min_voicing must be between 0 and 1")
	}
	if c := config.Window.MinConfidence; c < 0 || c > 1 {
		add("window.min_confidence must be between 0 and 1")
	}

	if config.VRP.MinBinCount <= 0 {
		add("vrp.min_bin_count must be positive")
	}
	if config.VRP.LowerPct < 0 || config.VRP.LowerPct >= config.VRP.UpperPct || config.VRP.UpperPct > 100 {
		add("vrp percentiles [%g, %g] are invalid", config.VRP.LowerPct, config.VRP.UpperPct)
	}
	if r := config.VRP.RangePct; r < 0 || r >= 50 {
		add("vrp.range_percentile must be in [0, 50), got %g", r)
	}
	if config.VRP.MADFactor <= 0 {
		add("vrp.mad_factor must be positive")
	}
	if v := config.VRP.MinVoicing; v < 0 || v > 1 {
		add("vrp.min_voicing must be between 0 and 1")
	}
	switch config.VRP.Envelope {
	case vrp.EnvelopePercentile, vrp.EnvelopeMinMax:
	default:
		add("unknown vrp.envelope_kind %q", config.VRP.Envelope)
	}

	if v := config.Anchor.MinVoicing; v < 0 || v > 1 {
		add("anchor.min_voicing must be between 0 and 1")
	}
	if config.Anchor.MinFrames <= 0 {
		add("anchor.min_frames must be positive")
	}
	if config.Anchor.LowerFrac < 0 || config.Anchor.LowerFrac >= config.Anchor.UpperFrac || config.Anchor.UpperFrac > 1 {
		add("anchor fractions [%g, %g] are invalid", config.Anchor.LowerFrac, config.Anchor.UpperFrac)
	}
	if _, err := anchor.ParseSelection(config.Anchor.PhonationSelection); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := anchor.ParseSelection(config.Anchor.SustainedSelection); err != nil {
		errs = multierr.Append(errs, err)
	}

	if err := config.BaseCalibration().Validate(); err != nil {
		errs = multierr.Append(errs, err)
	}

	if config.Session.MaxConcurrency <= 0 {
		add("session.max_concurrency must be positive")
	}
	if config.Session.MaxRecordingsPerStep <= 0 {
		add("session.max_recordings_per_step must be positive")
	}
	if config.Session.Timeout < 0 {
		add("session.timeout cannot be negative")
	}

	if errs != nil {
		return voice.NewConfigurationError("invalid configuration", errs)
	}
	return nil
}
