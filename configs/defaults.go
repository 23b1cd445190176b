package configs

import (
	"runtime"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/anchor"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/envelope"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/qc"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/scoring"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/vrp"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/window"
)

// setDefaults sets default configuration values for every key not already set
func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	set := func(key string, value any) {
		if !v.IsSet(key) {
			v.Set(key, value)
		}
	}

	// Application defaults
	set("verbose", d.Verbose)
	set("log_level", d.LogLevel)
	set("output_format", d.OutputFormat)

	// Estimation parameters
	set("params.time_step", d.Params.TimeStep)
	set("params.pitch_method", d.Params.PitchMethod)
	set("params.pitch_floor", d.Params.PitchFloor)
	set("params.pitch_top", d.Params.PitchTop)
	set("params.max_candidates", d.Params.MaxCandidates)
	set("params.silence_threshold", d.Params.SilenceThreshold)
	set("params.voicing_threshold", d.Params.VoicingThreshold)
	set("params.octave_cost", d.Params.OctaveCost)
	set("params.octave_jump_cost", d.Params.OctaveJumpCost)
	set("params.voiced_unvoiced_cost", d.Params.VoicedUnvoicedCost)
	set("params.intensity_pitch_floor", d.Params.IntensityFloor)
	set("params.n_formants", d.Params.NumFormants)
	set("params.formant_ceiling", d.Params.FormantCeilingHz)
	set("params.window_length", d.Params.WindowLength)
	set("params.pre_emphasis_from", d.Params.PreEmphasisFromHz)

	// QC gate
	set("qc.voicing_floor", d.QC.VoicingFloor)
	set("qc.high_f0_risk_hz", d.QC.HighF0RiskHz)
	for _, slot := range []string{"f1", "f2", "f3"} {
		n := int(slot[1] - '0')
		set("qc.formant_ranges."+slot+".min", d.QC.FormantRanges.At(n).Min)
		set("qc.formant_ranges."+slot+".max", d.QC.FormantRanges.At(n).Max)
		set("qc.bandwidth_ranges."+slot+".min", d.QC.BandwidthRanges.At(n).Min)
		set("qc.bandwidth_ranges."+slot+".max", d.QC.BandwidthRanges.At(n).Max)
	}
	set("qc.max_jump_f1_hz", d.QC.MaxJumpF1Hz)
	set("qc.max_jump_f2_hz", d.QC.MaxJumpF2Hz)

	// Envelope estimator
	set("envelope.max_fft_size", d.Envelope.MaxFFTSize)
	set("envelope.floor", d.Envelope.Floor)
	set("envelope.default_lifter_ms", d.Envelope.DefaultLifterMS)
	set("envelope.min_lifter_ms", d.Envelope.MinLifterMS)
	set("envelope.max_lifter_ms", d.Envelope.MaxLifterMS)
	set("envelope.prominence_window_hz", d.Envelope.ProminenceWindowHz)
	set("envelope.min_segment_s", d.Envelope.MinSegmentS)

	// Scoring
	set("scoring.strategy", d.Scoring.Strategy)
	set("scoring.ordering.min_spacing_f1_f2_hz", d.Scoring.Ordering.MinSpacingF1F2Hz)
	set("scoring.ordering.min_spacing_f2_f3_hz", d.Scoring.Ordering.MinSpacingF2F3Hz)
	set("scoring.ordering.max_bandwidth_hz", d.Scoring.Ordering.MaxBandwidthHz)
	set("scoring.ordering.penalty", d.Scoring.Ordering.Penalty)

	// Window selector
	set("window.width_s", d.Window.WidthS)
	set("window.min_frames", d.Window.MinFrames)
	set("window.min_voicing", d.Window.MinVoicing)
	set("window.min_hnr_db", d.Window.MinHNRDB)
	set("window.min_confidence", d.Window.MinConfidence)
	set("window.debug_frames", d.Window.DebugFrames)

	// VRP binner
	set("vrp.min_bin_count", d.VRP.MinBinCount)
	set("vrp.min_voicing", d.VRP.MinVoicing)
	set("vrp.mad_factor", d.VRP.MADFactor)
	set("vrp.lower_percentile", d.VRP.LowerPct)
	set("vrp.upper_percentile", d.VRP.UpperPct)
	set("vrp.range_percentile", d.VRP.RangePct)
	set("vrp.envelope_kind", string(d.VRP.Envelope))

	// Anchor extractor
	set("anchor.lower_fraction", d.Anchor.LowerFrac)
	set("anchor.upper_fraction", d.Anchor.UpperFrac)
	set("anchor.min_voicing", d.Anchor.MinVoicing)
	set("anchor.min_frames", d.Anchor.MinFrames)
	set("anchor.phonation_selection", d.Anchor.PhonationSelection)
	set("anchor.sustained_selection", d.Anchor.SustainedSelection)

	// Calibration
	set("calibration.mode", d.Calibration.Mode)

	// Session
	set("session.max_recordings_per_step", d.Session.MaxRecordingsPerStep)
	set("session.max_concurrency", d.Session.MaxConcurrency)
	set("session.timeout", d.Session.Timeout)

	// Output
	set("output.precision", d.Output.Precision)
	set("output.ledger_dir", d.Output.LedgerDir)
	set("output.debug_frames", d.Output.DebugFrames)
	set("output.colors", d.Output.Colors)

	// Pipeline; the legacy env var is honoured when no prefixed one is set
	_ = v.BindEnv("pipeline.version", "VOICE_METRICS_PIPELINE_VERSION", PipelineEnvVar)
	set("pipeline.version", d.Pipeline.Version)
}

// GetDefaultConfig returns a configuration with production defaults
func GetDefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		OutputFormat: "json",
		Params:       GetDefaultParamsConfig(),
		QC:           qc.DefaultConfig(),
		Envelope:     envelope.DefaultConfig(),
		Scoring: ScoringConfig{
			Strategy: scoring.DefaultStrategy,
			Ordering: scoring.DefaultOrderingRules(),
		},
		Window: window.DefaultConfig(),
		VRP:    vrp.DefaultConfig(),
		Anchor: AnchorConfig{
			Config:             anchor.DefaultConfig(),
			PhonationSelection: string(anchor.SelectFirst),
			SustainedSelection: string(anchor.SelectMaxVoiced),
		},
		Calibration: CalibrationConfig{
			Mode: voice.CalibrationRelative,
		},
		Session: SessionConfig{
			MaxRecordingsPerStep: 10,
			MaxConcurrency:       runtime.NumCPU(),
			Timeout:              5 * time.Minute,
		},
		Output: OutputConfig{
			Precision: 2,
			Colors:    true,
		},
		Pipeline: PipelineConfig{
			Version: PipelineV2,
		},
	}
}

// GetDefaultParamsConfig returns the estimation settings used in production
func GetDefaultParamsConfig() ParamsConfig {
	return ParamsConfig{
		TimeStep:           0.01,
		PitchMethod:        "filtered_ac",
		PitchFloor:         50,
		PitchTop:           800,
		MaxCandidates:      15,
		SilenceThreshold:   0.09,
		VoicingThreshold:   0.50,
		OctaveCost:         0.055,
		OctaveJumpCost:     0.35,
		VoicedUnvoicedCost: 0.14,
		IntensityFloor:     50,
		NumFormants:        5,
		FormantCeilingHz:   8000,
		WindowLength:       0.025,
		PreEmphasisFromHz:  50,
	}
}

// GetDefaultOutputConfigForFormat returns output settings tuned for a format
func GetDefaultOutputConfigForFormat(format string) OutputConfig {
	config := GetDefaultConfig().Output
	switch format {
	case "json", "yaml", "csv":
		config.Colors = false
	case "table":
		config.Colors = true
	}
	return config
}
