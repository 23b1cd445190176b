package engine

import (
	"time"

	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/envelope"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/window"
)

// RecordingResult is the outcome of analyzing one recording
type RecordingResult struct {
	File string     `json:"file" yaml:"file"`
	Task voice.Task `json:"task" yaml:"task"`

	FrameCount  int `json:"frame_count" yaml:"frame_count"`
	VoicedCount int `json:"voiced_frames" yaml:"voiced_frames"`
	// EnvelopeSegments counts voiced segments that had audio for a spectral envelope
	EnvelopeSegments int `json:"envelope_segments" yaml:"envelope_segments"`

	Params     envelope.AnalysisParams `json:"analysis_params" yaml:"analysis_params"`
	FlagCounts map[string]int          `json:"qc_flag_counts,omitempty" yaml:"qc_flag_counts,omitempty"`

	Summary voice.Result[window.Summary] `json:"summary" yaml:"summary"`

	// Gated holds the QC-gated frames consumed by the session aggregators
	Gated []voice.Frame `json:"-" yaml:"-"`
	// Scored holds the frames that reached window selection
	Scored []window.ScoredFrame `json:"-" yaml:"-"`

	ProcessingTime time.Duration `json:"-" yaml:"-"`
}

// Recording returns a copy of rec carrying the gated frames
func (r *RecordingResult) Recording(rec *voice.Recording) *voice.Recording {
	out := *rec
	out.Frames = r.Gated
	out.Samples = nil
	return &out
}
