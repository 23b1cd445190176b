package session

import (
	"time"

	"github.com/RyanBlaney/voice-metrics/internal/engine"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/anchor"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/ledger"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/vrp"
)

// Report is the complete outcome of one session
type Report struct {
	SessionID   string            `json:"session_id" yaml:"session_id"`
	Pipeline    string            `json:"pipeline" yaml:"pipeline"`
	Strategy    string            `json:"scoring_strategy" yaml:"scoring_strategy"`
	Replayed    bool              `json:"replayed,omitempty" yaml:"replayed,omitempty"`
	Calibration voice.Calibration `json:"calibration" yaml:"calibration"`

	Recordings []*engine.RecordingResult `json:"recordings" yaml:"recordings"`

	Sustained      Sustained                 `json:"sustained" yaml:"sustained"`
	VRP            voice.Result[vrp.Profile] `json:"vrp" yaml:"vrp"`
	Anchors        Anchors                   `json:"anchors" yaml:"anchors"`
	FormantsLow    anchor.FormantBlock       `json:"formants_low" yaml:"formants_low"`
	FormantsHigh   anchor.FormantBlock       `json:"formants_high" yaml:"formants_high"`
	Reading        voice.Result[SpeechFlow]  `json:"reading" yaml:"reading"`
	Spontaneous    voice.Result[SpeechFlow]  `json:"spontaneous" yaml:"spontaneous"`
	Questionnaires *Questionnaires           `json:"questionnaires,omitempty" yaml:"questionnaires,omitempty"`

	RunConfig *ledger.RunConfig `json:"run_config" yaml:"run_config"`

	StartTime      time.Time     `json:"start_time" yaml:"start_time"`
	EndTime        time.Time     `json:"end_time" yaml:"end_time"`
	ProcessingTime time.Duration `json:"-" yaml:"-"`

	// gated holds the QC-gated recordings archived by the ledger
	gated []*voice.Recording
}

// GatedRecordings returns the QC-gated recordings in input order
func (r *Report) GatedRecordings() []*voice.Recording {
	return r.gated
}

// Anchors holds the soft and loud phonation anchors
type Anchors struct {
	SoftA voice.Result[anchor.Anchor] `json:"soft_a" yaml:"soft_a"`
	LoudA voice.Result[anchor.Anchor] `json:"loud_a" yaml:"loud_a"`
}

// Sustained summarizes the sustained vowel task. Reason fields are empty on success.
type Sustained struct {
	File         string        `json:"file,omitempty" yaml:"file,omitempty"`
	VoicedFrames int           `json:"voiced_frames" yaml:"voiced_frames"`
	MPTS         voice.Measure `json:"mpt_s" yaml:"mpt_s"`
	F0Median     voice.Measure `json:"f0_mean" yaml:"f0_mean"`
	SPLMedian    voice.Measure `json:"spl_dbA_est" yaml:"spl_dbA_est"`
	HNRMedian    voice.Measure `json:"hnr_db" yaml:"hnr_db"`

	FormantsSustained anchor.FormantBlock `json:"formants_sustained" yaml:"formants_sustained"`
	FormantsLow       anchor.FormantBlock `json:"formants_low" yaml:"formants_low"`
	FormantsHigh      anchor.FormantBlock `json:"formants_high" yaml:"formants_high"`

	ReasonLow       string `json:"formant_analysis_reason_low" yaml:"formant_analysis_reason_low"`
	ReasonHigh      string `json:"formant_analysis_reason_high" yaml:"formant_analysis_reason_high"`
	ReasonSustained string `json:"formant_analysis_reason_sustained" yaml:"formant_analysis_reason_sustained"`
	Failed          bool   `json:"formant_analysis_failed" yaml:"formant_analysis_failed"`
}

// SpeechFlow summarizes a connected speech recording
type SpeechFlow struct {
	File        string        `json:"file" yaml:"file"`
	DurationS   voice.Measure `json:"duration_s" yaml:"duration_s"`
	VoicedRatio voice.Measure `json:"voiced_ratio" yaml:"voiced_ratio"`
	PauseCount  int           `json:"pause_count" yaml:"pause_count"`
	F0Mean      voice.Measure `json:"f0_mean" yaml:"f0_mean"`
	F0SD        voice.Measure `json:"f0_sd" yaml:"f0_sd"`
	F0Stats     F0Stats       `json:"f0_stats" yaml:"f0_stats"`
}

// F0Stats is the f0 distribution digest of a speech recording
type F0Stats struct {
	P10    voice.Measure `json:"p10" yaml:"p10"`
	Median voice.Measure `json:"median" yaml:"median"`
	P90    voice.Measure `json:"p90" yaml:"p90"`
}

// Questionnaires holds the processed self-report scores
type Questionnaires struct {
	RBH         map[string]any    `json:"RBH,omitempty" yaml:"RBH,omitempty"`
	OVHS9Total  voice.Result[int] `json:"OVHS-9 Total" yaml:"OVHS-9 Total"`
	TVQGTotal   voice.Result[int] `json:"TVQ-G Total" yaml:"TVQ-G Total"`
	TVQGPercent string            `json:"TVQ-G Percent,omitempty" yaml:"TVQ-G Percent,omitempty"`
}
