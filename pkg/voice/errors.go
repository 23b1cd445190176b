package voice

import "errors"

// ErrorKind classifies an analysis failure
type ErrorKind string

const (
	// KindInputUnavailable means a recording carries no usable voiced data
	KindInputUnavailable ErrorKind = "input_unavailable"
	// KindInsufficientEvidence means data exists but not enough to meet a minimum count
	KindInsufficientEvidence ErrorKind = "insufficient_evidence"
	// KindConfiguration marks malformed constants, fatal at startup
	KindConfiguration ErrorKind = "configuration_error"
)

// Reason codes surfaced next to unavailable values
const (
	ReasonSuccess                  = "SUCCESS"
	ReasonNoRecording              = "no_recording"
	ReasonNoVoicedFrames           = "no_voiced_frames"
	ReasonNoRows                   = "no_rows"
	ReasonNoFileRows               = "no_file_rows"
	ReasonInvalidTimeRange         = "invalid_time_range"
	ReasonInsufficientStableFrames = "insufficient_stable_frames"
	ReasonNoGlideRows              = "no_glide_rows"
	ReasonNoValidVoicedGlideFrames = "no_valid_voiced_glide_frames"
	ReasonLowProminence            = "LOW_PROMINENCE"
	ReasonInvalidConfiguration     = "invalid_configuration"
	ReasonIncompleteQuestionnaire  = "incomplete_questionnaire"
)

// AnalysisError carries a failure kind, a stable reason code and the recording it concerns
type AnalysisError struct {
	Kind      ErrorKind `json:"kind"`
	Code      string    `json:"code"`
	Recording string    `json:"recording,omitempty"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
}

func (e *AnalysisError) Error() string {
	msg := string(e.Kind)
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Recording != "" {
		msg += " " + e.Recording
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// Is matches on kind, and on code when the target names one
func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Sentinels for errors.Is checks by kind
var (
	ErrInputUnavailable     = &AnalysisError{Kind: KindInputUnavailable}
	ErrInsufficientEvidence = &AnalysisError{Kind: KindInsufficientEvidence}
	ErrConfiguration        = &AnalysisError{Kind: KindConfiguration}
)

// NewInputUnavailable reports a recording without usable voiced data
func NewInputUnavailable(recording, code, message string) *AnalysisError {
	return &AnalysisError{Kind: KindInputUnavailable, Code: code, Recording: recording, Message: message}
}

// NewInsufficientEvidence reports data below a minimum count
func NewInsufficientEvidence(recording, code, message string) *AnalysisError {
	return &AnalysisError{Kind: KindInsufficientEvidence, Code: code, Recording: recording, Message: message}
}

// NewConfigurationError wraps a validation failure
func NewConfigurationError(message string, cause error) *AnalysisError {
	return &AnalysisError{Kind: KindConfiguration, Code: ReasonInvalidConfiguration, Message: message, Cause: cause}
}

// ReasonOf extracts the reason code from err, falling back to its message
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var ae *AnalysisError
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return err.Error()
}
