// Package voice holds the data model shared by the confidence and selection
// engine: frames from the acoustic estimation engine, recordings, task labels,
// calibration and the tagged result types returned by every aggregate.
package voice

import (
	"encoding/json"
	"math"
	"strings"
)

// NumFormants is the number of formant slots carried per frame
const NumFormants = 3

// Formant is one formant slot of a frame. Missing values are NaN.
type Formant struct {
	FrequencyHz float64
	BandwidthHz float64
}

// Frame is one analysis instant as delivered by the acoustic estimation engine.
// Optional values are NaN when absent.
type Frame struct {
	Time              float64
	F0                float64
	VoicingConfidence float64
	Formants          [NumFormants]Formant
	IntensityDB       float64
	HNRDB             float64

	// SPLDB is IntensityDB shifted by the session calibration offset
	SPLDB float64

	// QCFlags holds the names of every rule the frame tripped, in rule order
	QCFlags []string

	// ProminenceDB holds the envelope prominence of each formant slot as
	// measured when the frame was scored against audio. It is nil when no
	// envelope was available; NaN marks a slot that was not scored.
	ProminenceDB []float64
}

// NaN returns a missing value
func NaN() float64 {
	return math.NaN()
}

// IsFinite reports whether v is a usable measurement
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// NewFrame returns a frame at time t with every optional value missing
func NewFrame(t float64) Frame {
	f := Frame{
		Time:              t,
		F0:                math.NaN(),
		VoicingConfidence: math.NaN(),
		IntensityDB:       math.NaN(),
		HNRDB:             math.NaN(),
		SPLDB:             math.NaN(),
	}
	for i := range f.Formants {
		f.Formants[i] = Formant{FrequencyHz: math.NaN(), BandwidthHz: math.NaN()}
	}
	return f
}

// Voiced reports whether the frame has a finite, positive f0
func (f Frame) Voiced() bool {
	return IsFinite(f.F0) && f.F0 > 0
}

// FormantHz returns the n-th (1-based) formant frequency
func (f Frame) FormantHz(n int) float64 {
	if n < 1 || n > NumFormants {
		return math.NaN()
	}
	return f.Formants[n-1].FrequencyHz
}

// BandwidthHz returns the n-th (1-based) formant bandwidth
func (f Frame) BandwidthHz(n int) float64 {
	if n < 1 || n > NumFormants {
		return math.NaN()
	}
	return f.Formants[n-1].BandwidthHz
}

// FlagString joins the QC flags with "|" for the ledger
func (f Frame) FlagString() string {
	return strings.Join(f.QCFlags, "|")
}

// HasFlag reports whether the frame carries the named QC flag
func (f Frame) HasFlag(name string) bool {
	for _, fl := range f.QCFlags {
		if fl == name {
			return true
		}
	}
	return false
}

// Prominence returns the recorded prominence of the n-th (1-based) slot
func (f Frame) Prominence(n int) (float64, bool) {
	if n < 1 || n > len(f.ProminenceDB) {
		return math.NaN(), false
	}
	v := f.ProminenceDB[n-1]
	return v, IsFinite(v)
}

// Clone returns a deep copy so gating never aliases the caller's slices
func (f Frame) Clone() Frame {
	out := f
	if f.QCFlags != nil {
		out.QCFlags = append([]string(nil), f.QCFlags...)
	}
	if f.ProminenceDB != nil {
		out.ProminenceDB = append([]float64(nil), f.ProminenceDB...)
	}
	return out
}

// frameJSON is the wire shape of a frame: missing values travel as null
type frameJSON struct {
	Time              float64  `json:"time_s"`
	F0                *float64 `json:"f0_hz"`
	VoicingConfidence *float64 `json:"voicing_prob"`
	F1                *float64 `json:"f1_hz"`
	F2                *float64 `json:"f2_hz"`
	F3                *float64 `json:"f3_hz"`
	B1                *float64 `json:"b1_hz"`
	B2                *float64 `json:"b2_hz"`
	B3                *float64 `json:"b3_hz"`
	IntensityDB       *float64 `json:"intensity_db"`
	HNRDB             *float64 `json:"hnr_db"`
	SPLDB             *float64 `json:"spl_db,omitempty"`
	QCFlags           string   `json:"qc_flags,omitempty"`
}

func ptr(v float64) *float64 {
	if !IsFinite(v) {
		return nil
	}
	return &v
}

func val(p *float64) float64 {
	if p == nil || !IsFinite(*p) {
		return math.NaN()
	}
	return *p
}

// MarshalJSON encodes missing values as null
func (f Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal(frameJSON{
		Time:              f.Time,
		F0:                ptr(f.F0),
		VoicingConfidence: ptr(f.VoicingConfidence),
		F1:                ptr(f.Formants[0].FrequencyHz),
		F2:                ptr(f.Formants[1].FrequencyHz),
		F3:                ptr(f.Formants[2].FrequencyHz),
		B1:                ptr(f.Formants[0].BandwidthHz),
		B2:                ptr(f.Formants[1].BandwidthHz),
		B3:                ptr(f.Formants[2].BandwidthHz),
		IntensityDB:       ptr(f.IntensityDB),
		HNRDB:             ptr(f.HNRDB),
		SPLDB:             ptr(f.SPLDB),
		QCFlags:           f.FlagString(),
	})
}

// UnmarshalJSON decodes null or absent values as NaN. A zero f0 means unvoiced.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var w frameJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*f = NewFrame(w.Time)
	f.F0 = val(w.F0)
	if f.F0 == 0 {
		f.F0 = math.NaN()
	}
	f.VoicingConfidence = val(w.VoicingConfidence)
	f.Formants[0] = Formant{FrequencyHz: val(w.F1), BandwidthHz: val(w.B1)}
	f.Formants[1] = Formant{FrequencyHz: val(w.F2), BandwidthHz: val(w.B2)}
	f.Formants[2] = Formant{FrequencyHz: val(w.F3), BandwidthHz: val(w.B3)}
	f.IntensityDB = val(w.IntensityDB)
	f.HNRDB = val(w.HNRDB)
	f.SPLDB = val(w.SPLDB)
	if w.QCFlags != "" {
		f.QCFlags = strings.Split(w.QCFlags, "|")
	}
	return nil
}
