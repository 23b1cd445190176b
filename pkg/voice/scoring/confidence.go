// Package scoring turns formant candidates into confidences. Scoring formulas
// are interchangeable strategies chosen by name; the ordering validator then
// penalizes frames whose formants cross or crowd each other.
package scoring

import (
	"math"

	"github.com/RyanBlaney/voice-metrics/pkg/voice/envelope"
)

// Contract constants shared by every strategy
const (
	BandwidthLowHz    = 80.0
	BandwidthHighHz   = 600.0
	BandwidthDecayHz  = 500.0
	BandwidthMidHz    = 340.0
	ProminenceFloorDB = 3.0
	ProminenceFullDB  = 6.0
	NeutralProminence = 0.5
	HarmonicTolerance = 0.03
	HarmonicPenalty   = 0.2

	ProminenceWeight = 0.6
	BandwidthWeight  = 0.4
)

// Candidate is one formant slot of a frame presented for scoring
type Candidate struct {
	Slot        int     `json:"slot"`
	FrequencyHz float64 `json:"frequency_hz"`
	BandwidthHz float64 `json:"bandwidth_hz"`
	F0Hz        float64 `json:"f0_hz"`
	HNRDB       float64 `json:"hnr_db"`

	// RecordedProminenceDB is the prominence archived with the frame. It
	// stands in for the envelope when no audio is available.
	RecordedProminenceDB *float64 `json:"-"`
}

// Scored is a candidate with its confidence and the components behind it
type Scored struct {
	Candidate
	Confidence      float64 `json:"confidence"`
	ProminenceDB    float64 `json:"prominence_db"`
	BandwidthScore  float64 `json:"bandwidth_score"`
	ProminenceScore float64 `json:"prominence_score"`
	Penalty         float64 `json:"harmonic_penalty"`
}

// Strategy is one confidence formula
type Strategy interface {
	Name() string
	Score(c Candidate, env *envelope.Envelope) Scored
}

// BandwidthScore is 1 inside [80, 600] Hz and falls linearly to 0 over the
// 500 Hz beyond the nearest boundary
func BandwidthScore(bandwidthHz float64) float64 {
	if math.IsNaN(bandwidthHz) {
		return 0
	}
	var d float64
	switch {
	case bandwidthHz < BandwidthLowHz:
		d = BandwidthLowHz - bandwidthHz
	case bandwidthHz > BandwidthHighHz:
		d = bandwidthHz - BandwidthHighHz
	default:
		return 1
	}
	return math.Max(0, 1-d/BandwidthDecayHz)
}

// MidpointBandwidthScore is the earlier formula measuring distance from the
// 340 Hz midpoint outside the plausible range
func MidpointBandwidthScore(bandwidthHz float64) float64 {
	if math.IsNaN(bandwidthHz) {
		return 0
	}
	if bandwidthHz >= BandwidthLowHz && bandwidthHz <= BandwidthHighHz {
		return 1
	}
	return math.Max(0, 1-math.Abs(bandwidthHz-BandwidthMidHz)/BandwidthDecayHz)
}

// ProminenceScore ramps from 0 at 3 dB to 1 at 6 dB
func ProminenceScore(prominenceDB float64) float64 {
	switch {
	case prominenceDB >= ProminenceFullDB:
		return 1
	case prominenceDB < ProminenceFloorDB || math.IsNaN(prominenceDB):
		return 0
	}
	return (prominenceDB - ProminenceFloorDB) / (ProminenceFullDB - ProminenceFloorDB)
}

// HarmonicProximityPenalty returns the penalty for a weak peak sitting within
// 3% of a harmonic of f0
func HarmonicProximityPenalty(freqHz, f0Hz, prominenceDB float64) float64 {
	if !(f0Hz > 0) || !(freqHz > 0) || math.IsInf(f0Hz, 0) {
		return 0
	}
	harmonic := math.RoundToEven(freqHz / f0Hz)
	rel := math.Abs(freqHz-harmonic*f0Hz) / freqHz
	if rel < HarmonicTolerance && prominenceDB < ProminenceFullDB {
		return HarmonicPenalty
	}
	return 0
}

// measureProminence returns the envelope prominence and its score. Without
// an envelope it falls back to the recorded prominence, then to the neutral score.
func measureProminence(c Candidate, env *envelope.Envelope, windowHz float64) (db, score float64) {
	if env.Len() == 0 {
		if c.RecordedProminenceDB != nil {
			db = *c.RecordedProminenceDB
			return db, ProminenceScore(db)
		}
		return 0, NeutralProminence
	}
	db = envelope.Prominence(env, c.FrequencyHz, windowHz)
	return db, ProminenceScore(db)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
