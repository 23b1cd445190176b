// Package envelope estimates smooth spectral envelopes by cepstral liftering
// and measures how far a formant candidate's peak stands above its valleys.
package envelope

import (
	"math"
	"math/cmplx"

	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Envelope is a smoothed log-magnitude spectrum sampled on a uniform frequency grid
type Envelope struct {
	FrequencyHz []float64 `json:"frequency_hz"`
	MagnitudeDB []float64 `json:"magnitude_db"`
}

// Len returns the number of bins
func (e *Envelope) Len() int {
	if e == nil {
		return 0
	}
	return len(e.MagnitudeDB)
}

// BinHz returns the spacing between bins
func (e *Envelope) BinHz() float64 {
	if e.Len() < 2 {
		return 0
	}
	return e.FrequencyHz[1] - e.FrequencyHz[0]
}

// NearestBin returns the index of the bin closest to freqHz; ties go to the lower bin
func (e *Envelope) NearestBin(freqHz float64) int {
	n := e.Len()
	if n == 0 {
		return -1
	}
	bin := e.BinHz()
	if bin <= 0 || freqHz <= e.FrequencyHz[0] {
		return 0
	}
	idx := int(math.Floor((freqHz - e.FrequencyHz[0]) / bin))
	if idx >= n-1 {
		return n - 1
	}
	if freqHz-e.FrequencyHz[idx] > e.FrequencyHz[idx+1]-freqHz {
		idx++
	}
	return idx
}

// Config holds the estimator constants
type Config struct {
	// MaxFFTSize caps the zero-padded transform length
	MaxFFTSize int `json:"max_fft_size" yaml:"max_fft_size" mapstructure:"max_fft_size"`
	// Floor is added to magnitudes before any logarithm
	Floor float64 `json:"floor" yaml:"floor" mapstructure:"floor"`
	// DefaultLifterMS is used when no pitch estimate is available
	DefaultLifterMS float64 `json:"default_lifter_ms" yaml:"default_lifter_ms" mapstructure:"default_lifter_ms"`
	MinLifterMS     float64 `json:"min_lifter_ms" yaml:"min_lifter_ms" mapstructure:"min_lifter_ms"`
	MaxLifterMS     float64 `json:"max_lifter_ms" yaml:"max_lifter_ms" mapstructure:"max_lifter_ms"`
	// ProminenceWindowHz is the half-width searched for flanking valleys
	ProminenceWindowHz float64 `json:"prominence_window_hz" yaml:"prominence_window_hz" mapstructure:"prominence_window_hz"`
	// MinSegmentS skips envelopes for voiced runs shorter than this
	MinSegmentS float64 `json:"min_segment_s" yaml:"min_segment_s" mapstructure:"min_segment_s"`
}

// DefaultConfig returns the production constants
func DefaultConfig() Config {
	return Config{
		MaxFFTSize:         131072,
		Floor:              1e-12,
		DefaultLifterMS:    2.8,
		MinLifterMS:        1.5,
		MaxLifterMS:        3.0,
		ProminenceWindowHz: 150,
		MinSegmentS:        0.08,
	}
}

// Estimator computes cepstrally smoothed envelopes
type Estimator struct {
	cfg    Config
	logger logging.Logger
}

// NewEstimator creates an envelope estimator
func NewEstimator(cfg Config, logger logging.Logger) *Estimator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Estimator{
		cfg: cfg,
		logger: logger.WithFields(logging.Fields{
			"component": "envelope_estimator",
		}),
	}
}

// Config returns the estimator constants
func (e *Estimator) Config() Config {
	return e.cfg
}

// FFTSize returns the transform length used for a segment of n samples: the next
// power of two at least twice n, capped at MaxFFTSize
func (e *Estimator) FFTSize(n int) int {
	if n <= 0 {
		return 0
	}
	size := 1 << (int(math.Ceil(math.Log2(float64(n)))) + 1)
	if e.cfg.MaxFFTSize > 0 && size > e.cfg.MaxFFTSize {
		size = e.cfg.MaxFFTSize
	}
	return size
}

// Estimate returns the envelope of segment, or nil when the segment is empty or
// the sample rate is unusable. Zero-energy input yields a flat envelope at the floor.
func (e *Estimator) Estimate(segment []float64, sampleRate, lifterMS float64) *Envelope {
	if len(segment) == 0 || sampleRate <= 0 {
		return nil
	}

	nfft := e.FFTSize(len(segment))
	n := min(len(segment), nfft)

	logger := e.logger.WithFields(logging.Fields{
		"function":    "Estimate",
		"samples":     len(segment),
		"nfft":        nfft,
		"lifter_ms":   lifterMS,
		"sample_rate": sampleRate,
	})

	// Taper, then zero-pad to nfft
	padded := make([]float64, nfft)
	copy(padded, segment[:n])
	window.Apply(padded[:n], window.Hann)

	spectrum := fft.FFTReal(padded)
	logMag := make([]complex128, nfft)
	for k, c := range spectrum {
		logMag[k] = complex(math.Log(cmplx.Abs(c)+e.cfg.Floor), 0)
	}

	ceps := fft.IFFT(logMag)

	// Low-pass lifter, keeping both halves of the even cepstrum so the
	// smoothed log spectrum stays real
	qCut := int(lifterMS * 1e-3 * sampleRate)
	if qCut < nfft/2 {
		for q := qCut + 1; q < nfft-qCut; q++ {
			ceps[q] = 0
		}
	}

	smoothed := fft.FFT(ceps)

	bins := nfft/2 + 1
	env := &Envelope{
		FrequencyHz: make([]float64, bins),
		MagnitudeDB: make([]float64, bins),
	}
	for k := 0; k < bins; k++ {
		env.FrequencyHz[k] = float64(k) * sampleRate / float64(nfft)
		env.MagnitudeDB[k] = 20 * math.Log10(math.Max(math.Exp(real(smoothed[k])), e.cfg.Floor))
	}

	logger.Debug("Envelope estimated", logging.Fields{
		"bins":   bins,
		"bin_hz": env.BinHz(),
		"q_cut":  qCut,
	})

	return env
}

// LifterMS adapts the lifter cutoff to the voice: a shorter cutoff for higher
// pitch, clamped to [MinLifterMS, MaxLifterMS]
func (e *Estimator) LifterMS(f0MedianHz float64) float64 {
	return LifterMS(f0MedianHz, e.cfg)
}

// LifterMS is the configuration-explicit form of Estimator.LifterMS
func LifterMS(f0MedianHz float64, cfg Config) float64 {
	if math.IsNaN(f0MedianHz) || math.IsInf(f0MedianHz, 0) || f0MedianHz <= 0 {
		return cfg.DefaultLifterMS
	}
	return math.Min(cfg.MaxLifterMS, math.Max(cfg.MinLifterMS, 0.8*(1000.0/f0MedianHz)))
}
