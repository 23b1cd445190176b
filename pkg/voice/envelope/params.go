package envelope

// AnalysisParams are the formant-tracking settings chosen for a voice
type AnalysisParams struct {
	MaxFormantHz  float64 `json:"max_formant_hz" yaml:"max_formant_hz"`
	WindowLengthS float64 `json:"window_length_s" yaml:"window_length_s"`
	HighPitch     bool    `json:"is_high_pitch" yaml:"is_high_pitch"`
	LifterMS      float64 `json:"lifter_ms" yaml:"lifter_ms"`
}

// PickParams selects the formant ceiling and analysis window from the median
// pitch. A missing median is treated as a low voice.
func PickParams(f0MedianHz float64, cfg Config) AnalysisParams {
	p := AnalysisParams{
		LifterMS: LifterMS(f0MedianHz, cfg),
	}
	switch {
	case !(f0MedianHz >= 220):
		p.MaxFormantHz, p.WindowLengthS = 5000, 0.025
	case f0MedianHz < 280:
		p.MaxFormantHz, p.WindowLengthS = 5500, 0.030
	default:
		p.MaxFormantHz, p.WindowLengthS = 5500, 0.035
		p.HighPitch = true
	}
	return p
}
