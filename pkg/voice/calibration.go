package voice

import "fmt"

// Calibration modes
const (
	CalibrationRelative = "relative"
	CalibrationAbsolute = "absolute"
)

// Calibration maps engine intensity to sound pressure level.
// Values are immutable; Apply returns a new Calibration.
type Calibration struct {
	Mode       string   `json:"mode" yaml:"mode"`
	NoiseSPLDB *float64 `json:"noise_spl_db" yaml:"noise_spl_db"`
	OffsetDB   float64  `json:"calibration_offset_db" yaml:"calibration_offset_db"`
	SPLKind    string   `json:"spl_kind" yaml:"spl_kind"`
}

// NewCalibration returns an uncalibrated (zero offset) record for mode
func NewCalibration(mode string, noiseSPLDB *float64) Calibration {
	return Calibration{Mode: mode, NoiseSPLDB: noiseSPLDB, SPLKind: CalibrationRelative}
}

// Validate checks the mode and the reference level required by absolute mode
func (c Calibration) Validate() error {
	switch c.Mode {
	case CalibrationRelative:
		return nil
	case CalibrationAbsolute:
		if c.NoiseSPLDB == nil || !IsFinite(*c.NoiseSPLDB) {
			return NewConfigurationError("absolute calibration requires noise_spl_db", nil)
		}
		return nil
	}
	return NewConfigurationError(fmt.Sprintf("unknown calibration mode %q", c.Mode), nil)
}

// Apply derives the offset from the measured mean noise intensity
func (c Calibration) Apply(noiseIntensityDB float64) (Calibration, error) {
	if err := c.Validate(); err != nil {
		return c, err
	}
	if !IsFinite(noiseIntensityDB) {
		return c, nil
	}

	out := Calibration{Mode: c.Mode, NoiseSPLDB: c.NoiseSPLDB}
	if c.Mode == CalibrationAbsolute {
		out.OffsetDB = *c.NoiseSPLDB - noiseIntensityDB
		out.SPLKind = CalibrationAbsolute
		return out, nil
	}
	out.OffsetDB = -noiseIntensityDB
	out.SPLKind = CalibrationRelative
	return out, nil
}

// SPL converts an intensity value to calibrated SPL
func (c Calibration) SPL(intensityDB float64) float64 {
	if !IsFinite(intensityDB) {
		return NaN()
	}
	return intensityDB + c.OffsetDB
}
