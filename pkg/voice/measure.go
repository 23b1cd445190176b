package voice

import (
	"encoding/json"
	"math"
)

// Measure is a reported value that may be missing. Missing values encode as null
// so a report never shows a bare zero in place of an absent measurement.
type Measure float64

// Missing is the zero-information Measure
func Missing() Measure {
	return Measure(math.NaN())
}

// Known reports whether the measure holds a finite value
func (m Measure) Known() bool {
	return IsFinite(float64(m))
}

// Float returns the raw value, NaN when missing
func (m Measure) Float() float64 {
	return float64(m)
}

// Round returns the measure rounded to the given number of decimals
func (m Measure) Round(decimals int) Measure {
	if !m.Known() {
		return m
	}
	p := math.Pow(10, float64(decimals))
	return Measure(math.Round(float64(m)*p) / p)
}

func (m Measure) MarshalJSON() ([]byte, error) {
	if !m.Known() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(m))
}

func (m *Measure) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Missing()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Measure(v)
	return nil
}

// MarshalYAML emits null for missing values
func (m Measure) MarshalYAML() (any, error) {
	if !m.Known() {
		return nil, nil
	}
	return float64(m), nil
}
