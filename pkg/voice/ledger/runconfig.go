package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/voice-metrics/pkg/voice"
)

// RunConfigFileName is the conventional name of the run configuration file
const RunConfigFileName = "run_config.json"

// RunConfig records every constant a session was analyzed with
type RunConfig struct {
	TimestampUTC time.Time         `json:"timestamp_utc"`
	Params       json.RawMessage   `json:"params"`
	Calibration  voice.Calibration `json:"calibration"`
}

// NewRunConfig snapshots params (any JSON-encodable value) and calibration
func NewRunConfig(now time.Time, params any, calib voice.Calibration) (*RunConfig, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run params: %w", err)
	}
	return &RunConfig{
		TimestampUTC: now.UTC(),
		Params:       raw,
		Calibration:  calib,
	}, nil
}

// Compact returns the single-line JSON stored in every ledger row
func (rc *RunConfig) Compact() (string, error) {
	data, err := json.Marshal(rc)
	if err != nil {
		return "", fmt.Errorf("failed to encode run config: %w", err)
	}
	return string(data), nil
}

// DecodeParams unmarshals the recorded params into v
func (rc *RunConfig) DecodeParams(v any) error {
	if len(rc.Params) == 0 {
		return fmt.Errorf("run config has no params")
	}
	if err := json.Unmarshal(rc.Params, v); err != nil {
		return fmt.Errorf("failed to decode run params: %w", err)
	}
	return nil
}

// MarshalYAML renders params as a mapping rather than raw bytes
func (rc *RunConfig) MarshalYAML() (any, error) {
	var params any
	if len(rc.Params) > 0 {
		if err := json.Unmarshal(rc.Params, &params); err != nil {
			return nil, err
		}
	}
	return struct {
		TimestampUTC string            `yaml:"timestamp_utc"`
		Params       any               `yaml:"params"`
		Calibration  voice.Calibration `yaml:"calibration"`
	}{
		TimestampUTC: rc.TimestampUTC.Format(time.RFC3339Nano),
		Params:       params,
		Calibration:  rc.Calibration,
	}, nil
}

// ParseRunConfig decodes the JSON form of a run config
func ParseRunConfig(data []byte) (*RunConfig, error) {
	var rc RunConfig
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("failed to parse run config: %w", err)
	}
	return &rc, nil
}

// WriteJSON writes the indented run_config.json form
func (rc *RunConfig) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rc); err != nil {
		return fmt.Errorf("failed to write run config: %w", err)
	}
	return nil
}

// WriteYAML writes the run config as YAML
func (rc *RunConfig) WriteYAML(w io.Writer) (err error) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer multierr.AppendInvoke(&err, multierr.Close(enc))
	if err := enc.Encode(rc); err != nil {
		return fmt.Errorf("failed to write run config: %w", err)
	}
	return nil
}

// SaveRunConfig writes run_config.json to path
func SaveRunConfig(path string, rc *RunConfig) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create run config file: %w", err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))
	return rc.WriteJSON(f)
}
