package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/voice-metrics/configs"
)

// loadConfigFromFile overlays a YAML or JSON file onto base. Keys absent from
// the file keep their base values.
func loadConfigFromFile(filePath string, base *configs.Config) (*configs.Config, error) {
	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file does not exist: %s", filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := *base
	switch filepath.Ext(filePath) {
	case ".yaml", ".yml":
		err = decodeYAML(data, &config)
	case ".json":
		err = decodeJSON(data, &config)
	default:
		// Try YAML first, then JSON
		if err = decodeYAML(data, &config); err != nil {
			config = *base
			err = decodeJSON(data, &config)
		}
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func decodeYAML(data []byte, config *configs.Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

func decodeJSON(data []byte, config *configs.Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("failed to parse JSON config: %w", err)
	}
	return nil
}

const exampleHeader = `# voice-metrics configuration
#
# Every key is optional; omitted keys keep their defaults. Environment
# variables override file values using the VOICE_METRICS_ prefix, for
# example VOICE_METRICS_WINDOW_MIN_FRAMES=10.
#
# pipeline.version: v2 (also new, refactor, refactor_v2) or legacy. The
# ONLINE_PRAAT_ANALYSIS_PIPELINE variable is honoured as well.
# scoring.strategy: prominence, legacy_midpoint or hnr_weighted.
# calibration.mode: relative, or absolute together with noise_spl_db.

`

// GenerateExampleConfig writes the default configuration as commented YAML
func GenerateExampleConfig(outputFile string) error {
	var buf bytes.Buffer
	buf.WriteString(exampleHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(configs.GetDefaultConfig()); err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(outputFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(outputFile, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("✅ Example configuration written to: %s\n", outputFile)
	return nil
}

// ValidateConfigFile loads a configuration file over the defaults and validates it
func ValidateConfigFile(configFile string) (*configs.Config, error) {
	config, err := loadConfigFromFile(configFile, configs.GetDefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := configs.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	pipeline, _ := configs.ResolvePipeline(config.Pipeline.Version)
	fmt.Printf("✅ Configuration is valid: %s\n", configFile)
	fmt.Printf("   - Pipeline: %s\n", pipeline)
	fmt.Printf("   - Scoring strategy: %s\n", config.EffectiveStrategy())
	fmt.Printf("   - Window: %.2fs, %d frames minimum\n", config.Window.WidthS, config.Window.MinFrames)
	fmt.Printf("   - Calibration: %s\n", config.Calibration.Mode)

	return config, nil
}
