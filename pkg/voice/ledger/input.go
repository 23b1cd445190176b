package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/voice-metrics/pkg/voice"
)

// Input is one session's worth of engine output
type Input struct {
	SessionID  string             `json:"session_id" yaml:"session_id"`
	Recordings []*voice.Recording `json:"recordings" yaml:"recordings"`
	// Questionnaires is passed through undecoded to the session aggregator
	Questionnaires json.RawMessage `json:"questionnaires,omitempty" yaml:"-"`
	// RunConfig is set when the input was read back from a ledger
	RunConfig *RunConfig `json:"-" yaml:"-"`
}

// DecodeInput accepts either a bare array of recordings or an Input object
func DecodeInput(r io.Reader) (*Input, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("input is empty")
	}

	in := &Input{}
	if data[0] == '[' {
		if err := json.Unmarshal(data, &in.Recordings); err != nil {
			return nil, fmt.Errorf("failed to decode recordings: %w", err)
		}
	} else if err := json.Unmarshal(data, in); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}

	for i, rec := range in.Recordings {
		if rec == nil {
			return nil, fmt.Errorf("recording %d is null", i)
		}
		if rec.Key == "" {
			return nil, fmt.Errorf("recording %d has no key", i)
		}
	}
	return in, nil
}

// LoadInput reads a JSON input or a CSV ledger, chosen by extension
func LoadInput(path string) (*Input, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		l, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		return &Input{Recordings: l.Recordings, RunConfig: l.RunConfig}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()
	return DecodeInput(f)
}

// WriteYAMLSummary writes a per-recording frame count digest
func WriteYAMLSummary(w io.Writer, in *Input) error {
	type entry struct {
		File   string `yaml:"file"`
		Task   string `yaml:"task"`
		Frames int    `yaml:"frames"`
		Voiced int    `yaml:"voiced"`
	}
	var entries []entry
	for _, rec := range in.Recordings {
		entries = append(entries, entry{
			File:   rec.File(),
			Task:   string(rec.ResolvedTask()),
			Frames: len(rec.Frames),
			Voiced: rec.VoicedCount(),
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return enc.Close()
}
