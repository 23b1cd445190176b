package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/voice-metrics/configs"
	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/ledger"
)

func vowel(key string, n int, intensity float64) *voice.Recording {
	rec := &voice.Recording{Key: key, SampleRate: 16000, TimeStep: 0.01}
	for i := 0; i < n; i++ {
		f := voice.NewFrame(float64(i) * 0.01)
		f.F0 = 180
		f.VoicingConfidence = 0.95
		f.HNRDB = 18
		f.IntensityDB = intensity
		f.Formants[0] = voice.Formant{FrequencyHz: 650, BandwidthHz: 80}
		f.Formants[1] = voice.Formant{FrequencyHz: 1100, BandwidthHz: 120}
		f.Formants[2] = voice.Formant{FrequencyHz: 2500, BandwidthHz: 160}
		rec.Frames = append(rec.Frames, f)
	}
	return rec
}

func silence(key string, n int, intensity float64) *voice.Recording {
	rec := &voice.Recording{Key: key, SampleRate: 16000, TimeStep: 0.01}
	for i := 0; i < n; i++ {
		f := voice.NewFrame(float64(i) * 0.01)
		f.IntensityDB = intensity
		rec.Frames = append(rec.Frames, f)
	}
	return rec
}

func writeInput(t *testing.T) string {
	t.Helper()
	in := ledger.Input{
		SessionID: "app-session",
		Recordings: []*voice.Recording{
			silence("app-session/1/1_1.wav", 30, 32),
			vowel("app-session/2/2_1.wav", 80, 70),
			vowel("app-session/3/3_1.wav", 60, 75),
			vowel("app-session/4/4_1.wav", 40, 60),
		},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func newTestApp(t *testing.T, ctx *Context) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	ctx.Logger = logging.NewNopLogger()
	ctx.Stdout = &out
	app, err := NewApp(ctx)
	require.NoError(t, err)
	return app, &out
}

func TestRunWritesJSONReportAndLedger(t *testing.T) {
	ledgerDir := t.TempDir()
	app, out := newTestApp(t, &Context{
		InputFile:    writeInput(t),
		OutputFormat: "json",
		LedgerDir:    ledgerDir,
	})

	require.NoError(t, app.Run(context.Background()))

	var report map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "app-session", report["session_id"])
	assert.Equal(t, "v2", report["pipeline"])

	anchors := report["anchors"].(map[string]any)
	soft := anchors["soft_a"].(map[string]any)
	assert.Equal(t, "available", soft["status"])
	loud := anchors["loud_a"].(map[string]any)
	assert.Equal(t, "unavailable", loud["status"])
	assert.Equal(t, voice.ReasonNoRows, loud["reason"])

	// debug frames are stripped unless requested
	recordings := report["recordings"].([]any)
	require.Len(t, recordings, 4)
	summary := recordings[1].(map[string]any)["summary"].(map[string]any)
	assert.Equal(t, "available", summary["status"])
	assert.NotContains(t, summary["value"], "debug_frames")

	sessionDir := filepath.Join(ledgerDir, "app-session")
	assert.FileExists(t, filepath.Join(sessionDir, ledger.FileName))
	assert.FileExists(t, filepath.Join(sessionDir, ledger.RunConfigFileName))

	// a replay of the ledger reproduces the anchors
	replayApp, replayOut := newTestApp(t, &Context{
		InputFile:    filepath.Join(sessionDir, ledger.FileName),
		OutputFormat: "json",
	})
	require.NoError(t, replayApp.Run(context.Background()))

	var replayed map[string]any
	require.NoError(t, json.Unmarshal(replayOut.Bytes(), &replayed))
	assert.Equal(t, "app-session", replayed["session_id"])
	assert.Equal(t, true, replayed["replayed"])
	assert.Equal(t, report["anchors"], replayed["anchors"])
	assert.Equal(t, report["sustained"], replayed["sustained"])
	assert.Equal(t, report["vrp"], replayed["vrp"])
}

func TestRunReadsStdin(t *testing.T) {
	data, err := os.ReadFile(writeInput(t))
	require.NoError(t, err)

	app, out := newTestApp(t, &Context{
		InputFile:    "-",
		OutputFormat: "yaml",
		SessionID:    "override",
	})
	app.ctx.Stdin = bytes.NewReader(data)

	require.NoError(t, app.Run(context.Background()))
	assert.Contains(t, out.String(), "session_id: override")
	assert.Contains(t, out.String(), "status: available")
}

func TestFormatters(t *testing.T) {
	app, _ := newTestApp(t, &Context{InputFile: writeInput(t)})
	report, err := app.Analyze(context.Background())
	require.NoError(t, err)

	table, err := (&TableFormatter{Precision: 1}).Format(report)
	require.NoError(t, err)
	text := string(table)
	assert.Contains(t, text, "Session app-session")
	assert.Contains(t, text, "Vowel Mpt")
	assert.Contains(t, text, "Soft A")
	assert.Contains(t, text, "no_voiced_frames")
	assert.Contains(t, text, "650.0")

	data, err := (&CSVFormatter{Precision: 2}).Format(report)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "1_1.wav", rows[1][0])
	assert.Equal(t, "no_voiced_frames", rows[1][2])
	assert.Equal(t, "", rows[1][5])
	assert.Equal(t, "650.00", rows[2][6])

	_, err = NewFormatter("xml", 2, false)
	assert.Error(t, err)
}

func TestTaskLabel(t *testing.T) {
	assert.Equal(t, "Glide Up", taskLabel("glide_up"))
	assert.Equal(t, "Loud A", taskLabel("loud_a"))
}

func TestLoadConfigFromFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voice-metrics.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window:\n  min_frames: 12\nscoring:\n  strategy: hnr_weighted\nsession:\n  timeout: 30s\n"), 0644))

	cfg, err := loadConfigFromFile(path, configs.GetDefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Window.MinFrames)
	assert.Equal(t, 0.25, cfg.Window.WidthS)
	assert.Equal(t, "hnr_weighted", cfg.Scoring.Strategy)
	assert.Equal(t, "30s", cfg.Session.Timeout.String())

	jsonPath := filepath.Join(dir, "override.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"vrp":{"min_bin_count":3}}`), 0644))
	cfg, err = loadConfigFromFile(jsonPath, configs.GetDefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.VRP.MinBinCount)
	assert.Equal(t, 3.0, cfg.VRP.MADFactor)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("window:\n  bogus: 1\n"), 0644))
	_, err = loadConfigFromFile(badPath, configs.GetDefaultConfig())
	assert.Error(t, err)

	_, err = loadConfigFromFile(filepath.Join(dir, "missing.yaml"), configs.GetDefaultConfig())
	assert.Error(t, err)
}

func TestGenerateExampleConfigValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "voice-metrics.yaml")
	require.NoError(t, GenerateExampleConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# voice-metrics configuration"))

	cfg, err := ValidateConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, configs.GetDefaultConfig().Window, cfg.Window)
}

func TestValidateConfigFileRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("calibration:\n  mode: absolute\n"), 0644))

	_, err := ValidateConfigFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, voice.ErrConfiguration)
}

func TestSessionIDFromPath(t *testing.T) {
	assert.Equal(t, "abc", sessionIDFromPath("/data/abc/ALL.frames.csv"))
	assert.Equal(t, "session-7", sessionIDFromPath("/data/session-7.json"))
}
