// Package app wires configuration, input loading, session analysis and
// report output into the command line application.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/voice-metrics/configs"
	"github.com/RyanBlaney/voice-metrics/internal/observe"
	"github.com/RyanBlaney/voice-metrics/internal/session"
	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/ledger"
)

// Context holds the application context and configuration
type Context struct {
	// CLI arguments
	ConfigFile   string // Application configuration file (optional)
	InputFile    string // Frame input (JSON) or ledger (CSV), "-" for stdin
	OutputFile   string
	OutputFormat string
	LedgerDir    string
	SessionID    string
	Timeout      time.Duration
	LogLevel     string
	Verbose      bool
	Quiet        bool

	// Runtime context
	Logger logging.Logger
	Config *configs.Config
	Stdin  io.Reader
	Stdout io.Writer
}

// App handles the analysis application lifecycle
type App struct {
	ctx     *Context
	config  *configs.Config
	logger  logging.Logger
	metrics *observe.Metrics
}

// NewApp loads and validates configuration and creates the application
func NewApp(ctx *Context) (*App, error) {
	// Set up logging
	logger := setupLogging(ctx)
	ctx.Logger = logger

	// Load configuration
	config, err := loadAndMergeConfig(ctx)
	if err != nil {
		logger.Error(err, "Configuration rejected")
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	ctx.Config = config

	if ctx.Stdin == nil {
		ctx.Stdin = os.Stdin
	}
	if ctx.Stdout == nil {
		ctx.Stdout = os.Stdout
	}

	logger.Debug("Application initialized", logging.Fields{
		"config_file":   ctx.ConfigFile,
		"input_file":    ctx.InputFile,
		"output_format": ctx.OutputFormat,
		"pipeline":      config.Pipeline.Version,
		"strategy":      config.EffectiveStrategy(),
	})

	return &App{
		ctx:     ctx,
		config:  config,
		logger:  logger,
		metrics: observe.DefaultMetrics(),
	}, nil
}

// Config returns the effective configuration
func (app *App) Config() *configs.Config {
	return app.config
}

// LoadInput reads the session input named by the context
func (app *App) LoadInput() (*ledger.Input, error) {
	var (
		in  *ledger.Input
		err error
	)
	if app.ctx.InputFile == "" || app.ctx.InputFile == "-" {
		in, err = ledger.DecodeInput(app.ctx.Stdin)
	} else {
		in, err = ledger.LoadInput(app.ctx.InputFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load input: %w", err)
	}

	if app.ctx.SessionID != "" {
		in.SessionID = app.ctx.SessionID
	}
	if in.SessionID == "" && app.ctx.InputFile != "" && app.ctx.InputFile != "-" {
		in.SessionID = sessionIDFromPath(app.ctx.InputFile)
	}
	return in, nil
}

// sessionIDFromPath derives a session id from an input path. A ledger is
// named after its directory, other inputs after the file stem.
func sessionIDFromPath(path string) string {
	base := filepath.Base(path)
	if base == ledger.FileName {
		return filepath.Base(filepath.Dir(path))
	}
	return base[:len(base)-len(filepath.Ext(base))]
}

// Analyze runs one session over the configured input
func (app *App) Analyze(ctx context.Context) (*session.Report, error) {
	in, err := app.LoadInput()
	if err != nil {
		return nil, err
	}

	orchestrator, err := session.NewOrchestrator(app.config, app.logger, app.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create session orchestrator: %w", err)
	}

	report, err := orchestrator.Run(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("session analysis failed: %w", err)
	}
	return report, nil
}

// Run analyzes the input, archives the ledger when configured and writes the report
func (app *App) Run(ctx context.Context) error {
	report, err := app.Analyze(ctx)
	if err != nil {
		return err
	}

	if app.config.Output.LedgerDir != "" && !report.Replayed {
		if _, err := app.writeLedger(report); err != nil {
			return err
		}
	}

	return app.OutputReport(report)
}

// Export analyzes the input and archives its ledger without writing a report.
// It returns the session ledger directory.
func (app *App) Export(ctx context.Context) (string, error) {
	if app.config.Output.LedgerDir == "" {
		return "", fmt.Errorf("no ledger directory configured")
	}
	report, err := app.Analyze(ctx)
	if err != nil {
		return "", err
	}
	return app.writeLedger(report)
}

func (app *App) writeLedger(report *session.Report) (string, error) {
	sessionDir, err := session.WriteLedger(app.config.Output.LedgerDir, report)
	if err != nil {
		return "", err
	}
	app.logger.Info("Ledger written", logging.Fields{
		"dir":  sessionDir,
		"rows": countFrames(report),
	})
	return sessionDir, nil
}

// OutputReport formats the report and writes it to the output file or stdout
func (app *App) OutputReport(report *session.Report) error {
	if !app.config.Output.DebugFrames {
		stripDebugFrames(report)
	}

	formatter, err := NewFormatter(app.ctx.OutputFormat, app.config.Output.Precision, app.config.Output.Colors && app.ctx.OutputFile == "")
	if err != nil {
		return err
	}
	data, err := formatter.Format(report)
	if err != nil {
		return fmt.Errorf("failed to format output data: %w", err)
	}

	// Write to file or stdout
	if app.ctx.OutputFile != "" {
		return app.writeToFile(data)
	}
	_, err = app.ctx.Stdout.Write(data)
	return err
}

// OutputValue writes one part of a report, such as the VRP, as JSON or YAML
func (app *App) OutputValue(v any) error {
	var (
		data []byte
		err  error
	)
	if app.ctx.OutputFormat == "yaml" {
		data, err = yaml.Marshal(v)
	} else {
		data, err = json.MarshalIndent(v, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to format output data: %w", err)
	}

	if app.ctx.OutputFile != "" {
		return app.writeToFile(data)
	}
	_, err = app.ctx.Stdout.Write(data)
	return err
}

// setupLogging configures logging based on context
func setupLogging(ctx *Context) logging.Logger {
	if ctx.Logger != nil {
		return ctx.Logger
	}
	switch {
	case ctx.Quiet:
		return logging.NewLogger(logging.Options{Level: logging.ErrorLevel})
	case ctx.Verbose:
		return logging.NewLogger(logging.Options{Level: logging.DebugLevel, Format: "console"})
	}
	if level, err := logging.ParseLevel(ctx.LogLevel); err == nil && ctx.LogLevel != "" {
		return logging.NewLogger(logging.Options{Level: level})
	}
	return logging.NewDefaultLogger()
}

// loadAndMergeConfig loads configuration from viper, overlays the optional
// file and merges the CLI flags on top
func loadAndMergeConfig(ctx *Context) (*configs.Config, error) {
	// Load base configuration
	config, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load base configuration: %w", err)
	}

	if ctx.ConfigFile != "" {
		config, err = loadConfigFromFile(ctx.ConfigFile, config)
		if err != nil {
			return nil, err
		}
	}

	if ctx.OutputFormat == "" {
		ctx.OutputFormat = config.OutputFormat
	}
	if ctx.LedgerDir != "" {
		config.Output.LedgerDir = ctx.LedgerDir
	}
	if ctx.Timeout > 0 {
		config.Session.Timeout = ctx.Timeout
	}
	if ctx.Verbose {
		config.Verbose = true
	}

	// Validate final configuration
	if err := configs.ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// writeToFile writes data to the specified output file
func (app *App) writeToFile(data []byte) error {
	// Ensure directory exists
	dir := filepath.Dir(app.ctx.OutputFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if err := os.WriteFile(app.ctx.OutputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	app.logger.Debug("Results written to file", logging.Fields{
		"output_file": app.ctx.OutputFile,
		"size_bytes":  len(data),
	})

	return nil
}

func stripDebugFrames(report *session.Report) {
	for _, res := range report.Recordings {
		sum, ok := res.Summary.Get()
		if !ok || sum.Debug == nil {
			continue
		}
		sum.Debug = nil
		res.Summary = voice.Available(sum)
	}
}

func countFrames(report *session.Report) int {
	n := 0
	for _, rec := range report.GatedRecordings() {
		n += len(rec.Frames)
	}
	return n
}
