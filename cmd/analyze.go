package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/voice-metrics/internal/app"
)

var (
	// Analyze command flags
	analyzeInput     string
	analyzeOutput    string
	analyzeLedgerDir string
	analyzeSessionID string
	analyzeTimeout   time.Duration
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] [input]",
	Short: "Analyze one session of engine frames",
	Long: `Analyze a session of per-frame acoustic estimates and report every
recording summary and session aggregate.

The input is either a JSON document ({"session_id", "recordings",
"questionnaires"} or a bare array of recordings) or a previously written
ALL.frames.csv ledger, which replays the archived run configuration.

Examples:
  # Analyze a session and print a table
  voice-metrics analyze --output-format table session.json

  # Read frames from stdin and archive the ledger
  cat session.json | voice-metrics analyze --ledger-dir ./ledgers

  # Replay an archived ledger
  voice-metrics analyze ./ledgers/abc123/ALL.frames.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	addSessionFlags(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeLedgerDir, "ledger-dir", "",
		"directory to archive the frame ledger and run configuration in")
}

// addSessionFlags registers the flags shared by every command that analyzes a session
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&analyzeInput, "input", "i", "-",
		"input file (JSON frames or CSV ledger), - for stdin")
	cmd.Flags().StringVarP(&analyzeOutput, "output-file", "o", "",
		"write the report to a file instead of stdout")
	cmd.Flags().StringVar(&analyzeSessionID, "session-id", "",
		"session id (default derived from the input)")
	cmd.Flags().DurationVar(&analyzeTimeout, "timeout", 0,
		"abort the analysis after this long (default from session.timeout)")
}

// newAppContext builds the application context from the global and session flags
func newAppContext(args []string) *app.Context {
	input := analyzeInput
	if len(args) > 0 {
		input = args[0]
	}
	return &app.Context{
		InputFile:    input,
		OutputFile:   analyzeOutput,
		OutputFormat: outputFormat,
		LedgerDir:    analyzeLedgerDir,
		SessionID:    analyzeSessionID,
		Timeout:      analyzeTimeout,
		LogLevel:     logLevel,
		Verbose:      verbose || viper.GetBool("verbose"),
		Quiet:        quiet,
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	application, err := app.NewApp(newAppContext(args))
	if err != nil {
		return err
	}
	return application.Run(commandContext(cmd))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
