package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/voice-metrics/internal/app"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/ledger"
)

// ledgerCmd groups the frame ledger commands
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Export, replay and inspect frame ledgers",
	Long: `A ledger is the archived ALL.frames.csv of a session: every gated frame
with its calibrated SPL and QC flags, plus the run configuration the
session was analyzed with. Replaying a ledger reproduces the report.`,
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export [flags] [input]",
	Short: "Analyze a session and archive its ledger",
	Long: `Analyze a session and write <ledger-dir>/<session_id>/ALL.frames.csv
and run_config.json without printing a report.

Examples:
  voice-metrics ledger export --ledger-dir ./ledgers session.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLedgerExport,
}

var ledgerReplayCmd = &cobra.Command{
	Use:   "replay [flags] <ledger>",
	Short: "Re-run the aggregates of an archived ledger",
	Long: `Read an ALL.frames.csv ledger back and rebuild the session report with
the calibration and parameters it was recorded with.

Examples:
  voice-metrics ledger replay ./ledgers/abc123/ALL.frames.csv
  voice-metrics ledger replay --output-format table ./ledgers/abc123/ALL.frames.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runLedgerReplay,
}

var ledgerInspectCmd = &cobra.Command{
	Use:   "inspect <ledger>",
	Short: "Summarize the recordings and run configuration of a ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerInspect,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerExportCmd, ledgerReplayCmd, ledgerInspectCmd)

	addSessionFlags(ledgerExportCmd)
	ledgerExportCmd.Flags().StringVar(&analyzeLedgerDir, "ledger-dir", "",
		"directory to archive the frame ledger and run configuration in")
	_ = ledgerExportCmd.MarkFlagRequired("ledger-dir")

	addSessionFlags(ledgerReplayCmd)
}

func runLedgerExport(cmd *cobra.Command, args []string) error {
	application, err := app.NewApp(newAppContext(args))
	if err != nil {
		return err
	}
	dir, err := application.Export(commandContext(cmd))
	if err != nil {
		return err
	}
	fmt.Printf("✅ Ledger written to: %s\n", dir)
	return nil
}

func runLedgerReplay(cmd *cobra.Command, args []string) error {
	application, err := app.NewApp(newAppContext(args))
	if err != nil {
		return err
	}
	return application.Run(commandContext(cmd))
}

func runLedgerInspect(cmd *cobra.Command, args []string) error {
	in, err := ledger.LoadInput(args[0])
	if err != nil {
		return err
	}

	printSection("RECORDINGS")
	if err := ledger.WriteYAMLSummary(os.Stdout, in); err != nil {
		return err
	}

	if in.RunConfig == nil {
		fmt.Println("\nNo run configuration recorded")
		return nil
	}
	printSection("RUN CONFIGURATION")
	return in.RunConfig.WriteYAML(os.Stdout)
}
