package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/voice-metrics/internal/app"
)

// vrpCmd represents the vrp command
var vrpCmd = &cobra.Command{
	Use:   "vrp [flags] [input]",
	Short: "Print the voice range profile of a session",
	Long: `Analyze a session and print only its voice range profile: the
semitone bins of calibrated SPL built from the pitch glide recordings.

Examples:
  voice-metrics vrp session.json
  voice-metrics vrp --output-format yaml ./ledgers/abc123/ALL.frames.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVRP,
}

func init() {
	rootCmd.AddCommand(vrpCmd)
	addSessionFlags(vrpCmd)
}

func runVRP(cmd *cobra.Command, args []string) error {
	application, err := app.NewApp(newAppContext(args))
	if err != nil {
		return err
	}
	report, err := application.Analyze(commandContext(cmd))
	if err != nil {
		return err
	}
	return application.OutputValue(report.VRP)
}
