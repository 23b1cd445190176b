package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/voice-metrics/internal/app"
)

// anchorCmd represents the anchor command
var anchorCmd = &cobra.Command{
	Use:   "anchor [flags] [input]",
	Short: "Print the soft and loud /a/ formant anchors of a session",
	Long: `Analyze a session and print only the formant anchors extracted from
the soft and loud sustained /a/ recordings, together with the legacy
low and high formant blocks.

Examples:
  voice-metrics anchor session.json
  voice-metrics anchor --output-format yaml -i session.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnchor,
}

func init() {
	rootCmd.AddCommand(anchorCmd)
	addSessionFlags(anchorCmd)
}

func runAnchor(cmd *cobra.Command, args []string) error {
	application, err := app.NewApp(newAppContext(args))
	if err != nil {
		return err
	}
	report, err := application.Analyze(commandContext(cmd))
	if err != nil {
		return err
	}
	return application.OutputValue(map[string]any{
		"session_id":    report.SessionID,
		"anchors":       report.Anchors,
		"formants_low":  report.FormantsLow,
		"formants_high": report.FormantsHigh,
	})
}
