package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/voice-metrics/configs"
	"github.com/RyanBlaney/voice-metrics/internal/app"
)

var configOutput string

// configCmd groups the configuration commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate, validate and display configuration",
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write an example configuration file with every default",
	Long: `Write the default configuration as YAML.

Examples:
  voice-metrics config generate
  voice-metrics config generate -o ./configs/voice-metrics.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := configOutput
		if out == "" {
			out = filepath.Join(viper.GetString("config_dir"), "voice-metrics.yaml")
		}
		return app.GenerateExampleConfig(out)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := app.ValidateConfigFile(args[0])
		return err
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Load the configuration from defaults, the config file and the
environment and display the values every analysis would use.

Examples:
  voice-metrics config show
  voice-metrics --config /path/to/config.yaml config show`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGenerateCmd, configValidateCmd, configShowCmd)

	configGenerateCmd.Flags().StringVarP(&configOutput, "output-file", "o", "",
		"file to write (default is <config-dir>/voice-metrics.yaml)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	fmt.Println("VOICE METRICS CONFIGURATION")
	fmt.Println(strings.Repeat("=", 80))

	config, err := configs.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	printSection("APPLICATION SETTINGS")
	printKeyValue("Verbose", fmt.Sprintf("%t", config.Verbose))
	printKeyValue("Log Level", config.LogLevel)
	printKeyValue("Output Format", config.OutputFormat)
	printKeyValue("Config Directory", config.ConfigDir)

	pipeline, full := configs.ResolvePipeline(config.Pipeline.Version)
	printSection("PIPELINE")
	printKeyValue("Version", pipeline)
	printKeyValue("Full Pipeline", fmt.Sprintf("%t", full))
	printKeyValue("Scoring Strategy", config.EffectiveStrategy())
	printKeyValue("VRP Envelope", string(config.EffectiveVRP().Envelope))

	printSection("ESTIMATION PARAMETERS")
	p := config.Params
	printKeyValue("Time Step", fmt.Sprintf("%gs", p.TimeStep))
	printKeyValue("Pitch", fmt.Sprintf("%s, %g-%g Hz", p.PitchMethod, p.PitchFloor, p.PitchTop))
	printKeyValue("Formants", fmt.Sprintf("%g up to %g Hz", p.NumFormants, p.FormantCeilingHz))

	printSection("QUALITY GATE")
	q := config.QC
	printKeyValue("Voicing Floor", fmt.Sprintf("%.2f", q.VoicingFloor))
	printKeyValue("High F0 Risk", fmt.Sprintf("%g Hz", q.HighF0RiskHz))
	for n := 1; n <= 3; n++ {
		fr, br := q.FormantRanges.At(n), q.BandwidthRanges.At(n)
		printKeyValue(fmt.Sprintf("F%d Range", n), fmt.Sprintf("%g-%g Hz (bandwidth %g-%g Hz)", fr.Min, fr.Max, br.Min, br.Max))
	}
	printKeyValue("Max Jump F1/F2", fmt.Sprintf("%g / %g Hz", q.MaxJumpF1Hz, q.MaxJumpF2Hz))

	printSection("WINDOW SELECTION")
	w := config.Window
	printKeyValue("Width", fmt.Sprintf("%gs", w.WidthS))
	printKeyValue("Min Frames", fmt.Sprintf("%d", w.MinFrames))
	printKeyValue("Stable Frame", fmt.Sprintf("voicing >= %.2f, HNR >= %g dB", w.MinVoicing, w.MinHNRDB))

	printSection("ANCHORS")
	printKeyValue("Phonation Selection", config.Anchor.PhonationSelection)
	printKeyValue("Sustained Selection", config.Anchor.SustainedSelection)

	printSection("CALIBRATION")
	printKeyValue("Mode", config.Calibration.Mode)
	if config.Calibration.NoiseSPLDB != nil {
		printKeyValue("Noise SPL", fmt.Sprintf("%g dB", *config.Calibration.NoiseSPLDB))
	}

	printSection("SESSION")
	printKeyValue("Max Recordings Per Step", fmt.Sprintf("%d", config.Session.MaxRecordingsPerStep))
	printKeyValue("Max Concurrency", fmt.Sprintf("%d", config.Session.MaxConcurrency))
	printKeyValue("Timeout", config.Session.Timeout.String())

	printSection("OUTPUT")
	printKeyValue("Precision", fmt.Sprintf("%d", config.Output.Precision))
	printKeyValue("Ledger Directory", config.Output.LedgerDir)
	printKeyValue("Debug Frames", fmt.Sprintf("%t", config.Output.DebugFrames))

	fmt.Println()
	fmt.Println(strings.Repeat("-", 80))
	if err := configs.ValidateConfig(config); err != nil {
		fmt.Println("CONFIGURATION IS INVALID")
		return err
	}
	fmt.Println("CONFIGURATION IS VALID")
	fmt.Printf("Config file: %s\n", configFilePath())
	return nil
}

func printSection(title string) {
	fmt.Printf("\n%s\n", title)
	fmt.Println(strings.Repeat("-", len(title)))
}

func printKeyValue(key, value string) {
	if value == "" {
		fmt.Printf("%-35s\n", key)
	} else {
		fmt.Printf("%-35s %s\n", key+":", value)
	}
}

func configFilePath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return "(none, defaults and environment only)"
}
