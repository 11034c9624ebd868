package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vibhaj/internal/audio"
)

var detectCmd = &cobra.Command{
	Use:   "detect [media_file]",
	Short: "Print candidate split points found by silence detection",
	Long: `Scan the first channel for runs of silence and print the midpoint of
each run, one time in seconds per line. Nothing is saved; pass the output to
"segments --markers" or use "segments --detect" to apply it.

Examples:
  vibhaj detect interview.mp3
  vibhaj detect lecture.mp4 --threshold-db -50 --min-silence 1`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	addDetectFlags(detectCmd)
}

func addDetectFlags(cmd *cobra.Command) {
	cmd.Flags().
		Float64("threshold-db", 0, "Silence threshold in dBFS, -60 to -20 (default from VIBHAJ_THRESHOLD_DB or -40)")
	cmd.Flags().
		Float64("min-silence", 0, "Minimum silence length in seconds, 0.2 to 2 (default from VIBHAJ_MIN_SILENCE or 0.5)")
}

// detectOptions starts from the configured defaults and applies any flags
// the user set.
func detectOptions(cmd *cobra.Command) (audio.DetectOptions, error) {
	opts := audio.DetectOptions{
		ThresholdDB: cfg.ThresholdDB,
		MinSilence:  cfg.MinSilence,
	}
	if cmd.Flags().Changed("threshold-db") {
		opts.ThresholdDB, _ = cmd.Flags().GetFloat64("threshold-db")
	}
	if cmd.Flags().Changed("min-silence") {
		opts.MinSilence, _ = cmd.Flags().GetFloat64("min-silence")
	}
	return opts, opts.Validate()
}

func runDetect(cmd *cobra.Command, args []string) error {
	opts, err := detectOptions(cmd)
	if err != nil {
		return err
	}

	sess, err := openSession(cmd.Context(), args[0], "")
	if err != nil {
		return err
	}

	points, err := sess.Detect(cmd.Context(), opts)
	if err != nil {
		return err
	}

	if len(points) == 0 {
		logger.Infow("No silence found", "options", opts.String())
		return nil
	}
	for _, p := range points {
		fmt.Fprintf(cmd.OutOrStdout(), "%.3f\n", p)
	}
	return nil
}
