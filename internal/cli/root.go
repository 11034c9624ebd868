package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vibhaj/internal/config"
	"github.com/mgpai22/vibhaj/internal/ffmpeg"
	"github.com/mgpai22/vibhaj/internal/logging"
)

var (
	verbose bool
	logger  *logging.Logger
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vibhaj",
	Short: "Split recordings into named segments and export them",
	Long: `Vibhaj splits an audio or video recording into named segments.

Split points come from silence detection, explicit marker times, subtitle
cues or container chapters. Segments can be merged, deleted and renamed,
then exported as individual MP3 or WAV clips or as a single zip archive.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.NewLogger(verbose)

		loaded, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		cfg = loaded
		ffmpeg.Configure(cfg.FFmpegPath, cfg.FFprobePath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command. An interrupt cancels the running
// operation between segments.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output file or directory")
}
