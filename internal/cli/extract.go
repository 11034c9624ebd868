package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vibhaj/internal/audio"
	"github.com/mgpai22/vibhaj/internal/export"
	"github.com/mgpai22/vibhaj/internal/storage"
	"github.com/mgpai22/vibhaj/internal/timeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract [media_file]",
	Short: "Extract the whole audio track as one clip",
	Long: `Decode the audio track of a media file and encode it unchanged in
length, using the same encoders as "export".

Supported output formats: mp3, wav.

Examples:
  vibhaj extract video.mp4
  vibhaj extract video.mp4 -o audio.wav -f wav
  vibhaj extract lecture.mkv --format mp3 --bitrate 192`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().
		StringP("format", "f", "", "Output audio format: mp3 or wav (default from VIBHAJ_FORMAT or mp3)")
	extractCmd.Flags().
		IntP("bitrate", "b", 0, "MP3 bitrate in kbps (default from VIBHAJ_BITRATE or 128)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mediaPath := args[0]

	outputPath, _ := cmd.Flags().GetString("output")
	if cmd.Flags().Changed("format") {
		cfg.Format, _ = cmd.Flags().GetString("format")
	}
	if cmd.Flags().Changed("bitrate") {
		cfg.BitrateKbps, _ = cmd.Flags().GetInt("bitrate")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	enc, err := export.NewEncoder(cfg.Format, cfg.BitrateKbps, logger.SugaredLogger)
	if err != nil {
		return err
	}

	if outputPath == "" {
		outputPath = strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + enc.Extension()
	}
	if filepath.Clean(outputPath) == filepath.Clean(mediaPath) {
		return fmt.Errorf("output would overwrite the input: %s", outputPath)
	}
	if _, err := os.Stat(mediaPath); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", mediaPath)
	}

	logger.Infow("Extracting audio",
		"input", mediaPath,
		"output", outputPath,
		"format", cfg.Format,
	)

	src, err := audio.NewFFmpegDecoder(logger.SugaredLogger).Decode(ctx, mediaPath)
	if err != nil {
		return err
	}

	if src.FrameCount() == 0 {
		return fmt.Errorf("no audio decoded from %s", mediaPath)
	}
	whole := timeline.Derive(src.Duration(), nil, nil)[0]
	whole.Name = strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))

	unit, err := export.ExportOne(ctx, src, whole, enc)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	sink, err := storage.NewLocalSink(filepath.Dir(outputPath))
	if err != nil {
		return err
	}
	loc, err := sink.Put(ctx, filepath.Base(outputPath), bytes.NewReader(unit.Data))
	if err != nil {
		return err
	}

	absOutput, _ := filepath.Abs(loc)
	fmt.Fprintf(cmd.OutOrStdout(), "Audio extracted successfully: %s\n", absOutput)
	return nil
}
