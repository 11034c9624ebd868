package cli

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vibhaj/internal/export"
	"github.com/mgpai22/vibhaj/internal/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export [media_file]",
	Short: "Export segments as audio clips or a zip archive",
	Long: `Slice the recording at the saved markers and encode every selected
segment. Each clip is named after its segment. With --zip the clips are
bundled into a single "<name>_分割.zip" archive.

Output goes to the directory given by -o (default: current directory), or
to the configured S3 bucket with --s3.

Examples:
  vibhaj export talk.mp3 -p talk.yaml
  vibhaj export talk.mp3 -p talk.yaml --zip -o exports/
  vibhaj export talk.mp4 -p talk.yaml --ids segment-2,segment-3 --format wav
  vibhaj export talk.mp3 -p talk.yaml --zip --s3 --concurrency 4`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().
		StringP("project", "p", "", "Project file holding markers and names")
	exportCmd.Flags().
		String("ids", "", "Comma separated segment ids to export (default all)")
	exportCmd.Flags().
		Bool("zip", false, "Bundle the clips into one zip archive")
	exportCmd.Flags().
		StringP("format", "f", "", "Output format: mp3 or wav (default from VIBHAJ_FORMAT or mp3)")
	exportCmd.Flags().
		IntP("bitrate", "b", 0, "MP3 bitrate in kbps (default from VIBHAJ_BITRATE or 128)")
	exportCmd.Flags().
		Int("concurrency", 0, "Number of segments to encode at once (default from VIBHAJ_CONCURRENCY or 1)")
	exportCmd.Flags().
		Bool("s3", false, "Upload to the configured S3 bucket instead of writing locally")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mediaPath := args[0]

	projectPath, _ := cmd.Flags().GetString("project")
	idsStr, _ := cmd.Flags().GetString("ids")
	zipped, _ := cmd.Flags().GetBool("zip")
	toS3, _ := cmd.Flags().GetBool("s3")
	outputDir, _ := cmd.Flags().GetString("output")
	ids := splitIDs(idsStr)

	if cmd.Flags().Changed("format") {
		cfg.Format, _ = cmd.Flags().GetString("format")
	}
	if cmd.Flags().Changed("bitrate") {
		cfg.BitrateKbps, _ = cmd.Flags().GetInt("bitrate")
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	enc, err := export.NewEncoder(cfg.Format, cfg.BitrateKbps, logger.SugaredLogger)
	if err != nil {
		return err
	}
	sink, err := newSink(ctx, toS3, outputDir)
	if err != nil {
		return err
	}

	sess, err := openSession(ctx, mediaPath, projectPath)
	if err != nil {
		return err
	}

	opts := export.Options{
		Concurrency: cfg.Concurrency,
		Log:         logger.SugaredLogger,
		Progress: func(p export.Progress) {
			logger.Infow("Export progress", "progress", p.String(), "segment", p.Segment)
		},
	}

	logger.Infow("Starting export",
		"input", mediaPath,
		"format", cfg.Format,
		"zip", zipped,
		"concurrency", cfg.Concurrency,
	)

	if zipped {
		var buf bytes.Buffer
		entries, err := sess.ExportAll(ctx, &buf, ids, enc, opts)
		if err != nil {
			return err
		}
		loc, err := sink.Put(ctx, export.ArchiveName(mediaPath), &buf)
		if err != nil {
			return fmt.Errorf("failed to store archive: %w", err)
		}
		logger.Infow("Export complete", "entries", len(entries), "size", buf.Len())
		fmt.Fprintln(cmd.OutOrStdout(), loc)
		return nil
	}

	names := export.NameSet{}
	count := 0
	err = sess.ExportEach(ctx, ids, enc, opts, func(unit export.Unit) error {
		loc, err := sink.Put(ctx, names.Unique(unit.Name), bytes.NewReader(unit.Data))
		if err != nil {
			return err
		}
		count++
		fmt.Fprintln(cmd.OutOrStdout(), loc)
		return nil
	})
	if err != nil {
		return err
	}
	logger.Infow("Export complete", "files", count)
	return nil
}

func newSink(ctx context.Context, toS3 bool, outputDir string) (storage.Sink, error) {
	if !toS3 {
		return storage.NewLocalSink(outputDir)
	}
	if !cfg.S3Enabled() {
		return nil, fmt.Errorf("--s3 requires VIBHAJ_S3_BUCKET and VIBHAJ_S3_REGION")
	}
	return storage.NewS3Sink(ctx, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		Prefix:          cfg.S3Prefix,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
}
