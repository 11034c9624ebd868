package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vibhaj/internal/audio"
	"github.com/mgpai22/vibhaj/internal/project"
	"github.com/mgpai22/vibhaj/internal/session"
	"github.com/mgpai22/vibhaj/internal/subtitle"
	"github.com/mgpai22/vibhaj/internal/timeline"
)

var segmentsCmd = &cobra.Command{
	Use:   "segments [media_file]",
	Short: "Add split points and list the resulting segments",
	Long: `Derive the segment list for a recording. Split points are added from
any combination of explicit times, silence detection, subtitle cues and
container chapters. With --project the markers and names are restored first
and, with --save, written back afterwards.

Examples:
  vibhaj segments talk.mp3 --markers 3,7.5
  vibhaj segments talk.mp3 --detect --project talk.yaml --save
  vibhaj segments talk.mp4 --subtitles talk.srt --label --sheet segments.vtt
  vibhaj segments audiobook.m4b --chapters --label`,
	Args: cobra.ExactArgs(1),
	RunE: runSegments,
}

func init() {
	rootCmd.AddCommand(segmentsCmd)

	segmentsCmd.Flags().
		String("markers", "", "Comma separated split times in seconds (e.g., 3,7.5)")
	segmentsCmd.Flags().
		Bool("detect", false, "Add split points from silence detection")
	segmentsCmd.Flags().
		String("subtitles", "", "Add split points at every cue of an SRT, VTT or ASS file")
	segmentsCmd.Flags().
		Bool("chapters", false, "Add split points at container chapters")
	segmentsCmd.Flags().
		Bool("label", false, "Name segments after matching subtitle cues or chapters")
	segmentsCmd.Flags().
		StringP("project", "p", "", "Project file holding markers and names")
	segmentsCmd.Flags().
		Bool("save", false, "Write markers and names back to --project")
	segmentsCmd.Flags().
		String("sheet", "", "Write the segment list as a subtitle sheet (.srt, .vtt or .ass)")
	addDetectFlags(segmentsCmd)
}

func runSegments(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mediaPath := args[0]

	markersStr, _ := cmd.Flags().GetString("markers")
	detect, _ := cmd.Flags().GetBool("detect")
	subtitlePath, _ := cmd.Flags().GetString("subtitles")
	chapters, _ := cmd.Flags().GetBool("chapters")
	label, _ := cmd.Flags().GetBool("label")
	projectPath, _ := cmd.Flags().GetString("project")
	save, _ := cmd.Flags().GetBool("save")
	sheetPath, _ := cmd.Flags().GetString("sheet")

	if save && projectPath == "" {
		return fmt.Errorf("--save requires --project")
	}
	times, err := parseTimes(markersStr)
	if err != nil {
		return err
	}
	opts, err := detectOptions(cmd)
	if err != nil {
		return err
	}

	sess, err := openSession(ctx, mediaPath, projectPath)
	if err != nil {
		return err
	}

	if len(times) > 0 {
		added, err := sess.AddMarkers(times)
		if err != nil {
			return err
		}
		logger.Infow("Added markers", "requested", len(times), "added", added)
	}

	if detect {
		points, err := sess.Detect(ctx, opts)
		if err != nil {
			return err
		}
		added, err := sess.AddMarkers(points)
		if err != nil {
			return err
		}
		logger.Infow("Added silence markers", "found", len(points), "added", added)
	}

	if subtitlePath != "" {
		sub, err := subtitle.Open(subtitlePath)
		if err != nil {
			return err
		}
		if err := importBoundaries(sess, "subtitles", subtitle.Boundaries(sub), label); err != nil {
			return err
		}
	}

	if chapters {
		info, err := audio.Probe(ctx, mediaPath)
		if err != nil {
			return err
		}
		if err := importBoundaries(sess, "chapters", chapterBoundaries(info.Chapters), label); err != nil {
			return err
		}
	}

	segments := sess.Segments()
	if err := printSegments(cmd.OutOrStdout(), segments); err != nil {
		return err
	}

	if sheetPath != "" {
		if err := subtitle.WriteFile(subtitle.FromSegments(segments), sheetPath); err != nil {
			return err
		}
		logger.Infow("Wrote segment sheet", "path", sheetPath)
	}

	if save {
		if err := saveProject(sess, projectPath); err != nil {
			return err
		}
	}
	return nil
}

func importBoundaries(sess *session.Session, from string, points []timeline.Boundary, label bool) error {
	if len(points) == 0 {
		logger.Warnw("Nothing to import", "from", from)
		return nil
	}
	added, err := sess.ImportBoundaries(points, label)
	if err != nil {
		return err
	}
	logger.Infow("Imported boundaries", "from", from, "ranges", len(points), "markers_added", added)
	return nil
}

func chapterBoundaries(chapters []audio.Chapter) []timeline.Boundary {
	points := make([]timeline.Boundary, len(chapters))
	for i, ch := range chapters {
		points[i] = timeline.Boundary{Start: ch.Start, End: ch.End, Label: ch.Title}
	}
	return points
}

func saveProject(sess *session.Session, path string) error {
	doc, err := sess.Snapshot()
	if err != nil {
		return err
	}
	if err := project.Save(doc, path); err != nil {
		return err
	}
	logger.Infow("Saved project", "project", path, "markers", len(doc.Markers))
	return nil
}

// loadProjectFile is used by commands that only need the stored timeline.
func loadProjectFile(path string) (*project.Document, error) {
	if path == "" {
		return nil, fmt.Errorf("--project is required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("project not found: %s", path)
	}
	return project.Load(path)
}
