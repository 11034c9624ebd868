package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vibhaj/internal/apperr"
	"github.com/mgpai22/vibhaj/internal/project"
	"github.com/mgpai22/vibhaj/internal/timeline"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Merge, delete or rename segments stored in a project",
	Long: `Edit a saved project without decoding the recording again. Segment ids
are the ones printed by "vibhaj segments".

Examples:
  vibhaj edit merge -p talk.yaml segment-2 segment-3
  vibhaj edit delete -p talk.yaml segment-4
  vibhaj edit rename -p talk.yaml segment-1 "Opening remarks"
  vibhaj edit batch-rename -p talk.yaml --file names.txt`,
}

var mergeCmd = &cobra.Command{
	Use:   "merge [segment_id...]",
	Short: "Merge two or more contiguous segments",
	Args:  cobra.MinimumNArgs(2),
	RunE: editRunner(func(cmd *cobra.Command, args []string, markers *timeline.MarkerSet, segments []timeline.Segment) error {
		return timeline.Merge(markers, segments, args)
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete [segment_id...]",
	Short: "Fold segments into their successors",
	Args:  cobra.MinimumNArgs(1),
	RunE: editRunner(func(cmd *cobra.Command, args []string, markers *timeline.MarkerSet, segments []timeline.Segment) error {
		removed, err := timeline.Delete(markers, segments, args)
		if err != nil {
			return err
		}
		logger.Infow("Deleted segments", "selected", len(args), "markers_removed", removed)
		return nil
	}),
}

var renameCmd = &cobra.Command{
	Use:   "rename [segment_id] [name]",
	Short: "Rename a segment; an empty name restores the default",
	Args:  cobra.ExactArgs(2),
	RunE: editRunner(func(cmd *cobra.Command, args []string, markers *timeline.MarkerSet, segments []timeline.Segment) error {
		reset, err := timeline.Rename(segments, args[0], args[1])
		if err != nil {
			return err
		}
		if reset {
			logger.Warnw("Empty name, restored default", "segment", args[0],
				"error", apperr.ErrEmptyName)
		}
		return nil
	}),
}

var batchRenameCmd = &cobra.Command{
	Use:   "batch-rename",
	Short: "Rename segments in order from a list of names",
	Long: `Read one name per line from --file (or stdin) and apply them to the
segments in order. Blank lines are skipped. A line of the form
"<speaker> <a>/<b>/..." expands to "<speaker> <a>_1", "<speaker> <b>_2" and
so on, one segment each.`,
	Args: cobra.NoArgs,
	RunE: editRunner(func(cmd *cobra.Command, args []string, markers *timeline.MarkerSet, segments []timeline.Segment) error {
		file, _ := cmd.Flags().GetString("file")
		lines, err := readLines(cmd.InOrStdin(), file)
		if err != nil {
			return err
		}
		n := timeline.BatchRename(segments, lines)
		logger.Infow("Renamed segments", "renamed", n, "segments", len(segments))
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(editCmd)
	editCmd.PersistentFlags().
		StringP("project", "p", "", "Project file to edit (required)")
	batchRenameCmd.Flags().
		StringP("file", "f", "", "File with one name per line (default stdin)")

	editCmd.AddCommand(mergeCmd, deleteCmd, renameCmd, batchRenameCmd)
}

type editFunc func(cmd *cobra.Command, args []string, markers *timeline.MarkerSet, segments []timeline.Segment) error

// editRunner loads the project, applies fn, re-derives, prints the result
// and saves. Nothing is written when fn fails.
func editRunner(fn editFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		projectPath, _ := cmd.Flags().GetString("project")
		doc, err := loadProjectFile(projectPath)
		if err != nil {
			return err
		}

		markers, segments := doc.Timeline()
		if err := fn(cmd, args, markers, segments); err != nil {
			return err
		}
		segments = timeline.Derive(markers.Duration(), markers.Times(), segments)
		doc.Update(markers, segments)

		if err := printSegments(cmd.OutOrStdout(), segments); err != nil {
			return err
		}
		if err := project.Save(doc, projectPath); err != nil {
			return err
		}
		logger.Debugw("Saved project", "project", projectPath)
		return nil
	}
}

func readLines(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open names file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read names: %w", err)
	}
	return lines, nil
}
