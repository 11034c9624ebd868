package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/mgpai22/vibhaj/internal/audio"
	"github.com/mgpai22/vibhaj/internal/project"
	"github.com/mgpai22/vibhaj/internal/session"
	"github.com/mgpai22/vibhaj/internal/timeline"
)

// openSession decodes mediaPath into a new session and, when projectPath is
// set and exists, restores its markers and names.
func openSession(ctx context.Context, mediaPath, projectPath string) (*session.Session, error) {
	if _, err := os.Stat(mediaPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s", mediaPath)
	}

	logger.Infow("Decoding media", "input", mediaPath)
	src, err := audio.NewFFmpegDecoder(logger.SugaredLogger).Decode(ctx, mediaPath)
	if err != nil {
		return nil, err
	}

	sess := session.New(logger.SugaredLogger)
	if err := sess.Load(src, filepath.Base(mediaPath)); err != nil {
		return nil, err
	}

	if projectPath == "" {
		return sess, nil
	}
	if _, err := os.Stat(projectPath); os.IsNotExist(err) {
		logger.Debugw("No project yet", "project", projectPath)
		return sess, nil
	}
	doc, err := project.Load(projectPath)
	if err != nil {
		return nil, err
	}
	if err := sess.Restore(doc); err != nil {
		return nil, err
	}
	logger.Infow("Restored project",
		"project", projectPath,
		"markers", len(doc.Markers),
		"names", len(doc.Names),
	)
	return sess, nil
}

// parseTimes parses a comma separated list of seconds, e.g. "3,7.5".
func parseTimes(s string) ([]float64, error) {
	var times []float64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		t, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid time %q: %w", field, err)
		}
		times = append(times, t)
	}
	return times, nil
}

// splitIDs parses a comma separated id list. An empty input yields nil,
// which selects every segment.
func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func printSegments(w io.Writer, segments []timeline.Segment) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTART\tEND\tDURATION")
	for _, s := range segments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2fs\n",
			s.ID, s.Name, clock(s.Start), clock(s.End), s.Duration)
	}
	return tw.Flush()
}

// clock formats seconds as m:ss.mmm.
func clock(seconds float64) string {
	ms := int64(seconds*1000 + 0.5)
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}
