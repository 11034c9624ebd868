// Package subtitle reads cue files as split boundaries and writes segment
// lists back out as cue sheets.
package subtitle

import (
	"time"

	"github.com/mgpai22/vibhaj/internal/timeline"
)

// represents single subtitle entry
type Entry struct {
	Index     int
	StartTime time.Duration
	EndTime   time.Duration
	Text      string
}

// represents complete subtitle track
type Subtitle struct {
	Entries []Entry
	Format  Format
}

// represents supported subtitle formats
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
	FormatASS Format = "ass"
)

// Boundaries converts cues to split boundaries labelled with the cue text.
// Cues with an end before their start are skipped.
func Boundaries(sub *Subtitle) []timeline.Boundary {
	points := make([]timeline.Boundary, 0, len(sub.Entries))
	for _, e := range sub.Entries {
		if e.EndTime < e.StartTime {
			continue
		}
		points = append(points, timeline.Boundary{
			Start: e.StartTime.Seconds(),
			End:   e.EndTime.Seconds(),
			Label: e.Text,
		})
	}
	return points
}

// FromSegments builds a cue track with one entry per segment, named by the
// segment.
func FromSegments(segments []timeline.Segment) *Subtitle {
	entries := make([]Entry, len(segments))
	for i, s := range segments {
		entries[i] = Entry{
			Index:     i + 1,
			StartTime: seconds(s.Start),
			EndTime:   seconds(s.End),
			Text:      s.Name,
		}
	}
	return &Subtitle{Entries: entries}
}

func seconds(s float64) time.Duration {
	return time.Duration(s*float64(time.Second) + 0.5)
}
