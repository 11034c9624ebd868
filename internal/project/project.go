// Package project persists a session's markers and segment names as YAML
// so edits survive between CLI runs.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mgpai22/vibhaj/internal/timeline"
)

const currentVersion = 1

// Document is the on-disk form of a session. Segment names are stored by
// range, the same way derivation matches them.
type Document struct {
	Version  int               `yaml:"version"`
	Source   string            `yaml:"source"`
	Duration float64           `yaml:"duration"`
	Markers  []timeline.Marker `yaml:"markers"`
	Names    []Name            `yaml:"names,omitempty"`
}

type Name struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Name  string  `yaml:"name"`
}

// NamesOf keeps the names that differ from the default.
func NamesOf(segments []timeline.Segment) []Name {
	var names []Name
	for _, s := range segments {
		if s.Name == timeline.DefaultName(s.Index) {
			continue
		}
		names = append(names, Name{Start: s.Start, End: s.End, Name: s.Name})
	}
	return names
}

// PreviousSegments turns stored names into the form Derive matches against.
func (d *Document) PreviousSegments() []timeline.Segment {
	prev := make([]timeline.Segment, len(d.Names))
	for i, n := range d.Names {
		prev[i] = timeline.Segment{Start: n.Start, End: n.End, Name: n.Name}
	}
	return prev
}

func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse project %s: %w", path, err)
	}
	if doc.Version > currentVersion {
		return nil, fmt.Errorf("project %s has version %d, newest supported is %d",
			path, doc.Version, currentVersion)
	}
	if doc.Duration <= 0 {
		return nil, fmt.Errorf("project %s has no duration", path)
	}
	return &doc, nil
}

func Save(doc *Document, path string) error {
	doc.Version = currentVersion

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode project: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	// write then rename so a failed save keeps the old file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write project: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write project: %w", err)
	}
	return nil
}

// Timeline rebuilds the marker set and segments a document describes, for
// editing without the source audio.
func (d *Document) Timeline() (*timeline.MarkerSet, []timeline.Segment) {
	markers := timeline.NewMarkerSet(d.Duration)
	markers.Restore(d.Markers)
	return markers, timeline.Derive(d.Duration, markers.Times(), d.PreviousSegments())
}

// Update stores the result of an edit made on a Timeline.
func (d *Document) Update(markers *timeline.MarkerSet, segments []timeline.Segment) {
	d.Markers = markers.Markers()
	d.Names = NamesOf(segments)
}
