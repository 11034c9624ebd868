// Package session ties a decoded source, its markers and the derived
// segments together. Every marker change re-derives the segment list before
// the call returns, so readers never see a stale partition.
package session

import (
	"context"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mgpai22/vibhaj/internal/apperr"
	"github.com/mgpai22/vibhaj/internal/audio"
	"github.com/mgpai22/vibhaj/internal/export"
	"github.com/mgpai22/vibhaj/internal/logging"
	"github.com/mgpai22/vibhaj/internal/project"
	"github.com/mgpai22/vibhaj/internal/timeline"
)

type Session struct {
	mu       sync.Mutex
	source   *audio.Source
	name     string
	markers  *timeline.MarkerSet
	segments []timeline.Segment

	// set while a detect or export is running
	busy atomic.Bool

	log *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Session {
	return &Session{log: logging.OrNop(log)}
}

// Load replaces the current source. Markers and names from the previous
// source are discarded.
func (s *Session) Load(src *audio.Source, name string) error {
	if src == nil {
		return apperr.Wrap(apperr.KindState, "load", apperr.ErrNoSource)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.source = src
	s.name = name
	s.markers = timeline.NewMarkerSet(src.Duration())
	s.segments = timeline.Derive(src.Duration(), nil, nil)

	s.log.Infow("Loaded audio",
		"name", name,
		"duration", src.Duration(),
		"sample_rate", src.SampleRate(),
		"channels", src.ChannelCount(),
	)
	return nil
}

// Reset drops the source and all derived state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = nil
	s.name = ""
	s.markers = nil
	s.segments = nil
}

func (s *Session) Source() *audio.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Segments returns a copy of the current partition.
func (s *Session) Segments() []timeline.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]timeline.Segment(nil), s.segments...)
}

func (s *Session) Markers() []timeline.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markers == nil {
		return nil
	}
	return s.markers.Markers()
}

// rederive must be called with mu held after any marker change.
func (s *Session) rederive() {
	s.segments = timeline.Derive(s.markers.Duration(), s.markers.Times(), s.segments)
}

func (s *Session) loaded(op string) error {
	if s.source == nil {
		return apperr.Wrap(apperr.KindState, op, apperr.ErrNoSource)
	}
	return nil
}

// begin claims the single long-running operation slot.
func (s *Session) begin(op string) (func(), error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, apperr.Wrap(apperr.KindState, op, apperr.ErrBusy)
	}
	return func() { s.busy.Store(false) }, nil
}

// AddMarker inserts a split point. It reports false when the point was
// swallowed by an existing marker.
func (s *Session) AddMarker(pos float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded("add marker"); err != nil {
		return false, err
	}

	_, ok, err := s.markers.Add(pos)
	if err != nil || !ok {
		return false, err
	}
	s.rederive()
	return true, nil
}

// AddMarkers inserts several points, skipping rejected ones, and returns
// how many were added.
func (s *Session) AddMarkers(points []float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded("add marker"); err != nil {
		return 0, err
	}

	added := 0
	for _, p := range points {
		if _, ok, err := s.markers.Add(p); err == nil && ok {
			added++
		}
	}
	s.rederive()
	return added, nil
}

func (s *Session) RemoveMarker(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markers == nil || !s.markers.Remove(id) {
		return false
	}
	s.rederive()
	return true
}

// ClearMarkers removes every marker. Asking for confirmation is up to the
// caller.
func (s *Session) ClearMarkers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markers == nil {
		return
	}
	s.markers.Clear()
	s.rederive()
}

// ImportBoundaries adds a marker at each boundary start and end. With
// label set, segments that exactly match a labelled boundary take its
// label as their name.
func (s *Session) ImportBoundaries(points []timeline.Boundary, label bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded("import"); err != nil {
		return 0, err
	}

	added := timeline.Import(s.markers, points)
	s.rederive()
	if label {
		timeline.ApplyLabels(s.segments, points)
	}
	return added, nil
}

// Detect runs silence detection against the loaded source. The returned
// points are not inserted; pass them to AddMarkers.
func (s *Session) Detect(ctx context.Context, opts audio.DetectOptions) ([]float64, error) {
	s.mu.Lock()
	src := s.source
	s.mu.Unlock()

	if src == nil {
		return nil, apperr.Wrap(apperr.KindState, "detect", apperr.ErrNoSource)
	}
	done, err := s.begin("detect")
	if err != nil {
		return nil, err
	}
	defer done()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	points, err := audio.DetectSilence(src, opts)
	if err != nil {
		return nil, err
	}
	s.log.Infow("Silence detection finished", "options", opts.String(), "points", len(points))
	return points, nil
}

func (s *Session) Merge(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded("merge"); err != nil {
		return err
	}
	if err := timeline.Merge(s.markers, s.segments, ids); err != nil {
		return err
	}
	s.rederive()
	return nil
}

func (s *Session) Delete(ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded("delete"); err != nil {
		return 0, err
	}
	removed, err := timeline.Delete(s.markers, s.segments, ids)
	if err != nil {
		return 0, err
	}
	s.rederive()
	return removed, nil
}

// Rename sets a segment name. A blank name resets the segment to its
// default name and returns an ErrEmptyName validation error as a warning;
// the reset has still been applied.
func (s *Session) Rename(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded("rename"); err != nil {
		return err
	}
	reset, err := timeline.Rename(s.segments, id, name)
	if err != nil {
		return err
	}
	if reset {
		return apperr.Wrap(apperr.KindValidation, "rename", apperr.ErrEmptyName)
	}
	return nil
}

func (s *Session) BatchRename(lines []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded("batch rename"); err != nil {
		return 0, err
	}
	return timeline.BatchRename(s.segments, lines), nil
}

// selection returns the chosen segments; nil ids selects all.
func (s *Session) selection(ids []string) ([]timeline.Segment, error) {
	if ids == nil {
		return append([]timeline.Segment(nil), s.segments...), nil
	}
	selected := make([]timeline.Segment, 0, len(ids))
	for _, id := range ids {
		seg, ok := timeline.Find(s.segments, id)
		if !ok {
			return nil, apperr.Errorf(apperr.KindValidation, "export",
				"%w: %s", apperr.ErrUnknownSegment, id)
		}
		selected = append(selected, seg)
	}
	return selected, nil
}

// snapshot captures the source and selection for a long-running export.
func (s *Session) snapshot(ids []string) (*audio.Source, []timeline.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded("export"); err != nil {
		return nil, nil, err
	}
	selected, err := s.selection(ids)
	if err != nil {
		return nil, nil, err
	}
	return s.source, selected, nil
}

func (s *Session) ExportOne(ctx context.Context, id string, enc export.Encoder) (export.Unit, error) {
	src, selected, err := s.snapshot([]string{id})
	if err != nil {
		return export.Unit{}, err
	}
	done, err := s.begin("export")
	if err != nil {
		return export.Unit{}, err
	}
	defer done()

	return export.ExportOne(ctx, src, selected[0], enc)
}

// ExportEach exports the selected segments (all when ids is nil) and hands
// every unit to emit in ascending start order.
func (s *Session) ExportEach(
	ctx context.Context,
	ids []string,
	enc export.Encoder,
	opts export.Options,
	emit func(export.Unit) error,
) error {
	src, selected, err := s.snapshot(ids)
	if err != nil {
		return err
	}
	done, err := s.begin("export")
	if err != nil {
		return err
	}
	defer done()

	if opts.Log == nil {
		opts.Log = s.log
	}
	return export.Each(ctx, src, selected, enc, opts, emit)
}

// ExportAll writes a zip archive of the selected segments to w.
func (s *Session) ExportAll(
	ctx context.Context,
	w io.Writer,
	ids []string,
	enc export.Encoder,
	opts export.Options,
) ([]string, error) {
	src, selected, err := s.snapshot(ids)
	if err != nil {
		return nil, err
	}
	done, err := s.begin("export")
	if err != nil {
		return nil, err
	}
	defer done()

	if opts.Log == nil {
		opts.Log = s.log
	}
	return export.ExportAll(ctx, w, src, selected, enc, opts)
}

// durationTolerance is how far a project's recorded duration may drift
// from the loaded source.
const durationTolerance = 0.05

// Snapshot captures markers and custom names for saving.
func (s *Session) Snapshot() (*project.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded("save"); err != nil {
		return nil, err
	}
	return &project.Document{
		Source:   s.name,
		Duration: s.markers.Duration(),
		Markers:  s.markers.Markers(),
		Names:    project.NamesOf(s.segments),
	}, nil
}

// Restore applies a saved project to the loaded source.
func (s *Session) Restore(doc *project.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded("restore"); err != nil {
		return err
	}
	if math.Abs(doc.Duration-s.markers.Duration()) > durationTolerance {
		return apperr.Errorf(apperr.KindValidation, "restore",
			"project is for a %.3fs source, loaded audio is %.3fs",
			doc.Duration, s.markers.Duration())
	}

	kept := s.markers.Restore(doc.Markers)
	if kept != len(doc.Markers) {
		s.log.Warnw("Dropped invalid markers from project",
			"kept", kept,
			"stored", len(doc.Markers),
		)
	}
	s.segments = timeline.Derive(s.markers.Duration(), s.markers.Times(), doc.PreviousSegments())
	return nil
}
