package session

import (
	"archive/zip"
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgpai22/vibhaj/internal/apperr"
	"github.com/mgpai22/vibhaj/internal/audio"
	"github.com/mgpai22/vibhaj/internal/export"
	"github.com/mgpai22/vibhaj/internal/timeline"
)

const rate = 1000

// toneSource is loud everywhere except the given quiet ranges.
func toneSource(t *testing.T, seconds float64, quiet ...[2]float64) *audio.Source {
	t.Helper()
	frames := int(seconds * rate)
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = 0.5
		if i%2 == 1 {
			samples[i] = -0.5
		}
		at := float64(i) / rate
		for _, q := range quiet {
			if at >= q[0] && at < q[1] {
				samples[i] = 0
			}
		}
	}
	src, err := audio.NewSource(rate, [][]float32{samples})
	require.NoError(t, err)
	return src
}

func loaded(t *testing.T, seconds float64) *Session {
	t.Helper()
	s := New(nil)
	require.NoError(t, s.Load(toneSource(t, seconds), "talk.wav"))
	return s
}

func names(segments []timeline.Segment) []string {
	out := make([]string, len(segments))
	for i, seg := range segments {
		out[i] = seg.Name
	}
	return out
}

func TestEmptySession(t *testing.T) {
	s := New(nil)

	assert.Empty(t, s.Segments())
	assert.Nil(t, s.Markers())

	_, err := s.AddMarker(1)
	assert.ErrorIs(t, err, apperr.ErrState)
	assert.ErrorIs(t, err, apperr.ErrNoSource)

	_, err = s.Detect(context.Background(), audio.DefaultDetectOptions())
	assert.ErrorIs(t, err, apperr.ErrNoSource)

	_, err = s.ExportAll(context.Background(), &bytes.Buffer{}, nil, export.WAVEncoder{}, export.Options{})
	assert.ErrorIs(t, err, apperr.ErrState)
}

func TestLoadDerivesSingleSegment(t *testing.T) {
	s := loaded(t, 10)

	segs := s.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, 0.0, segs[0].Start)
	assert.Equal(t, 10.0, segs[0].End)
	assert.Equal(t, "片段 1", segs[0].Name)
	assert.Equal(t, "talk.wav", s.Name())
}

func TestMarkersRederive(t *testing.T) {
	s := loaded(t, 10)

	ok, err := s.AddMarker(4)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AddMarker(4.02)
	require.NoError(t, err)
	assert.False(t, ok, "within the dedupe window")

	_, err = s.AddMarker(12)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	require.Len(t, s.Segments(), 2)

	markers := s.Markers()
	require.Len(t, markers, 1)
	assert.True(t, s.RemoveMarker(markers[0].ID))
	assert.False(t, s.RemoveMarker(markers[0].ID))
	assert.Len(t, s.Segments(), 1)
}

func TestSegmentsReturnsCopy(t *testing.T) {
	s := loaded(t, 10)
	segs := s.Segments()
	segs[0].Name = "changed"
	assert.Equal(t, "片段 1", s.Segments()[0].Name)
}

func TestDetectThenAdd(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Load(toneSource(t, 10, [2]float64{4, 5}), "talk.wav"))

	points, err := s.Detect(context.Background(), audio.DefaultDetectOptions())
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 4.5, points[0], 0.05)

	assert.Empty(t, s.Markers(), "detect only proposes points")

	added, err := s.AddMarkers(points)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Len(t, s.Segments(), 2)
}

func TestDetectRejectsBadOptions(t *testing.T) {
	s := loaded(t, 2)
	_, err := s.Detect(context.Background(), audio.DetectOptions{ThresholdDB: -10, MinSilence: 0.5})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRenameSurvivesSplitElsewhere(t *testing.T) {
	s := loaded(t, 10)
	_, err := s.AddMarkers([]float64{3, 6})
	require.NoError(t, err)

	segs := s.Segments()
	require.NoError(t, s.Rename(segs[0].ID, "Intro"))

	_, err = s.AddMarker(8)
	require.NoError(t, err)

	assert.Equal(t, []string{"Intro", "片段 2", "片段 3", "片段 4"}, names(s.Segments()))
}

func TestRenameBlankWarns(t *testing.T) {
	s := loaded(t, 10)
	_, err := s.AddMarker(5)
	require.NoError(t, err)

	id := s.Segments()[1].ID
	require.NoError(t, s.Rename(id, "Outro"))

	err = s.Rename(id, "  ")
	assert.ErrorIs(t, err, apperr.ErrEmptyName)
	assert.Equal(t, "片段 2", s.Segments()[1].Name)

	assert.ErrorIs(t, s.Rename("missing", "x"), apperr.ErrUnknownSegment)
}

func TestMergeAndDelete(t *testing.T) {
	s := loaded(t, 10)
	_, err := s.AddMarkers([]float64{2, 5, 8})
	require.NoError(t, err)

	segs := s.Segments()
	require.Len(t, segs, 4)

	err = s.Merge([]string{segs[0].ID, segs[2].ID})
	assert.ErrorIs(t, err, apperr.ErrNotContiguous)
	assert.Len(t, s.Segments(), 4)

	require.NoError(t, s.Merge([]string{segs[1].ID, segs[2].ID}))
	segs = s.Segments()
	require.Len(t, segs, 3)
	assert.Equal(t, 2.0, segs[1].Start)
	assert.Equal(t, 8.0, segs[1].End)

	removed, err := s.Delete([]string{segs[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	segs = s.Segments()
	require.Len(t, segs, 2)
	assert.Equal(t, 0.0, segs[0].Start)
	assert.Equal(t, 8.0, segs[0].End)
}

func TestBatchRename(t *testing.T) {
	s := loaded(t, 10)
	_, err := s.AddMarkers([]float64{2, 5, 8})
	require.NoError(t, err)

	n, err := s.BatchRename([]string{"Alice hi/bye", "", "Bob"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"Alice hi_1", "Alice bye_2", "Bob", "片段 4"}, names(s.Segments()))
}

func TestImportBoundariesWithLabels(t *testing.T) {
	s := loaded(t, 10)

	added, err := s.ImportBoundaries([]timeline.Boundary{
		{Start: 1, End: 3, Label: "Hello"},
		{Start: 3, End: 6, Label: "World"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	assert.Equal(t, []string{"片段 1", "Hello", "World", "片段 4"}, names(s.Segments()))
}

func TestClearMarkers(t *testing.T) {
	s := loaded(t, 10)
	_, err := s.AddMarkers([]float64{2, 5})
	require.NoError(t, err)

	s.ClearMarkers()
	assert.Empty(t, s.Markers())
	assert.Len(t, s.Segments(), 1)
}

func TestExportAllArchive(t *testing.T) {
	s := loaded(t, 6)
	_, err := s.AddMarkers([]float64{2, 4})
	require.NoError(t, err)
	segs := s.Segments()
	require.NoError(t, s.Rename(segs[1].ID, "Middle"))

	var buf bytes.Buffer
	entries, err := s.ExportAll(context.Background(), &buf, nil, export.WAVEncoder{}, export.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"片段 1.wav", "Middle.wav", "片段 3.wav"}, entries)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Len(t, zr.File, 3)
}

func TestExportSelection(t *testing.T) {
	s := loaded(t, 6)
	_, err := s.AddMarkers([]float64{2, 4})
	require.NoError(t, err)
	segs := s.Segments()

	var units []string
	err = s.ExportEach(context.Background(), []string{segs[2].ID, segs[0].ID}, export.WAVEncoder{}, export.Options{},
		func(u export.Unit) error {
			units = append(units, u.Name)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"片段 1.wav", "片段 3.wav"}, units)

	_, err = s.ExportAll(context.Background(), &bytes.Buffer{}, []string{"nope"}, export.WAVEncoder{}, export.Options{})
	assert.ErrorIs(t, err, apperr.ErrUnknownSegment)

	unit, err := s.ExportOne(context.Background(), segs[1].ID, export.WAVEncoder{})
	require.NoError(t, err)
	assert.Equal(t, "片段 2.wav", unit.Name)
}

// blockingEncoder holds Encode until release is closed.
type blockingEncoder struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (e *blockingEncoder) Extension() string { return ".raw" }

func (e *blockingEncoder) Encode(ctx context.Context, pcm export.PCM) ([]byte, error) {
	e.once.Do(func() { close(e.started) })
	<-e.release
	return []byte{1}, nil
}

func TestExportIsSingleFlight(t *testing.T) {
	s := loaded(t, 4)
	enc := &blockingEncoder{started: make(chan struct{}), release: make(chan struct{})}

	errc := make(chan error, 1)
	go func() {
		_, err := s.ExportAll(context.Background(), &bytes.Buffer{}, nil, enc, export.Options{})
		errc <- err
	}()
	<-enc.started

	_, err := s.Detect(context.Background(), audio.DefaultDetectOptions())
	assert.ErrorIs(t, err, apperr.ErrBusy)

	_, err = s.ExportAll(context.Background(), &bytes.Buffer{}, nil, export.WAVEncoder{}, export.Options{})
	assert.ErrorIs(t, err, apperr.ErrBusy)

	close(enc.release)
	require.NoError(t, <-errc)

	_, err = s.Detect(context.Background(), audio.DefaultDetectOptions())
	assert.NoError(t, err)
}

func TestSnapshotRestore(t *testing.T) {
	s := loaded(t, 10)
	_, err := s.AddMarkers([]float64{3, 7})
	require.NoError(t, err)
	require.NoError(t, s.Rename(s.Segments()[2].ID, "End"))

	doc, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "talk.wav", doc.Source)
	assert.Len(t, doc.Markers, 2)
	require.Len(t, doc.Names, 1)

	other := loaded(t, 10)
	require.NoError(t, other.Restore(doc))
	assert.Equal(t, names(s.Segments()), names(other.Segments()))
	assert.Equal(t, s.Markers(), other.Markers())

	short := loaded(t, 5)
	assert.ErrorIs(t, short.Restore(doc), apperr.ErrValidation)
}

func TestReset(t *testing.T) {
	s := loaded(t, 10)
	s.Reset()
	assert.Nil(t, s.Source())
	assert.Empty(t, s.Segments())
}

func TestLoadDiscardsPreviousNames(t *testing.T) {
	s := loaded(t, 10)
	_, err := s.AddMarker(4)
	require.NoError(t, err)
	require.NoError(t, s.Rename("segment-1", "Intro"))
	require.NoError(t, s.Rename("segment-2", "Rest"))

	require.NoError(t, s.Load(toneSource(t, 10), "other.wav"))

	segs := s.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, "片段 1", segs[0].Name)
	assert.Empty(t, s.Markers())
	assert.Equal(t, "other.wav", s.Name())
}

func TestLoadSameLayoutKeepsNoNames(t *testing.T) {
	s := loaded(t, 10)
	require.NoError(t, s.Rename("segment-1", "Intro"))

	require.NoError(t, s.Load(toneSource(t, 10), "other.wav"))
	assert.Equal(t, "片段 1", s.Segments()[0].Name)
}

func TestLoadNilSource(t *testing.T) {
	s := loaded(t, 10)

	err := s.Load(nil, "missing.wav")
	assert.ErrorIs(t, err, apperr.ErrState)
	assert.ErrorIs(t, err, apperr.ErrNoSource)
	assert.Equal(t, "talk.wav", s.Name(), "failed load keeps the current source")
}
