package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgpai22/vibhaj/internal/apperr"
	"github.com/mgpai22/vibhaj/internal/audio"
	"github.com/mgpai22/vibhaj/internal/timeline"
)

// rampSource holds frame index i as sample value i/frames on every channel,
// negated on the second channel.
func rampSource(t *testing.T, rate, frames, channels int) *audio.Source {
	t.Helper()
	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, frames)
		for i := range data[c] {
			v := float32(i) / float32(frames)
			if c == 1 {
				v = -v
			}
			data[c][i] = v
		}
	}
	src, err := audio.NewSource(rate, data)
	require.NoError(t, err)
	return src
}

// recordingEncoder returns the first sample of every channel as its payload
// and can be told to fail on a given segment length.
type recordingEncoder struct {
	mu       sync.Mutex
	frames   []int
	failWhen func(PCM) bool
}

func (e *recordingEncoder) Extension() string { return ".raw" }

func (e *recordingEncoder) Encode(ctx context.Context, pcm PCM) ([]byte, error) {
	if e.failWhen != nil && e.failWhen(pcm) {
		return nil, errors.New("boom")
	}
	e.mu.Lock()
	e.frames = append(e.frames, pcm.Frames())
	e.mu.Unlock()

	var out []byte
	for _, ch := range pcm.Channels {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(ch)))
	}
	return out, nil
}

func TestRenderIsSampleAccurate(t *testing.T) {
	src := rampSource(t, 1000, 5000, 2)
	seg := timeline.Segment{Start: 1, End: 2.5}

	pcm, err := Render(src, seg)
	require.NoError(t, err)

	assert.Equal(t, 1000, pcm.SampleRate)
	assert.Equal(t, 1500, pcm.Frames())
	assert.InDelta(t, 1.5, pcm.Seconds(), 1e-12)
	assert.Equal(t, src.Channel(0)[1000], pcm.Channels[0][0])
	assert.Equal(t, src.Channel(0)[2499], pcm.Channels[0][1499])
	assert.Equal(t, src.Channel(1)[1000], pcm.Channels[1][0])

	pcm.Channels[0][0] = 99
	assert.NotEqual(t, float32(99), src.Channel(0)[1000], "render must copy")
}

func TestRenderEmptyRange(t *testing.T) {
	src := rampSource(t, 1000, 1000, 1)
	_, err := Render(src, timeline.Segment{Start: 2, End: 3})
	assert.Error(t, err)
}

func TestForEachBlock(t *testing.T) {
	pcm := PCM{SampleRate: 8000, Channels: [][]float32{
		make([]float32, 2500),
		make([]float32, 2500),
	}}
	for i := range pcm.Channels[0] {
		pcm.Channels[0][i] = float32(i)
		pcm.Channels[1][i] = float32(-i)
	}

	var sizes []int
	var first []float32
	err := forEachBlock(pcm, func(block []float32) error {
		if first == nil {
			first = append([]float32(nil), block[:4]...)
		}
		sizes = append(sizes, len(block))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{2 * 1152, 2 * 1152, 2 * 196}, sizes)
	assert.Equal(t, []float32{0, 0, 1, -1}, first)
}

func TestWAVEncoder(t *testing.T) {
	pcm := PCM{SampleRate: 8000, Channels: [][]float32{{0, 1, -1}, {0.5, -0.5, 2}}}

	data, err := WAVEncoder{}.Encode(context.Background(), pcm)
	require.NoError(t, err)

	require.Len(t, data, 44+3*2*2)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(data[22:24]))
	assert.Equal(t, uint32(8000), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, uint32(12), binary.LittleEndian.Uint32(data[40:44]))

	samples := make([]int16, 6)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[44+2*i:]))
	}
	assert.Equal(t, []int16{0, 16384, 32767, -16384, -32767, 32767}, samples)
}

func TestExportOne(t *testing.T) {
	src := rampSource(t, 1000, 10000, 1)
	seg := timeline.Segment{ID: "segment-1", Name: `Q&A: "live"`, Start: 2, End: 5}

	unit, err := ExportOne(context.Background(), src, seg, WAVEncoder{})
	require.NoError(t, err)
	assert.Equal(t, "Q&A live.wav", unit.Name)
	assert.Len(t, unit.Data, 44+3000*2)
}

func TestExportOneFailsFast(t *testing.T) {
	seg := timeline.Segment{Name: "x", Start: 0, End: 1}
	enc := &recordingEncoder{}

	_, err := ExportOne(context.Background(), nil, seg, enc)
	assert.ErrorIs(t, err, apperr.ErrState)
	assert.ErrorIs(t, err, apperr.ErrNoSource)
	assert.Empty(t, enc.frames)

	src := rampSource(t, 1000, 1000, 1)
	_, err = ExportOne(context.Background(), src, seg, nil)
	assert.ErrorIs(t, err, apperr.ErrEncode)
	assert.ErrorIs(t, err, apperr.ErrEncoderUnavailable)
}

func testSegments() []timeline.Segment {
	// deliberately out of order
	return []timeline.Segment{
		{ID: "segment-3", Name: "c", Start: 6, End: 10},
		{ID: "segment-1", Name: "a", Start: 0, End: 2},
		{ID: "segment-2", Name: "b", Start: 2, End: 6},
	}
}

func readZip(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		_, err = io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
	}
	return names
}

func TestExportAllOrderAndProgress(t *testing.T) {
	src := rampSource(t, 1000, 10000, 2)
	enc := &recordingEncoder{}

	var progress []string
	var buf bytes.Buffer
	entries, err := ExportAll(context.Background(), &buf, src, testSegments(), enc, Options{
		Progress: func(p Progress) { progress = append(progress, p.String()) },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.raw", "b.raw", "c.raw"}, entries)
	assert.Equal(t, entries, readZip(t, buf.Bytes()))
	assert.Equal(t, []int{2000, 4000, 4000}, enc.frames)
	assert.Equal(t, []string{"1/3 (33%)", "2/3 (66%)", "3/3 (100%)"}, progress)
}

func TestExportAllConcurrentMatchesSequential(t *testing.T) {
	src := rampSource(t, 1000, 10000, 1)
	segments := timeline.Derive(10, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, nil)

	var seq, par bytes.Buffer
	seqEntries, err := ExportAll(context.Background(), &seq, src, segments, WAVEncoder{}, Options{})
	require.NoError(t, err)

	var calls int
	var mu sync.Mutex
	parEntries, err := ExportAll(context.Background(), &par, src, segments, WAVEncoder{}, Options{
		Concurrency: 4,
		Progress: func(Progress) {
			mu.Lock()
			calls++
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	assert.Equal(t, seqEntries, parEntries)
	assert.Equal(t, seq.Bytes(), par.Bytes())
	assert.Equal(t, 10, calls)
}

func TestExportAllDuplicateNames(t *testing.T) {
	src := rampSource(t, 1000, 3000, 1)
	segments := []timeline.Segment{
		{Name: "part", Start: 0, End: 1},
		{Name: "part", Start: 1, End: 2},
		{Name: "part:", Start: 2, End: 3},
	}

	var buf bytes.Buffer
	entries, err := ExportAll(context.Background(), &buf, src, segments, WAVEncoder{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"part.wav", "part (2).wav", "part (3).wav"}, entries)
}

func TestExportAllAbortsOnFailure(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		src := rampSource(t, 1000, 10000, 1)
		enc := &recordingEncoder{failWhen: func(p PCM) bool { return p.Frames() == 4000 && p.Channels[0][0] < 0.5 }}

		var progressed int
		var buf bytes.Buffer
		_, err := ExportAll(context.Background(), &buf, src, testSegments(), enc, Options{
			Concurrency: concurrency,
			Progress:    func(Progress) { progressed++ },
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrEncode)
		var ae *apperr.Error
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "b", ae.Segment)
		assert.Equal(t, "encode", ae.Step)
		if concurrency == 1 {
			assert.Equal(t, 1, progressed)
		}
	}
}

func TestExportAllCancelled(t *testing.T) {
	src := rampSource(t, 1000, 10000, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	enc := &recordingEncoder{}
	_, err := ExportAll(ctx, io.Discard, src, testSegments(), enc, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, enc.frames)
}

func TestExportAllNoSource(t *testing.T) {
	_, err := ExportAll(context.Background(), io.Discard, nil, testSegments(), WAVEncoder{}, Options{})
	assert.ErrorIs(t, err, apperr.ErrNoSource)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"片段 1", "片段 1"},
		{`a/b\c?d%e*f:g|h"i<j>k`, "abcdefghijk"},
		{"  ..hidden.. ", "hidden"},
		{"tab\there", "tabhere"},
		{`???`, "segment"},
		{"", "segment"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "talk_分割.zip", ArchiveName("/tmp/media/talk.mp3"))
	assert.Equal(t, "audio_分割.zip", ArchiveName(""))
	assert.Equal(t, "ab_分割.zip", ArchiveName("clips/a|b.wav"))
}
