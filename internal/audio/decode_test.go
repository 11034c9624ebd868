package audio

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgpai22/vibhaj/internal/apperr"
)

func TestParseProbe(t *testing.T) {
	data := []byte(`{
		"streams": [{"sample_rate": "44100", "channels": 2}],
		"format": {"duration": "62.500000"},
		"chapters": [
			{"start_time": "0.000000", "end_time": "30.000000", "tags": {"title": "Opening"}},
			{"start_time": "30.000000", "end_time": "62.500000", "tags": {}}
		]
	}`)

	info, err := parseProbe(data)
	require.NoError(t, err)
	assert.Equal(t, 44100, info.SampleRate)
	assert.Equal(t, 2, info.Channels)
	assert.InDelta(t, 62.5, info.Duration, 1e-9)
	assert.Equal(t, []Chapter{
		{Start: 0, End: 30, Title: "Opening"},
		{Start: 30, End: 62.5},
	}, info.Chapters)
}

func TestParseProbeErrors(t *testing.T) {
	tests := map[string]string{
		"not json":    `nope`,
		"no stream":   `{"streams": []}`,
		"bad rate":    `{"streams": [{"sample_rate": "N/A", "channels": 1}]}`,
		"no channels": `{"streams": [{"sample_rate": "8000", "channels": 0}]}`,
		"bad chapter": `{"streams": [{"sample_rate": "8000", "channels": 1}], "chapters": [{"start_time": "x", "end_time": "1"}]}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseProbe([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestDeinterleaveF32LE(t *testing.T) {
	values := []float32{0.25, -0.5, 0.75, -1, 0.125}
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}

	channels := deinterleaveF32LE(data, 2)
	require.Len(t, channels, 2)
	assert.Equal(t, []float32{0.25, 0.75}, channels[0])
	assert.Equal(t, []float32{-0.5, -1}, channels[1])
}

func TestDecodeRejectsUnsupportedType(t *testing.T) {
	_, err := NewFFmpegDecoder(nil).Decode(context.Background(), "notes.txt")
	assert.ErrorIs(t, err, apperr.ErrInput)
}
