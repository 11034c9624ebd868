package export

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
)

// WAVEncoder writes 16-bit little-endian PCM in a RIFF container.
type WAVEncoder struct{}

func (WAVEncoder) Extension() string { return ".wav" }

func (WAVEncoder) Encode(ctx context.Context, pcm PCM) ([]byte, error) {
	channels := len(pcm.Channels)
	dataSize := pcm.Frames() * channels * 2

	var buf bytes.Buffer
	buf.Grow(44 + dataSize)

	header := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36 + dataSize),
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(1), // PCM
		uint16(channels),
		uint32(pcm.SampleRate),
		uint32(pcm.SampleRate * channels * 2),
		uint16(channels * 2),
		uint16(16),
		[4]byte{'d', 'a', 't', 'a'},
		uint32(dataSize),
	}
	for _, v := range header {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}

	var sample [2]byte
	err := forEachBlock(pcm, func(block []float32) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, s := range block {
			binary.LittleEndian.PutUint16(sample[:], uint16(toInt16(s)))
			buf.Write(sample[:])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toInt16(s float32) int16 {
	v := math.Round(float64(s) * 32767)
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
