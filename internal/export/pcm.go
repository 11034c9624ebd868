package export

import (
	"fmt"

	"github.com/mgpai22/vibhaj/internal/audio"
	"github.com/mgpai22/vibhaj/internal/timeline"
)

// BlockSize is the number of frames handed to an encoder per call, one MPEG
// layer III frame.
const BlockSize = 1152

// PCM is a channel-major sample matrix. Mono and stereo go through the same
// code paths.
type PCM struct {
	SampleRate int
	Channels   [][]float32
}

func (p PCM) Frames() int {
	if len(p.Channels) == 0 {
		return 0
	}
	return len(p.Channels[0])
}

// Seconds is the rendered length.
func (p PCM) Seconds() float64 {
	return float64(p.Frames()) / float64(p.SampleRate)
}

// Render copies the frames of seg out of src. The result shares no memory
// with src, so nothing outside [start, end) can leak into the encoder.
func Render(src *audio.Source, seg timeline.Segment) (PCM, error) {
	start := src.FrameAt(seg.Start)
	end := src.FrameAt(seg.End)
	if end <= start {
		return PCM{}, fmt.Errorf("empty frame range [%d, %d) for %.3fs-%.3fs",
			start, end, seg.Start, seg.End)
	}

	channels := make([][]float32, src.ChannelCount())
	for c := range channels {
		channels[c] = make([]float32, end-start)
		copy(channels[c], src.Channel(c)[start:end])
	}
	return PCM{SampleRate: src.SampleRate(), Channels: channels}, nil
}

// forEachBlock interleaves pcm into blocks of at most BlockSize frames and
// calls fn for each. The last block may be short. buf is reused between
// calls.
func forEachBlock(pcm PCM, fn func(interleaved []float32) error) error {
	channelCount := len(pcm.Channels)
	frames := pcm.Frames()
	buf := make([]float32, BlockSize*channelCount)

	for start := 0; start < frames; start += BlockSize {
		n := min(BlockSize, frames-start)
		block := buf[:n*channelCount]
		for f := 0; f < n; f++ {
			for c := 0; c < channelCount; c++ {
				block[f*channelCount+c] = pcm.Channels[c][start+f]
			}
		}
		if err := fn(block); err != nil {
			return err
		}
	}
	return nil
}
