package audio

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Source is a decoded PCM buffer. It is never modified after construction;
// callers must treat slices returned by Channel as read-only.
type Source struct {
	sampleRate int
	channels   [][]float32 // channel-major, samples in [-1, 1]
}

// NewSource takes ownership of channels. All channels must have the same
// length.
func NewSource(sampleRate int, channels [][]float32) (*Source, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("source has no channels")
	}
	frames := len(channels[0])
	for i, ch := range channels[1:] {
		if len(ch) != frames {
			return nil, fmt.Errorf(
				"channel %d has %d frames, expected %d",
				i+1, len(ch), frames,
			)
		}
	}
	return &Source{sampleRate: sampleRate, channels: channels}, nil
}

func (s *Source) SampleRate() int   { return s.sampleRate }
func (s *Source) ChannelCount() int { return len(s.channels) }
func (s *Source) FrameCount() int   { return len(s.channels[0]) }

// Duration in seconds.
func (s *Source) Duration() float64 {
	return float64(s.FrameCount()) / float64(s.sampleRate)
}

// Channel returns the samples of channel i.
func (s *Source) Channel(i int) []float32 {
	return s.channels[i]
}

// FrameAt converts a time in seconds to the nearest frame index, clamped to
// [0, FrameCount].
func (s *Source) FrameAt(seconds float64) int {
	f := int(seconds*float64(s.sampleRate) + 0.5)
	if f < 0 {
		return 0
	}
	if n := s.FrameCount(); f > n {
		return n
	}
	return f
}

// checks if the file is a video based on extension
func IsVideoFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	videoExts := map[string]bool{
		".mp4":  true,
		".mkv":  true,
		".avi":  true,
		".mov":  true,
		".webm": true,
		".m4v":  true,
		".mpeg": true,
		".mpg":  true,
	}
	return videoExts[ext]
}

// checks if the file is an audio file based on extension
func IsAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	audioExts := map[string]bool{
		".mp3":  true,
		".wav":  true,
		".aac":  true,
		".flac": true,
		".ogg":  true,
		".opus": true,
		".m4a":  true,
		".m4b":  true,
		".wma":  true,
		".aiff": true,
	}
	return audioExts[ext]
}

// checks if the file is either audio or video
func IsMediaFile(path string) bool {
	return IsAudioFile(path) || IsVideoFile(path)
}
