package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"

	"github.com/mgpai22/vibhaj/internal/apperr"
	ffmpegbin "github.com/mgpai22/vibhaj/internal/ffmpeg"
	"github.com/mgpai22/vibhaj/internal/logging"
)

// Decoder turns a media file into a Source.
type Decoder interface {
	Decode(ctx context.Context, path string) (*Source, error)
}

// Info is the subset of ffprobe output the engine needs.
type Info struct {
	SampleRate int
	Channels   int
	Duration   float64
	Chapters   []Chapter
}

// Chapter is a container chapter, in seconds.
type Chapter struct {
	Start float64
	End   float64
	Title string
}

// JSON output from ffprobe
type ffprobeOutput struct {
	Streams []struct {
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Chapters []struct {
		StartTime string            `json:"start_time"`
		EndTime   string            `json:"end_time"`
		Tags      map[string]string `json:"tags"`
	} `json:"chapters"`
}

// Probe reads stream format, duration and chapters of the first audio
// stream.
func Probe(ctx context.Context, path string) (*Info, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s", path)
	}

	ffprobePath, err := ffmpegbin.FFprobePath()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-select_streams", "a:0",
		"-show_streams",
		"-show_format",
		"-show_chapters",
		path,
	)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(out.Bytes())
}

func parseProbe(data []byte) (*Info, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio stream")
	}

	stream := probe.Streams[0]
	rate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q", stream.SampleRate)
	}
	if stream.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", stream.Channels)
	}

	info := &Info{SampleRate: rate, Channels: stream.Channels}
	if probe.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	}

	for _, ch := range probe.Chapters {
		start, err := strconv.ParseFloat(ch.StartTime, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chapter start %q", ch.StartTime)
		}
		end, err := strconv.ParseFloat(ch.EndTime, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chapter end %q", ch.EndTime)
		}
		info.Chapters = append(info.Chapters, Chapter{
			Start: start,
			End:   end,
			Title: ch.Tags["title"],
		})
	}

	return info, nil
}

// FFmpegDecoder decodes through an ffmpeg f32le pipe, keeping the source's
// native sample rate and channel count.
type FFmpegDecoder struct {
	log *zap.SugaredLogger
}

func NewFFmpegDecoder(log *zap.SugaredLogger) *FFmpegDecoder {
	return &FFmpegDecoder{log: logging.OrNop(log)}
}

func (d *FFmpegDecoder) Decode(ctx context.Context, path string) (*Source, error) {
	const op = "decode"

	if !IsMediaFile(path) {
		return nil, apperr.Errorf(apperr.KindInput, op,
			"unsupported file type: %s", path)
	}

	info, err := Probe(ctx, path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDecode, op, err)
	}

	ffmpegPath, err := ffmpegbin.FFmpegPath()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDecode, op, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.log.Debugw("Decoding media",
		"path", path,
		"sample_rate", info.SampleRate,
		"channels", info.Channels,
	)

	var out, stderr bytes.Buffer
	err = ffmpeg.Input(path, ffmpeg.KwArgs{"hide_banner": "", "loglevel": "error"}).
		Output("pipe:1", ffmpeg.KwArgs{
			"vn":     "",
			"f":      "f32le",
			"acodec": "pcm_f32le",
			"ar":     info.SampleRate,
			"ac":     info.Channels,
		}).
		WithOutput(&out).
		WithErrorOutput(&stderr).
		SetFfmpegPath(ffmpegPath).
		Run()
	if err != nil {
		return nil, apperr.Errorf(apperr.KindDecode, op,
			"undecodable media: %v: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	channels := deinterleaveF32LE(out.Bytes(), info.Channels)
	src, err := NewSource(info.SampleRate, channels)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDecode, op, err)
	}
	return src, nil
}

// deinterleaveF32LE splits interleaved little-endian float32 frames into
// per-channel slices. A trailing partial frame is dropped.
func deinterleaveF32LE(data []byte, channelCount int) [][]float32 {
	frameBytes := 4 * channelCount
	frames := len(data) / frameBytes

	channels := make([][]float32, channelCount)
	for c := range channels {
		channels[c] = make([]float32, frames)
	}

	for f := 0; f < frames; f++ {
		base := f * frameBytes
		for c := 0; c < channelCount; c++ {
			bits := binary.LittleEndian.Uint32(data[base+4*c:])
			channels[c][f] = math.Float32frombits(bits)
		}
	}
	return channels
}
