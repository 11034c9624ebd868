package export

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"

	"github.com/mgpai22/vibhaj/internal/apperr"
	ffmpegbin "github.com/mgpai22/vibhaj/internal/ffmpeg"
	"github.com/mgpai22/vibhaj/internal/logging"
)

// DefaultBitrateKbps is the MP3 bitrate used when none is configured.
const DefaultBitrateKbps = 128

// Encoder compresses a rendered segment.
type Encoder interface {
	// Extension includes the leading dot.
	Extension() string
	Encode(ctx context.Context, pcm PCM) ([]byte, error)
}

// NewEncoder returns the encoder for a format name ("mp3" or "wav").
func NewEncoder(format string, bitrateKbps int, log *zap.SugaredLogger) (Encoder, error) {
	switch format {
	case "mp3", "":
		return NewMP3Encoder(bitrateKbps, log), nil
	case "wav":
		return WAVEncoder{}, nil
	default:
		return nil, apperr.Errorf(apperr.KindValidation, "export",
			"unsupported output format %q: use mp3 or wav", format)
	}
}

// MP3Encoder streams PCM blocks into ffmpeg's libmp3lame over stdin.
type MP3Encoder struct {
	BitrateKbps int
	log         *zap.SugaredLogger
}

func NewMP3Encoder(bitrateKbps int, log *zap.SugaredLogger) *MP3Encoder {
	if bitrateKbps <= 0 {
		bitrateKbps = DefaultBitrateKbps
	}
	return &MP3Encoder{BitrateKbps: bitrateKbps, log: logging.OrNop(log)}
}

func (e *MP3Encoder) Extension() string { return ".mp3" }

func (e *MP3Encoder) Encode(ctx context.Context, pcm PCM) ([]byte, error) {
	ffmpegPath, err := ffmpegbin.FFmpegPath()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrEncoderUnavailable, err)
	}

	pr, pw := io.Pipe()
	defer pr.Close()

	// feed blocks while ffmpeg drains stdin
	fed := make(chan error, 1)
	go func() {
		fed <- feedF32LE(ctx, pw, pcm)
	}()

	var out, stderr bytes.Buffer
	runErr := ffmpeg.Input("pipe:0", ffmpeg.KwArgs{
		"hide_banner": "",
		"loglevel":    "error",
		"f":           "f32le",
		"ar":          pcm.SampleRate,
		"ac":          len(pcm.Channels),
	}).
		Output("pipe:1", ffmpeg.KwArgs{
			"f":      "mp3",
			"acodec": "libmp3lame",
			"b:a":    fmt.Sprintf("%dk", e.BitrateKbps),
		}).
		WithInput(pr).
		WithOutput(&out).
		WithErrorOutput(&stderr).
		SetFfmpegPath(ffmpegPath).
		Run()

	// unblock the feeder if ffmpeg stopped reading early
	_ = pr.CloseWithError(io.ErrClosedPipe)
	feedErr := <-fed

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", runErr, bytes.TrimSpace(stderr.Bytes()))
	}
	if feedErr != nil && !errors.Is(feedErr, io.ErrClosedPipe) {
		return nil, fmt.Errorf("feed pcm: %w", feedErr)
	}

	e.log.Debugw("Encoded mp3",
		"frames", pcm.Frames(),
		"bytes", out.Len(),
	)
	return out.Bytes(), nil
}

// feedF32LE writes pcm block by block and closes w; the close is the flush
// that lets the encoder emit its trailing partial frame.
func feedF32LE(ctx context.Context, w *io.PipeWriter, pcm PCM) error {
	var raw []byte
	err := forEachBlock(pcm, func(block []float32) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw = raw[:0]
		for _, s := range block {
			raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(s))
		}
		_, err := w.Write(raw)
		return err
	})
	_ = w.CloseWithError(err)
	return err
}
