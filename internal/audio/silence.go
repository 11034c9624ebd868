package audio

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/mgpai22/vibhaj/internal/apperr"
)

// Detection defaults and limits.
const (
	// AnalysisBlock is the length of one amplitude analysis window.
	AnalysisBlock = 0.05

	DefaultThresholdDB = -40.0
	DefaultMinSilence  = 0.5
)

// DetectOptions tunes silence detection.
type DetectOptions struct {
	ThresholdDB float64 `validate:"gte=-60,lte=-20"` // amplitude threshold in dBFS
	MinSilence  float64 `validate:"gte=0.2,lte=2"`   // minimum run length in seconds
}

func DefaultDetectOptions() DetectOptions {
	return DetectOptions{
		ThresholdDB: DefaultThresholdDB,
		MinSilence:  DefaultMinSilence,
	}
}

var validate = validator.New()

func (o DetectOptions) Validate() error {
	if err := validate.Struct(o); err != nil {
		return apperr.Wrap(apperr.KindValidation, "detect", err)
	}
	return nil
}

// DetectSilence returns candidate split times, in seconds and ascending, at
// the midpoint of every run of quiet blocks lasting at least MinSilence.
// Channel 0 is the reference channel. The source is only read.
func DetectSilence(src *Source, opts DetectOptions) ([]float64, error) {
	if src == nil {
		return nil, apperr.Wrap(apperr.KindState, "detect", apperr.ErrNoSource)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	threshold := math.Pow(10, opts.ThresholdDB/20)
	rate := float64(src.SampleRate())
	block := int(math.Round(rate * AnalysisBlock))
	if block < 1 {
		block = 1
	}
	minRun := int(math.Ceil(opts.MinSilence * rate))

	samples := src.Channel(0)
	points := []float64{}

	runStart, runEnd := -1, -1
	flush := func() {
		if runStart >= 0 && runEnd-runStart >= minRun {
			points = append(points, float64(runStart+runEnd)/2/rate)
		}
		runStart, runEnd = -1, -1
	}

	for start := 0; start < len(samples); start += block {
		end := min(start+block, len(samples))

		if peak(samples[start:end]) < threshold {
			if runStart < 0 {
				runStart = start
			}
			runEnd = end
			continue
		}
		flush()
	}
	flush()

	return points, nil
}

func peak(samples []float32) float64 {
	var m float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > m {
			m = a
		}
	}
	return m
}

func (o DetectOptions) String() string {
	return fmt.Sprintf("threshold=%.1fdB min_silence=%.2fs", o.ThresholdDB, o.MinSilence)
}
