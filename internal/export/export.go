// Package export slices segments out of a decoded source, encodes them and
// optionally bundles the results into a zip archive.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/mgpai22/vibhaj/internal/apperr"
	"github.com/mgpai22/vibhaj/internal/audio"
	"github.com/mgpai22/vibhaj/internal/logging"
	"github.com/mgpai22/vibhaj/internal/timeline"
)

// Unit is one encoded segment.
type Unit struct {
	Name string // sanitized file name including extension
	Data []byte
}

// Progress is reported after every finished segment.
type Progress struct {
	Processed int
	Total     int
	Segment   string
}

func (p Progress) Percent() int {
	if p.Total == 0 {
		return 100
	}
	return p.Processed * 100 / p.Total
}

func (p Progress) String() string {
	return fmt.Sprintf("%d/%d (%d%%)", p.Processed, p.Total, p.Percent())
}

// Options controls batch export.
type Options struct {
	// Concurrency above 1 encodes that many segments at once. Units are
	// still delivered in ascending start order.
	Concurrency int
	Progress    func(Progress)
	Log         *zap.SugaredLogger
}

// ExportOne renders and encodes a single segment.
func ExportOne(ctx context.Context, src *audio.Source, seg timeline.Segment, enc Encoder) (Unit, error) {
	const op = "export"

	if src == nil {
		return Unit{}, apperr.Wrap(apperr.KindState, op, apperr.ErrNoSource)
	}
	if enc == nil {
		return Unit{}, &apperr.Error{
			Kind: apperr.KindEncode, Op: op, Segment: seg.Name,
			Err: apperr.ErrEncoderUnavailable,
		}
	}

	pcm, err := Render(src, seg)
	if err != nil {
		return Unit{}, &apperr.Error{
			Kind: apperr.KindValidation, Op: op, Segment: seg.Name, Step: "render", Err: err,
		}
	}

	data, err := enc.Encode(ctx, pcm)
	if err != nil {
		return Unit{}, &apperr.Error{
			Kind: apperr.KindEncode, Op: op, Segment: seg.Name, Step: "encode", Err: err,
		}
	}

	return Unit{Name: Sanitize(seg.Name) + enc.Extension(), Data: data}, nil
}

// Each exports segments in ascending start order and hands every unit to
// emit in that order. The first failure stops the batch; no further units
// are emitted. The context is checked between segments.
func Each(
	ctx context.Context,
	src *audio.Source,
	segments []timeline.Segment,
	enc Encoder,
	opts Options,
	emit func(Unit) error,
) error {
	if src == nil {
		return apperr.Wrap(apperr.KindState, "export", apperr.ErrNoSource)
	}

	ordered := append([]timeline.Segment(nil), segments...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start < ordered[j].Start
	})

	if opts.Concurrency > 1 {
		return eachConcurrent(ctx, src, ordered, enc, opts, emit)
	}

	log := logging.OrNop(opts.Log)
	for i, seg := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}

		log.Debugw("Exporting segment", "name", seg.Name, "start", seg.Start, "end", seg.End)
		unit, err := ExportOne(ctx, src, seg, enc)
		if err != nil {
			return err
		}
		if err := emit(unit); err != nil {
			return &apperr.Error{
				Kind: apperr.KindIO, Op: "export", Segment: seg.Name, Step: "archive", Err: err,
			}
		}
		report(opts, i+1, len(ordered), seg.Name)
	}
	return nil
}

// eachConcurrent encodes with a bounded worker pool and emits in order once
// every segment has finished.
func eachConcurrent(
	ctx context.Context,
	src *audio.Source,
	ordered []timeline.Segment,
	enc Encoder,
	opts Options,
	emit func(Unit) error,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		units     = make([]Unit, len(ordered))
		firstErr  error
		processed int
		wg        sync.WaitGroup
	)

	// semaphore limiting concurrent encodes
	sem := make(chan struct{}, opts.Concurrency)

	for i, seg := range ordered {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(i int, seg timeline.Segment) {
				defer wg.Done()
				defer func() { <-sem }()

				unit, err := ExportOne(ctx, src, seg, enc)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
						cancel()
					}
					return
				}
				units[i] = unit
				processed++
				report(opts, processed, len(ordered), seg.Name)
			}(i, seg)
			continue
		}
		break
	}

	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, unit := range units {
		if err := emit(unit); err != nil {
			return &apperr.Error{
				Kind: apperr.KindIO, Op: "export", Segment: ordered[i].Name, Step: "archive", Err: err,
			}
		}
	}
	return nil
}

func report(opts Options, processed, total int, name string) {
	if opts.Progress != nil {
		opts.Progress(Progress{Processed: processed, Total: total, Segment: name})
	}
}

// reserved on at least one common filesystem
const reservedChars = `/\?%*:|"<>`

// Sanitize makes a segment name safe to use as a file name.
func Sanitize(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(reservedChars, r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	cleaned = strings.Trim(cleaned, " .")
	if cleaned == "" {
		return "segment"
	}
	return cleaned
}

// ArchiveName is the download name for a batch export of sourcePath.
func ArchiveName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if sourcePath == "" || base == "" || base == "." {
		base = "audio"
	}
	return Sanitize(base) + "_分割.zip"
}
