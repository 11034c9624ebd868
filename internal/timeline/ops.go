package timeline

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mgpai22/vibhaj/internal/apperr"
)

func lookup(op string, segments []Segment, ids []string) ([]Segment, error) {
	selected := make([]Segment, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		s, ok := Find(segments, id)
		if !ok {
			return nil, &apperr.Error{
				Kind: apperr.KindValidation,
				Op:   op,
				Err:  fmt.Errorf("%w: %s", apperr.ErrUnknownSegment, id),
			}
		}
		selected = append(selected, s)
	}
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Start < selected[j].Start
	})
	return selected, nil
}

// Merge removes the markers between the selected segments, which must be at
// least two and contiguous. The caller re-derives afterwards.
func Merge(markers *MarkerSet, segments []Segment, ids []string) error {
	const op = "merge"

	selected, err := lookup(op, segments, ids)
	if err != nil {
		return err
	}
	if len(selected) < 2 {
		return apperr.New(apperr.KindValidation, op, "select at least two segments")
	}
	for i := 1; i < len(selected); i++ {
		if math.Abs(selected[i-1].End-selected[i].Start) > EdgeTolerance {
			return &apperr.Error{
				Kind: apperr.KindValidation,
				Op:   op,
				Err: fmt.Errorf("%w: %q ends at %.3fs, %q starts at %.3fs",
					apperr.ErrNotContiguous,
					selected[i-1].Name, selected[i-1].End,
					selected[i].Name, selected[i].Start),
			}
		}
	}

	for _, s := range selected[:len(selected)-1] {
		markers.RemoveNear(s.End, EdgeTolerance)
	}
	return nil
}

// Delete removes the marker at each selected segment's end so the segment
// folds into its successor on the next derivation. It returns the number of
// markers removed; the final segment has no end marker and removes nothing.
func Delete(markers *MarkerSet, segments []Segment, ids []string) (int, error) {
	selected, err := lookup("delete", segments, ids)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, s := range selected {
		if markers.RemoveNear(s.End, EdgeTolerance) {
			removed++
		}
	}
	return removed, nil
}

// Rename sets the name of segment id in place. A blank name resets the
// segment to its default name and reports reset=true so the caller can warn.
func Rename(segments []Segment, id, name string) (reset bool, err error) {
	for i := range segments {
		if segments[i].ID != id {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			segments[i].Name = DefaultName(segments[i].Index)
			return true, nil
		}
		segments[i].Name = name
		return false, nil
	}
	return false, &apperr.Error{
		Kind: apperr.KindValidation,
		Op:   "rename",
		Err:  fmt.Errorf("%w: %s", apperr.ErrUnknownSegment, id),
	}
}

// BatchRename applies names to segments in order and returns how many were
// renamed. See ExpandNames for the line syntax.
func BatchRename(segments []Segment, lines []string) int {
	names := ExpandNames(lines)
	n := min(len(names), len(segments))
	for i := 0; i < n; i++ {
		segments[i].Name = names[i]
	}
	return n
}

// ExpandNames turns batch-rename input into one name per segment slot.
// Blank lines are skipped. "<speaker> <a>/<b>/..." expands to
// "<speaker> <a>_1", "<speaker> <b>_2", and so on.
func ExpandNames(lines []string) []string {
	var names []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		speaker, rest, found := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)
		if !found || !strings.Contains(rest, "/") {
			names = append(names, line)
			continue
		}

		n := 0
		for _, alt := range strings.Split(rest, "/") {
			alt = strings.TrimSpace(alt)
			if alt == "" {
				continue
			}
			n++
			names = append(names, fmt.Sprintf("%s %s_%d", speaker, alt, n))
		}
	}
	return names
}
