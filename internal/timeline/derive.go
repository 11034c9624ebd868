package timeline

import (
	"fmt"
	"math"
	"sort"
)

// nameTolerance is the boundary match precision used to carry names forward.
const nameTolerance = 0.001

// Segment is a named range of the timeline. Segments are always derived
// from markers and replaced wholesale on every marker change.
type Segment struct {
	ID       string  `json:"id"`
	Index    int     `json:"index"` // 1-based position
	Name     string  `json:"name"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

// DefaultName is the name a segment gets when nothing carries over.
func DefaultName(index int) string {
	return fmt.Sprintf("片段 %d", index)
}

// Derive partitions [0, total) at the given marker times. Boundary pairs
// shorter than MinGap are not emitted; their start carries forward into the
// next pair, and a short tail extends the last emitted segment. A segment
// whose start and end match a segment in previous keeps that segment's name.
func Derive(total float64, markers []float64, previous []Segment) []Segment {
	if total <= 0 {
		return []Segment{}
	}

	times := append([]float64(nil), markers...)
	sort.Float64s(times)

	boundaries := []float64{0}
	for _, t := range times {
		if t > nameTolerance && t < total-nameTolerance {
			boundaries = append(boundaries, t)
		}
	}
	boundaries = append(boundaries, total)

	type span struct{ start, end float64 }
	var spans []span
	start := boundaries[0]
	for _, end := range boundaries[1:] {
		if end-start < MinGap {
			continue
		}
		spans = append(spans, span{start, end})
		start = end
	}
	switch {
	case len(spans) == 0:
		spans = append(spans, span{0, total})
	case start < total:
		spans[len(spans)-1].end = total
	}

	segments := make([]Segment, 0, len(spans))
	seen := make(map[string]int, len(spans))
	for i, sp := range spans {
		index := i + 1
		segments = append(segments, Segment{
			ID:       uniqueID(seen, fmt.Sprintf("segment-%d", index)),
			Index:    index,
			Name:     carriedName(previous, sp.start, sp.end, DefaultName(index)),
			Start:    sp.start,
			End:      sp.end,
			Duration: sp.end - sp.start,
		})
	}
	return segments
}

func carriedName(previous []Segment, start, end float64, fallback string) string {
	for _, p := range previous {
		if math.Abs(p.Start-start) < nameTolerance && math.Abs(p.End-end) < nameTolerance {
			return p.Name
		}
	}
	return fallback
}

func uniqueID(seen map[string]int, id string) string {
	n, taken := seen[id]
	seen[id] = n + 1
	if !taken {
		return id
	}
	for {
		candidate := fmt.Sprintf("%s-%d", id, n+1)
		if _, clash := seen[candidate]; !clash {
			seen[candidate] = 1
			return candidate
		}
		n++
	}
}

// Normalize sorts times and drops any time closer than MinGap to zero or to
// the previous kept time. Derive(t, m) equals Derive(t, Normalize(m)).
func Normalize(times []float64) []float64 {
	sorted := append([]float64(nil), times...)
	sort.Float64s(sorted)

	out := make([]float64, 0, len(sorted))
	last := 0.0
	for _, t := range sorted {
		if t-last < MinGap {
			continue
		}
		out = append(out, t)
		last = t
	}
	return out
}

// Find returns the segment with the given id.
func Find(segments []Segment, id string) (Segment, bool) {
	for _, s := range segments {
		if s.ID == id {
			return s, true
		}
	}
	return Segment{}, false
}
