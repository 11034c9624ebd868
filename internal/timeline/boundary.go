package timeline

import "math"

// Boundary is an externally supplied range, such as a subtitle cue or a
// chapter.
type Boundary struct {
	Start float64
	End   float64
	Label string
}

// Import adds a marker at every boundary start and end, exactly as if each
// point were added by hand. Out-of-range and duplicate points are skipped.
// It returns the number of markers added.
func Import(markers *MarkerSet, points []Boundary) int {
	added := 0
	for _, b := range points {
		for _, t := range []float64{b.Start, b.End} {
			if _, ok, err := markers.Add(t); err == nil && ok {
				added++
			}
		}
	}
	return added
}

// ApplyLabels names every segment whose range matches a labelled boundary
// within EdgeTolerance. It returns the number of segments renamed.
func ApplyLabels(segments []Segment, points []Boundary) int {
	renamed := 0
	for i := range segments {
		for _, b := range points {
			if b.Label == "" {
				continue
			}
			if math.Abs(segments[i].Start-b.Start) <= EdgeTolerance &&
				math.Abs(segments[i].End-b.End) <= EdgeTolerance {
				segments[i].Name = b.Label
				renamed++
				break
			}
		}
	}
	return renamed
}
