// Package timeline holds split markers and derives the named segment
// partition from them.
package timeline

import (
	"sort"

	"github.com/google/uuid"

	"github.com/mgpai22/vibhaj/internal/apperr"
)

const (
	// MinGap is both the marker dedupe window and the shortest segment
	// Derive will emit, in seconds.
	MinGap = 0.05

	// EdgeTolerance is how close a marker must be to a segment edge for the
	// edit operations to treat it as that edge's marker.
	EdgeTolerance = 0.01
)

// Marker is a zero-duration split point.
type Marker struct {
	ID   string  `yaml:"id"`
	Time float64 `yaml:"time"`
}

// MarkerSet is an ordered, de-duplicated set of markers inside
// [0, duration].
type MarkerSet struct {
	duration float64
	markers  []Marker
	newID    func() string
}

func NewMarkerSet(duration float64) *MarkerSet {
	return &MarkerSet{
		duration: duration,
		newID:    uuid.NewString,
	}
}

func (m *MarkerSet) Duration() float64 { return m.duration }
func (m *MarkerSet) Len() int          { return len(m.markers) }

// Add inserts a marker at pos. It returns false without error when an
// existing marker lies within MinGap of pos.
func (m *MarkerSet) Add(pos float64) (Marker, bool, error) {
	return m.insert(Marker{Time: pos})
}

func (m *MarkerSet) insert(mk Marker) (Marker, bool, error) {
	if mk.Time < 0 || mk.Time > m.duration {
		return Marker{}, false, apperr.Errorf(apperr.KindValidation, "add marker",
			"position %.3fs outside [0, %.3fs]", mk.Time, m.duration)
	}

	i := sort.Search(len(m.markers), func(i int) bool {
		return m.markers[i].Time >= mk.Time
	})
	if i < len(m.markers) && m.markers[i].Time-mk.Time < MinGap {
		return Marker{}, false, nil
	}
	if i > 0 && mk.Time-m.markers[i-1].Time < MinGap {
		return Marker{}, false, nil
	}

	if mk.ID == "" {
		mk.ID = m.newID()
	}
	m.markers = append(m.markers, Marker{})
	copy(m.markers[i+1:], m.markers[i:])
	m.markers[i] = mk
	return mk, true, nil
}

// Remove deletes the marker with the given id.
func (m *MarkerSet) Remove(id string) bool {
	for i, mk := range m.markers {
		if mk.ID == id {
			m.markers = append(m.markers[:i], m.markers[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveNear deletes the marker closest to t, if one lies within tol.
func (m *MarkerSet) RemoveNear(t, tol float64) bool {
	best := -1
	bestDist := tol
	for i, mk := range m.markers {
		d := mk.Time - t
		if d < 0 {
			d = -d
		}
		if d <= bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return false
	}
	m.markers = append(m.markers[:best], m.markers[best+1:]...)
	return true
}

func (m *MarkerSet) Clear() {
	m.markers = nil
}

// Markers returns a copy, sorted by time.
func (m *MarkerSet) Markers() []Marker {
	return append([]Marker(nil), m.markers...)
}

// Times returns the marker positions, ascending.
func (m *MarkerSet) Times() []float64 {
	times := make([]float64, len(m.markers))
	for i, mk := range m.markers {
		times[i] = mk.Time
	}
	return times
}

// Restore replaces the set with previously saved markers, keeping their ids.
// Markers that are out of range or collide with an earlier one are dropped;
// the number kept is returned.
func (m *MarkerSet) Restore(markers []Marker) int {
	m.markers = nil
	kept := 0
	for _, mk := range markers {
		if _, ok, err := m.insert(mk); err == nil && ok {
			kept++
		}
	}
	return kept
}
