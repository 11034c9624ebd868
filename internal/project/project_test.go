package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgpai22/vibhaj/internal/timeline"
)

func TestSaveLoad(t *testing.T) {
	segments := timeline.Derive(30, []float64{10, 20}, nil)
	segments[1].Name = "Interview"

	doc := &Document{
		Source:   "talk.mp3",
		Duration: 30,
		Markers:  []timeline.Marker{{ID: "a", Time: 10}, {ID: "b", Time: 20}},
		Names:    NamesOf(segments),
	}
	path := filepath.Join(t.TempDir(), "nested", "talk.yaml")
	require.NoError(t, Save(doc, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Version)
	assert.Equal(t, doc.Markers, loaded.Markers)
	assert.Equal(t, []Name{{Start: 10, End: 20, Name: "Interview"}}, loaded.Names)

	rederived := timeline.Derive(loaded.Duration, []float64{10, 20}, loaded.PreviousSegments())
	assert.Equal(t, "Interview", rederived[1].Name)
	assert.Equal(t, "片段 3", rederived[2].Name)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"bad yaml":       "markers: [",
		"future version": "version: 9\nduration: 10\n",
		"no duration":    "version: 1\nsource: x.mp3\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestTimelineRoundTrip(t *testing.T) {
	doc := &Document{
		Duration: 30,
		Markers:  []timeline.Marker{{ID: "a", Time: 10}, {ID: "b", Time: 20}},
		Names:    []Name{{Start: 10, End: 20, Name: "Interview"}},
	}

	markers, segments := doc.Timeline()
	require.Len(t, segments, 3)
	assert.Equal(t, "Interview", segments[1].Name)

	require.NoError(t, timeline.Merge(markers, segments, []string{segments[0].ID, segments[1].ID}))
	segments = timeline.Derive(markers.Duration(), markers.Times(), segments)
	doc.Update(markers, segments)

	assert.Equal(t, []timeline.Marker{{ID: "b", Time: 20}}, doc.Markers)
	// the merged range has no previous match; the tail keeps the name it
	// carried from its old position
	assert.Equal(t, []Name{{Start: 20, End: 30, Name: "片段 3"}}, doc.Names)
}
