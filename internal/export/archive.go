package export

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/mgpai22/vibhaj/internal/apperr"
	"github.com/mgpai22/vibhaj/internal/audio"
	"github.com/mgpai22/vibhaj/internal/timeline"
)

// Archive writes units as entries of a zip stream. Entry names are unique;
// a repeated name gets a " (n)" suffix before its extension.
type Archive struct {
	zw    *zip.Writer
	names NameSet
	order []string
}

func NewArchive(w io.Writer) *Archive {
	return &Archive{zw: zip.NewWriter(w), names: NameSet{}}
}

// Add writes one entry. Already-compressed formats are stored as is.
func (a *Archive) Add(unit Unit) error {
	name := a.names.Unique(unit.Name)

	method := zip.Deflate
	if strings.EqualFold(path.Ext(name), ".mp3") {
		method = zip.Store
	}

	fw, err := a.zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := fw.Write(unit.Data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	a.order = append(a.order, name)
	return nil
}

// Entries lists entry names in the order they were written.
func (a *Archive) Entries() []string {
	return append([]string(nil), a.order...)
}

// Close writes the central directory.
func (a *Archive) Close() error {
	return a.zw.Close()
}

// NameSet hands out unique file names. The zero value is not usable; make
// one with NameSet{}.
type NameSet map[string]int

// Unique returns name, or name with a " (n)" suffix before its extension
// when it was handed out before.
func (s NameSet) Unique(name string) string {
	n := s[name]
	s[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for {
		n++
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if s[candidate] == 0 {
			s[candidate] = 1
			return candidate
		}
	}
}

// ExportAll exports every segment and writes a single zip stream to w. It
// returns the entry names in archive order.
func ExportAll(
	ctx context.Context,
	w io.Writer,
	src *audio.Source,
	segments []timeline.Segment,
	enc Encoder,
	opts Options,
) ([]string, error) {
	archive := NewArchive(w)
	if err := Each(ctx, src, segments, enc, opts, archive.Add); err != nil {
		return nil, err
	}
	if err := archive.Close(); err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "export", fmt.Errorf("finish archive: %w", err))
	}
	return archive.Entries(), nil
}
