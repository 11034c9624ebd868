package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalSink writes objects into a directory.
type LocalSink struct {
	dir string
}

// NewLocalSink creates dir if needed. An empty dir means the working
// directory.
func NewLocalSink(dir string) (*LocalSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &LocalSink{dir: dir}, nil
}

func (s *LocalSink) Dir() string {
	return s.dir
}

// Put writes data to dir/name through a temporary file, so a failed write
// never leaves a truncated file behind.
func (s *LocalSink) Put(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	path := filepath.Join(s.dir, filepath.Base(name))
	tmp, err := os.CreateTemp(s.dir, ".vibhaj-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move %s into place: %w", name, err)
	}
	return path, nil
}
