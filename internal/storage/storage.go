// Package storage delivers exported archives and clips to their final
// destination.
package storage

import (
	"context"
	"io"
)

// Sink stores a named object and returns where it ended up.
type Sink interface {
	Put(ctx context.Context, name string, data io.Reader) (string, error)
}
