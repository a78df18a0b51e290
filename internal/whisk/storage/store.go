package storage

import (
	"context"
	"errors"

	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
)

var (
	// ErrNotFound is returned when the requested table does not exist.
	ErrNotFound = errors.New("whiskers not found")
	// ErrFormat is returned for malformed or unrecognized data.
	ErrFormat = errors.New("malformed whiskers data")
)

// Store loads and saves whole segment tables. The meaning of path is up to
// the implementation: a file name, a database file or a bucket key.
type Store interface {
	Load(ctx context.Context, path string) (l4segments.Table, error)
	Save(ctx context.Context, path string, t l4segments.Table) error
}
