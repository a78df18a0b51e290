package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/banshee-data/whisker.trace/internal/fsutil"
	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
)

// FileStore keeps one table per file. Load autodetects the format; Save
// writes Format through a temporary file renamed into place.
type FileStore struct {
	fs     fsutil.FileSystem
	Format Format
}

// NewFileStore returns a store over fsys writing format f. A nil fsys
// means the OS filesystem.
func NewFileStore(fsys fsutil.FileSystem, f Format) *FileStore {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &FileStore{fs: fsys, Format: f}
}

// Load reads the table stored at path.
func (s *FileStore) Load(ctx context.Context, path string) (l4segments.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, _, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// Save writes t to path, replacing any previous contents.
func (s *FileStore) Save(ctx context.Context, path string, t l4segments.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := fsutil.WriteAtomic(s.fs, path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := Encode(bw, t, s.Format); err != nil {
			return err
		}
		return bw.Flush()
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
