package pipeline

import (
	"context"
	"fmt"

	"github.com/banshee-data/whisker.trace/internal/fsutil"
	"github.com/banshee-data/whisker.trace/internal/whisk/l1image"
)

// FrameSource yields the frames of one sequence by index.
// Frame may be called concurrently.
type FrameSource interface {
	Len() int
	Frame(ctx context.Context, i int) (*l1image.Image, error)
}

// DirSource reads still frames from a directory in lexical order.
type DirSource struct {
	fsys  fsutil.FileSystem
	paths []string
}

// NewDirSource lists the PNG and TIFF frames under dir.
func NewDirSource(dir string) (*DirSource, error) {
	return NewDirSourceFS(fsutil.OSFileSystem{}, dir)
}

// NewDirSourceFS is NewDirSource over fsys.
func NewDirSourceFS(fsys fsutil.FileSystem, dir string) (*DirSource, error) {
	paths, err := l1image.LoadDirFS(fsys, dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames found in %s", dir)
	}
	return &DirSource{fsys: fsys, paths: paths}, nil
}

func (d *DirSource) Len() int { return len(d.paths) }

// Path returns the file backing frame i.
func (d *DirSource) Path(i int) string { return d.paths[i] }

func (d *DirSource) Frame(ctx context.Context, i int) (*l1image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(d.paths) {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", i, len(d.paths))
	}
	return l1image.LoadFS(d.fsys, d.paths[i])
}

// MemorySource serves frames already in memory.
type MemorySource []*l1image.Image

func (m MemorySource) Len() int { return len(m) }

func (m MemorySource) Frame(ctx context.Context, i int) (*l1image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(m) {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", i, len(m))
	}
	return m[i], nil
}
