package l1image

import (
	"fmt"
	"image"
	_ "image/png"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/tiff"

	"github.com/banshee-data/whisker.trace/internal/fsutil"
)

// FrameExtensions lists the still-frame formats Load understands.
var FrameExtensions = []string{".png", ".tif", ".tiff"}

// Load decodes a PNG or TIFF file into an Image.
func Load(path string) (*Image, error) {
	return LoadFS(fsutil.OSFileSystem{}, path)
}

// LoadFS is Load reading through fsys.
func LoadFS(fsys fsutil.FileSystem, path string) (*Image, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	im := FromImage(src)
	if im.Width == 0 || im.Height == 0 {
		return nil, fmt.Errorf("decode frame %s: empty %s image", path, format)
	}
	return im, nil
}

// LoadDir returns the frame files under dir in lexical order.
func LoadDir(dir string) ([]string, error) {
	return LoadDirFS(fsutil.OSFileSystem{}, dir)
}

// LoadDirFS is LoadDir listing through fsys.
func LoadDirFS(fsys fsutil.FileSystem, dir string) ([]string, error) {
	names, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}
	var paths []string
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		for _, want := range FrameExtensions {
			if ext == want {
				paths = append(paths, filepath.Join(dir, name))
				break
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}
