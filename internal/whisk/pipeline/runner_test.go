package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/whisker.trace/internal/fsutil"
	"github.com/banshee-data/whisker.trace/internal/testutil"
	"github.com/banshee-data/whisker.trace/internal/whisk/l1image"
	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
	"github.com/banshee-data/whisker.trace/internal/whisk/l5tracks"
)

func twoLineFrame() *testutil.Frame {
	f := testutil.NewFrame(40, 40, 200)
	f.DrawLine(2, 12, 37, 12, 2, 20)
	f.DrawLine(2, 28, 37, 28, 2, 20)
	return f
}

func toImage(t *testing.T, f *testutil.Frame) *l1image.Image {
	t.Helper()
	im, err := l1image.FromGray8(f.Width, f.Height, f.Pix)
	require.NoError(t, err)
	return im
}

func newRunner(t *testing.T, workers int) *Runner {
	t.Helper()
	tr, err := l4segments.NewTracer(l4segments.DefaultTracingConfig())
	require.NoError(t, err)
	r, err := NewRunner(tr, l5tracks.DefaultLinkerConfig(), workers)
	require.NoError(t, err)
	return r
}

func meanY(s *l4segments.Segment) int {
	sum := 0.0
	for _, p := range s.Samples {
		sum += float64(p.Y)
	}
	return int(math.Round(sum / float64(s.Len())))
}

func TestRunTwoStillLines(t *testing.T) {
	im := toImage(t, twoLineFrame())
	src := MemorySource{im, im, im, im, im}

	out, err := newRunner(t, 3).Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 5, out.Stats.Frames)
	assert.Equal(t, 10, out.Stats.Segments)
	assert.Equal(t, 10, out.Table.Count())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, out.Table.Frames())

	require.Len(t, out.Tracks.ByID, 2)
	assert.Equal(t, 0, out.Tracks.Detached)
	for _, id := range out.Tracks.IDs() {
		refs := out.Tracks.ByID[id]
		require.Len(t, refs, 5)
		rows := map[int]bool{}
		for k, ref := range refs {
			assert.Equal(t, k, ref.Frame)
			s, ok := out.Table.Get(ref.Frame, ref.Seg)
			require.True(t, ok)
			rows[meanY(s)] = true
			assert.Equal(t, id, out.Tracks.Labels[ref])
		}
		assert.Len(t, rows, 1, "track %d changes row", id)
	}
}

func TestRunIndependentOfWorkerCount(t *testing.T) {
	f := twoLineFrame()
	f.AddNoise(3, 4)
	im := toImage(t, f)
	src := MemorySource{im, toImage(t, twoLineFrame()), im, im}

	serial, err := newRunner(t, 1).Run(context.Background(), src)
	require.NoError(t, err)
	parallel, err := newRunner(t, 4).Run(context.Background(), src)
	require.NoError(t, err)

	assert.True(t, l4segments.TablesEqual(serial.Table, parallel.Table))
	assert.Equal(t, serial.Tracks.ByID, parallel.Tracks.ByID)
	assert.Equal(t, serial.Stats.Segments, parallel.Stats.Segments)
}

func TestRunEmptySource(t *testing.T) {
	out, err := newRunner(t, 2).Run(context.Background(), MemorySource{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Table.Count())
	assert.Empty(t, out.Tracks.ByID)
}

type failingSource struct {
	MemorySource
	bad int
}

var errBadFrame = errors.New("bad frame")

func (f failingSource) Frame(ctx context.Context, i int) (*l1image.Image, error) {
	if i == f.bad {
		return nil, errBadFrame
	}
	return f.MemorySource.Frame(ctx, i)
}

func TestRunSourceError(t *testing.T) {
	im := toImage(t, twoLineFrame())
	src := failingSource{MemorySource: MemorySource{im, im, im, im}, bad: 2}
	_, err := newRunner(t, 2).Run(context.Background(), src)
	assert.ErrorIs(t, err, errBadFrame)
}

func TestRunNilFrame(t *testing.T) {
	im := toImage(t, twoLineFrame())
	_, err := newRunner(t, 2).Run(context.Background(), MemorySource{im, nil})
	assert.ErrorIs(t, err, l4segments.ErrNilImage)
}

func TestRunCancelled(t *testing.T) {
	im := toImage(t, twoLineFrame())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newRunner(t, 2).Run(ctx, MemorySource{im, im})
	assert.ErrorIs(t, err, context.Canceled)
}

// slowFirstSource stalls frame 0 and records the highest frame index
// requested while it was stalled.
type slowFirstSource struct {
	MemorySource
	delay     time.Duration
	requested atomic.Int64
	ahead     atomic.Int64
}

func (s *slowFirstSource) Frame(ctx context.Context, i int) (*l1image.Image, error) {
	if i == 0 {
		time.Sleep(s.delay)
		s.ahead.Store(s.requested.Load())
	} else {
		for {
			cur := s.requested.Load()
			if int64(i) <= cur || s.requested.CompareAndSwap(cur, int64(i)) {
				break
			}
		}
	}
	return s.MemorySource.Frame(ctx, i)
}

func TestRunBoundsFramesAheadOfLinking(t *testing.T) {
	const workers = 2
	im := toImage(t, twoLineFrame())
	frames := make(MemorySource, 20)
	for i := range frames {
		frames[i] = im
	}
	src := &slowFirstSource{MemorySource: frames, delay: 200 * time.Millisecond}

	out, err := newRunner(t, workers).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 20, out.Stats.Frames)
	assert.Len(t, out.Tracks.ByID, 2)
	assert.LessOrEqual(t, src.ahead.Load(), int64(2*workers-1),
		"frames traced while frame 0 was outstanding")
}

func TestNewRunner(t *testing.T) {
	_, err := NewRunner(nil, l5tracks.DefaultLinkerConfig(), 1)
	assert.Error(t, err)

	tr, err := l4segments.NewTracer(l4segments.DefaultTracingConfig())
	require.NoError(t, err)
	bad := l5tracks.DefaultLinkerConfig()
	bad.GateDistance = 0
	_, err = NewRunner(tr, bad, 1)
	assert.Error(t, err)

	r, err := NewRunner(tr, l5tracks.DefaultLinkerConfig(), 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r.Workers(), 1)
}

func writePNG(t *testing.T, path string, f *testutil.Frame) {
	t.Helper()
	g := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	copy(g.Pix, f.Pix)
	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()
	require.NoError(t, png.Encode(out, g))
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame_001.png"), twoLineFrame())
	writePNG(t, filepath.Join(dir, "frame_000.png"), twoLineFrame())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	src, err := NewDirSource(dir)
	require.NoError(t, err)
	require.Equal(t, 2, src.Len())
	assert.Equal(t, "frame_000.png", filepath.Base(src.Path(0)))

	im, err := src.Frame(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 40, im.Width)

	_, err = src.Frame(context.Background(), 2)
	assert.Error(t, err)

	out, err := newRunner(t, 2).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, out.Tracks.ByID, 2)
}

func TestDirSourceFS(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	g := image.NewGray(image.Rect(0, 0, 40, 40))
	copy(g.Pix, twoLineFrame().Pix)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, g))
	for _, name := range []string{"seq/f2.png", "seq/f0.png", "seq/f1.png"} {
		fsys.WriteFile(name, buf.Bytes())
	}

	src, err := NewDirSourceFS(fsys, "seq")
	require.NoError(t, err)
	require.Equal(t, 3, src.Len())
	assert.Equal(t, "seq/f0.png", src.Path(0))

	out, err := newRunner(t, 2).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 6, out.Stats.Segments)
	assert.Len(t, out.Tracks.ByID, 2)

	_, err = NewDirSourceFS(fsys, "nope")
	assert.Error(t, err)
}

func TestDirSourceEmpty(t *testing.T) {
	_, err := NewDirSource(t.TempDir())
	assert.Error(t, err)
	_, err = NewDirSource(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestMemorySourceRange(t *testing.T) {
	_, err := MemorySource{}.Frame(context.Background(), 0)
	assert.Error(t, err)
}
