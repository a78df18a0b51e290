package main

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/whisker.trace/internal/config"
	"github.com/banshee-data/whisker.trace/internal/testutil"
	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
	"github.com/banshee-data/whisker.trace/internal/whisk/storage"
	"github.com/banshee-data/whisker.trace/internal/whisk/storage/objectstore"
	"github.com/banshee-data/whisker.trace/internal/whisk/storage/sqlite"
)

func runtimeDefaults() *config.RuntimeConfig {
	return &config.RuntimeConfig{
		Workers:        2,
		LogLevel:       "info",
		DBPath:         "",
		MinIOAccessKey: "minioadmin",
		MinIOSecretKey: "minioadmin",
	}
}

func TestParseFlags(t *testing.T) {
	got, err := parseFlags([]string{"-frames", "frames", "-out", "a.whiskers", "-format", "whiskpb1", "-workers", "8"}, runtimeDefaults())
	require.NoError(t, err)
	want := options{
		framesDir: "frames",
		out:       "a.whiskers",
		format:    storage.FormatProto,
		workers:   8,
		logLevel:  "info",
		minio:     objectstore.Config{AccessKey: "minioadmin", SecretKey: "minioadmin"},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(options{})); diff != "" {
		t.Errorf("parseFlags mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFlagsEnvironmentDefaults(t *testing.T) {
	rc := runtimeDefaults()
	rc.DBPath = "runs.db"
	rc.LogLevel = "debug"
	got, err := parseFlags([]string{"-frames", "f"}, rc)
	require.NoError(t, err)
	assert.Equal(t, "runs.db", got.dbPath)
	assert.Equal(t, "debug", got.logLevel)
	assert.Equal(t, 2, got.workers)
	assert.Equal(t, storage.FormatBinary, got.format)

	got, err = parseFlags([]string{"-frames", "f", "-db", "other.db"}, rc)
	require.NoError(t, err)
	assert.Equal(t, "other.db", got.dbPath)
}

func TestParseFlagsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing frames", []string{"-out", "x"}},
		{"no output", []string{"-frames", "f"}},
		{"bad format", []string{"-frames", "f", "-out", "x", "-format", "csv"}},
		{"object without endpoint", []string{"-frames", "f", "-object", "b/k"}},
		{"negative workers", []string{"-frames", "f", "-out", "x", "-workers", "-1"}},
		{"unknown flag", []string{"-bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, runtimeDefaults())
			assert.Error(t, err)
		})
	}
}

func TestParseFlagsVersion(t *testing.T) {
	got, err := parseFlags([]string{"-version"}, runtimeDefaults())
	require.NoError(t, err)
	assert.True(t, got.showVersion)
}

func writeFrames(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f := testutil.NewFrame(40, 40, 200)
		f.DrawLine(2, 12, 37, 12, 2, 20)
		f.DrawLine(2, 28, 37, 28, 2, 20)
		g := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
		copy(g.Pix, f.Pix)
		out, err := os.Create(filepath.Join(dir, "frame_"+string(rune('a'+i))+".png"))
		require.NoError(t, err)
		require.NoError(t, png.Encode(out, g))
		require.NoError(t, out.Close())
	}
}

func TestRunWritesFileAndDatabase(t *testing.T) {
	frames := t.TempDir()
	writeFrames(t, frames, 3)
	outDir := t.TempDir()
	o := options{
		framesDir: frames,
		out:       filepath.Join(outDir, "run.whiskers"),
		format:    storage.FormatProto,
		dbPath:    filepath.Join(outDir, "runs.db"),
		workers:   2,
	}
	ctx := context.Background()
	require.NoError(t, run(ctx, o))

	table, err := storage.NewFileStore(nil, storage.FormatBinary).Load(ctx, o.out)
	require.NoError(t, err)
	assert.Equal(t, 6, table.Count())

	store, err := sqlite.Open(o.dbPath)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, frames, runs[0].SourcePath)
	assert.Contains(t, runs[0].ConfigJSON, "gate_distance")

	fromDB, err := store.Load(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.True(t, l4segments.TablesEqual(table, fromDB))

	tracks, err := store.LoadTracks(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, tracks.ByID, 2)
}

func TestRunMissingFrames(t *testing.T) {
	o := options{framesDir: filepath.Join(t.TempDir(), "none"), out: "x", format: storage.FormatBinary}
	assert.Error(t, run(context.Background(), o))
}

func TestRunBadTuning(t *testing.T) {
	o := options{framesDir: t.TempDir(), out: "x", format: storage.FormatBinary, tuningPath: filepath.Join(t.TempDir(), "missing.json")}
	assert.Error(t, run(context.Background(), o))
}
