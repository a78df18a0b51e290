package storage

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/whisker.trace/internal/fsutil"
	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
)

func sampleTable(t *testing.T) l4segments.Table {
	t.Helper()
	tab := l4segments.NewTable()
	for frame := 0; frame < 3; frame++ {
		for id := 0; id < 2; id++ {
			s := &l4segments.Segment{ID: id, Time: frame}
			for i := 0; i < 5+id; i++ {
				s.Samples = append(s.Samples, l4segments.Sample{
					X:     float32(i) + 0.25,
					Y:     float32(frame*10+id) - 0.5,
					Thick: 1.5,
					Score: float32(math.Pi) * float32(i),
				})
			}
			require.NoError(t, tab.Add(s))
		}
	}
	// negative ids and empty segments survive as well
	require.NoError(t, tab.Add(&l4segments.Segment{ID: -3, Time: 7}))
	return tab
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, f := range []Format{FormatBinary, FormatProto} {
		t.Run(string(f), func(t *testing.T) {
			want := sampleTable(t)
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, want, f))

			got, detected, err := Decode(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, f, detected)
			assert.True(t, l4segments.TablesEqual(want, got))

			// encoding is deterministic
			var again bytes.Buffer
			require.NoError(t, Encode(&again, got, f))
			assert.Equal(t, buf.Bytes(), again.Bytes())
		})
	}
}

func TestDecodeEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, l4segments.NewTable(), FormatBinary))
	assert.Equal(t, MagicLen, buf.Len())

	got, _, err := Decode(&buf)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Zero(t, got.Count())
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		header  string
		want    Format
		wantErr bool
	}{
		{"WHSKBIN1", FormatBinary, false},
		{"WHSKPB01rest", FormatProto, false},
		{"WHSK", "", true},
		{"GIF89a..", "", true},
	}
	for _, tt := range tests {
		got, err := DetectFormat([]byte(tt.header))
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrFormat, tt.header)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" WhiskPB1 ")
	require.NoError(t, err)
	assert.Equal(t, FormatProto, f)
	_, err = ParseFormat("json")
	assert.Error(t, err)
	assert.Error(t, Encode(&bytes.Buffer{}, l4segments.NewTable(), Format("json")))
}

func TestDecodeCorrupt(t *testing.T) {
	for _, f := range []Format{FormatBinary, FormatProto} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, sampleTable(t), f))
			data := buf.Bytes()

			_, _, err := Decode(bytes.NewReader(data[:len(data)-3]))
			assert.True(t, errors.Is(err, ErrFormat), "truncated: %v", err)

			_, _, err = Decode(bytes.NewReader(data[:4]))
			assert.ErrorIs(t, err, ErrFormat)
		})
	}

	// a record whose length disagrees with its sample count
	bad := append([]byte(nil), magicBinary...)
	bad = append(bad, 16, 0, 0, 0) // 12-byte header + 4 bytes: not a whole sample
	bad = append(bad, make([]byte, 16)...)
	_, _, err := Decode(bytes.NewReader(bad))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestDecodeRejectsDuplicates(t *testing.T) {
	tab := l4segments.NewTable()
	require.NoError(t, tab.Add(&l4segments.Segment{ID: 1, Time: 1}))
	var one bytes.Buffer
	require.NoError(t, Encode(&one, tab, FormatBinary))

	data := append([]byte(nil), one.Bytes()...)
	data = append(data, one.Bytes()[MagicLen:]...)
	_, _, err := Decode(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestFileStoreMemory(t *testing.T) {
	ctx := context.Background()
	fsys := fsutil.NewMemoryFileSystem()
	store := NewFileStore(fsys, FormatProto)
	want := sampleTable(t)

	require.NoError(t, store.Save(ctx, "out/run.whiskers", want))
	assert.False(t, fsutil.Exists(fsys, "out/run.whiskers.tmp"))

	raw, ok := fsys.Bytes("out/run.whiskers")
	require.True(t, ok)
	f, err := DetectFormat(raw)
	require.NoError(t, err)
	assert.Equal(t, FormatProto, f)

	// a binary-configured store still reads protobuf files
	got, err := NewFileStore(fsys, FormatBinary).Load(ctx, "out/run.whiskers")
	require.NoError(t, err)
	assert.True(t, l4segments.TablesEqual(want, got))

	_, err = store.Load(ctx, "missing.whiskers")
	assert.ErrorIs(t, err, ErrNotFound)

	fsys.WriteFile("junk.whiskers", []byte("not a whiskers file"))
	_, err = store.Load(ctx, "junk.whiskers")
	assert.ErrorIs(t, err, ErrFormat)
}

func TestFileStoreOS(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a", "b.whiskers")
	store := NewFileStore(nil, FormatBinary)
	want := sampleTable(t)

	require.NoError(t, store.Save(ctx, path, want))
	got, err := store.Load(ctx, path)
	require.NoError(t, err)
	assert.True(t, l4segments.TablesEqual(want, got))
}

func TestFileStoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewFileStore(fsutil.NewMemoryFileSystem(), FormatBinary)
	assert.ErrorIs(t, store.Save(ctx, "x", l4segments.NewTable()), context.Canceled)
	_, err := store.Load(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
