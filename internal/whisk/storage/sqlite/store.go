// Package sqlite stores traced whiskers and linker output in the sqlite
// database managed by internal/db.
//
// Every Save opens a new trace run keyed by a random UUID. Load accepts
// either a run id or the source path a run was saved under, in which case
// the most recent run for that path is returned.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/whisker.trace/internal/db"
	"github.com/banshee-data/whisker.trace/internal/timeutil"
	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
	"github.com/banshee-data/whisker.trace/internal/whisk/l5tracks"
	"github.com/banshee-data/whisker.trace/internal/whisk/storage"
)

// Run describes one saved trace run.
type Run struct {
	ID         string
	Created    time.Time
	SourcePath string
	ConfigJSON string
}

// Store implements storage.Store over a migrated sqlite database.
type Store struct {
	db    *db.DB
	clock timeutil.Clock
}

var _ storage.Store = (*Store)(nil)

// New wraps an open database.
func New(d *db.DB) *Store { return &Store{db: d, clock: timeutil.RealClock{}} }

// SetClock replaces the clock used to stamp new runs.
func (s *Store) SetClock(c timeutil.Clock) { s.clock = c }

// Open opens and migrates the database at path.
func Open(path string) (*Store, error) {
	d, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return New(d), nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Save records t as a new run for path.
func (s *Store) Save(ctx context.Context, path string, t l4segments.Table) error {
	_, err := s.SaveRun(ctx, path, "", t)
	return err
}

// SaveRun records t as a new run and returns its id. configJSON is stored
// verbatim; empty means "{}".
func (s *Store) SaveRun(ctx context.Context, path, configJSON string, t l4segments.Table) (string, error) {
	if configJSON == "" {
		configJSON = "{}"
	}
	runID := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trace_runs (run_id, created_unix, source_path, config_json) VALUES (?, ?, ?, ?)`,
		runID, s.clock.Now().Unix(), path, configJSON); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO whisker_segments (run_id, frame, seg_id, n_samples, samples) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare segment insert: %w", err)
	}
	defer stmt.Close()

	blob := []byte{}
	for _, frame := range t.Frames() {
		for _, seg := range t.Segments(frame) {
			blob = storage.AppendSamples(blob[:0], seg.Samples)
			if _, err := stmt.ExecContext(ctx, runID, seg.Time, seg.ID, seg.Len(), blob); err != nil {
				return "", fmt.Errorf("insert segment %d/%d: %w", seg.Time, seg.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

// resolve maps a run id or source path to a run id.
func (s *Store) resolve(ctx context.Context, path string) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id FROM trace_runs
		WHERE run_id = ? OR source_path = ?
		ORDER BY (run_id = ?) DESC, created_unix DESC, rowid DESC
		LIMIT 1`, path, path, path).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: no run for %q", storage.ErrNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("resolve run %q: %w", path, err)
	}
	return runID, nil
}

// Load returns the segments of the run named by path.
func (s *Store) Load(ctx context.Context, path string) (l4segments.Table, error) {
	runID, err := s.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.LoadRun(ctx, runID)
}

// LoadRun returns the segments of one run. A run with no segments gives
// an empty table.
func (s *Store) LoadRun(ctx context.Context, runID string) (l4segments.Table, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, seg_id, n_samples, samples FROM whisker_segments WHERE run_id = ? ORDER BY frame, seg_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	t := l4segments.NewTable()
	for rows.Next() {
		var frame, id, n int
		var blob []byte
		if err := rows.Scan(&frame, &id, &n, &blob); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		samples, err := storage.ParseSamples(blob)
		if err != nil {
			return nil, fmt.Errorf("segment %d/%d: %w", frame, id, err)
		}
		if len(samples) != n {
			return nil, fmt.Errorf("%w: segment %d/%d has %d samples, want %d", storage.ErrFormat, frame, id, len(samples), n)
		}
		t.Put(&l4segments.Segment{ID: id, Time: frame, Samples: samples})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}
	return t, nil
}

// Runs lists saved runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, created_unix, source_path, config_json FROM trace_runs ORDER BY created_unix DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var created int64
		if err := rows.Scan(&r.ID, &created, &r.SourcePath, &r.ConfigJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Created = time.Unix(created, 0)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveTracks stores the track label of every observed segment of a run,
// replacing any labels saved before.
func (s *Store) SaveTracks(ctx context.Context, runID string, tracks l5tracks.Tracks) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM whisker_tracks WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear tracks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO whisker_tracks (run_id, frame, seg_id, track_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare track insert: %w", err)
	}
	defer stmt.Close()

	refs := make([]l5tracks.Ref, 0, len(tracks.Labels))
	for ref := range tracks.Labels {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Frame != refs[j].Frame {
			return refs[i].Frame < refs[j].Frame
		}
		return refs[i].Seg < refs[j].Seg
	})
	for _, ref := range refs {
		if _, err := stmt.ExecContext(ctx, runID, ref.Frame, ref.Seg, tracks.Labels[ref]); err != nil {
			return fmt.Errorf("insert track label %d/%d: %w", ref.Frame, ref.Seg, err)
		}
	}
	return tx.Commit()
}

// LoadTracks rebuilds the linker output saved for a run.
func (s *Store) LoadTracks(ctx context.Context, runID string) (l5tracks.Tracks, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, seg_id, track_id FROM whisker_tracks WHERE run_id = ? ORDER BY frame, seg_id`, runID)
	if err != nil {
		return l5tracks.Tracks{}, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	out := l5tracks.Tracks{ByID: map[int][]l5tracks.Ref{}, Labels: map[l5tracks.Ref]int{}}
	for rows.Next() {
		var ref l5tracks.Ref
		var id int
		if err := rows.Scan(&ref.Frame, &ref.Seg, &id); err != nil {
			return l5tracks.Tracks{}, fmt.Errorf("scan track label: %w", err)
		}
		out.Labels[ref] = id
		if id == l5tracks.NoTrack {
			out.Detached++
			continue
		}
		out.ByID[id] = append(out.ByID[id], ref)
	}
	return out, rows.Err()
}
