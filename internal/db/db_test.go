package db

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name=?
	`, name).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func TestOpenAppliesSchema(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "whiskers.db"))
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"trace_runs", "whisker_segments", "whisker_tracks"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestPragmasApplied(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "pragmas.db"))
	require.NoError(t, err)
	defer db.Close()

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	assert.True(t, tableExists(t, db, "whisker_segments"))
}

func TestMigrateDown(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "down.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.MigrateDown(MigrationsFS()))
	assert.False(t, tableExists(t, db, "whisker_tracks"))

	version, _, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestMigrateUpCustomFS(t *testing.T) {
	db, err := OpenWithoutMigrations(filepath.Join(t.TempDir(), "custom.db"))
	require.NoError(t, err)
	defer db.Close()

	migrations := fstest.MapFS{
		"000001_create_test_table.up.sql": {Data: []byte(`
			CREATE TABLE IF NOT EXISTS test_table (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			);`)},
		"000001_create_test_table.down.sql": {Data: []byte(`DROP TABLE IF EXISTS test_table;`)},
	}
	require.NoError(t, db.MigrateUp(migrations))
	require.NoError(t, db.MigrateUp(migrations), "second run is a no-op")
	assert.True(t, tableExists(t, db, "test_table"))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := os.ReadDir("migrations")
	require.NoError(t, err)
	embedded := MigrationsFS()
	for _, e := range entries {
		_, err := embedded.Open(e.Name())
		assert.NoError(t, err, e.Name())
	}
}
