package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createRecorderFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "home-assistant_v2.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE states (state_id INTEGER PRIMARY KEY, entity_id TEXT, state TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO states (entity_id, state) VALUES ('light.kitchen', 'on')`)
	require.NoError(t, err)

	return path
}

func TestInitializeAuditDatabase_RunsMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	db, err := InitializeAuditDatabase(path)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count))
	assert.Equal(t, 2, count)
	_, err = db.Exec("SELECT id, caller, outcome FROM audit_log")
	assert.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening applies nothing new
	db, err = InitializeAuditDatabase(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestRunMigrations_FailedMigrationIsNotRecorded(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	fsys := fstest.MapFS{
		"m/001_ok.sql":     {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"m/002_broken.sql": {Data: []byte("CREATE TABLE (;")},
	}

	err = runMigrationsFrom(db, fsys, "m")
	require.Error(t, err)

	versions, err := getAppliedMigrations(db)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_ok"}, versions)
}

func TestOpenRecorder_ReadOnlyRejectsWrites(t *testing.T) {
	path := createRecorderFile(t)
	ctx := context.Background()

	db, err := OpenRecorder(ctx, path, true)
	require.NoError(t, err)
	defer db.Close()

	var state string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT state FROM states WHERE entity_id = ?", "light.kitchen").Scan(&state))
	assert.Equal(t, "on", state)

	_, err = db.ExecContext(ctx, "DELETE FROM states")
	assert.Error(t, err)
}

func TestOpenRecorder_MissingFile(t *testing.T) {
	_, err := OpenRecorder(context.Background(), filepath.Join(t.TempDir(), "nope.db"), false)
	assert.Error(t, err)
}

func TestFindRecorderDatabase(t *testing.T) {
	existing := createRecorderFile(t)
	missing := filepath.Join(t.TempDir(), "missing.db")

	path, ok := FindRecorderDatabase(missing, []string{"/definitely/not/here.db", existing})
	assert.True(t, ok)
	assert.Equal(t, existing, path)

	path, ok = FindRecorderDatabase(missing, nil)
	assert.False(t, ok)
	assert.Equal(t, missing, path)

	require.NoError(t, os.Remove(existing))
	_, ok = FindRecorderDatabase("", []string{existing})
	assert.False(t, ok)
}
