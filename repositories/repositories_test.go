package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogem/ha-gateway/database"
	"github.com/blogem/ha-gateway/models"
	_ "github.com/mattn/go-sqlite3"
)

// setupRecorderDB creates a small recorder-like database on disk and returns its path
func setupRecorderDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "home-assistant_v2.db")

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	statements := []string{
		`CREATE TABLE states (
			state_id INTEGER PRIMARY KEY,
			entity_id TEXT,
			state TEXT,
			attributes BLOB,
			last_updated_ts FLOAT
		)`,
		`INSERT INTO states (entity_id, state, attributes, last_updated_ts) VALUES
			('sensor.temperature', '22.5', NULL, 3),
			('light.living_room', 'on', X'7B22627269676874223A3235357D', 2),
			('switch.garage', 'off', X'6F6BFF21', 1)`,
	}
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	return dbPath
}

func setupAuditDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.InitializeAuditDatabase(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestQueryRepository_SelectPreservesColumnOrder(t *testing.T) {
	repo := NewQueryRepository(setupRecorderDB(t))

	result, err := repo.Execute(context.Background(),
		"SELECT state, entity_id, state_id FROM states ORDER BY state_id", nil)
	require.NoError(t, err)

	require.Len(t, result.Rows, 3)
	assert.Equal(t, []string{"state", "entity_id", "state_id"}, result.Rows[0].Columns)
	assert.False(t, result.Mutation)
	assert.Equal(t, 3, result.Count())

	encoded, err := json.Marshal(result.Rows[0])
	require.NoError(t, err)
	assert.Equal(t, `{"state":"22.5","entity_id":"sensor.temperature","state_id":1}`, string(encoded))
}

func TestQueryRepository_PositionalParams(t *testing.T) {
	repo := NewQueryRepository(setupRecorderDB(t))

	result, err := repo.Execute(context.Background(),
		"SELECT entity_id FROM states WHERE state = ? OR state = ? ORDER BY entity_id",
		[]interface{}{"on", "off"})
	require.NoError(t, err)

	assert.Equal(t, []string{"light.living_room", "switch.garage"}, result.Strings("entity_id"))
}

func TestQueryRepository_BlobsDecodedLossily(t *testing.T) {
	repo := NewQueryRepository(setupRecorderDB(t))

	result, err := repo.Execute(context.Background(),
		"SELECT attributes FROM states WHERE attributes IS NOT NULL ORDER BY state_id", nil)
	require.NoError(t, err)

	require.Len(t, result.Rows, 2)
	assert.Equal(t, `{"bright":255}`, result.Rows[0].Values[0])
	// 0xFF is dropped rather than failing the call
	assert.Equal(t, "ok!", result.Rows[1].Values[0])
}

func TestQueryRepository_InsertReturnsLastID(t *testing.T) {
	repo := NewQueryRepository(setupRecorderDB(t))
	ctx := context.Background()

	result, err := repo.Execute(ctx, "INSERT INTO states (entity_id, state) VALUES (?, ?)",
		[]interface{}{"sensor.new", "1"})
	require.NoError(t, err)

	assert.True(t, result.Mutation)
	assert.Equal(t, int64(1), result.AffectedRows)
	require.NotNil(t, result.LastInsertID)
	assert.Equal(t, int64(4), *result.LastInsertID)
}

func TestQueryRepository_UpdateAndDeleteSummaries(t *testing.T) {
	repo := NewQueryRepository(setupRecorderDB(t))
	ctx := context.Background()

	result, err := repo.Execute(ctx, "UPDATE states SET state = 'unknown' WHERE state_id > 1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.AffectedRows)
	assert.Nil(t, result.LastInsertID)

	result, err = repo.Execute(ctx, "  delete from states", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.AffectedRows)

	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"affected_rows":3`)
}

func TestQueryRepository_ErrorsAreExecutionErrors(t *testing.T) {
	repo := NewQueryRepository(setupRecorderDB(t))

	_, err := repo.Execute(context.Background(), "SELECT * FROM no_such_table", nil)
	require.Error(t, err)

	var gwErr *models.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, models.ErrExecution, gwErr.Code)
	assert.Contains(t, gwErr.Details, "sqlite_error")
}

func TestQueryRepository_ConnectorGetsReadOnlyFlag(t *testing.T) {
	dbPath := setupRecorderDB(t)
	var modes []bool
	repo := NewQueryRepositoryWithConnector(dbPath, func(ctx context.Context, readOnly bool) (*sql.DB, error) {
		modes = append(modes, readOnly)
		return database.OpenRecorder(ctx, dbPath, readOnly)
	})

	_, err := repo.Execute(context.Background(), "SELECT entity_id FROM states", nil)
	require.NoError(t, err)
	_, err = repo.Execute(context.Background(), "UPDATE states SET state = 'off' WHERE state_id = 2", nil)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false}, modes)
	assert.Equal(t, dbPath, repo.Path())
}

func TestQueryRepository_ConnectorFailure(t *testing.T) {
	repo := NewQueryRepositoryWithConnector("unused.db", func(context.Context, bool) (*sql.DB, error) {
		return nil, errors.New("connection refused")
	})

	_, err := repo.Execute(context.Background(), "SELECT 1", nil)

	assert.Equal(t, models.ErrExecution, models.CodeOf(err))
	assert.ErrorContains(t, err, "connection refused")
}

func TestQueryRepository_MissingDatabase(t *testing.T) {
	repo := NewQueryRepository(filepath.Join(t.TempDir(), "missing.db"))

	_, err := repo.Execute(context.Background(), "SELECT 1", nil)

	assert.Equal(t, models.ErrExecution, models.CodeOf(err))
}

func TestQueryRepository_NonSelectQueryReturnsRows(t *testing.T) {
	repo := NewQueryRepository(setupRecorderDB(t))

	result, err := repo.Execute(context.Background(),
		"WITH latest AS (SELECT entity_id FROM states ORDER BY last_updated_ts DESC LIMIT 1) SELECT * FROM latest", nil)
	require.NoError(t, err)

	assert.False(t, result.Mutation)
	assert.Equal(t, []string{"sensor.temperature"}, result.Strings("entity_id"))
}

func TestAuditRepository(t *testing.T) {
	repo := NewAuditRepository(setupAuditDB(t))
	ctx := context.Background()

	first := &models.AuditLogEntry{
		Caller:  "10.0.0.2",
		Method:  "config/append_lines",
		Target:  "/config/configuration.yaml",
		Outcome: models.OutcomeCommitted,
	}
	require.NoError(t, repo.Create(ctx, first))
	assert.NotZero(t, first.ID)
	assert.False(t, first.Timestamp.IsZero())

	second := &models.AuditLogEntry{
		Timestamp: time.Now(),
		RequestID: "req-2",
		Caller:    "10.0.0.3",
		Method:    "config/insert_file",
		Outcome:   models.OutcomeRolledBack,
		ErrorCode: string(models.ErrConfigurationInvalid),
	}
	require.NoError(t, repo.Create(ctx, second))

	entries, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "config/insert_file", entries[0].Method)
	assert.Equal(t, "configuration_invalid", entries[0].ErrorCode)
	assert.Equal(t, "", entries[0].Target)
	assert.Equal(t, "/config/configuration.yaml", entries[1].Target)
}
