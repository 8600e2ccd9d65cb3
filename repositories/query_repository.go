package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/blogem/ha-gateway/database"
	"github.com/blogem/ha-gateway/models"
	"github.com/blogem/ha-gateway/querysafety"
)

// QueryRepository executes statements against the Home Assistant recorder database
type QueryRepository interface {
	Execute(ctx context.Context, query string, params []interface{}) (*models.QueryResult, error)
	Path() string
}

// Connector opens a single-use database handle
type Connector func(ctx context.Context, readOnly bool) (*sql.DB, error)

// queryRepository implements QueryRepository with one connection per call
type queryRepository struct {
	path    string
	connect Connector
}

// NewQueryRepository creates a repository for the recorder database at path
func NewQueryRepository(path string) QueryRepository {
	return NewQueryRepositoryWithConnector(path, func(ctx context.Context, readOnly bool) (*sql.DB, error) {
		return database.OpenRecorder(ctx, path, readOnly)
	})
}

// NewQueryRepositoryWithConnector is used when the handle comes from somewhere other than a file path
func NewQueryRepositoryWithConnector(path string, connect Connector) QueryRepository {
	return &queryRepository{path: path, connect: connect}
}

// Path returns the recorder database location
func (r *queryRepository) Path() string {
	return r.path
}

// Execute opens a connection, runs the statement once and closes the connection.
// SELECT statements run on a read-only connection. INSERT, UPDATE and DELETE return
// a mutation summary; everything else is treated as a row-returning query.
func (r *queryRepository) Execute(ctx context.Context, query string, params []interface{}) (*models.QueryResult, error) {
	readOnly := querysafety.IsReadOnly(query)
	mutation := querysafety.IsMutation(query)

	db, err := r.connect(ctx, readOnly)
	if err != nil {
		return nil, executionError("failed to open database", err)
	}
	defer db.Close()

	if mutation {
		return r.exec(ctx, db, query, params)
	}
	return r.query(ctx, db, query, params)
}

func (r *queryRepository) exec(ctx context.Context, db *sql.DB, query string, params []interface{}) (*models.QueryResult, error) {
	result, err := db.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, executionError("failed to execute statement", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, executionError("failed to get rows affected", err)
	}

	out := &models.QueryResult{
		Query:        query,
		Params:       params,
		Mutation:     true,
		AffectedRows: rowsAffected,
	}

	// Only inserts produce a meaningful row id
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT") {
		if id, err := result.LastInsertId(); err == nil {
			out.LastInsertID = &id
		}
	}

	return out, nil
}

func (r *queryRepository) query(ctx context.Context, db *sql.DB, query string, params []interface{}) (*models.QueryResult, error) {
	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, executionError("failed to run query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, executionError("failed to read columns", err)
	}

	out := &models.QueryResult{
		Query:  query,
		Params: params,
		Rows:   []models.Row{},
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		scanArgs := make([]interface{}, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}

		if err := rows.Scan(scanArgs...); err != nil {
			return nil, executionError("failed to scan row", err)
		}

		for i, v := range values {
			values[i] = normalizeValue(v)
		}

		out.Rows = append(out.Rows, models.Row{Columns: columns, Values: values})
	}

	if err = rows.Err(); err != nil {
		return nil, executionError("error iterating rows", err)
	}

	return out, nil
}

// normalizeValue decodes BLOBs as text, dropping invalid UTF-8 instead of failing the row
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return strings.ToValidUTF8(string(b), "")
	}
	return v
}

// executionError converts a database fault into an execution_error, keeping the sqlite result code when there is one
func executionError(msg string, err error) error {
	gwErr := models.WrapError(models.ErrExecution, msg, err)

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		gwErr.WithDetail("sqlite_error", sqliteErr.Code.Error())
		gwErr.WithDetail("sqlite_code", int(sqliteErr.Code))
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		gwErr.WithDetail("cancelled", true)
	}

	return gwErr
}
