package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blogem/ha-gateway/models"
)

// AuditRepository handles audit log persistence
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	Recent(ctx context.Context, limit int) ([]models.AuditLogEntry, error)
}

type sqliteAuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &sqliteAuditRepository{db: db}
}

// Create inserts a new audit log entry
func (r *sqliteAuditRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	query := `
		INSERT INTO audit_log (timestamp, request_id, caller, method, target, outcome, error_code, backup_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	result, err := r.db.ExecContext(
		ctx,
		query,
		entry.Timestamp,
		entry.RequestID,
		entry.Caller,
		entry.Method,
		entry.Target,
		entry.Outcome,
		entry.ErrorCode,
		entry.BackupPath,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted ID: %w", err)
	}
	entry.ID = id

	return nil
}

// Recent returns the newest entries first
func (r *sqliteAuditRepository) Recent(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	query := `
		SELECT id, timestamp, request_id, caller, method, target, outcome, error_code, backup_path
		FROM audit_log
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditLogEntry
	for rows.Next() {
		var entry models.AuditLogEntry
		var requestID, target, errorCode, backupPath sql.NullString

		err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&requestID,
			&entry.Caller,
			&entry.Method,
			&target,
			&entry.Outcome,
			&errorCode,
			&backupPath,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log entry: %w", err)
		}

		// Convert NULL values to empty strings
		entry.RequestID = requestID.String
		entry.Target = target.String
		entry.ErrorCode = errorCode.String
		entry.BackupPath = backupPath.String

		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}

	return entries, nil
}
