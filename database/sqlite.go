package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// busyTimeoutMs bounds how long a statement waits on Home Assistant's own writer lock
const busyTimeoutMs = 5000

// DefaultRecorderCandidates are the locations Home Assistant uses for its recorder database
var DefaultRecorderCandidates = []string{
	"/config/home-assistant_v2.db",
	"/config/home_assistant_v2.db",
	"/config/home-assistant.db",
}

// recorderDSN builds the go-sqlite3 DSN. Read-only connections use mode=ro so that
// nothing smuggled into a read statement can write.
func recorderDSN(path string, readOnly bool) string {
	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprint(busyTimeoutMs))
	if readOnly {
		params.Set("mode", "ro")
	}
	return "file:" + path + "?" + params.Encode()
}

// OpenRecorder opens a single-use connection to the recorder database.
// The caller owns the returned handle and must close it.
func OpenRecorder(ctx context.Context, path string, readOnly bool) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("recorder database unavailable: %w", err)
	}

	db, err := sql.Open("sqlite3", recorderDSN(path, readOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Test the connection
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// FindRecorderDatabase returns the first existing path, preferring the explicitly configured one
func FindRecorderDatabase(configured string, candidates []string) (string, bool) {
	paths := append([]string{configured}, candidates...)
	for _, path := range paths {
		if path == "" {
			continue
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return configured, false
}

// InitializeAuditDatabase opens the gateway's own audit database and runs migrations
func InitializeAuditDatabase(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// Test the connection
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	// Audit writes come from several goroutines; serialize them on one connection
	db.SetMaxOpenConns(1)

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
