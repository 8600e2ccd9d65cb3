package models

import "time"

// Audit outcomes
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeFailed     = "failed"
)

// AuditLogEntry represents a single mutation attempt against the database or the configuration
type AuditLogEntry struct {
	ID         int64
	Timestamp  time.Time
	RequestID  string
	Caller     string
	Method     string
	Target     string
	Outcome    string
	ErrorCode  string
	BackupPath string
}
