package repositories

import (
	"database/sql"
)

// Repositories struct holds all repository interfaces
type Repositories struct {
	Query QueryRepository
	Audit AuditRepository
}

// NewRepositories creates and initializes all repositories.
// recorderPath is the Home Assistant database; auditDB is the gateway's own store.
func NewRepositories(recorderPath string, auditDB *sql.DB) *Repositories {
	return &Repositories{
		Query: NewQueryRepository(recorderPath),
		Audit: NewAuditRepository(auditDB),
	}
}
