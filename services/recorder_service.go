package services

import (
	"context"
	"fmt"
	"regexp"
	"slices"

	"github.com/blogem/ha-gateway/models"
	"github.com/blogem/ha-gateway/repositories"
)

// DefaultRowLimit is used when a states or events call does not pass a limit
const DefaultRowLimit = 100

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Fixed statements. They bypass the safety classifier because no client SQL reaches them.
const (
	tablesQuery = "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name"
	schemaQuery = "SELECT * FROM pragma_table_info(?)"
	statesQuery = "SELECT * FROM states ORDER BY state_id DESC LIMIT ?"
	eventsQuery = "SELECT * FROM events ORDER BY event_id DESC LIMIT ?"
)

// Recorder schemas from 2023 on move entity ids and event types into lookup tables.
// The legacy statements are used when those tables are absent.
const (
	statesMetaTable = "states_meta"
	eventTypesTable = "event_types"

	legacyEntitiesQuery     = "SELECT DISTINCT entity_id FROM states WHERE entity_id IS NOT NULL ORDER BY entity_id"
	legacyStatesEntityQuery = "SELECT * FROM states WHERE entity_id = ? ORDER BY state_id DESC LIMIT ?"
	legacyEventsTypeQuery   = "SELECT * FROM events WHERE event_type = ? ORDER BY event_id DESC LIMIT ?"

	entitiesQuery = "SELECT entity_id FROM states_meta UNION " +
		"SELECT DISTINCT entity_id FROM states WHERE entity_id IS NOT NULL ORDER BY entity_id"
	statesEntityQuery = "SELECT * FROM states WHERE entity_id = ? " +
		"OR metadata_id IN (SELECT metadata_id FROM states_meta WHERE entity_id = ?) ORDER BY state_id DESC LIMIT ?"
	eventsTypeQuery = "SELECT * FROM events WHERE event_type = ? " +
		"OR event_type_id IN (SELECT event_type_id FROM event_types WHERE event_type = ?) ORDER BY event_id DESC LIMIT ?"
)

// StatesFilter selects recent state rows
type StatesFilter struct {
	Limit    int    `json:"limit"`
	EntityID string `json:"entity_id"`
}

// EventsFilter selects recent event rows
type EventsFilter struct {
	Limit     int    `json:"limit"`
	EventType string `json:"event_type"`
}

// TablesResult lists the recorder tables
type TablesResult struct {
	Tables []string `json:"tables"`
	Count  int      `json:"count"`
}

// SchemaResult describes the columns of one table
type SchemaResult struct {
	Table  string       `json:"table"`
	Schema []models.Row `json:"schema"`
}

// EntitiesResult lists known entity ids
type EntitiesResult struct {
	Entities []string `json:"entities"`
	Count    int      `json:"count"`
}

// StatesResult holds recent state rows
type StatesResult struct {
	States []models.Row `json:"states"`
	Count  int          `json:"count"`
}

// EventsResult holds recent event rows
type EventsResult struct {
	Events []models.Row `json:"events"`
	Count  int          `json:"count"`
}

// RecorderService offers read-only convenience views of the recorder database
type RecorderService interface {
	Tables(ctx context.Context) (*TablesResult, error)
	Schema(ctx context.Context, table string) (*SchemaResult, error)
	Entities(ctx context.Context) (*EntitiesResult, error)
	States(ctx context.Context, filter StatesFilter) (*StatesResult, error)
	Events(ctx context.Context, filter EventsFilter) (*EventsResult, error)
}

// recorderService implements RecorderService
type recorderService struct {
	queryRepo   repositories.QueryRepository
	maxRowLimit int
}

// NewRecorderService creates a new recorder service. Limits above maxRowLimit are rejected.
func NewRecorderService(queryRepo repositories.QueryRepository, maxRowLimit int) RecorderService {
	if maxRowLimit <= 0 {
		maxRowLimit = 10000
	}
	return &recorderService{
		queryRepo:   queryRepo,
		maxRowLimit: maxRowLimit,
	}
}

// Tables lists all tables in the recorder database
func (s *recorderService) Tables(ctx context.Context) (*TablesResult, error) {
	result, err := s.queryRepo.Execute(ctx, tablesQuery, nil)
	if err != nil {
		return nil, err
	}

	tables := result.Strings("name")
	return &TablesResult{Tables: tables, Count: len(tables)}, nil
}

// Schema returns the column definitions of table
func (s *recorderService) Schema(ctx context.Context, table string) (*SchemaResult, error) {
	if table == "" {
		return nil, models.NewError(models.ErrInvalidRequest, "table_name is required")
	}
	if !identifierPattern.MatchString(table) {
		return nil, models.NewError(models.ErrInvalidRequest, "table_name must be a plain identifier")
	}

	result, err := s.queryRepo.Execute(ctx, schemaQuery, []interface{}{table})
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, models.NewError(models.ErrNotFound, fmt.Sprintf("table %s not found", table))
	}

	return &SchemaResult{Table: table, Schema: result.Rows}, nil
}

// Entities lists distinct entity ids, including those only present in states_meta on newer schemas
func (s *recorderService) Entities(ctx context.Context) (*EntitiesResult, error) {
	query := legacyEntitiesQuery
	if s.hasTable(ctx, statesMetaTable) {
		query = entitiesQuery
	}

	result, err := s.queryRepo.Execute(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	entities := result.Strings("entity_id")
	return &EntitiesResult{Entities: entities, Count: len(entities)}, nil
}

// States returns the most recent state rows, optionally for one entity
func (s *recorderService) States(ctx context.Context, filter StatesFilter) (*StatesResult, error) {
	limit, err := s.limit(filter.Limit)
	if err != nil {
		return nil, err
	}

	query, params := statesQuery, []interface{}{limit}
	if filter.EntityID != "" {
		query, params = legacyStatesEntityQuery, []interface{}{filter.EntityID, limit}
		if s.hasTable(ctx, statesMetaTable) {
			query, params = statesEntityQuery, []interface{}{filter.EntityID, filter.EntityID, limit}
		}
	}

	result, err := s.queryRepo.Execute(ctx, query, params)
	if err != nil {
		return nil, err
	}

	return &StatesResult{States: result.Rows, Count: len(result.Rows)}, nil
}

// Events returns the most recent event rows, optionally of one type
func (s *recorderService) Events(ctx context.Context, filter EventsFilter) (*EventsResult, error) {
	limit, err := s.limit(filter.Limit)
	if err != nil {
		return nil, err
	}

	query, params := eventsQuery, []interface{}{limit}
	if filter.EventType != "" {
		query, params = legacyEventsTypeQuery, []interface{}{filter.EventType, limit}
		if s.hasTable(ctx, eventTypesTable) {
			query, params = eventsTypeQuery, []interface{}{filter.EventType, filter.EventType, limit}
		}
	}

	result, err := s.queryRepo.Execute(ctx, query, params)
	if err != nil {
		return nil, err
	}

	return &EventsResult{Events: result.Rows, Count: len(result.Rows)}, nil
}

// limit checks the configured bounds. Callers apply DefaultRowLimit when the client sent none.
func (s *recorderService) limit(limit int) (int, error) {
	if limit < 1 || limit > s.maxRowLimit {
		return 0, models.NewError(models.ErrInvalidRequest,
			fmt.Sprintf("limit must be between 1 and %d", s.maxRowLimit))
	}
	return limit, nil
}

// hasTable reports whether the recorder has table; lookup failures count as absent
func (s *recorderService) hasTable(ctx context.Context, table string) bool {
	tables, err := s.Tables(ctx)
	if err != nil {
		return false
	}
	return slices.Contains(tables.Tables, table)
}
