package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/blogem/ha-gateway/models"
	"github.com/blogem/ha-gateway/observability"
	"github.com/blogem/ha-gateway/querysafety"
	"github.com/blogem/ha-gateway/repositories"
	"github.com/blogem/ha-gateway/userctx"
)

// OperationQuery is the audit and metrics name for mutating SQL
const OperationQuery = "query"

// QueryService runs client-supplied SQL after the safety classifier has allowed it
type QueryService interface {
	Execute(ctx context.Context, req models.QueryRequest) (*models.QueryResult, error)
	Classify(sql string) models.SafetyVerdict
}

// queryService implements QueryService
type queryService struct {
	queryRepo repositories.QueryRepository
	auditRepo repositories.AuditRepository
	policy    querysafety.Policy
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewQueryService creates a new query service
func NewQueryService(queryRepo repositories.QueryRepository, auditRepo repositories.AuditRepository, policy querysafety.Policy, metrics *observability.Metrics, logger *slog.Logger) QueryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &queryService{
		queryRepo: queryRepo,
		auditRepo: auditRepo,
		policy:    policy,
		metrics:   metrics,
		logger:    logger,
	}
}

// Classify applies the configured policy to sql without running it
func (s *queryService) Classify(sql string) models.SafetyVerdict {
	return querysafety.Classify(sql, s.policy)
}

// Execute classifies and then runs the statement. Statements that are not plain reads are audited.
func (s *queryService) Execute(ctx context.Context, req models.QueryRequest) (*models.QueryResult, error) {
	if strings.TrimSpace(req.SQL) == "" {
		return nil, models.NewError(models.ErrInvalidRequest, "query is required")
	}

	verdict := s.Classify(req.SQL)
	if !verdict.Allowed {
		s.logger.Warn("query denied", "caller", req.Caller, "reason", verdict.Reason)
		gwErr := models.NewError(models.ErrQueryDenied, verdict.Reason)
		if len(verdict.Tables) > 0 {
			gwErr.WithDetail("tables", verdict.Tables)
		}
		return nil, gwErr
	}

	result, err := s.queryRepo.Execute(ctx, req.SQL, req.Params)

	if !querysafety.IsReadOnly(req.SQL) {
		s.recordWrite(ctx, req, verdict, err)
	}

	if err != nil {
		return nil, err
	}
	return result, nil
}

// recordWrite audits a statement that may have changed the recorder database
func (s *queryService) recordWrite(ctx context.Context, req models.QueryRequest, verdict models.SafetyVerdict, execErr error) {
	outcome := models.OutcomeCommitted
	if execErr != nil {
		outcome = models.OutcomeFailed
	}
	s.metrics.ObserveMutation(OperationQuery, outcome)

	if s.auditRepo == nil {
		return
	}

	target := s.queryRepo.Path()
	if len(verdict.Tables) > 0 {
		target = strings.Join(verdict.Tables, ",")
	}

	entry := &models.AuditLogEntry{
		Timestamp: time.Now(),
		RequestID: userctx.GetRequestID(ctx),
		Caller:    req.Caller,
		Method:    OperationQuery,
		Target:    target,
		Outcome:   outcome,
	}
	if execErr != nil {
		entry.ErrorCode = string(models.CodeOf(execErr))
	}

	if err := s.auditRepo.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to create audit log", "error", err)
	}
}
