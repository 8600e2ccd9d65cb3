package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blogem/ha-gateway/configfs"
	"github.com/blogem/ha-gateway/models"
	"github.com/blogem/ha-gateway/observability"
	"github.com/blogem/ha-gateway/repositories"
	"github.com/blogem/ha-gateway/supervisor"
	"github.com/blogem/ha-gateway/userctx"
)

// Operation names used in audit entries and metrics
const (
	OperationAppendLines = "config/append_lines"
	OperationInsertFile  = "config/insert_file"
)

// ConfigService applies all-or-nothing mutations to the Home Assistant configuration
type ConfigService interface {
	AppendLines(ctx context.Context, caller string, req models.AppendLinesRequest) (*models.MutationResult, error)
	InsertFile(ctx context.Context, caller string, req models.InsertFileRequest) (*models.MutationResult, error)
	ListBackups() ([]configfs.BackupInfo, error)
}

// configService implements ConfigService.
// One mutex covers every run from backup to commit or rollback, so mutations never interleave.
type configService struct {
	mu      sync.Mutex
	store   configfs.Store
	checker supervisor.ConfigChecker
	audit   repositories.AuditRepository
	metrics *observability.Metrics
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// ConfigServiceOptions are the collaborators of the configuration pipeline
type ConfigServiceOptions struct {
	Store   configfs.Store
	Checker supervisor.ConfigChecker
	Audit   repositories.AuditRepository
	Metrics *observability.Metrics
	Logger  *slog.Logger
	// Timeout bounds each check and reload call
	Timeout time.Duration
	Now     func() time.Time
}

// NewConfigService creates a new configuration mutation service
func NewConfigService(opts ConfigServiceOptions) ConfigService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = supervisor.DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &configService{
		store:   opts.Store,
		checker: opts.Checker,
		audit:   opts.Audit,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		timeout: opts.Timeout,
		now:     opts.Now,
	}
}

// mutationRun tracks what a single run has changed so it can be undone
type mutationRun struct {
	operation string
	target    string
	snapshot  []byte // content before the write, nil when the target did not exist
	created   bool
	written   bool
	result    *models.MutationResult
}

// AppendLines appends lines to configuration.yaml, then validates and reloads
func (s *configService) AppendLines(ctx context.Context, caller string, req models.AppendLinesRequest) (result *models.MutationResult, err error) {
	if problems := req.Validate(); len(problems) > 0 {
		return nil, models.NewError(models.ErrInvalidRequest, "validation failed: "+strings.Join(problems, ", "))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run := &mutationRun{
		operation: OperationAppendLines,
		target:    s.store.ConfigPath(),
		result:    &models.MutationResult{Path: s.store.ConfigPath()},
	}
	defer s.finish(ctx, caller, run, &result, &err)

	original, err := s.store.Read(run.target)
	if errors.Is(err, configfs.ErrNotFound) {
		return run.result, models.WrapError(models.ErrNotFound, "configuration.yaml not found", err)
	}
	if err != nil {
		return run.result, models.WrapError(models.ErrFileWrite, "failed to read configuration", err)
	}
	run.snapshot = original

	if err := checkAppendedYAML(original, req.Lines); err != nil {
		return run.result, err
	}

	if req.Backup {
		backupPath, err := s.store.Backup(run.target, s.now())
		if err != nil {
			return run.result, models.WrapError(models.ErrBackupFailed, "failed to back up configuration", err)
		}
		run.result.BackupPath = backupPath
	}

	run.written = true
	if err := s.store.AppendLines(run.target, req.Lines); err != nil {
		s.rollback(run)
		if errors.Is(err, configfs.ErrNotFound) {
			return run.result, models.WrapError(models.ErrNotFound, "configuration.yaml not found", err)
		}
		return run.result, models.WrapError(models.ErrFileWrite, "failed to append lines", err)
	}

	if err := s.validateAndReload(ctx, run, req.ValidateConfig, req.ReloadConfig); err != nil {
		return run.result, err
	}

	return run.result, nil
}

// InsertFile writes a file under the configuration root, then validates and reloads
func (s *configService) InsertFile(ctx context.Context, caller string, req models.InsertFileRequest) (result *models.MutationResult, err error) {
	if problems := req.Validate(); len(problems) > 0 {
		return nil, models.NewError(models.ErrInvalidRequest, "validation failed: "+strings.Join(problems, ", "))
	}

	content := []byte(req.ContentString())
	if err := checkYAML(content); err != nil {
		return nil, models.WrapError(models.ErrInvalidRequest, "content is not valid YAML", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Until the path resolves, the audit log records what the caller asked for
	run := &mutationRun{
		operation: OperationInsertFile,
		target:    filepath.Join(req.RelativeDir, req.Filename),
		result:    &models.MutationResult{},
	}
	defer s.finish(ctx, caller, run, &result, &err)

	target, err := s.store.Resolve(req.RelativeDir, req.Filename)
	if err != nil {
		return run.result, err
	}
	run.target = target
	run.result.Path = target

	exists, err := s.store.Exists(target)
	if err != nil {
		return run.result, models.WrapError(models.ErrFileWrite, "failed to inspect target", err)
	}

	if exists {
		if !req.Overwrite {
			return run.result, models.NewError(models.ErrFileExists, "file already exists").
				WithDetail("path", target)
		}

		original, err := s.store.Read(target)
		if err != nil {
			return run.result, models.WrapError(models.ErrBackupFailed, "failed to read existing file", err)
		}
		run.snapshot = original

		backupPath, err := s.store.Backup(target, s.now())
		if err != nil {
			return run.result, models.WrapError(models.ErrBackupFailed, "failed to back up existing file", err)
		}
		run.result.BackupPath = backupPath
	} else {
		run.created = true
	}

	run.written = true
	if err := s.store.WriteAtomic(target, content); err != nil {
		s.rollback(run)
		return run.result, models.WrapError(models.ErrFileWrite, "failed to write file", err)
	}

	if err := s.validateAndReload(ctx, run, req.ValidateConfig, req.ReloadConfig); err != nil {
		return run.result, err
	}

	return run.result, nil
}

// ListBackups returns the backups of configuration.yaml, newest first
func (s *configService) ListBackups() ([]configfs.BackupInfo, error) {
	return s.store.ListBackups(s.store.ConfigPath())
}

// validateAndReload runs the Written → Validated → Reloaded → Committed steps.
// A failed or negative check rolls the run back. A failed reload does not.
func (s *configService) validateAndReload(ctx context.Context, run *mutationRun, validate, reload bool) error {
	available := s.checker != nil && s.checker.Available()

	if validate {
		if !available {
			s.logger.Warn("supervisor token not configured, skipping configuration check",
				"operation", run.operation, "path", run.target)
		} else {
			checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
			check, err := s.checker.CheckConfig(checkCtx)
			cancel()

			if err != nil {
				s.rollback(run)
				return models.WrapError(models.ErrValidationFailed, "configuration check failed", err)
			}
			if !check.Valid {
				s.rollback(run)
				gwErr := models.NewError(models.ErrConfigurationInvalid, "configuration is invalid").
					WithDetail("result", check.Result)
				if check.Errors != "" {
					gwErr.WithDetail("errors", check.Errors)
				}
				if len(check.Payload) > 0 {
					gwErr.WithDetail("payload", check.Payload)
				}
				return gwErr
			}
			run.result.Validated = true
		}
	}

	if reload && available {
		reloadCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.checker.ReloadCoreConfig(reloadCtx)
		cancel()

		if err != nil {
			s.logger.Warn("core config reload failed, change kept",
				"operation", run.operation, "path", run.target, "error", err)
		} else {
			run.result.Reloaded = true
		}
	}

	run.result.Committed = true
	return nil
}

// rollback restores the target to its state before the run
func (s *configService) rollback(run *mutationRun) {
	if !run.written || run.result.RolledBack {
		return
	}

	var err error
	switch {
	case run.created:
		err = s.store.Remove(run.target)
	case run.result.BackupPath != "":
		err = s.store.Restore(run.result.BackupPath, run.target)
	case run.snapshot != nil:
		err = s.store.WriteAtomic(run.target, run.snapshot)
	default:
		err = fmt.Errorf("nothing to restore %s from", run.target)
	}

	if err != nil {
		s.logger.Error("rollback failed, manual restore needed",
			"operation", run.operation, "path", run.target, "backup", run.result.BackupPath, "error", err)
		return
	}

	run.result.RolledBack = true
	s.logger.Info("mutation rolled back", "operation", run.operation, "path", run.target)
}

// finish runs on every exit path. It converts a panic into internal_error after restoring the
// target, then records the attempt in the audit log and metrics.
func (s *configService) finish(ctx context.Context, caller string, run *mutationRun, result **models.MutationResult, err *error) {
	if r := recover(); r != nil {
		s.logger.Error("panic during configuration mutation", "operation", run.operation, "panic", r)
		s.rollback(run)
		*result = run.result
		*err = models.NewError(models.ErrInternal, "configuration mutation aborted")
	}

	if *err != nil {
		run.result.Committed = false
		run.result.Error = models.AsGatewayError(*err).Message
	}

	outcome := models.OutcomeCommitted
	switch {
	case *err == nil:
	case run.result.RolledBack:
		outcome = models.OutcomeRolledBack
	default:
		outcome = models.OutcomeFailed
	}

	s.metrics.ObserveMutation(run.operation, outcome)

	entry := &models.AuditLogEntry{
		Timestamp:  s.now(),
		RequestID:  userctx.GetRequestID(ctx),
		Caller:     caller,
		Method:     run.operation,
		Target:     run.target,
		Outcome:    outcome,
		BackupPath: run.result.BackupPath,
	}
	if *err != nil {
		entry.ErrorCode = string(models.CodeOf(*err))
	}
	s.recordAudit(ctx, entry)

	s.logger.Info("configuration mutation",
		"operation", run.operation,
		"caller", caller,
		"path", run.target,
		"outcome", outcome,
		"validated", run.result.Validated,
		"reloaded", run.result.Reloaded,
		"error_code", entry.ErrorCode)
}

func (s *configService) recordAudit(ctx context.Context, entry *models.AuditLogEntry) {
	if s.audit == nil {
		return
	}
	// The audit write must not be cut short by a cancelled request
	if err := s.audit.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to create audit log", "error", err)
	}
}

// checkAppendedYAML rejects lines that would turn a parseable file into an unparseable one.
// A file that does not parse before the append is left for the Supervisor check to judge.
func checkAppendedYAML(original []byte, lines []string) error {
	if checkYAML(original) != nil {
		return nil
	}

	var combined bytes.Buffer
	combined.Write(original)
	if len(original) > 0 && original[len(original)-1] != '\n' {
		combined.WriteByte('\n')
	}
	combined.WriteString(strings.Join(lines, "\n"))
	combined.WriteByte('\n')

	if err := checkYAML(combined.Bytes()); err != nil {
		return models.WrapError(models.ErrInvalidRequest, "appended lines do not form valid YAML", err)
	}
	return nil
}

// checkYAML parses data into a node tree. Home Assistant tags such as !include and !secret
// are kept as plain tags and never resolved.
func checkYAML(data []byte) error {
	var node yaml.Node
	return yaml.Unmarshal(data, &node)
}
