package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/blogem/ha-gateway/configfs"
	"github.com/blogem/ha-gateway/models"
	repomocks "github.com/blogem/ha-gateway/repositories/mocks"
	"github.com/blogem/ha-gateway/supervisor"
	supervisormocks "github.com/blogem/ha-gateway/supervisor/mocks"
)

const originalConfig = "homeassistant:\n  name: Home\n\nlight: !include lights.yaml\n"

// ConfigServiceTestSuite exercises the mutation pipeline against a real temporary config directory
type ConfigServiceTestSuite struct {
	suite.Suite
	store       *configfs.LocalStore
	mockChecker *supervisormocks.MockConfigChecker
	mockAudit   *repomocks.MockAuditRepository
	service     ConfigService
}

// SetupTest creates a fresh config root and service before each test
func (suite *ConfigServiceTestSuite) SetupTest() {
	store, err := configfs.NewLocalStore(configfs.Options{Root: suite.T().TempDir(), Retention: 5})
	suite.Require().NoError(err)
	suite.store = store
	suite.Require().NoError(os.WriteFile(store.ConfigPath(), []byte(originalConfig), 0o644))

	suite.mockChecker = supervisormocks.NewMockConfigChecker(suite.T())
	suite.mockAudit = repomocks.NewMockAuditRepository(suite.T())

	suite.service = NewConfigService(ConfigServiceOptions{
		Store:   suite.store,
		Checker: suite.mockChecker,
		Audit:   suite.mockAudit,
		Timeout: time.Second,
	})
}

func (suite *ConfigServiceTestSuite) configContent() string {
	data, err := os.ReadFile(suite.store.ConfigPath())
	suite.Require().NoError(err)
	return string(data)
}

func (suite *ConfigServiceTestSuite) expectAudit(method, outcome string, code models.ErrorCode) {
	suite.mockAudit.EXPECT().Create(mock.Anything, mock.MatchedBy(func(e *models.AuditLogEntry) bool {
		return e.Method == method && e.Outcome == outcome && e.ErrorCode == string(code) && e.Caller == "10.0.0.5"
	})).Return(nil).Once()
}

func (suite *ConfigServiceTestSuite) expectValid() {
	suite.mockChecker.EXPECT().Available().Return(true).Maybe()
	suite.mockChecker.EXPECT().CheckConfig(mock.Anything).Return(&supervisor.CheckResult{Valid: true, Result: "valid"}, nil).Once()
}

func appendRequest(lines ...string) models.AppendLinesRequest {
	req := models.NewAppendLinesRequest()
	req.Lines = lines
	return req
}

func insertRequest(dir, filename, content string) models.InsertFileRequest {
	req := models.NewInsertFileRequest()
	req.RelativeDir = dir
	req.Filename = filename
	req.Content = &content
	return req
}

// TestAppendLines_CommitsWithoutSupervisor tests the degraded path when no token is configured
func (suite *ConfigServiceTestSuite) TestAppendLines_CommitsWithoutSupervisor() {
	suite.mockChecker.EXPECT().Available().Return(false)
	suite.expectAudit(OperationAppendLines, models.OutcomeCommitted, "")

	result, err := suite.service.AppendLines(context.Background(), "10.0.0.5", appendRequest("sensor:", "  - platform: time_date"))

	suite.Require().NoError(err)
	assert.True(suite.T(), result.Committed)
	assert.False(suite.T(), result.Validated)
	assert.False(suite.T(), result.Reloaded)
	assert.Equal(suite.T(), originalConfig+"sensor:\n  - platform: time_date\n", suite.configContent())

	// Backup holds the pre-mutation bytes
	suite.Require().NotEmpty(result.BackupPath)
	backup, err := os.ReadFile(result.BackupPath)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), originalConfig, string(backup))
}

// TestAppendLines_ValidatedAndReloaded tests the full happy path
func (suite *ConfigServiceTestSuite) TestAppendLines_ValidatedAndReloaded() {
	suite.expectValid()
	suite.mockChecker.EXPECT().ReloadCoreConfig(mock.Anything).Return(nil).Once()
	suite.expectAudit(OperationAppendLines, models.OutcomeCommitted, "")

	result, err := suite.service.AppendLines(context.Background(), "10.0.0.5", appendRequest("automation: !include automations.yaml"))

	suite.Require().NoError(err)
	assert.Equal(suite.T(), &models.MutationResult{
		Committed:  true,
		Validated:  true,
		Reloaded:   true,
		Path:       suite.store.ConfigPath(),
		BackupPath: result.BackupPath,
	}, result)
}

// TestAppendLines_InvalidConfigurationRollsBack tests that a negative check restores the original bytes
func (suite *ConfigServiceTestSuite) TestAppendLines_InvalidConfigurationRollsBack() {
	suite.mockChecker.EXPECT().Available().Return(true)
	suite.mockChecker.EXPECT().CheckConfig(mock.Anything).
		Return(&supervisor.CheckResult{
			Valid:   false,
			Result:  "invalid",
			Errors:  "Integration error: bogus",
			Payload: json.RawMessage(`{"result":"invalid","errors":"Integration error: bogus","warnings":null}`),
		}, nil)
	suite.expectAudit(OperationAppendLines, models.OutcomeRolledBack, models.ErrConfigurationInvalid)

	result, err := suite.service.AppendLines(context.Background(), "10.0.0.5", appendRequest("bogus:"))

	suite.Require().Error(err)
	var gwErr *models.GatewayError
	suite.Require().ErrorAs(err, &gwErr)
	assert.Equal(suite.T(), models.ErrConfigurationInvalid, gwErr.Code)
	assert.Equal(suite.T(), "Integration error: bogus", gwErr.Details["errors"])
	assert.Equal(suite.T(), "invalid", gwErr.Details["result"])
	assert.JSONEq(suite.T(), `{"result":"invalid","errors":"Integration error: bogus","warnings":null}`,
		string(gwErr.Details["payload"].(json.RawMessage)))

	assert.False(suite.T(), result.Committed)
	assert.True(suite.T(), result.RolledBack)
	assert.Equal(suite.T(), originalConfig, suite.configContent())
}

// TestAppendLines_CheckFailureRollsBack tests that an unreachable Supervisor counts as validation_failed
func (suite *ConfigServiceTestSuite) TestAppendLines_CheckFailureRollsBack() {
	suite.mockChecker.EXPECT().Available().Return(true)
	suite.mockChecker.EXPECT().CheckConfig(mock.Anything).Return(nil, errors.New("connection refused"))
	suite.expectAudit(OperationAppendLines, models.OutcomeRolledBack, models.ErrValidationFailed)

	result, err := suite.service.AppendLines(context.Background(), "10.0.0.5", appendRequest("x: 1"))

	assert.Equal(suite.T(), models.ErrValidationFailed, models.CodeOf(err))
	assert.True(suite.T(), result.RolledBack)
	assert.Equal(suite.T(), originalConfig, suite.configContent())
}

// TestAppendLines_CheckTimeoutRollsBack tests that the check is bounded by the configured timeout
func (suite *ConfigServiceTestSuite) TestAppendLines_CheckTimeoutRollsBack() {
	service := NewConfigService(ConfigServiceOptions{
		Store:   suite.store,
		Checker: suite.mockChecker,
		Audit:   suite.mockAudit,
		Timeout: 20 * time.Millisecond,
	})
	suite.mockChecker.EXPECT().Available().Return(true)
	suite.mockChecker.EXPECT().CheckConfig(mock.Anything).RunAndReturn(func(ctx context.Context) (*supervisor.CheckResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	suite.expectAudit(OperationAppendLines, models.OutcomeRolledBack, models.ErrValidationFailed)

	result, err := service.AppendLines(context.Background(), "10.0.0.5", appendRequest("x: 1"))

	assert.Equal(suite.T(), models.ErrValidationFailed, models.CodeOf(err))
	assert.ErrorIs(suite.T(), err, context.DeadlineExceeded)
	assert.True(suite.T(), result.RolledBack)
	assert.Equal(suite.T(), originalConfig, suite.configContent())
}

// TestAppendLines_ReloadFailureIsStillSuccess tests that a failed reload keeps the change
func (suite *ConfigServiceTestSuite) TestAppendLines_ReloadFailureIsStillSuccess() {
	suite.expectValid()
	suite.mockChecker.EXPECT().ReloadCoreConfig(mock.Anything).Return(errors.New("503"))
	suite.expectAudit(OperationAppendLines, models.OutcomeCommitted, "")

	result, err := suite.service.AppendLines(context.Background(), "10.0.0.5", appendRequest("x: 1"))

	suite.Require().NoError(err)
	assert.True(suite.T(), result.Committed)
	assert.True(suite.T(), result.Validated)
	assert.False(suite.T(), result.Reloaded)
	assert.Contains(suite.T(), suite.configContent(), "x: 1\n")
}

// TestAppendLines_WithoutBackupStillRollsBack tests rollback from the in-memory snapshot
func (suite *ConfigServiceTestSuite) TestAppendLines_WithoutBackupStillRollsBack() {
	suite.mockChecker.EXPECT().Available().Return(true)
	suite.mockChecker.EXPECT().CheckConfig(mock.Anything).Return(&supervisor.CheckResult{Valid: false, Result: "invalid"}, nil)
	suite.expectAudit(OperationAppendLines, models.OutcomeRolledBack, models.ErrConfigurationInvalid)

	req := appendRequest("x: 1")
	req.Backup = false
	result, err := suite.service.AppendLines(context.Background(), "10.0.0.5", req)

	suite.Require().Error(err)
	assert.Empty(suite.T(), result.BackupPath)
	assert.True(suite.T(), result.RolledBack)
	assert.Equal(suite.T(), originalConfig, suite.configContent())

	backups, err := suite.store.ListBackups(suite.store.ConfigPath())
	suite.Require().NoError(err)
	assert.Empty(suite.T(), backups)
}

// TestAppendLines_MissingConfiguration tests not_found when configuration.yaml is absent
func (suite *ConfigServiceTestSuite) TestAppendLines_MissingConfiguration() {
	suite.Require().NoError(os.Remove(suite.store.ConfigPath()))
	suite.expectAudit(OperationAppendLines, models.OutcomeFailed, models.ErrNotFound)

	result, err := suite.service.AppendLines(context.Background(), "10.0.0.5", appendRequest("x: 1"))

	assert.Equal(suite.T(), models.ErrNotFound, models.CodeOf(err))
	assert.False(suite.T(), result.Committed)
	_, statErr := os.Stat(suite.store.ConfigPath())
	assert.True(suite.T(), os.IsNotExist(statErr))
}

// TestAppendLines_RejectsBrokenYAML tests the local pre-check before any write
func (suite *ConfigServiceTestSuite) TestAppendLines_RejectsBrokenYAML() {
	suite.expectAudit(OperationAppendLines, models.OutcomeFailed, models.ErrInvalidRequest)

	_, err := suite.service.AppendLines(context.Background(), "10.0.0.5", appendRequest("sensor: [unclosed"))

	assert.Equal(suite.T(), models.ErrInvalidRequest, models.CodeOf(err))
	assert.Equal(suite.T(), originalConfig, suite.configContent())
}

// TestAppendLines_InvalidRequest tests request validation before the pipeline starts
func (suite *ConfigServiceTestSuite) TestAppendLines_InvalidRequest() {
	_, err := suite.service.AppendLines(context.Background(), "10.0.0.5", models.NewAppendLinesRequest())

	assert.Equal(suite.T(), models.ErrInvalidRequest, models.CodeOf(err))
	assert.Contains(suite.T(), err.Error(), "lines is required")
}

// TestAppendLines_ConcurrentCallsSerialize tests that concurrent mutations never interleave
func (suite *ConfigServiceTestSuite) TestAppendLines_ConcurrentCallsSerialize() {
	const workers = 10
	suite.mockChecker.EXPECT().Available().Return(false)
	suite.mockAudit.EXPECT().Create(mock.Anything, mock.Anything).Return(nil).Times(workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := appendRequest(fmt.Sprintf("key_%d: %d", i, i))
			req.Backup = false
			_, err := suite.service.AppendLines(context.Background(), "10.0.0.5", req)
			assert.NoError(suite.T(), err)
		}(i)
	}
	wg.Wait()

	content := suite.configContent()
	for i := 0; i < workers; i++ {
		assert.Contains(suite.T(), content, fmt.Sprintf("\nkey_%d: %d\n", i, i))
	}
	assert.Equal(suite.T(), strings.Count(originalConfig, "\n")+workers, strings.Count(content, "\n"))
}

// TestAppendLines_PanicRestoresAndReleasesLock tests recovery from a collaborator panic
func (suite *ConfigServiceTestSuite) TestAppendLines_PanicRestoresAndReleasesLock() {
	suite.mockChecker.EXPECT().Available().Return(true).Once()
	suite.mockChecker.EXPECT().CheckConfig(mock.Anything).Panic("checker exploded").Once()
	suite.expectAudit(OperationAppendLines, models.OutcomeRolledBack, models.ErrInternal)

	result, err := suite.service.AppendLines(context.Background(), "10.0.0.5", appendRequest("x: 1"))

	assert.Equal(suite.T(), models.ErrInternal, models.CodeOf(err))
	assert.True(suite.T(), result.RolledBack)
	assert.Equal(suite.T(), originalConfig, suite.configContent())

	// The lock was released: a second mutation goes through
	suite.mockChecker.EXPECT().Available().Return(false).Once()
	suite.expectAudit(OperationAppendLines, models.OutcomeCommitted, "")
	_, err = suite.service.AppendLines(context.Background(), "10.0.0.5", appendRequest("y: 2"))
	suite.Require().NoError(err)
}

// TestInsertFile_CreatesNewFile tests inserting a new include file
func (suite *ConfigServiceTestSuite) TestInsertFile_CreatesNewFile() {
	suite.expectValid()
	suite.mockChecker.EXPECT().ReloadCoreConfig(mock.Anything).Return(nil)
	suite.expectAudit(OperationInsertFile, models.OutcomeCommitted, "")

	result, err := suite.service.InsertFile(context.Background(), "10.0.0.5",
		insertRequest("packages", "lights.yaml", "light:\n  - platform: demo\n"))

	suite.Require().NoError(err)
	target := filepath.Join(suite.store.Root(), "packages", "lights.yaml")
	assert.Equal(suite.T(), target, result.Path)
	assert.True(suite.T(), result.Committed)
	assert.Empty(suite.T(), result.BackupPath)

	data, err := os.ReadFile(target)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), "light:\n  - platform: demo\n", string(data))
}

// TestInsertFile_PathEscape tests that escaping paths are rejected without any write
func (suite *ConfigServiceTestSuite) TestInsertFile_PathEscape() {
	suite.expectAudit(OperationInsertFile, models.OutcomeFailed, models.ErrPathEscape)
	outside := filepath.Dir(suite.store.Root())
	before, err := os.ReadDir(outside)
	suite.Require().NoError(err)

	result, err := suite.service.InsertFile(context.Background(), "10.0.0.5", insertRequest("../../etc", "x.yaml", "a: 1\n"))

	assert.Equal(suite.T(), models.ErrPathEscape, models.CodeOf(err))
	assert.False(suite.T(), result.Committed)

	after, err := os.ReadDir(outside)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), len(before), len(after))
}

// TestInsertFile_ExistingWithoutOverwrite tests file_exists and an unchanged artifact
func (suite *ConfigServiceTestSuite) TestInsertFile_ExistingWithoutOverwrite() {
	suite.mockChecker.EXPECT().Available().Return(false)
	suite.expectAudit(OperationInsertFile, models.OutcomeCommitted, "")
	suite.expectAudit(OperationInsertFile, models.OutcomeFailed, models.ErrFileExists)

	_, err := suite.service.InsertFile(context.Background(), "10.0.0.5", insertRequest("packages", "a.yaml", "first: 1\n"))
	suite.Require().NoError(err)

	_, err = suite.service.InsertFile(context.Background(), "10.0.0.5", insertRequest("packages", "a.yaml", "second: 2\n"))
	assert.Equal(suite.T(), models.ErrFileExists, models.CodeOf(err))

	data, err := os.ReadFile(filepath.Join(suite.store.Root(), "packages", "a.yaml"))
	suite.Require().NoError(err)
	assert.Equal(suite.T(), "first: 1\n", string(data))
}

// TestInsertFile_InvalidNewFileIsRemoved tests rollback of a newly created file
func (suite *ConfigServiceTestSuite) TestInsertFile_InvalidNewFileIsRemoved() {
	suite.mockChecker.EXPECT().Available().Return(true)
	suite.mockChecker.EXPECT().CheckConfig(mock.Anything).Return(&supervisor.CheckResult{Valid: false, Result: "invalid"}, nil)
	suite.expectAudit(OperationInsertFile, models.OutcomeRolledBack, models.ErrConfigurationInvalid)

	result, err := suite.service.InsertFile(context.Background(), "10.0.0.5", insertRequest("packages", "bad.yaml", "bogus: 1\n"))

	assert.Equal(suite.T(), models.ErrConfigurationInvalid, models.CodeOf(err))
	assert.True(suite.T(), result.RolledBack)
	_, statErr := os.Stat(filepath.Join(suite.store.Root(), "packages", "bad.yaml"))
	assert.True(suite.T(), os.IsNotExist(statErr))
}

// TestInsertFile_InvalidOverwriteRestoresOriginal tests rollback of an overwrite from its backup
func (suite *ConfigServiceTestSuite) TestInsertFile_InvalidOverwriteRestoresOriginal() {
	target := filepath.Join(suite.store.Root(), "scripts.yaml")
	suite.Require().NoError(os.WriteFile(target, []byte("original: true\n"), 0o644))

	suite.mockChecker.EXPECT().Available().Return(true)
	suite.mockChecker.EXPECT().CheckConfig(mock.Anything).Return(&supervisor.CheckResult{Valid: false, Result: "invalid"}, nil)
	suite.expectAudit(OperationInsertFile, models.OutcomeRolledBack, models.ErrConfigurationInvalid)

	req := insertRequest(".", "scripts.yaml", "replaced: true\n")
	req.Overwrite = true
	result, err := suite.service.InsertFile(context.Background(), "10.0.0.5", req)

	suite.Require().Error(err)
	assert.True(suite.T(), result.RolledBack)
	assert.NotEmpty(suite.T(), result.BackupPath)

	data, err := os.ReadFile(target)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), "original: true\n", string(data))
}

// TestInsertFile_RejectsBrokenYAML tests that unparseable content never reaches the filesystem
func (suite *ConfigServiceTestSuite) TestInsertFile_RejectsBrokenYAML() {
	_, err := suite.service.InsertFile(context.Background(), "10.0.0.5", insertRequest("packages", "x.yaml", "a: [1, 2\n"))

	assert.Equal(suite.T(), models.ErrInvalidRequest, models.CodeOf(err))
	_, statErr := os.Stat(filepath.Join(suite.store.Root(), "packages"))
	assert.True(suite.T(), os.IsNotExist(statErr))
}

// TestListBackups tests that backups of configuration.yaml are listed newest first
func (suite *ConfigServiceTestSuite) TestListBackups() {
	suite.mockChecker.EXPECT().Available().Return(false)
	suite.mockAudit.EXPECT().Create(mock.Anything, mock.Anything).Return(nil)

	result, err := suite.service.AppendLines(context.Background(), "10.0.0.5", appendRequest("x: 1"))
	suite.Require().NoError(err)

	backups, err := suite.service.ListBackups()
	suite.Require().NoError(err)
	suite.Require().Len(backups, 1)
	assert.Equal(suite.T(), result.BackupPath, backups[0].Path)
}

// TestConfigServiceTestSuite runs the test suite
func TestConfigServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigServiceTestSuite))
}

func TestCheckAppendedYAML(t *testing.T) {
	original := []byte("homeassistant:\n  name: Home\nsensor: !include sensors.yaml")

	require.NoError(t, checkAppendedYAML(original, []string{"light:", "  - platform: demo"}))
	assert.Error(t, checkAppendedYAML(original, []string{"light: [demo"}))

	// An already broken file is left for the Supervisor check
	assert.NoError(t, checkAppendedYAML([]byte("a: [1"), []string{"b: 2"}))
}
