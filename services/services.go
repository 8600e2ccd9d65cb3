package services

import (
	"log/slog"
	"time"

	"github.com/blogem/ha-gateway/configfs"
	"github.com/blogem/ha-gateway/observability"
	"github.com/blogem/ha-gateway/querysafety"
	"github.com/blogem/ha-gateway/repositories"
	"github.com/blogem/ha-gateway/supervisor"
)

// Services holds all service instances
type Services struct {
	Query    QueryService
	Recorder RecorderService
	Config   ConfigService
	Status   StatusService
}

// Options carries the collaborators and settings the services need beyond the repositories
type Options struct {
	Policy            querysafety.Policy
	MaxRowLimit       int
	Store             configfs.Store
	Checker           supervisor.ConfigChecker
	SupervisorTimeout time.Duration
	Status            StatusOptions
	Metrics           *observability.Metrics
	Logger            *slog.Logger
}

// NewServices creates and initializes all service instances
func NewServices(repos *repositories.Repositories, opts Options) *Services {
	recorder := NewRecorderService(repos.Query, opts.MaxRowLimit)

	return &Services{
		Query:    NewQueryService(repos.Query, repos.Audit, opts.Policy, opts.Metrics, opts.Logger),
		Recorder: recorder,
		Config: NewConfigService(ConfigServiceOptions{
			Store:   opts.Store,
			Checker: opts.Checker,
			Audit:   repos.Audit,
			Metrics: opts.Metrics,
			Logger:  opts.Logger,
			Timeout: opts.SupervisorTimeout,
		}),
		Status: NewStatusService(recorder, opts.Status),
	}
}
