package history

import (
	"context"
	"fmt"

	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/storage"
)

// ServiceConfig is the configuration for the history service.
type ServiceConfig struct {
	Repository storage.StageRunRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.History"})

	return nil
}

// Service lists the stage runs with optional filtering.
type Service struct {
	repo   storage.StageRunRepository
	logger log.Logger
}

// NewService creates a new history service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the history request parameters.
type Request struct {
	// Key selects the runs of a stage key, empty lists every key.
	Key string
	// OutcomeFilter only returns runs with this outcome (optional).
	OutcomeFilter *model.Outcome
	// Limit is the maximum number of runs, zero means no limit.
	Limit int
}

// Run lists the stage runs, newest first.
func (s *Service) Run(ctx context.Context, req Request) ([]model.StageRun, error) {
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit can't be negative: %w", model.ErrNotValid)
	}

	runs, err := s.repo.ListStageRuns(ctx, req.Key)
	if err != nil {
		return nil, fmt.Errorf("could not list stage runs: %w", err)
	}

	if req.OutcomeFilter != nil {
		filtered := make([]model.StageRun, 0, len(runs))
		for _, r := range runs {
			if r.Outcome == *req.OutcomeFilter {
				filtered = append(filtered, r)
			}
		}
		runs = filtered
	}

	if req.Limit > 0 && len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}

	s.logger.Debugf("found %d stage runs", len(runs))
	return runs, nil
}
