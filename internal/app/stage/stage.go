// Package stage runs a single stage of a staged task: it restores the
// previous checkpoint, runs the hooks and the main sequence against the
// shared deadline, and checkpoints the state when the time runs out.
package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/stager/internal/checkpoint"
	"github.com/slok/stager/internal/clock"
	"github.com/slok/stager/internal/deadline"
	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/sequence"
	"github.com/slok/stager/internal/storage"
)

// ServiceConfig is the configuration for the stage service.
type ServiceConfig struct {
	Executor  sequence.Executor
	Deadlines *deadline.Tracker
	// Checkpoints is required by stages that restore or save checkpoints.
	Checkpoints checkpoint.Manager
	// Runs records the stage history (optional).
	Runs storage.StageRunRepository
	// SaveTimeout bounds the checkpoint save, it also applies when the stage
	// was cancelled. Defaults to 30m.
	SaveTimeout time.Duration
	Grouper     log.Grouper
	Clock       clock.Clock
	Logger      log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Executor == nil {
		return fmt.Errorf("executor is required")
	}
	if c.Deadlines == nil {
		return fmt.Errorf("deadline tracker is required")
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = 30 * time.Minute
	}
	if c.Grouper == nil {
		c.Grouper = log.NoopGrouper
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Stage"})
	return nil
}

// Service handles the stage business logic.
type Service struct {
	executor    sequence.Executor
	deadlines   *deadline.Tracker
	checkpoints checkpoint.Manager
	runs        storage.StageRunRepository
	saveTimeout time.Duration
	grouper     log.Grouper
	clock       clock.Clock
	logger      log.Logger
}

// NewService creates a new stage service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		executor:    cfg.Executor,
		deadlines:   cfg.Deadlines,
		checkpoints: cfg.Checkpoints,
		runs:        cfg.Runs,
		saveTimeout: cfg.SaveTimeout,
		grouper:     cfg.Grouper,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}, nil
}

// RunOptions are the options for running a stage.
type RunOptions struct {
	Config model.StageConfig
}

// Run runs a stage. Failed and timed out stages are reported in the result,
// errors are only returned when the stage could not be run at all.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*model.StageResult, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if (cfg.Restore || cfg.CheckpointOnTimeout) && s.checkpoints == nil {
		return nil, fmt.Errorf("checkpoint manager is required to restore or save checkpoints: %w", model.ErrNotValid)
	}

	res := &model.StageResult{
		ID:        ulid.Make().String(),
		Key:       cfg.Key,
		Before:    model.SkippedResult(),
		Main:      model.SkippedResult(),
		After:     model.SkippedResult(),
		StartedAt: s.clock.Now().UTC(),
	}
	logger := s.logger.WithValues(log.Kv{"stage-id": res.ID, "stage-key": cfg.Key})

	// 1. Restore the previous state.
	if cfg.Restore {
		err := log.Group(s.grouper, "Restore checkpoint", func() error {
			restored, err := s.checkpoints.Load(ctx, checkpoint.LoadRequest{
				ArchiveName: cfg.Checkpoint.ArchiveName,
				DestDir:     cfg.Checkpoint.RootDir,
			})
			res.Restored = restored
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("could not restore checkpoint: %w", err)
		}
	}

	// 2. A task that already ran out of time doesn't run anything else.
	if cfg.Key != "" {
		inherited, err := s.deadlines.Lookup(ctx, cfg.Key)
		switch {
		case err == nil && s.deadlines.IsExpired(inherited):
			logger.Warningf("Deadline %s already expired, skipping stage", inherited.Format(time.RFC3339))
			res.Deadline = inherited
			res.Outcome = model.OutcomeTimeout
			return s.finish(ctx, res), nil
		case err != nil && !errors.Is(err, model.ErrNotFound):
			return nil, fmt.Errorf("could not check inherited deadline: %w", err)
		}
	}

	hookOpts := cfg.Opts
	hookOpts.Timeout = 0

	// 3. Before hook, not bound by the deadline.
	if !cfg.Before.IsEmpty() {
		before, err := s.execute(ctx, "Before hook", cfg.Before, hookOpts)
		if err != nil {
			return nil, fmt.Errorf("could not run before hook: %w", err)
		}
		res.Before = *before
		if before.Outcome != model.OutcomeSuccess {
			res.Outcome = before.Outcome
			res.FailCase = hookFailCase("before", before)
			return s.finish(ctx, res), nil
		}
	}

	// 4. Materialize the deadline shared by all the stages of the task.
	dl, err := s.deadlines.GetOrCreate(ctx, cfg.Key, cfg.Budget)
	if err != nil {
		return nil, fmt.Errorf("could not get deadline: %w", err)
	}
	res.Deadline = dl

	// 5. Main sequence.
	mainOpts := cfg.Opts
	mainOpts.Timeout = s.deadlines.Remaining(dl)
	logger.Infof("Running main sequence with %s left", mainOpts.Timeout.Round(time.Millisecond))
	mainRes, err := s.execute(ctx, "Main", cfg.Main, mainOpts)
	if err != nil {
		return nil, fmt.Errorf("could not run main sequence: %w", err)
	}
	res.Main = *mainRes

	switch mainRes.Outcome {
	case model.OutcomeFailed:
		res.Outcome = model.OutcomeFailed
		res.FailCase = mainRes.FailCase
		return s.finish(ctx, res), nil
	case model.OutcomeTimeout:
		if cfg.CheckpointOnTimeout {
			if err := s.save(ctx, cfg); err != nil {
				return nil, err
			}
			res.CheckpointSaved = true
		}
		res.Outcome = model.OutcomeTimeout
		return s.finish(ctx, res), nil
	}

	// 6. After hook, not bound by the deadline.
	if !cfg.After.IsEmpty() {
		after, err := s.execute(ctx, "After hook", cfg.After, hookOpts)
		if err != nil {
			return nil, fmt.Errorf("could not run after hook: %w", err)
		}
		res.After = *after
		if after.Outcome != model.OutcomeSuccess {
			res.Outcome = after.Outcome
			res.FailCase = hookFailCase("after", after)
			return s.finish(ctx, res), nil
		}
	}

	res.Outcome = model.OutcomeSuccess
	return s.finish(ctx, res), nil
}

func (s *Service) execute(ctx context.Context, group string, spec model.CommandSpec, opts model.ExecOpts) (*model.ExecutionResult, error) {
	var res *model.ExecutionResult
	err := log.Group(s.grouper, group, func() error {
		var err error
		res, err = s.executor.Execute(ctx, sequence.Request{
			Commands: spec.Commands,
			Command:  spec.Command,
			Shell:    spec.Shell,
			Opts:     opts,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// save stores the checkpoint detached from the stage cancellation, a
// cancelled stage is stopped like a timed out one and keeps its state.
func (s *Service) save(ctx context.Context, cfg model.StageConfig) error {
	if ctx.Err() != nil {
		s.logger.Warningf("Stage cancelled, saving checkpoint anyway (up to %s)", s.saveTimeout)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.saveTimeout)
	defer cancel()

	return log.Group(s.grouper, "Save checkpoint", func() error {
		_, err := s.checkpoints.Save(ctx, checkpoint.SaveRequest{
			RootDir:       cfg.Checkpoint.RootDir,
			Glob:          cfg.Checkpoint.Glob,
			ArchiveName:   cfg.Checkpoint.ArchiveName,
			RetentionDays: cfg.RetentionDays,
		})
		if err != nil {
			return fmt.Errorf("could not save checkpoint: %w", err)
		}
		return nil
	})
}

func hookFailCase(hook string, res *model.ExecutionResult) string {
	if res.Outcome != model.OutcomeFailed {
		return ""
	}
	return fmt.Sprintf("%s hook: %s", hook, res.FailCase)
}

// finish closes the result and records it in the history.
func (s *Service) finish(ctx context.Context, res *model.StageResult) *model.StageResult {
	res.FinishedAt = s.clock.Now().UTC()

	if s.runs != nil {
		// History failures never change the stage result. Cancelled stages are recorded too.
		if err := s.runs.CreateStageRun(context.WithoutCancel(ctx), res.ToStageRun()); err != nil {
			s.logger.Warningf("Could not record stage run %s: %s", res.ID, err)
		}
	}

	s.logger.Infof("Stage %s finished: %s (before: %s, main: %s, after: %s)", res.ID, res.Outcome, res.Before.Outcome, res.Main.Outcome, res.After.Outcome)
	return res
}
