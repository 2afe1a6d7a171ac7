package lib

import (
	"context"
	"fmt"

	"github.com/slok/stager/internal/app/stage"
	"github.com/slok/stager/internal/conventions"
)

// RunStage runs a single stage of a staged task and returns its result.
//
// The stage restores the previous checkpoint when asked, runs the before
// hook, the main phase bounded by the shared deadline and the after hook.
// When the main phase reaches the deadline and OnTimeout is set, a new
// checkpoint is saved before returning.
//
// Failed and timed out stages are reported in the result outcome, not as
// errors. Returns [ErrNotValid] if the options are not valid or
// [ErrUploadExhausted] if the checkpoint could not be stored.
func (c *Client) RunStage(ctx context.Context, opts StageOpts) (*StageResult, error) {
	cfg := toInternalStageConfig(opts)
	cfg.Opts.Stdout = c.stdout
	cfg.Opts.Stderr = c.stderr
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = conventions.DefaultRetentionDays
	}

	svc, err := stage.NewService(stage.ServiceConfig{
		Executor:    c.executor,
		Deadlines:   c.deadlines,
		Checkpoints: c.checkpoints,
		Runs:        c.runs,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, stage.RunOptions{Config: cfg})
	if err != nil {
		return nil, mapError(err)
	}

	r := fromInternalStageResult(*res)
	return &r, nil
}
