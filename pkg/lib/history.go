package lib

import (
	"context"
	"fmt"

	"github.com/slok/stager/internal/app/history"
)

// History returns the recorded stage runs, newest first.
//
// Pass nil opts to list every run.
func (c *Client) History(ctx context.Context, opts *HistoryOpts) ([]StageRun, error) {
	if opts == nil {
		opts = &HistoryOpts{}
	}

	svc, err := history.NewService(history.ServiceConfig{
		Repository: c.runs,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	runs, err := svc.Run(ctx, history.Request{
		Key:           opts.Key,
		OutcomeFilter: toInternalOutcomeFilter(*opts),
		Limit:         opts.Limit,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalStageRuns(runs), nil
}
