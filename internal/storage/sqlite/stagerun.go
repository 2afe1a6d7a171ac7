package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/slok/stager/internal/model"
)

// CreateStageRun stores a stage run.
func (r *Repository) CreateStageRun(ctx context.Context, run model.StageRun) error {
	if run.ID == "" {
		return fmt.Errorf("stage run id is required: %w", model.ErrNotValid)
	}

	query := `
		INSERT INTO stage_runs (
			id, stage_key, outcome, fail_case,
			before_outcome, main_outcome, after_outcome,
			results, deadline, started_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		run.ID,
		run.Key,
		run.Outcome,
		run.FailCase,
		run.Before,
		run.Main,
		run.After,
		strings.Join(run.Results, ","),
		nullUnixMilli(run.Deadline),
		run.StartedAt.UnixMilli(),
		run.FinishedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: stage_runs.") {
			return fmt.Errorf("stage run %s: %w", run.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert stage run: %w", err)
	}

	r.logger.Debugf("Created stage run in repository: %s", run.ID)
	return nil
}

// ListStageRuns returns the stage runs of a key, newest first.
func (r *Repository) ListStageRuns(ctx context.Context, key string) ([]model.StageRun, error) {
	query := `
		SELECT
			id, stage_key, outcome, fail_case,
			before_outcome, main_outcome, after_outcome,
			results, deadline, started_at, finished_at
		FROM stage_runs
		WHERE (? = '' OR stage_key = ?)
		ORDER BY started_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, key, key)
	if err != nil {
		return nil, fmt.Errorf("could not query stage runs: %w", err)
	}
	defer rows.Close()

	var runs []model.StageRun
	for rows.Next() {
		run, err := scanStageRun(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

func scanStageRun(s scanner) (model.StageRun, error) {
	var run model.StageRun
	var results string
	var deadline sql.NullInt64
	var startedAt, finishedAt int64

	err := s.Scan(
		&run.ID,
		&run.Key,
		&run.Outcome,
		&run.FailCase,
		&run.Before,
		&run.Main,
		&run.After,
		&results,
		&deadline,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return model.StageRun{}, err
	}

	if results != "" {
		run.Results = strings.Split(results, ",")
	}
	if deadline.Valid {
		run.Deadline = timeFromUnixMilli(deadline.Int64)
	}
	run.StartedAt = timeFromUnixMilli(startedAt)
	run.FinishedAt = timeFromUnixMilli(finishedAt)

	return run, nil
}
