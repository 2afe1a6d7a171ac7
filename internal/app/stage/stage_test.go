package stage_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/stager/internal/app/stage"
	"github.com/slok/stager/internal/checkpoint"
	"github.com/slok/stager/internal/checkpoint/checkpointmock"
	"github.com/slok/stager/internal/clock"
	"github.com/slok/stager/internal/deadline"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/sequence"
	"github.com/slok/stager/internal/sequence/sequencemock"
	"github.com/slok/stager/internal/storage/memory"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func cmd(command string) interface{} {
	return mock.MatchedBy(func(r sequence.Request) bool { return r.Command == command })
}

func success(codes ...int) *model.ExecutionResult {
	res := &model.ExecutionResult{Outcome: model.OutcomeSuccess}
	for _, c := range codes {
		res.Results = append(res.Results, model.CommandResult{ExitCode: c, Reason: model.ResultReasonExited})
	}
	return res
}

func failed(cause string) *model.ExecutionResult {
	return &model.ExecutionResult{
		Outcome:  model.OutcomeFailed,
		FailCase: cause,
		Results:  []model.CommandResult{{ExitCode: 1, Reason: model.ResultReasonExited}},
	}
}

func timedOut() *model.ExecutionResult {
	return &model.ExecutionResult{
		Outcome: model.OutcomeTimeout,
		Results: []model.CommandResult{{ExitCode: -1, Reason: model.ResultReasonTimedOut}},
	}
}

func baseConfig() model.StageConfig {
	return model.StageConfig{
		Main:   model.CommandSpec{Command: "main", Shell: model.ShellSh},
		Budget: time.Hour,
	}
}

func TestNewService(t *testing.T) {
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	tracker, err := deadline.NewTracker(deadline.TrackerConfig{Variables: repo})
	require.NoError(t, err)

	tests := map[string]struct {
		cfg    stage.ServiceConfig
		errMsg string
	}{
		"Valid config.": {
			cfg: stage.ServiceConfig{Executor: &sequencemock.MockExecutor{}, Deadlines: tracker},
		},
		"Missing executor returns error.": {
			cfg:    stage.ServiceConfig{Deadlines: tracker},
			errMsg: "executor is required",
		},
		"Missing deadline tracker returns error.": {
			cfg:    stage.ServiceConfig{Executor: &sequencemock.MockExecutor{}},
			errMsg: "deadline tracker is required",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := stage.NewService(test.cfg)
			if test.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), test.errMsg)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		config    func() model.StageConfig
		setup     func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository)
		expErr    error
		expErrMsg string
		validate  func(t *testing.T, res *model.StageResult, repo *memory.Repository)
	}{
		"A successful main sequence without hooks should succeed.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.Key = "build"
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				exec.On("Execute", mock.Anything, mock.MatchedBy(func(r sequence.Request) bool {
					return r.Command == "main" && r.Opts.Timeout == time.Hour
				})).Once().Return(success(0), nil)
			},
			validate: func(t *testing.T, res *model.StageResult, repo *memory.Repository) {
				assert.Equal(t, model.OutcomeSuccess, res.Outcome)
				assert.Equal(t, model.OutcomeSkipped, res.Before.Outcome)
				assert.Equal(t, model.OutcomeSuccess, res.Main.Outcome)
				assert.Equal(t, model.OutcomeSkipped, res.After.Outcome)
				assert.True(t, t0.Add(time.Hour).Equal(res.Deadline))
				assert.NotEmpty(t, res.ID)

				v, err := repo.GetVariable(context.TODO(), deadline.VariableName("build"))
				require.NoError(t, err)
				assert.Equal(t, strconv.FormatInt(t0.Add(time.Hour).UnixMilli(), 10), v)

				runs, err := repo.ListStageRuns(context.TODO(), "build")
				require.NoError(t, err)
				require.Len(t, runs, 1)
				assert.Equal(t, res.ID, runs[0].ID)
				assert.Equal(t, []string{"0"}, runs[0].Results)
			},
		},

		"Hooks should run without timeout around the main sequence.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.Before = model.CommandSpec{Command: "before", Shell: model.ShellSh}
				c.After = model.CommandSpec{Command: "after", Shell: model.ShellSh}
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				noTimeout := func(command string) interface{} {
					return mock.MatchedBy(func(r sequence.Request) bool { return r.Command == command && r.Opts.Timeout == 0 })
				}
				exec.On("Execute", mock.Anything, noTimeout("before")).Once().Return(success(0), nil)
				exec.On("Execute", mock.Anything, cmd("main")).Once().Return(success(0), nil)
				exec.On("Execute", mock.Anything, noTimeout("after")).Once().Return(success(0), nil)
			},
			validate: func(t *testing.T, res *model.StageResult, repo *memory.Repository) {
				assert.Equal(t, model.OutcomeSuccess, res.Outcome)
				assert.Equal(t, model.OutcomeSuccess, res.Before.Outcome)
				assert.Equal(t, model.OutcomeSuccess, res.After.Outcome)
			},
		},

		"A failed before hook should abort the stage before creating the deadline.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.Key = "build"
				c.Before = model.CommandSpec{Command: "before", Shell: model.ShellSh}
				c.After = model.CommandSpec{Command: "after", Shell: model.ShellSh}
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				exec.On("Execute", mock.Anything, cmd("before")).Once().Return(failed(`command "before" exited with code 1`), nil)
			},
			validate: func(t *testing.T, res *model.StageResult, repo *memory.Repository) {
				assert.Equal(t, model.OutcomeFailed, res.Outcome)
				assert.Equal(t, `before hook: command "before" exited with code 1`, res.FailCase)
				assert.Equal(t, model.OutcomeFailed, res.Before.Outcome)
				assert.Equal(t, model.OutcomeSkipped, res.Main.Outcome)
				assert.Equal(t, model.OutcomeSkipped, res.After.Outcome)
				assert.True(t, res.Deadline.IsZero())

				_, err := repo.GetVariable(context.TODO(), deadline.VariableName("build"))
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
		},

		"A failed main sequence should fail without running the after hook or saving.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.After = model.CommandSpec{Command: "after", Shell: model.ShellSh}
				c.CheckpointOnTimeout = true
				c.Checkpoint = model.CheckpointConfig{RootDir: "out", Glob: "**", ArchiveName: "cache.tar.zst"}
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				exec.On("Execute", mock.Anything, cmd("main")).Once().Return(failed(`command "main" exited with code 1`), nil)
			},
			validate: func(t *testing.T, res *model.StageResult, repo *memory.Repository) {
				assert.Equal(t, model.OutcomeFailed, res.Outcome)
				assert.Equal(t, `command "main" exited with code 1`, res.FailCase)
				assert.Equal(t, model.OutcomeSkipped, res.After.Outcome)
				assert.False(t, res.CheckpointSaved)
			},
		},

		"A main timeout without key should save the checkpoint once.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.Budget = 1000 * time.Millisecond
				c.After = model.CommandSpec{Command: "after", Shell: model.ShellSh}
				c.CheckpointOnTimeout = true
				c.RetentionDays = 3
				c.Checkpoint = model.CheckpointConfig{RootDir: "out", Glob: "**", ArchiveName: "cache.tar.zst"}
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				exec.On("Execute", mock.Anything, mock.MatchedBy(func(r sequence.Request) bool {
					return r.Command == "main" && r.Opts.Timeout == 1000*time.Millisecond
				})).Once().Return(timedOut(), nil)
				cp.On("Save", mock.Anything, checkpoint.SaveRequest{
					RootDir:       "out",
					Glob:          "**",
					ArchiveName:   "cache.tar.zst",
					RetentionDays: 3,
				}).Once().Return(&checkpoint.SaveResult{Files: 1, Attempts: 1}, nil)
			},
			validate: func(t *testing.T, res *model.StageResult, repo *memory.Repository) {
				assert.Equal(t, model.OutcomeTimeout, res.Outcome)
				assert.Equal(t, model.OutcomeTimeout, res.Main.Outcome)
				assert.Equal(t, model.OutcomeSkipped, res.After.Outcome)
				assert.Equal(t, []string{"timeout"}, res.Main.ResultMarkers())
				assert.True(t, res.CheckpointSaved)
			},
		},

		"A main timeout without checkpointing should not save.": {
			config: baseConfig,
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				exec.On("Execute", mock.Anything, cmd("main")).Once().Return(timedOut(), nil)
			},
			validate: func(t *testing.T, res *model.StageResult, repo *memory.Repository) {
				assert.Equal(t, model.OutcomeTimeout, res.Outcome)
				assert.False(t, res.CheckpointSaved)
			},
		},

		"An exhausted checkpoint upload should fail the run.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.CheckpointOnTimeout = true
				c.Checkpoint = model.CheckpointConfig{Glob: "**", ArchiveName: "cache.tar"}
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				exec.On("Execute", mock.Anything, cmd("main")).Once().Return(timedOut(), nil)
				cp.On("Save", mock.Anything, mock.Anything).Once().Return(nil, fmt.Errorf("boom: %w", model.ErrUploadExhausted))
			},
			expErr: model.ErrUploadExhausted,
		},

		"Restoring without a previous checkpoint should be a no-op.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.Restore = true
				c.Checkpoint = model.CheckpointConfig{RootDir: "out", ArchiveName: "cache.tar.zst"}
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				cp.On("Load", mock.Anything, checkpoint.LoadRequest{ArchiveName: "cache.tar.zst", DestDir: "out"}).Once().Return(false, nil)
				exec.On("Execute", mock.Anything, cmd("main")).Once().Return(success(0), nil)
			},
			validate: func(t *testing.T, res *model.StageResult, repo *memory.Repository) {
				assert.Equal(t, model.OutcomeSuccess, res.Outcome)
				assert.False(t, res.Restored)
			},
		},

		"Restoring a previous checkpoint should report it.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.Restore = true
				c.Checkpoint = model.CheckpointConfig{RootDir: "out", ArchiveName: "cache.tar.zst"}
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				cp.On("Load", mock.Anything, mock.Anything).Once().Return(true, nil)
				exec.On("Execute", mock.Anything, cmd("main")).Once().Return(success(0), nil)
			},
			validate: func(t *testing.T, res *model.StageResult, repo *memory.Repository) {
				assert.True(t, res.Restored)
			},
		},

		"A restore error should fail the run.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.Restore = true
				c.Checkpoint = model.CheckpointConfig{ArchiveName: "cache.tar.zst"}
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				cp.On("Load", mock.Anything, mock.Anything).Once().Return(false, errors.New("corrupt"))
			},
			expErrMsg: "could not restore checkpoint: corrupt",
		},

		"An expired inherited deadline should time out without running anything.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.Key = "build"
				c.Before = model.CommandSpec{Command: "before", Shell: model.ShellSh}
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				expired := strconv.FormatInt(t0.Add(-time.Minute).UnixMilli(), 10)
				require.NoError(t, repo.SetVariable(context.TODO(), deadline.VariableName("build"), expired))
			},
			validate: func(t *testing.T, res *model.StageResult, repo *memory.Repository) {
				assert.Equal(t, model.OutcomeTimeout, res.Outcome)
				assert.Equal(t, model.OutcomeSkipped, res.Before.Outcome)
				assert.Equal(t, model.OutcomeSkipped, res.Main.Outcome)
				assert.True(t, t0.Add(-time.Minute).Equal(res.Deadline))
			},
		},

		"An inherited deadline should bound the main sequence regardless of the budget.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.Key = "build"
				c.Budget = 5 * time.Hour
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				inherited := strconv.FormatInt(t0.Add(20*time.Minute).UnixMilli(), 10)
				require.NoError(t, repo.SetVariable(context.TODO(), deadline.VariableName("build"), inherited))
				exec.On("Execute", mock.Anything, mock.MatchedBy(func(r sequence.Request) bool {
					return r.Command == "main" && r.Opts.Timeout == 20*time.Minute
				})).Once().Return(success(0), nil)
			},
			validate: func(t *testing.T, res *model.StageResult, repo *memory.Repository) {
				assert.Equal(t, model.OutcomeSuccess, res.Outcome)
				assert.True(t, t0.Add(20*time.Minute).Equal(res.Deadline))
			},
		},

		"An ignored exit in the before hook should time out the stage without saving.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.Before = model.CommandSpec{Command: "before", Shell: model.ShellSh}
				c.CheckpointOnTimeout = true
				c.Checkpoint = model.CheckpointConfig{Glob: "**", ArchiveName: "cache.tar"}
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				exec.On("Execute", mock.Anything, cmd("before")).Once().Return(&model.ExecutionResult{
					Outcome: model.OutcomeTimeout,
					Results: []model.CommandResult{{ExitCode: 3, Reason: model.ResultReasonIgnoredExit}},
				}, nil)
			},
			validate: func(t *testing.T, res *model.StageResult, repo *memory.Repository) {
				assert.Equal(t, model.OutcomeTimeout, res.Outcome)
				assert.Empty(t, res.FailCase)
				assert.Equal(t, model.OutcomeSkipped, res.Main.Outcome)
				assert.False(t, res.CheckpointSaved)
			},
		},

		"A failed after hook should fail the stage.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.After = model.CommandSpec{Commands: []string{"after"}}
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				exec.On("Execute", mock.Anything, cmd("main")).Once().Return(success(0), nil)
				exec.On("Execute", mock.Anything, mock.MatchedBy(func(r sequence.Request) bool {
					return len(r.Commands) == 1 && r.Commands[0] == "after"
				})).Once().Return(failed(`command "after" exited with code 1`), nil)
			},
			validate: func(t *testing.T, res *model.StageResult, repo *memory.Repository) {
				assert.Equal(t, model.OutcomeFailed, res.Outcome)
				assert.Equal(t, `after hook: command "after" exited with code 1`, res.FailCase)
				assert.Equal(t, model.OutcomeSuccess, res.Main.Outcome)
				assert.Equal(t, model.OutcomeFailed, res.After.Outcome)
			},
		},

		"A spawn error should fail the run.": {
			config: baseConfig,
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
				exec.On("Execute", mock.Anything, cmd("main")).Once().Return(nil, fmt.Errorf("missing: %w", model.ErrSpawn))
			},
			expErr: model.ErrSpawn,
		},

		"An invalid config should fail.": {
			config: func() model.StageConfig {
				c := baseConfig()
				c.Budget = 0
				return c
			},
			setup: func(t *testing.T, exec *sequencemock.MockExecutor, cp *checkpointmock.MockManager, repo *memory.Repository) {
			},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			fc := clock.NewFake(t0)
			repo, err := memory.NewRepository(memory.RepositoryConfig{Clock: fc})
			require.NoError(err)
			tracker, err := deadline.NewTracker(deadline.TrackerConfig{Variables: repo, Clock: fc})
			require.NoError(err)

			exec := &sequencemock.MockExecutor{}
			cp := &checkpointmock.MockManager{}
			test.setup(t, exec, cp, repo)

			svc, err := stage.NewService(stage.ServiceConfig{
				Executor:    exec,
				Deadlines:   tracker,
				Checkpoints: cp,
				Runs:        repo,
				Clock:       fc,
			})
			require.NoError(err)

			res, err := svc.Run(context.TODO(), stage.RunOptions{Config: test.config()})

			exec.AssertExpectations(t)
			cp.AssertExpectations(t)

			if test.expErr != nil || test.expErrMsg != "" {
				require.Error(err)
				if test.expErr != nil {
					assert.ErrorIs(t, err, test.expErr)
				}
				assert.Contains(t, err.Error(), test.expErrMsg)
				return
			}
			require.NoError(err)
			test.validate(t, res, repo)
		})
	}
}

func TestServiceRunCancelledSavesCheckpoint(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	fc := clock.NewFake(t0)
	repo, err := memory.NewRepository(memory.RepositoryConfig{Clock: fc})
	require.NoError(err)
	tracker, err := deadline.NewTracker(deadline.TrackerConfig{Variables: repo, Clock: fc})
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The executor reports cancelled sequences as timed out.
	exec := &sequencemock.MockExecutor{}
	exec.On("Execute", mock.Anything, cmd("main")).Once().Run(func(mock.Arguments) { cancel() }).Return(timedOut(), nil)

	cp := &checkpointmock.MockManager{}
	cp.On("Save", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return ctx.Err() == nil && hasDeadline
	}), mock.Anything).Once().Return(&checkpoint.SaveResult{Files: 1, Attempts: 1}, nil)

	svc, err := stage.NewService(stage.ServiceConfig{
		Executor:    exec,
		Deadlines:   tracker,
		Checkpoints: cp,
		Runs:        repo,
		SaveTimeout: time.Minute,
		Clock:       fc,
	})
	require.NoError(err)

	c := baseConfig()
	c.Key = "build"
	c.CheckpointOnTimeout = true
	c.Checkpoint = model.CheckpointConfig{Glob: "**", ArchiveName: "cache.tar"}

	res, err := svc.Run(ctx, stage.RunOptions{Config: c})
	require.NoError(err)
	assert.Equal(model.OutcomeTimeout, res.Outcome)
	assert.True(res.CheckpointSaved)

	runs, err := repo.ListStageRuns(context.TODO(), "build")
	require.NoError(err)
	assert.Len(runs, 1)

	exec.AssertExpectations(t)
	cp.AssertExpectations(t)
}
