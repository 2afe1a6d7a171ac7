//go:build !windows

package stage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/stager/internal/app/stage"
	"github.com/slok/stager/internal/archive"
	"github.com/slok/stager/internal/checkpoint"
	"github.com/slok/stager/internal/deadline"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/process"
	"github.com/slok/stager/internal/sequence"
	"github.com/slok/stager/internal/storage/memory"
)

// countingManager counts the saves of the wrapped manager.
type countingManager struct {
	checkpoint.Manager
	saves int
}

func (c *countingManager) Save(ctx context.Context, req checkpoint.SaveRequest) (*checkpoint.SaveResult, error) {
	c.saves++
	return c.Manager.Save(ctx, req)
}

func newIntegrationService(t *testing.T, repo *memory.Repository) (*stage.Service, *countingManager) {
	t.Helper()
	require := require.New(t)

	sup, err := process.NewSupervisor(process.SupervisorConfig{
		GraceWait:         50 * time.Millisecond,
		InterruptInterval: 200 * time.Millisecond,
		FinalWait:         500 * time.Millisecond,
	})
	require.NoError(err)
	exec, err := sequence.NewProcessExecutor(sequence.ProcessExecutorConfig{Runner: sup})
	require.NoError(err)
	tracker, err := deadline.NewTracker(deadline.TrackerConfig{Variables: repo})
	require.NoError(err)
	archiver, err := archive.NewNative(archive.NativeConfig{})
	require.NoError(err)
	mgr, err := checkpoint.NewManager(checkpoint.ManagerConfig{Archiver: archiver, Artifacts: repo, TempDir: t.TempDir()})
	require.NoError(err)
	cm := &countingManager{Manager: mgr}

	svc, err := stage.NewService(stage.ServiceConfig{
		Executor:    exec,
		Deadlines:   tracker,
		Checkpoints: cm,
		Runs:        repo,
	})
	require.NoError(err)

	return svc, cm
}

func TestServiceRunTimeoutSavesCheckpoint(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)
	svc, cm := newIntegrationService(t, repo)

	work := t.TempDir()
	cfg := model.StageConfig{
		Main:                model.CommandSpec{Command: "echo partial > out/state.txt && sleep 5", Shell: model.ShellSh},
		Opts:                model.ExecOpts{WorkingDir: work},
		Budget:              1000 * time.Millisecond,
		CheckpointOnTimeout: true,
		Checkpoint:          model.CheckpointConfig{RootDir: work, Glob: "out/**", ArchiveName: "state.tar.zst"},
	}
	require.NoError(os.MkdirAll(filepath.Join(work, "out"), 0o755))

	start := time.Now()
	res, err := svc.Run(context.TODO(), stage.RunOptions{Config: cfg})
	require.NoError(err)

	assert.Less(time.Since(start), 5*time.Second)
	assert.Equal(model.OutcomeTimeout, res.Outcome)
	assert.True(res.CheckpointSaved)
	assert.Equal(1, cm.saves)

	// A fresh invocation restores the saved state.
	restoreDir := t.TempDir()
	cfg = model.StageConfig{
		Main:       model.CommandSpec{Command: "cat out/state.txt", Shell: model.ShellSh},
		Opts:       model.ExecOpts{WorkingDir: restoreDir},
		Budget:     time.Minute,
		Restore:    true,
		Checkpoint: model.CheckpointConfig{RootDir: restoreDir, ArchiveName: "state.tar.zst"},
	}
	res, err = svc.Run(context.TODO(), stage.RunOptions{Config: cfg})
	require.NoError(err)
	assert.Equal(model.OutcomeSuccess, res.Outcome)
	assert.True(res.Restored)

	got, err := os.ReadFile(filepath.Join(restoreDir, "out", "state.txt"))
	require.NoError(err)
	assert.Equal("partial\n", string(got))
}

func TestServiceRunRestoreWithoutCheckpoint(t *testing.T) {
	require := require.New(t)

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)
	svc, cm := newIntegrationService(t, repo)

	res, err := svc.Run(context.TODO(), stage.RunOptions{Config: model.StageConfig{
		Main:       model.CommandSpec{Commands: []string{"true"}},
		Budget:     time.Minute,
		Restore:    true,
		Checkpoint: model.CheckpointConfig{RootDir: t.TempDir(), ArchiveName: "missing.tar"},
	}})
	require.NoError(err)

	assert.Equal(t, model.OutcomeSuccess, res.Outcome)
	assert.False(t, res.Restored)
	assert.Equal(t, 0, cm.saves)
}
