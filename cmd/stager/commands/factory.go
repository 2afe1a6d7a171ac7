package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/slok/stager/internal/archive"
	"github.com/slok/stager/internal/checkpoint"
	"github.com/slok/stager/internal/conventions"
	"github.com/slok/stager/internal/deadline"
	"github.com/slok/stager/internal/process"
	"github.com/slok/stager/internal/storage"
	"github.com/slok/stager/internal/storage/envfile"
	"github.com/slok/stager/internal/storage/memory"
	"github.com/slok/stager/internal/storage/sqlite"
)

const (
	archiverExternal = "external"
	archiverNative   = "native"
)

// stores are the storage backends used by the commands.
type stores struct {
	Variables storage.VariableRepository
	Artifacts storage.ArtifactRepository
	Runs      storage.StageRunRepository
	close     func() error
}

func (s *stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// newStores opens the configured storage. The variables go to the env file
// when there is one so the next invocations inherit them.
func (c *RootCommand) newStores(ctx context.Context) (*stores, error) {
	var s stores

	switch c.Storage {
	case StorageMemory:
		repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: c.Logger})
		if err != nil {
			return nil, fmt.Errorf("could not create memory repository: %w", err)
		}
		s = stores{Variables: repo, Artifacts: repo, Runs: repo}
	default:
		dbPath := c.DBPath
		if dbPath == "" {
			dbPath = conventions.DBPath(c.DataDir)
		}
		repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath:   dbPath,
			BlobsDir: conventions.ArtifactsPath(c.DataDir),
			Logger:   c.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create repository: %w", err)
		}
		s = stores{Variables: repo, Artifacts: repo, Runs: repo, close: repo.Close}
	}

	if c.EnvFile != "" {
		vars, err := envfile.NewVariableRepository(envfile.VariableRepositoryConfig{
			Path:      c.EnvFile,
			LookupEnv: os.LookupEnv,
			Logger:    c.Logger,
		})
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("could not create env file repository: %w", err)
		}
		s.Variables = vars
	}

	return &s, nil
}

func (c *RootCommand) newSupervisor() (*process.Supervisor, error) {
	sup, err := process.NewSupervisor(process.SupervisorConfig{Logger: c.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create process supervisor: %w", err)
	}
	return sup, nil
}

func (c *RootCommand) newDeadlineTracker(vars storage.VariableRepository) (*deadline.Tracker, error) {
	tracker, err := deadline.NewTracker(deadline.TrackerConfig{Variables: vars, Logger: c.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create deadline tracker: %w", err)
	}
	return tracker, nil
}

func (c *RootCommand) newCheckpointManager(archiverType, tool string, runner process.Runner, artifacts storage.ArtifactRepository) (checkpoint.Manager, error) {
	var (
		archiver archive.Archiver
		err      error
	)
	switch archiverType {
	case archiverNative:
		archiver, err = archive.NewNative(archive.NativeConfig{Logger: c.Logger})
	default:
		archiver, err = archive.NewExternal(archive.ExternalConfig{Runner: runner, Tool: tool, Logger: c.Logger})
	}
	if err != nil {
		return nil, fmt.Errorf("could not create archiver: %w", err)
	}

	mgr, err := checkpoint.NewManager(checkpoint.ManagerConfig{
		Archiver:  archiver,
		Artifacts: artifacts,
		Logger:    c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create checkpoint manager: %w", err)
	}

	return mgr, nil
}
