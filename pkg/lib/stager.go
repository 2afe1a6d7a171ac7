package lib

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/slok/stager/internal/archive"
	"github.com/slok/stager/internal/checkpoint"
	"github.com/slok/stager/internal/conventions"
	"github.com/slok/stager/internal/deadline"
	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/process"
	"github.com/slok/stager/internal/sequence"
	"github.com/slok/stager/internal/storage"
	"github.com/slok/stager/internal/storage/envfile"
	"github.com/slok/stager/internal/storage/memory"
	"github.com/slok/stager/internal/storage/sqlite"
)

// StorageType selects where the client keeps its state.
type StorageType string

const (
	// StorageSQLite keeps deadlines, checkpoints and history on disk.
	StorageSQLite StorageType = "sqlite"
	// StorageMemory keeps everything in memory, use it for tests.
	StorageMemory StorageType = "memory"
)

// ArchiverType selects how checkpoints are archived.
type ArchiverType string

const (
	// ArchiverNative archives in process, the compression is selected by the
	// archive name extension (.tar, .tar.zst, .tar.lz4, .tar.gz).
	ArchiverNative ArchiverType = "native"
	// ArchiverExternal runs an external archiving tool (tar or 7z).
	ArchiverExternal ArchiverType = "external"
)

// Config configures the SDK client.
//
// All fields are optional, an empty Config{} uses ~/.stager/stager.db for
// storage and the native archiver.
type Config struct {
	// DataDir is the base directory for stager data (database and checkpoint blobs).
	// Default: ~/.stager.
	DataDir string
	// DBPath is the SQLite database path.
	// Default: <DataDir>/stager.db.
	DBPath string
	// Storage selects the storage backend.
	// Default: [StorageSQLite].
	Storage StorageType
	// EnvFile, when set, persists the deadlines in a KEY=VALUE environment file
	// (e.g. $GITHUB_ENV) instead of the storage backend.
	EnvFile string
	// Archiver selects the checkpoint archiver.
	// Default: [ArchiverNative].
	Archiver ArchiverType
	// ArchiveTool is the external archiving tool, only used by [ArchiverExternal].
	// Default: tar.
	ArchiveTool string
	// Stdout receives the output of the stage commands.
	// Default: discarded.
	Stdout io.Writer
	// Stderr receives the error output of the stage commands.
	// Default: discarded.
	Stderr io.Writer
	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, conventions.DefaultDataDir)
	}

	if c.DBPath == "" {
		c.DBPath = conventions.DBPath(c.DataDir)
	}

	if c.Storage == "" {
		c.Storage = StorageSQLite
	}
	if c.Storage != StorageSQLite && c.Storage != StorageMemory {
		return fmt.Errorf("unsupported storage type %q: %w", c.Storage, ErrNotValid)
	}

	if c.Archiver == "" {
		c.Archiver = ArchiverNative
	}
	if c.Archiver != ArchiverNative && c.Archiver != ArchiverExternal {
		return fmt.Errorf("unsupported archiver type %q: %w", c.Archiver, ErrNotValid)
	}

	if c.Stdout == nil {
		c.Stdout = io.Discard
	}
	if c.Stderr == nil {
		c.Stderr = io.Discard
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point to run stages programmatically.
//
// Create a Client with [New] and release its resources with [Client.Close].
type Client struct {
	variables   storage.VariableRepository
	artifacts   storage.ArtifactRepository
	runs        storage.StageRunRepository
	executor    sequence.Executor
	deadlines   *deadline.Tracker
	checkpoints checkpoint.Manager
	stdout      io.Writer
	stderr      io.Writer
	logger      log.Logger
	closeFn     func() error
}

// New creates a new SDK client.
//
// The caller must call [Client.Close] when done to release the storage:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		stdout: cfg.Stdout,
		stderr: cfg.Stderr,
		logger: cfg.Logger,
	}

	switch cfg.Storage {
	case StorageMemory:
		repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: cfg.Logger})
		if err != nil {
			return nil, fmt.Errorf("could not create repository: %w", err)
		}
		c.variables, c.artifacts, c.runs = repo, repo, repo
	default:
		repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath:   cfg.DBPath,
			BlobsDir: conventions.ArtifactsPath(cfg.DataDir),
			Logger:   cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create repository: %w", err)
		}
		c.variables, c.artifacts, c.runs = repo, repo, repo
		c.closeFn = repo.Close
	}

	if cfg.EnvFile != "" {
		vars, err := envfile.NewVariableRepository(envfile.VariableRepositoryConfig{
			Path:      cfg.EnvFile,
			LookupEnv: os.LookupEnv,
			Logger:    cfg.Logger,
		})
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("could not create env file repository: %w", err)
		}
		c.variables = vars
	}

	if err := c.setupServices(cfg); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) setupServices(cfg Config) error {
	sup, err := process.NewSupervisor(process.SupervisorConfig{Logger: cfg.Logger})
	if err != nil {
		return fmt.Errorf("could not create process supervisor: %w", err)
	}

	c.executor, err = sequence.NewProcessExecutor(sequence.ProcessExecutorConfig{Runner: sup, Logger: cfg.Logger})
	if err != nil {
		return fmt.Errorf("could not create executor: %w", err)
	}

	c.deadlines, err = deadline.NewTracker(deadline.TrackerConfig{Variables: c.variables, Logger: cfg.Logger})
	if err != nil {
		return fmt.Errorf("could not create deadline tracker: %w", err)
	}

	var archiver archive.Archiver
	switch cfg.Archiver {
	case ArchiverExternal:
		archiver, err = archive.NewExternal(archive.ExternalConfig{Runner: sup, Tool: cfg.ArchiveTool, Logger: cfg.Logger})
	default:
		archiver, err = archive.NewNative(archive.NativeConfig{Logger: cfg.Logger})
	}
	if err != nil {
		return fmt.Errorf("could not create archiver: %w", err)
	}

	c.checkpoints, err = checkpoint.NewManager(checkpoint.ManagerConfig{
		Archiver:  archiver,
		Artifacts: c.artifacts,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create checkpoint manager: %w", err)
	}

	return nil
}

// Close releases resources held by the client, including the database connection.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}
