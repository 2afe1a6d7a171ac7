// Package checkpoint saves and restores the working state of a staged task
// as a named archive on the artifact storage.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/slok/stager/internal/archive"
	"github.com/slok/stager/internal/clock"
	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/storage"
	"github.com/slok/stager/internal/utils/file"
)

const (
	defaultUploadAttempts = 5
	defaultUploadDelay    = 10 * time.Second
)

// SaveRequest is the request to save a checkpoint.
type SaveRequest struct {
	// RootDir is the base directory, archive entries are relative to it.
	RootDir string
	// Glob selects the files under RootDir.
	Glob string
	// ArchiveName is the archive file name and the artifact name.
	ArchiveName   string
	RetentionDays int
}

// SaveResult is the result of saving a checkpoint.
type SaveResult struct {
	Files    int
	Artifact model.Artifact
	Attempts int
}

// LoadRequest is the request to load a checkpoint.
type LoadRequest struct {
	ArchiveName string
	// DestDir is where the archive is extracted.
	DestDir string
}

// Manager saves and loads checkpoints.
type Manager interface {
	Save(ctx context.Context, req SaveRequest) (*SaveResult, error)
	// Load returns false without error when there is no checkpoint to load.
	Load(ctx context.Context, req LoadRequest) (bool, error)
}

// ManagerConfig is the configuration for the checkpoint manager.
type ManagerConfig struct {
	Archiver  archive.Archiver
	Artifacts storage.ArtifactRepository
	// UploadAttempts is the number of upload tries before giving up.
	UploadAttempts int
	// UploadDelay is the pause between upload tries.
	UploadDelay time.Duration
	// TempDir is where the transient archives are written, defaults to the OS temp dir.
	TempDir string
	Clock   clock.Clock
	Logger  log.Logger
}

func (c *ManagerConfig) defaults() error {
	if c.Archiver == nil {
		return fmt.Errorf("archiver is required")
	}
	if c.Artifacts == nil {
		return fmt.Errorf("artifact repository is required")
	}
	if c.UploadAttempts <= 0 {
		c.UploadAttempts = defaultUploadAttempts
	}
	if c.UploadDelay <= 0 {
		c.UploadDelay = defaultUploadDelay
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "checkpoint.Manager"})
	return nil
}

type manager struct {
	archiver       archive.Archiver
	artifacts      storage.ArtifactRepository
	uploadAttempts int
	uploadDelay    time.Duration
	tempDir        string
	clock          clock.Clock
	logger         log.Logger
}

// NewManager returns a new checkpoint manager.
func NewManager(cfg ManagerConfig) (Manager, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &manager{
		archiver:       cfg.Archiver,
		artifacts:      cfg.Artifacts,
		uploadAttempts: cfg.UploadAttempts,
		uploadDelay:    cfg.UploadDelay,
		tempDir:        cfg.TempDir,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
	}, nil
}

func validArchiveName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("archive name %q must be a plain file name: %w", name, model.ErrNotValid)
	}
	return nil
}

func (m *manager) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	if err := validArchiveName(req.ArchiveName); err != nil {
		return nil, err
	}

	files, err := FindFiles(req.RootDir, req.Glob)
	if err != nil {
		return nil, fmt.Errorf("could not select checkpoint files: %w", err)
	}
	if len(files) == 0 {
		m.logger.Warningf("No files matched %q under %q, saving an empty checkpoint", req.Glob, req.RootDir)
	}

	workDir, err := os.MkdirTemp(m.tempDir, "stager-checkpoint-*")
	if err != nil {
		return nil, fmt.Errorf("could not create temporary directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	archivePath := filepath.Join(workDir, req.ArchiveName)
	if err := m.archiver.Create(ctx, archivePath, req.RootDir, files); err != nil {
		return nil, fmt.Errorf("could not create archive: %w", err)
	}

	if info, err := os.Stat(archivePath); err == nil {
		m.logger.Infof("Archived %d files into %s (%s)", len(files), req.ArchiveName, humanize.Bytes(uint64(info.Size())))
	}

	uploadReq := storage.UploadArtifactRequest{
		Name:          req.ArchiveName,
		Files:         []string{archivePath},
		BaseDir:       workDir,
		RetentionDays: req.RetentionDays,
	}

	var lastErr error
	for attempt := 1; attempt <= m.uploadAttempts; attempt++ {
		artifact, err := m.artifacts.UploadArtifact(ctx, uploadReq)
		if err == nil {
			m.logger.Infof("Uploaded checkpoint %s (attempt %d)", req.ArchiveName, attempt)
			return &SaveResult{Files: len(files), Artifact: *artifact, Attempts: attempt}, nil
		}

		lastErr = err
		m.logger.Warningf("Checkpoint upload attempt %d/%d failed: %s", attempt, m.uploadAttempts, err)
		if attempt == m.uploadAttempts {
			break
		}
		if err := m.clock.Sleep(ctx, m.uploadDelay); err != nil {
			return nil, fmt.Errorf("checkpoint upload interrupted: %w", err)
		}
	}

	return nil, fmt.Errorf("could not upload checkpoint %q after %d attempts: %w: %w", req.ArchiveName, m.uploadAttempts, model.ErrUploadExhausted, lastErr)
}

func (m *manager) Load(ctx context.Context, req LoadRequest) (bool, error) {
	if err := validArchiveName(req.ArchiveName); err != nil {
		return false, err
	}
	destDir := req.DestDir
	if destDir == "" {
		destDir = "."
	}

	workDir, err := os.MkdirTemp(m.tempDir, "stager-restore-*")
	if err != nil {
		return false, fmt.Errorf("could not create temporary directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	artifact, err := m.artifacts.DownloadArtifact(ctx, req.ArchiveName, workDir)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			m.logger.Infof("No checkpoint %s found, starting fresh", req.ArchiveName)
			return false, nil
		}
		return false, fmt.Errorf("could not download checkpoint: %w", err)
	}

	for _, f := range artifact.Files {
		archivePath, err := storage.DestinationPath(workDir, f.Path)
		if err != nil {
			return false, err
		}
		if f.Digest != "" {
			digest, err := file.Digest(ctx, archivePath)
			if err != nil {
				return false, fmt.Errorf("could not verify checkpoint: %w", err)
			}
			if digest != f.Digest {
				return false, fmt.Errorf("checkpoint %s digest mismatch: %w", f.Path, model.ErrNotValid)
			}
		}
		if err := m.archiver.Extract(ctx, archivePath, destDir); err != nil {
			return false, fmt.Errorf("could not extract checkpoint: %w", err)
		}
		if err := os.Remove(archivePath); err != nil {
			m.logger.Warningf("Could not delete archive %s: %s", archivePath, err)
		}
	}

	m.logger.Infof("Restored checkpoint %s into %s (%s)", req.ArchiveName, destDir, humanize.Bytes(uint64(artifact.SizeBytes())))
	return true, nil
}
