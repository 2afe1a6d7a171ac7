package memory

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/blake3"

	"github.com/slok/stager/internal/clock"
	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Clock  clock.Clock
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

type artifact struct {
	meta  model.Artifact
	blobs map[string][]byte
}

// Repository is an in-memory implementation of the storage repositories.
type Repository struct {
	variables map[string]string
	artifacts map[string]artifact
	stageRuns []model.StageRun
	mu        sync.RWMutex
	clock     clock.Clock
	logger    log.Logger
}

var (
	_ storage.VariableRepository = &Repository{}
	_ storage.ArtifactRepository = &Repository{}
	_ storage.StageRunRepository = &Repository{}
)

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		variables: make(map[string]string),
		artifacts: make(map[string]artifact),
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}, nil
}

// GetVariable retrieves a variable by name.
func (r *Repository) GetVariable(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.variables[name]
	if !ok || v == "" {
		return "", fmt.Errorf("variable %s: %w", name, model.ErrNotFound)
	}

	return v, nil
}

// SetVariable sets a variable.
func (r *Repository) SetVariable(ctx context.Context, name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.variables[name] = value
	r.logger.Debugf("Set variable in repository: %s", name)

	return nil
}

// DeleteVariable deletes a variable, deleting a missing variable is a no-op.
func (r *Repository) DeleteVariable(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.variables, name)
	r.logger.Debugf("Deleted variable from repository: %s", name)

	return nil
}

// UploadArtifact stores the artifact files in memory.
func (r *Repository) UploadArtifact(ctx context.Context, req storage.UploadArtifactRequest) (*model.Artifact, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("artifact name is required: %w", model.ErrNotValid)
	}

	now := r.clock.Now().UTC()
	a := artifact{
		meta: model.Artifact{
			ID:        ulid.Make().String(),
			Name:      req.Name,
			CreatedAt: now,
		},
		blobs: make(map[string][]byte, len(req.Files)),
	}
	if req.RetentionDays > 0 {
		a.meta.ExpiresAt = now.Add(time.Duration(req.RetentionDays) * 24 * time.Hour)
	}

	for _, f := range req.Files {
		p, err := storage.ArtifactPath(req.BaseDir, f)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("could not read %q: %w", f, err)
		}

		digest := blake3.Sum256(data)
		a.blobs[p] = data
		a.meta.Files = append(a.meta.Files, model.ArtifactFile{
			Path:      p,
			SizeBytes: int64(len(data)),
			Digest:    hex.EncodeToString(digest[:]),
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[req.Name] = a
	r.logger.Debugf("Uploaded artifact to repository: %s (%d files)", req.Name, len(a.meta.Files))

	meta := a.meta
	return &meta, nil
}

// DownloadArtifact writes the artifact files under destDir.
func (r *Repository) DownloadArtifact(ctx context.Context, name, destDir string) (*model.Artifact, error) {
	r.mu.Lock()
	a, ok := r.artifacts[name]
	if ok && !a.meta.ExpiresAt.IsZero() && r.clock.Now().After(a.meta.ExpiresAt) {
		delete(r.artifacts, name)
		r.logger.Debugf("Pruned expired artifact: %s", name)
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", name, model.ErrNotFound)
	}

	for _, f := range a.meta.Files {
		dst, err := storage.DestinationPath(destDir, f.Path)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, fmt.Errorf("could not create directory: %w", err)
		}
		if err := os.WriteFile(dst, a.blobs[f.Path], 0o644); err != nil {
			return nil, fmt.Errorf("could not write %q: %w", dst, err)
		}
	}

	meta := a.meta
	return &meta, nil
}

// CreateStageRun stores a stage run.
func (r *Repository) CreateStageRun(ctx context.Context, run model.StageRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.stageRuns {
		if existing.ID == run.ID {
			return fmt.Errorf("stage run with id %s: %w", run.ID, model.ErrAlreadyExists)
		}
	}

	r.stageRuns = append(r.stageRuns, run)
	r.logger.Debugf("Created stage run in repository: %s", run.ID)

	return nil
}

// ListStageRuns returns the stage runs of a key, newest first.
func (r *Repository) ListStageRuns(ctx context.Context, key string) ([]model.StageRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]model.StageRun, 0, len(r.stageRuns))
	for _, run := range r.stageRuns {
		if key == "" || run.Key == key {
			runs = append(runs, run)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })

	return runs, nil
}
