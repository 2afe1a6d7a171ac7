package envfile

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/storage"
)

// VariableRepositoryConfig is the configuration for the env file variable repository.
type VariableRepositoryConfig struct {
	// Path is the env file the variables are appended to.
	Path string
	// LookupEnv reads the inherited environment, defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)
	Logger    log.Logger
}

func (c *VariableRepositoryConfig) defaults() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	if c.LookupEnv == nil {
		c.LookupEnv = os.LookupEnv
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "envfile.VariableRepository"})
	return nil
}

// VariableRepository stores variables in an env file. Variables set by this
// process win over the ones already in the file, and those over the inherited
// environment.
type VariableRepository struct {
	writer    *Writer
	lookupEnv func(key string) (string, bool)
	mu        sync.Mutex
	values    map[string]string
	logger    log.Logger
}

var _ storage.VariableRepository = &VariableRepository{}

// NewVariableRepository returns a new env file variable repository.
func NewVariableRepository(cfg VariableRepositoryConfig) (*VariableRepository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	w, err := NewWriter(WriterConfig{Path: cfg.Path, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create writer: %w", err)
	}

	values, err := ParseFile(cfg.Path)
	if err != nil {
		return nil, err
	}

	return &VariableRepository{
		writer:    w,
		lookupEnv: cfg.LookupEnv,
		values:    values,
		logger:    cfg.Logger,
	}, nil
}

func (r *VariableRepository) GetVariable(_ context.Context, name string) (string, error) {
	r.mu.Lock()
	v, ok := r.values[name]
	r.mu.Unlock()

	if !ok {
		v, ok = r.lookupEnv(name)
	}
	if !ok || v == "" {
		return "", fmt.Errorf("variable %s: %w", name, model.ErrNotFound)
	}

	return v, nil
}

func (r *VariableRepository) SetVariable(_ context.Context, name, value string) error {
	if err := r.writer.Append(name, value); err != nil {
		return fmt.Errorf("could not set variable %s: %w", name, err)
	}

	r.mu.Lock()
	r.values[name] = value
	r.mu.Unlock()

	return nil
}

// DeleteVariable sets the variable empty, env files can't unset variables.
func (r *VariableRepository) DeleteVariable(ctx context.Context, name string) error {
	return r.SetVariable(ctx, name, "")
}
