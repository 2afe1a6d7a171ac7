package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/stager/internal/clock"
	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/storage"
	"github.com/slok/stager/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	// BlobsDir is where the artifact files are stored, defaults to an
	// `artifacts` directory next to the database.
	BlobsDir string
	Clock    clock.Clock
	Logger   log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.BlobsDir == "" {
		c.BlobsDir = filepath.Join(filepath.Dir(c.DBPath), "artifacts")
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of the storage repositories. Artifact
// metadata lives in the database and the artifact files on disk.
type Repository struct {
	db       *sql.DB
	blobsDir string
	clock    clock.Clock
	logger   log.Logger
}

var (
	_ storage.VariableRepository = &Repository{}
	_ storage.ArtifactRepository = &Repository{}
	_ storage.StageRunRepository = &Repository{}
)

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	schema, err := migrations.NewSchema(migrations.SchemaConfig{DB: db, Logger: cfg.Logger})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create schema manager: %w", err)
	}
	version, err := schema.Apply(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not apply schema: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s (schema v%d)", cfg.DBPath, version)

	return &Repository{
		db:       db,
		blobsDir: cfg.BlobsDir,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func timeFromUnixMilli(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullUnixMilli(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
