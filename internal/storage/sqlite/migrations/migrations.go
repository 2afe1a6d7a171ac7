package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/slok/stager/internal/log"
)

//go:embed sql/*.sql
var schemaFiles embed.FS

// SchemaConfig is the configuration for the schema manager.
type SchemaConfig struct {
	DB     *sql.DB
	Logger log.Logger
}

func (c *SchemaConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLiteSchema"})
	return nil
}

// Schema keeps the stager database schema up to date.
type Schema struct {
	db     *sql.DB
	logger log.Logger
}

// NewSchema returns a new schema manager.
func NewSchema(cfg SchemaConfig) (*Schema, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Schema{db: cfg.DB, logger: cfg.Logger}, nil
}

// Apply migrates the schema to the latest version and returns it.
// A database left dirty by an interrupted migration is not touched.
func (s *Schema) Apply(ctx context.Context) (uint, error) {
	var version uint
	err := s.with(func(m *migrate.Migrate) error {
		from, dirty, err := current(m)
		if err != nil {
			return err
		}
		if dirty {
			return fmt.Errorf("schema is dirty at version %d", from)
		}

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not migrate schema from version %d: %w", from, err)
		}

		version, _, err = current(m)
		if err != nil {
			return err
		}
		if version != from {
			s.logger.Infof("Database schema migrated from version %d to %d", from, version)
		}
		return nil
	})
	return version, err
}

// Version returns the current schema version, 0 when no migration has been applied.
func (s *Schema) Version(ctx context.Context) (uint, error) {
	var version uint
	err := s.with(func(m *migrate.Migrate) error {
		v, _, err := current(m)
		version = v
		return err
	})
	return version, err
}

func current(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("could not get schema version: %w", err)
	}
	return v, dirty, nil
}

// with runs fn with a migrate instance backed by the embedded schema files.
// The instance is not closed because that would close the shared database.
func (s *Schema) with(fn func(m *migrate.Migrate) error) error {
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create migrate driver: %w", err)
	}

	src, err := iofs.New(schemaFiles, "sql")
	if err != nil {
		return fmt.Errorf("could not load schema files: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			s.logger.Warningf("Could not close schema files: %s", err)
		}
	}()

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	return fn(m)
}
