package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/slok/stager/internal/model"
)

// GetVariable retrieves a variable by name.
func (r *Repository) GetVariable(ctx context.Context, name string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM variables WHERE name = ?`, name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("variable %s: %w", name, model.ErrNotFound)
		}
		return "", fmt.Errorf("could not query variable: %w", err)
	}
	if value == "" {
		return "", fmt.Errorf("variable %s: %w", name, model.ErrNotFound)
	}

	return value, nil
}

// SetVariable creates or replaces a variable.
func (r *Repository) SetVariable(ctx context.Context, name, value string) error {
	if name == "" {
		return fmt.Errorf("variable name is required: %w", model.ErrNotValid)
	}

	query := `
		INSERT INTO variables (name, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, name, value, r.clock.Now().UnixMilli()); err != nil {
		return fmt.Errorf("could not set variable: %w", err)
	}

	r.logger.Debugf("Set variable in repository: %s", name)
	return nil
}

// DeleteVariable deletes a variable, deleting a missing variable is a no-op.
func (r *Repository) DeleteVariable(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM variables WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("could not delete variable: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}

	r.logger.Debugf("Deleted %d variables from repository: %s", rows, name)
	return nil
}
