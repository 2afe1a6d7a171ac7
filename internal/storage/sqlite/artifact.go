package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/storage"
	"github.com/slok/stager/internal/utils/file"
)

// UploadArtifact copies the files into the blob directory and replaces any
// artifact with the same name.
func (r *Repository) UploadArtifact(ctx context.Context, req storage.UploadArtifactRequest) (*model.Artifact, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("artifact name is required: %w", model.ErrNotValid)
	}

	now := r.clock.Now().UTC()
	a := model.Artifact{
		ID:        ulid.Make().String(),
		Name:      req.Name,
		CreatedAt: now,
	}
	if req.RetentionDays > 0 {
		a.ExpiresAt = now.Add(time.Duration(req.RetentionDays) * 24 * time.Hour)
	}

	blobDir := r.blobDir(a.ID)
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(blobDir)
		}
	}()

	for _, f := range req.Files {
		p, err := storage.ArtifactPath(req.BaseDir, f)
		if err != nil {
			return nil, err
		}

		res, err := file.CopyFile(ctx, f, filepath.Join(blobDir, filepath.FromSlash(p)))
		if err != nil {
			return nil, fmt.Errorf("could not store %q: %w", f, err)
		}
		a.Files = append(a.Files, model.ArtifactFile{Path: p, SizeBytes: res.SizeBytes, Digest: res.Digest})
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // Rollback is safe to call after Commit

	var oldID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM artifacts WHERE name = ?`, a.Name).Scan(&oldID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("could not query artifact: %w", err)
	}
	if oldID != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, oldID); err != nil {
			return nil, fmt.Errorf("could not delete previous artifact: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO artifacts (id, name, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.Name, a.CreatedAt.UnixMilli(), nullUnixMilli(a.ExpiresAt),
	)
	if err != nil {
		return nil, fmt.Errorf("could not insert artifact: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO artifact_files (artifact_id, path, size_bytes, digest) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("could not prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range a.Files {
		if _, err := stmt.ExecContext(ctx, a.ID, f.Path, f.SizeBytes, f.Digest); err != nil {
			return nil, fmt.Errorf("could not insert artifact file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("could not commit transaction: %w", err)
	}
	committed = true

	if oldID != "" {
		if err := os.RemoveAll(r.blobDir(oldID)); err != nil {
			r.logger.Warningf("Could not remove previous artifact files %s: %s", oldID, err)
		}
	}

	r.logger.Debugf("Uploaded artifact to repository: %s (%s, %d files)", a.Name, a.ID, len(a.Files))
	return &a, nil
}

// DownloadArtifact copies the artifact files under destDir verifying their
// digests. Expired artifacts are pruned and reported as not found.
func (r *Repository) DownloadArtifact(ctx context.Context, name, destDir string) (*model.Artifact, error) {
	a, err := r.getArtifact(ctx, name)
	if err != nil {
		return nil, err
	}

	if !a.ExpiresAt.IsZero() && r.clock.Now().After(a.ExpiresAt) {
		if err := r.deleteArtifact(ctx, a.ID); err != nil {
			r.logger.Warningf("Could not prune expired artifact %s: %s", a.Name, err)
		} else {
			r.logger.Infof("Pruned expired artifact %s", a.Name)
		}
		return nil, fmt.Errorf("artifact %s expired: %w", name, model.ErrNotFound)
	}

	for _, f := range a.Files {
		dst, err := storage.DestinationPath(destDir, f.Path)
		if err != nil {
			return nil, err
		}

		res, err := file.CopyFile(ctx, filepath.Join(r.blobDir(a.ID), filepath.FromSlash(f.Path)), dst)
		if err != nil {
			return nil, fmt.Errorf("could not restore %q: %w", f.Path, err)
		}
		if res.Digest != f.Digest {
			return nil, fmt.Errorf("artifact file %q digest mismatch: %w", f.Path, model.ErrNotValid)
		}
	}

	r.logger.Debugf("Downloaded artifact from repository: %s (%s)", a.Name, a.ID)
	return a, nil
}

func (r *Repository) getArtifact(ctx context.Context, name string) (*model.Artifact, error) {
	var a model.Artifact
	var createdAt int64
	var expiresAt sql.NullInt64

	err := r.db.QueryRowContext(ctx, `SELECT id, name, created_at, expires_at FROM artifacts WHERE name = ?`, name).
		Scan(&a.ID, &a.Name, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("artifact %s: %w", name, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query artifact: %w", err)
	}
	a.CreatedAt = timeFromUnixMilli(createdAt)
	if expiresAt.Valid {
		a.ExpiresAt = timeFromUnixMilli(expiresAt.Int64)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT path, size_bytes, digest FROM artifact_files WHERE artifact_id = ? ORDER BY path`, a.ID)
	if err != nil {
		return nil, fmt.Errorf("could not query artifact files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f model.ArtifactFile
		if err := rows.Scan(&f.Path, &f.SizeBytes, &f.Digest); err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		a.Files = append(a.Files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &a, nil
}

func (r *Repository) deleteArtifact(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("could not delete artifact: %w", err)
	}
	return os.RemoveAll(r.blobDir(id))
}

func (r *Repository) blobDir(id string) string {
	return filepath.Join(r.blobsDir, id)
}
