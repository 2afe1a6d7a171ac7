package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/slok/stager/internal/model"
)

// VariableRepository is the environment variable store inherited by the
// next invocations of a staged task.
type VariableRepository interface {
	// GetVariable returns model.ErrNotFound when the variable is missing or empty.
	GetVariable(ctx context.Context, name string) (string, error)
	SetVariable(ctx context.Context, name, value string) error
	DeleteVariable(ctx context.Context, name string) error
}

// UploadArtifactRequest is the request to upload a set of files as a named artifact.
type UploadArtifactRequest struct {
	Name string
	// Files are the paths of the files to upload, they must be under BaseDir.
	Files []string
	// BaseDir is the directory the artifact file paths are relative to.
	BaseDir string
	// RetentionDays is the number of days the artifact is kept, zero means forever.
	RetentionDays int
}

// ArtifactRepository is the durable storage of named artifacts.
type ArtifactRepository interface {
	// UploadArtifact stores the files, replacing any artifact with the same name.
	UploadArtifact(ctx context.Context, req UploadArtifactRequest) (*model.Artifact, error)
	// DownloadArtifact writes the artifact files under destDir. Returns
	// model.ErrNotFound when the artifact doesn't exist or expired.
	DownloadArtifact(ctx context.Context, name, destDir string) (*model.Artifact, error)
}

// StageRunRepository stores the history of stage runs.
type StageRunRepository interface {
	CreateStageRun(ctx context.Context, r model.StageRun) error
	// ListStageRuns returns the runs of a stage key, newest first. An empty key lists all.
	ListStageRuns(ctx context.Context, key string) ([]model.StageRun, error)
}

// ArtifactPath returns the slash separated path of file relative to baseDir.
// Files outside baseDir are not valid.
func ArtifactPath(baseDir, file string) (string, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("could not resolve base dir: %w", err)
	}
	absFile, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("could not resolve file: %w", err)
	}

	rel, err := filepath.Rel(absBase, absFile)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file %q is not under %q: %w", file, baseDir, model.ErrNotValid)
	}

	return filepath.ToSlash(rel), nil
}

// DestinationPath joins an artifact path to destDir, rejecting paths that
// escape destDir.
func DestinationPath(destDir, artifactPath string) (string, error) {
	clean := path.Clean("/" + artifactPath)
	if clean == "/" || clean[1:] != artifactPath {
		return "", fmt.Errorf("artifact path %q is not valid: %w", artifactPath, model.ErrNotValid)
	}
	return filepath.Join(destDir, filepath.FromSlash(artifactPath)), nil
}
