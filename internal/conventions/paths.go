// Package conventions has the well known names and paths of the stager data.
package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default stager data directory name (relative to home).
	DefaultDataDir = ".stager"
	// DBFile is the SQLite database file name.
	DBFile = "stager.db"
	// ArtifactsDir is the subdirectory for the artifact blobs.
	ArtifactsDir = "artifacts"

	// GitHubEnvVar points to the file whose variables are inherited by the next workflow steps.
	GitHubEnvVar = "GITHUB_ENV"
	// GitHubOutputVar points to the file with the outputs of the current workflow step.
	GitHubOutputVar = "GITHUB_OUTPUT"

	// DefaultRetentionDays is the default retention of the checkpoint artifacts.
	DefaultRetentionDays = 1
)

// DBPath returns the default database path of a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// ArtifactsPath returns the artifact blobs directory of a data directory.
func ArtifactsPath(dataDir string) string {
	return filepath.Join(dataDir, ArtifactsDir)
}
