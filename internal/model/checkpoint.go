package model

import "time"

// CheckpointConfig configures where the stage state lives and how it's archived.
type CheckpointConfig struct {
	// RootDir is the base directory of the archived files.
	RootDir string
	// Glob selects the files under RootDir, `**` matches any number of directories.
	Glob string
	// ArchiveName is both the local archive file name and the artifact name.
	ArchiveName string
}

// Artifact is a named set of files stored on durable storage.
type Artifact struct {
	ID        string
	Name      string
	Files     []ArtifactFile
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ArtifactFile is a single file of an artifact.
type ArtifactFile struct {
	// Path is relative to the artifact base dir, slash separated.
	Path      string
	SizeBytes int64
	Digest    string
}

// SizeBytes returns the total size of the artifact files.
func (a Artifact) SizeBytes() int64 {
	var total int64
	for _, f := range a.Files {
		total += f.SizeBytes
	}
	return total
}
