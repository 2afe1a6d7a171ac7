// Package archive creates and extracts the checkpoint archives.
package archive

import (
	"context"
	"strings"
)

// Archiver creates and extracts archives.
type Archiver interface {
	// Create writes the files into the archive at archivePath. Files are
	// slash separated paths relative to baseDir.
	Create(ctx context.Context, archivePath, baseDir string, files []string) error
	// Extract extracts the archive at archivePath into destDir.
	Extract(ctx context.Context, archivePath, destDir string) error
}

// Compression is the compression of an archive, selected by its file name.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
	CompressionGzip Compression = "gzip"
)

// CompressionFor returns the compression of an archive file name.
func CompressionFor(name string) Compression {
	n := strings.ToLower(name)
	switch {
	case strings.HasSuffix(n, ".tar.zst"), strings.HasSuffix(n, ".tzst"):
		return CompressionZstd
	case strings.HasSuffix(n, ".tar.lz4"):
		return CompressionLZ4
	case strings.HasSuffix(n, ".tar.gz"), strings.HasSuffix(n, ".tgz"):
		return CompressionGzip
	default:
		return CompressionNone
	}
}
