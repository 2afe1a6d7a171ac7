// Package file provides file copy helpers that digest the content while
// copying it.
package file

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// CopyResult is the result of a file copy.
type CopyResult struct {
	SizeBytes int64
	// Digest is the hex encoded BLAKE3 digest of the copied content.
	Digest string
}

// CopyFile copies src into dst creating the parent directories of dst.
// dst is written to a temporary file first and renamed when complete.
func CopyFile(ctx context.Context, src, dst string) (*CopyResult, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("could not open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat source: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("could not create destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return nil, fmt.Errorf("could not create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	h := blake3.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), &ctxReader{ctx: ctx, r: in})
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("could not copy content: %w", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("could not set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("could not close destination: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return nil, fmt.Errorf("could not move destination in place: %w", err)
	}

	return &CopyResult{SizeBytes: n, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

// Digest returns the hex encoded BLAKE3 digest of a file.
func Digest(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("could not open file: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, &ctxReader{ctx: ctx, r: f}); err != nil {
		return "", fmt.Errorf("could not read file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ctxReader stops reading once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
