package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/storage"
)

// NativeConfig is the configuration for the native archiver.
type NativeConfig struct {
	Logger log.Logger
}

func (c *NativeConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "archive.Native"})
	return nil
}

// Native writes tar archives in process, compressed according to the
// archive file name.
type Native struct {
	logger log.Logger
}

var _ Archiver = &Native{}

// NewNative returns a new native archiver.
func NewNative(cfg NativeConfig) (*Native, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Native{logger: cfg.Logger}, nil
}

func (n *Native) Create(ctx context.Context, archivePath, baseDir string, files []string) (err error) {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return fmt.Errorf("could not create archive directory: %w", err)
	}

	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("could not create archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("could not close archive: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(archivePath)
		}
	}()

	cw, err := compressWriter(f, CompressionFor(archivePath))
	if err != nil {
		return err
	}
	cwClosed := false
	defer func() {
		if !cwClosed {
			_ = cw.Close()
		}
	}()

	tw := tar.NewWriter(cw)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFile(tw, baseDir, file); err != nil {
			return fmt.Errorf("could not add %q: %w", file, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("could not finish tar stream: %w", err)
	}
	cwClosed = true
	if err := cw.Close(); err != nil {
		return fmt.Errorf("could not finish compression: %w", err)
	}

	n.logger.Debugf("Created archive %s with %d files", archivePath, len(files))
	return nil
}

func addFile(tw *tar.Writer, baseDir, name string) error {
	path := filepath.Join(baseDir, filepath.FromSlash(name))
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %w", model.ErrNotValid)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Format = tar.FormatPAX

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(tw, src)
	return err
}

func (n *Native) Extract(ctx context.Context, archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("could not open archive: %w", err)
	}
	defer f.Close()

	cr, err := decompressReader(f, CompressionFor(archivePath))
	if err != nil {
		return err
	}
	defer cr.Close()

	count := 0
	tr := tar.NewReader(cr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("could not read archive: %w", err)
		}

		// Tools write directories with a trailing slash and may prefix "./".
		name := strings.TrimSuffix(strings.TrimPrefix(hdr.Name, "./"), "/")
		if name == "" || name == "." {
			continue
		}
		dst, err := storage.DestinationPath(destDir, name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return fmt.Errorf("could not create directory: %w", err)
			}
		case tar.TypeReg:
			if err := extractFile(tr, dst, hdr); err != nil {
				return fmt.Errorf("could not extract %q: %w", hdr.Name, err)
			}
			count++
		default:
			n.logger.Warningf("Skipping unsupported archive entry %q", hdr.Name)
		}
	}

	n.logger.Debugf("Extracted %d files from %s", count, archivePath)
	return nil
}

// extractFile writes the entry and restores its modification time, builds
// resume based on file times.
func extractFile(r io.Reader, dst string, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, hdr.FileInfo().Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if hdr.ModTime.IsZero() {
		return nil
	}
	atime := hdr.AccessTime
	if atime.IsZero() {
		atime = hdr.ModTime
	}
	if err := os.Chtimes(dst, atime, hdr.ModTime); err != nil {
		return fmt.Errorf("could not restore file times: %w", err)
	}
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func compressWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("could not create zstd writer: %w", err)
		}
		return zw, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	default:
		return nopWriteCloser{w}, nil
	}
}

func decompressReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("could not create zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("could not create gzip reader: %w", err)
		}
		return gr, nil
	default:
		return io.NopCloser(r), nil
	}
}
