package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/process"
)

const (
	ToolTar    = "tar"
	Tool7z     = "7z"
	maxErrTail = 4 * 1024
)

// ExternalConfig is the configuration for the external tool archiver.
type ExternalConfig struct {
	Runner process.Runner
	// Tool is the archiving tool, tar or 7z.
	Tool string
	// Executable overrides the executable of the tool.
	Executable string
	Logger     log.Logger
}

func (c *ExternalConfig) defaults() error {
	if c.Runner == nil {
		return fmt.Errorf("runner is required")
	}
	if c.Tool == "" {
		c.Tool = ToolTar
	}
	if c.Tool != ToolTar && c.Tool != Tool7z {
		return fmt.Errorf("unknown archive tool %q: %w", c.Tool, model.ErrNotValid)
	}
	if c.Executable == "" {
		c.Executable = c.Tool
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "archive.External"})
	return nil
}

// External runs an external archiving tool through the process supervisor.
// The file list is passed in a list file so it's not bound by the command
// line length limits.
type External struct {
	runner     process.Runner
	tool       string
	executable string
	logger     log.Logger
}

var _ Archiver = &External{}

// NewExternal returns a new external tool archiver.
func NewExternal(cfg ExternalConfig) (*External, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &External{
		runner:     cfg.Runner,
		tool:       cfg.Tool,
		executable: cfg.Executable,
		logger:     cfg.Logger,
	}, nil
}

func (e *External) Create(ctx context.Context, archivePath, baseDir string, files []string) error {
	absArchive, err := filepath.Abs(archivePath)
	if err != nil {
		return fmt.Errorf("could not resolve archive path: %w", err)
	}

	list, err := os.CreateTemp("", "stager-list-*.txt")
	if err != nil {
		return fmt.Errorf("could not create list file: %w", err)
	}
	defer os.Remove(list.Name())

	for _, f := range files {
		if _, err := fmt.Fprintln(list, filepath.FromSlash(f)); err != nil {
			list.Close()
			return fmt.Errorf("could not write list file: %w", err)
		}
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("could not write list file: %w", err)
	}

	var args []string
	switch e.tool {
	case Tool7z:
		args = []string{"a", "-y", absArchive, "@" + list.Name()}
	default:
		args = append([]string{"-c", "-f", absArchive}, tarCompressionArgs(archivePath)...)
		args = append(args, "-T", list.Name())
	}

	e.logger.Infof("Creating archive %s with %d files", archivePath, len(files))
	return e.run(ctx, baseDir, args)
}

func (e *External) Extract(ctx context.Context, archivePath, destDir string) error {
	absArchive, err := filepath.Abs(archivePath)
	if err != nil {
		return fmt.Errorf("could not resolve archive path: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("could not create destination: %w", err)
	}

	var args []string
	switch e.tool {
	case Tool7z:
		args = []string{"x", "-y", "-o.", absArchive}
	default:
		args = append([]string{"-x", "-f", absArchive}, tarCompressionArgs(archivePath)...)
	}

	e.logger.Infof("Extracting archive %s into %s", archivePath, destDir)
	return e.run(ctx, destDir, args)
}

func (e *External) run(ctx context.Context, dir string, args []string) error {
	var stderr bytes.Buffer
	res, err := e.runner.Run(ctx, process.Request{
		Executable: e.executable,
		Args:       args,
		WorkingDir: dir,
		Stderr:     &stderr,
	})
	if err != nil {
		return fmt.Errorf("could not run %s: %w", e.tool, err)
	}
	if res.TimedOut {
		return fmt.Errorf("%s was interrupted", e.tool)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited with code %d: %s", e.tool, res.ExitCode, errTail(stderr.String()))
	}

	return nil
}

func tarCompressionArgs(archivePath string) []string {
	switch CompressionFor(archivePath) {
	case CompressionZstd:
		return []string{"--zstd"}
	case CompressionLZ4:
		return []string{"--use-compress-program", "lz4"}
	case CompressionGzip:
		return []string{"-z"}
	default:
		return nil
	}
}

func errTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrTail {
		s = s[len(s)-maxErrTail:]
	}
	return s
}
