// Package envfile implements the key/value files used by CI runners to
// pass environment variables and step outputs between invocations.
//
// Every entry is appended as `NAME=value`, multi-line values use a heredoc
// with a random delimiter that doesn't collide with the value:
//
//	NAME<<ghadelimiter_01HQ...
//	line 1
//	line 2
//	ghadelimiter_01HQ...
package envfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/model"
)

const delimiterPrefix = "ghadelimiter_"

const maxDelimiterAttempts = 10

// WriterConfig is the configuration for the env file writer.
type WriterConfig struct {
	Path string
	// NewDelimiter returns heredoc delimiters, defaults to a ULID based one.
	NewDelimiter func() string
	Logger       log.Logger
}

func (c *WriterConfig) defaults() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	if c.NewDelimiter == nil {
		c.NewDelimiter = func() string { return delimiterPrefix + ulid.Make().String() }
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "envfile.Writer"})
	return nil
}

// Writer appends entries to an env file.
type Writer struct {
	path         string
	newDelimiter func() string
	mu           sync.Mutex
	logger       log.Logger
}

// NewWriter returns a new env file writer.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Writer{
		path:         cfg.Path,
		newDelimiter: cfg.NewDelimiter,
		logger:       cfg.Logger,
	}, nil
}

// Append appends an entry to the file.
func (w *Writer) Append(name, value string) error {
	entry, err := w.format(name, value)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("could not open env file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("could not write env file: %w", err)
	}

	w.logger.Debugf("Appended %q to %s", name, w.path)
	return nil
}

func (w *Writer) format(name, value string) (string, error) {
	if name == "" || strings.ContainsAny(name, "=\r\n") {
		return "", fmt.Errorf("invalid name %q: %w", name, model.ErrNotValid)
	}

	if !strings.ContainsAny(value, "\r\n") {
		return name + "=" + value + "\n", nil
	}

	for attempt := 0; attempt < maxDelimiterAttempts; attempt++ {
		delimiter := w.newDelimiter()
		if !strings.Contains(name, delimiter) && !strings.Contains(value, delimiter) {
			return fmt.Sprintf("%s<<%s\n%s\n%s\n", name, delimiter, value, delimiter), nil
		}
	}

	return "", fmt.Errorf("could not get a delimiter not colliding with the value of %q: %w", name, model.ErrNotValid)
}

// Parse reads the entries of an env file, later entries override earlier ones.
func Parse(r io.Reader) (map[string]string, error) {
	entries := map[string]string{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}

		eq := strings.Index(line, "=")
		hd := strings.Index(line, "<<")
		if eq >= 0 && (hd < 0 || eq < hd) {
			entries[line[:eq]] = line[eq+1:]
			continue
		}
		if hd < 0 {
			return nil, fmt.Errorf("invalid line %q: %w", line, model.ErrNotValid)
		}

		name, delimiter := line[:hd], line[hd+2:]
		var lines []string
		closed := false
		for sc.Scan() {
			if sc.Text() == delimiter {
				closed = true
				break
			}
			lines = append(lines, sc.Text())
		}
		if !closed {
			return nil, fmt.Errorf("unterminated value for %q: %w", name, model.ErrNotValid)
		}
		entries[name] = strings.Join(lines, "\n")
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("could not read env file: %w", err)
	}

	return entries, nil
}

// ParseFile parses the env file at path, a missing file has no entries.
func ParseFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("could not open env file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}
