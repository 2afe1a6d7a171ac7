package stager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/slok/stager/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "stager"
	}

	// go test changes the CWD to the test package directory so relative paths
	// are not usable.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("STAGER_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("stager binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "STAGER_INTEGRATION"
		envBinary     = "STAGER_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{
		Binary: os.Getenv(envBinary),
	}

	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// Env is the isolated state of a staged task run by the tests.
type Env struct {
	DataDir     string
	EnvFile     string
	OutputsFile string
}

// NewEnv creates an isolated state directory for the test.
func NewEnv(t *testing.T) Env {
	t.Helper()
	dir := t.TempDir()
	return Env{
		DataDir:     filepath.Join(dir, "data"),
		EnvFile:     filepath.Join(dir, "github_env"),
		OutputsFile: filepath.Join(dir, "github_output"),
	}
}

// RunStagerCmd runs a stager command with the isolated state of env.
// It suppresses logging output for cleaner test output.
func RunStagerCmd(ctx context.Context, config Config, env Env, args ...string) (stdout, stderr []byte, err error) {
	fullArgs := []string{"--no-log", "--data-dir", env.DataDir, "--env-file", env.EnvFile}
	fullArgs = append(fullArgs, args...)

	// Isolate from the CI runner variables.
	hostEnv := []string{"GITHUB_ENV=", "GITHUB_OUTPUT=", "GITHUB_ACTIONS="}

	return testutils.RunStagerArgs(ctx, hostEnv, config.Binary, fullArgs, true)
}

// RunStage runs a stage writing the outputs to the env outputs file.
func RunStage(ctx context.Context, config Config, env Env, args ...string) (stdout, stderr []byte, err error) {
	fullArgs := []string{"run", "--output", "json", "--outputs-file", env.OutputsFile}
	fullArgs = append(fullArgs, args...)
	return RunStagerCmd(ctx, config, env, fullArgs...)
}

// RunHistory lists the stage runs of a key in JSON format.
func RunHistory(ctx context.Context, config Config, env Env, key string) (stdout, stderr []byte, err error) {
	return RunStagerCmd(ctx, config, env, "history", "--key", key, "--output", "json")
}

// RunDeadlineShow shows the deadline of a key in JSON format.
func RunDeadlineShow(ctx context.Context, config Config, env Env, key string) (stdout, stderr []byte, err error) {
	return RunStagerCmd(ctx, config, env, "deadline", "show", "--key", key, "--output", "json")
}

// RunDeadlineClear clears the deadline of a key.
func RunDeadlineClear(ctx context.Context, config Config, env Env, key string) (stdout, stderr []byte, err error) {
	return RunStagerCmd(ctx, config, env, "deadline", "clear", "--key", key)
}
