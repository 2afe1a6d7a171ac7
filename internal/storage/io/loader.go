package io

import (
	"context"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/utils/encoding"
)

// StageYAMLRepository loads stage definitions from YAML files.
type StageYAMLRepository struct {
	fs fs.FS
}

// NewStageYAMLRepository creates a new YAML stage definition repository.
func NewStageYAMLRepository(filesystem fs.FS) *StageYAMLRepository {
	return &StageYAMLRepository{fs: filesystem}
}

// GetStageConfig loads a stage definition from a YAML file. The returned
// configuration may still need values from the command line, it's validated
// when the stage runs.
func (r *StageYAMLRepository) GetStageConfig(ctx context.Context, path string) (model.StageConfig, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.StageConfig{}, fmt.Errorf("reading stage file: %w", err)
	}

	if ctx.Err() != nil {
		return model.StageConfig{}, ctx.Err()
	}

	var cfg StageConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.StageConfig{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return model.StageConfig{}, fmt.Errorf("invalid stage: %w", err)
	}

	return cfg.toModel()
}

// StageConfig represents the YAML structure of a stage definition.
type StageConfig struct {
	Key             string            `yaml:"key"`
	WorkingDir      string            `yaml:"working_dir"`
	Budget          Duration          `yaml:"budget"`
	Before          CommandConfig     `yaml:"before"`
	Main            CommandConfig     `yaml:"main"`
	After           CommandConfig     `yaml:"after"`
	Env             map[string]string `yaml:"env"`
	Input           string            `yaml:"input"`
	InputEncoding   string            `yaml:"input_encoding"`
	IgnoreExitCodes []int             `yaml:"ignore_exit_codes"`
	FailOnStderr    bool              `yaml:"fail_on_stderr"`
	Checkpoint      CheckpointConfig  `yaml:"checkpoint"`
}

// CommandConfig represents the YAML structure of the commands of a hook or the main sequence.
type CommandConfig struct {
	Shell    string   `yaml:"shell"`
	Command  string   `yaml:"command"`
	Commands []string `yaml:"commands"`
}

// CheckpointConfig represents the YAML structure of the checkpoint settings.
type CheckpointConfig struct {
	RootDir       string `yaml:"root_dir"`
	Glob          string `yaml:"glob"`
	ArchiveName   string `yaml:"archive_name"`
	Restore       bool   `yaml:"restore"`
	OnTimeout     bool   `yaml:"on_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// Duration is a YAML duration, either a Go duration string or milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if ms, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(dur)
	return nil
}

func (c StageConfig) validate() error {
	if c.Budget < 0 {
		return fmt.Errorf("budget can't be negative")
	}
	if c.Checkpoint.RetentionDays < 0 {
		return fmt.Errorf("checkpoint retention_days can't be negative")
	}
	for name, cmd := range map[string]CommandConfig{"before": c.Before, "main": c.Main, "after": c.After} {
		if err := cmd.validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (c CommandConfig) validate() error {
	if c.Command != "" && len(c.Commands) > 0 {
		return fmt.Errorf("command and commands are mutually exclusive")
	}
	if _, err := model.ParseShellKind(c.Shell); err != nil {
		return err
	}
	return nil
}

func (c CommandConfig) toModel() model.CommandSpec {
	shell, _ := model.ParseShellKind(c.Shell)
	return model.CommandSpec{
		Commands: c.Commands,
		Command:  c.Command,
		Shell:    shell,
	}
}

func (c StageConfig) toModel() (model.StageConfig, error) {
	var input []byte
	if c.Input != "" {
		b, err := encoding.Encode(c.Input, c.InputEncoding)
		if err != nil {
			return model.StageConfig{}, fmt.Errorf("invalid input: %w", err)
		}
		input = b
	}

	return model.StageConfig{
		Key:    c.Key,
		Before: c.Before.toModel(),
		Main:   c.Main.toModel(),
		After:  c.After.toModel(),
		Opts: model.ExecOpts{
			WorkingDir:      c.WorkingDir,
			Env:             c.Env,
			Input:           input,
			IgnoreExitCodes: c.IgnoreExitCodes,
			FailOnStderr:    c.FailOnStderr,
		},
		Budget: time.Duration(c.Budget),
		Checkpoint: model.CheckpointConfig{
			RootDir:     c.Checkpoint.RootDir,
			Glob:        c.Checkpoint.Glob,
			ArchiveName: c.Checkpoint.ArchiveName,
		},
		Restore:             c.Checkpoint.Restore,
		CheckpointOnTimeout: c.Checkpoint.OnTimeout,
		RetentionDays:       c.Checkpoint.RetentionDays,
	}, nil
}
