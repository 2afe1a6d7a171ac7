package model

import (
	"fmt"
	"strings"
	"time"
)

// CommandSpec selects what a hook or the main sequence runs.
type CommandSpec struct {
	// Commands are run in order when Shell is ShellNone.
	Commands []string
	// Command is the raw command run through Shell.
	Command string
	// Shell selects the interpreter, empty means ShellNone.
	Shell ShellKind
}

// IsEmpty returns true when there is nothing to run.
func (c CommandSpec) IsEmpty() bool {
	if strings.TrimSpace(c.Command) != "" {
		return false
	}
	for _, cmd := range c.Commands {
		if strings.TrimSpace(cmd) != "" {
			return false
		}
	}
	return true
}

// Validate checks the spec can run. A commands list only runs without a
// shell, a shell runs a single raw command.
func (c CommandSpec) Validate() error {
	if c.Shell == "" || c.Shell == ShellNone {
		return nil
	}
	if strings.TrimSpace(c.Command) == "" && !c.IsEmpty() {
		return fmt.Errorf("a commands list can't run with the %s shell, use a single command: %w", c.Shell, ErrNotValid)
	}
	return nil
}

// StageConfig is the configuration of a stage invocation.
type StageConfig struct {
	// Key identifies the staged task across invocations, empty disables the deadline persistence.
	Key    string
	Before CommandSpec
	Main   CommandSpec
	After  CommandSpec
	// Opts are shared by the hooks and the main sequence, Opts.Timeout is ignored.
	Opts ExecOpts
	// Budget is the total time budget of the staged task.
	Budget     time.Duration
	Checkpoint CheckpointConfig
	// Restore loads the checkpoint before running anything.
	Restore bool
	// CheckpointOnTimeout saves the checkpoint when the main sequence times out.
	CheckpointOnTimeout bool
	// RetentionDays is the retention of the saved checkpoint.
	RetentionDays int
}

// Validate validates the stage configuration.
func (c StageConfig) Validate() error {
	if c.Main.IsEmpty() {
		return fmt.Errorf("main command is required: %w", ErrNotValid)
	}
	for name, spec := range map[string]CommandSpec{"before": c.Before, "main": c.Main, "after": c.After} {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("invalid %s command: %w", name, err)
		}
	}
	if c.Budget <= 0 {
		return fmt.Errorf("budget must be positive, got %s: %w", c.Budget, ErrNotValid)
	}
	if (c.Restore || c.CheckpointOnTimeout) && c.Checkpoint.ArchiveName == "" {
		return fmt.Errorf("archive name is required to restore or save checkpoints: %w", ErrNotValid)
	}
	if c.CheckpointOnTimeout && c.Checkpoint.Glob == "" {
		return fmt.Errorf("archive glob is required to save checkpoints: %w", ErrNotValid)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention days can't be negative: %w", ErrNotValid)
	}
	return nil
}

// StageRun is the history record of a single stage invocation.
type StageRun struct {
	ID         string
	Key        string
	Outcome    Outcome
	FailCase   string
	Before     Outcome
	Main       Outcome
	After      Outcome
	Results    []string
	Deadline   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// StageResult is the result of running a stage.
type StageResult struct {
	ID       string
	Key      string
	Outcome  Outcome
	FailCase string
	Before   ExecutionResult
	Main     ExecutionResult
	After    ExecutionResult
	// Deadline is the absolute deadline of the staged task, zero if the main sequence never ran.
	Deadline time.Time
	// CheckpointSaved is true when the stage saved a checkpoint on timeout.
	CheckpointSaved bool
	// Restored is true when a previous checkpoint was restored.
	Restored   bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// ToStageRun converts a stage result into its history record.
func (s StageResult) ToStageRun() StageRun {
	return StageRun{
		ID:         s.ID,
		Key:        s.Key,
		Outcome:    s.Outcome,
		FailCase:   s.FailCase,
		Before:     s.Before.Outcome,
		Main:       s.Main.Outcome,
		After:      s.After.Outcome,
		Results:    s.Main.ResultMarkers(),
		Deadline:   s.Deadline,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}

// DeadlineInfo describes the persisted deadline of a stage key.
type DeadlineInfo struct {
	Key       string
	Deadline  time.Time
	Remaining time.Duration
	Expired   bool
}
