package lib

import (
	"time"

	"github.com/slok/stager/internal/model"
)

// Shell selects how a command is interpreted.
type Shell string

const (
	// ShellNone runs every command as a literal argv, without a shell.
	ShellNone Shell = "none"
	// ShellSh runs the command with `sh -c`.
	ShellSh Shell = "sh"
	// ShellBash runs the command with `bash -c`.
	ShellBash Shell = "bash"
	// ShellPwsh runs the command with PowerShell core, falling back to Windows PowerShell.
	ShellPwsh Shell = "pwsh"
	// ShellPowershell runs the command with Windows PowerShell.
	ShellPowershell Shell = "powershell"
	// ShellCmd runs the command with cmd.exe.
	ShellCmd Shell = "cmd"
	// ShellPython runs the command as a python script.
	ShellPython Shell = "python"
	// ShellNode runs the command as a node script.
	ShellNode Shell = "node"
)

// StageOutcome is the result of a stage or one of its phases.
type StageOutcome string

const (
	// StageOutcomeSuccess means everything ran to completion.
	StageOutcomeSuccess StageOutcome = "success"
	// StageOutcomeFailed means a command failed.
	StageOutcomeFailed StageOutcome = "failed"
	// StageOutcomeTimeout means the stage stopped on the deadline, run it again to continue.
	StageOutcomeTimeout StageOutcome = "timeout"
	// StageOutcomeSkipped is only used for the phases that did not run.
	StageOutcomeSkipped StageOutcome = "skipped"
)

// CommandSpec selects what a hook or the main phase runs.
//
// Use Commands with [ShellNone] to run a list of commands in order, or
// Command with any other shell to run a single script.
type CommandSpec struct {
	Commands []string
	Command  string
	// Shell defaults to [ShellNone].
	Shell Shell
}

// CheckpointOpts configures the checkpoint of a stage.
type CheckpointOpts struct {
	// RootDir is the base directory of the archived files.
	RootDir string
	// Glob selects the files under RootDir, `**` matches any number of directories.
	Glob string
	// ArchiveName is the checkpoint name, its extension selects the compression.
	ArchiveName string
	// Restore loads the previous checkpoint before running anything.
	Restore bool
	// OnTimeout saves a checkpoint when the main phase reaches the deadline.
	OnTimeout bool
	// RetentionDays is how long the checkpoint is kept.
	// Default: 1.
	RetentionDays int
}

// StageOpts configures a stage run.
//
// Main and Budget are required.
type StageOpts struct {
	// Key identifies the staged task across invocations, empty disables the shared deadline.
	Key    string
	Before CommandSpec
	Main   CommandSpec
	After  CommandSpec
	// Budget is the total time budget of the staged task.
	Budget time.Duration
	// WorkingDir is the directory the commands run in.
	WorkingDir string
	// Env contains additional environment variables for the commands.
	Env map[string]string
	// Input is piped to the standard input of every command.
	Input []byte
	// IgnoreExitCodes stop the stage as a timeout instead of a failure.
	IgnoreExitCodes []int
	// FailOnStderr makes a command fail if it writes anything on standard error.
	FailOnStderr bool
	// Checkpoint is optional, nil disables checkpoints.
	Checkpoint *CheckpointOpts
}

// CommandResult is the result of a single command.
type CommandResult struct {
	Command  string
	ExitCode int
	// TimedOut is true when the command was stopped on the deadline or exited
	// with an ignored exit code.
	TimedOut bool
}

// PhaseResult is the result of a hook or the main phase.
type PhaseResult struct {
	Outcome  StageOutcome
	FailCase string
	Results  []CommandResult
}

// StageResult is the result of a stage run.
type StageResult struct {
	ID       string
	Key      string
	Outcome  StageOutcome
	FailCase string
	Before   PhaseResult
	Main     PhaseResult
	After    PhaseResult
	// Deadline is the shared deadline, zero if the main phase never ran.
	Deadline        time.Time
	CheckpointSaved bool
	Restored        bool
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Deadline is the persisted deadline of a staged task.
type Deadline struct {
	Key       string
	Deadline  time.Time
	Remaining time.Duration
	Expired   bool
}

// StageRun is the history record of a stage run.
type StageRun struct {
	ID         string
	Key        string
	Outcome    StageOutcome
	FailCase   string
	Before     StageOutcome
	Main       StageOutcome
	After      StageOutcome
	Results    []string
	Deadline   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// HistoryOpts filters the stage run history.
type HistoryOpts struct {
	// Key selects a staged task, empty lists all of them.
	Key string
	// Outcome only returns the runs with this outcome (optional).
	Outcome *StageOutcome
	// Limit is the maximum number of runs, zero means no limit.
	Limit int
}

// SaveCheckpointOpts configures a standalone checkpoint save.
type SaveCheckpointOpts struct {
	RootDir       string
	Glob          string
	ArchiveName   string
	RetentionDays int
}

// Checkpoint describes a stored checkpoint.
type Checkpoint struct {
	Name      string
	Files     int
	SizeBytes int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

func toInternalCommandSpec(c CommandSpec) model.CommandSpec {
	shell := model.ShellKind(c.Shell)
	if shell == "" {
		shell = model.ShellNone
	}
	return model.CommandSpec{
		Commands: c.Commands,
		Command:  c.Command,
		Shell:    shell,
	}
}

func toInternalStageConfig(opts StageOpts) model.StageConfig {
	cfg := model.StageConfig{
		Key:    opts.Key,
		Before: toInternalCommandSpec(opts.Before),
		Main:   toInternalCommandSpec(opts.Main),
		After:  toInternalCommandSpec(opts.After),
		Opts: model.ExecOpts{
			WorkingDir:      opts.WorkingDir,
			Env:             opts.Env,
			Input:           opts.Input,
			IgnoreExitCodes: opts.IgnoreExitCodes,
			FailOnStderr:    opts.FailOnStderr,
		},
		Budget: opts.Budget,
	}

	if cp := opts.Checkpoint; cp != nil {
		cfg.Checkpoint = model.CheckpointConfig{
			RootDir:     cp.RootDir,
			Glob:        cp.Glob,
			ArchiveName: cp.ArchiveName,
		}
		cfg.Restore = cp.Restore
		cfg.CheckpointOnTimeout = cp.OnTimeout
		cfg.RetentionDays = cp.RetentionDays
	}

	return cfg
}

func fromInternalPhaseResult(r model.ExecutionResult) PhaseResult {
	results := make([]CommandResult, 0, len(r.Results))
	for _, cr := range r.Results {
		results = append(results, CommandResult{
			Command:  cr.Command,
			ExitCode: cr.ExitCode,
			TimedOut: cr.IsTimeout(),
		})
	}

	return PhaseResult{
		Outcome:  StageOutcome(r.Outcome),
		FailCase: r.FailCase,
		Results:  results,
	}
}

func fromInternalStageResult(r model.StageResult) StageResult {
	return StageResult{
		ID:              r.ID,
		Key:             r.Key,
		Outcome:         StageOutcome(r.Outcome),
		FailCase:        r.FailCase,
		Before:          fromInternalPhaseResult(r.Before),
		Main:            fromInternalPhaseResult(r.Main),
		After:           fromInternalPhaseResult(r.After),
		Deadline:        r.Deadline,
		CheckpointSaved: r.CheckpointSaved,
		Restored:        r.Restored,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
	}
}

func fromInternalStageRuns(runs []model.StageRun) []StageRun {
	res := make([]StageRun, 0, len(runs))
	for _, r := range runs {
		res = append(res, StageRun{
			ID:         r.ID,
			Key:        r.Key,
			Outcome:    StageOutcome(r.Outcome),
			FailCase:   r.FailCase,
			Before:     StageOutcome(r.Before),
			Main:       StageOutcome(r.Main),
			After:      StageOutcome(r.After),
			Results:    r.Results,
			Deadline:   r.Deadline,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
		})
	}
	return res
}

func toInternalOutcomeFilter(opts HistoryOpts) *model.Outcome {
	if opts.Outcome == nil {
		return nil
	}
	o := model.Outcome(*opts.Outcome)
	return &o
}

func fromInternalArtifact(a model.Artifact, files int) Checkpoint {
	return Checkpoint{
		Name:      a.Name,
		Files:     files,
		SizeBytes: a.SizeBytes(),
		CreatedAt: a.CreatedAt,
		ExpiresAt: a.ExpiresAt,
	}
}
