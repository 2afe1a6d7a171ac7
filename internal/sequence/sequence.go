// Package sequence runs command sequences through the process supervisor
// and classifies them into success, failed or timeout outcomes.
package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slok/stager/internal/clock"
	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/process"
	"github.com/slok/stager/internal/shell"
)

// minCommandTimeout is the timeout a command gets when the shared budget is exhausted.
const minCommandTimeout = time.Millisecond

// Request is a command sequence execution.
type Request struct {
	// Commands are run in order when Shell is model.ShellNone, each one parsed as a literal argv.
	Commands []string
	// Command is the raw command run once through the selected shell.
	Command string
	Shell   model.ShellKind
	Opts    model.ExecOpts
}

// Executor executes command sequences.
type Executor interface {
	Execute(ctx context.Context, req Request) (*model.ExecutionResult, error)
}

// ProcessExecutorConfig is the configuration for the process executor.
type ProcessExecutorConfig struct {
	Runner  process.Runner
	Wrapper shell.Wrapper
	Clock   clock.Clock
	Logger  log.Logger
}

func (c *ProcessExecutorConfig) defaults() error {
	if c.Runner == nil {
		return fmt.Errorf("runner is required")
	}
	if c.Wrapper.LookPath == nil {
		c.Wrapper = shell.NewWrapper()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sequence.ProcessExecutor"})
	return nil
}

// ProcessExecutor runs every command of a sequence as a supervised process.
type ProcessExecutor struct {
	runner  process.Runner
	wrapper shell.Wrapper
	clock   clock.Clock
	logger  log.Logger
}

var _ Executor = &ProcessExecutor{}

// NewProcessExecutor returns a new process executor.
func NewProcessExecutor(cfg ProcessExecutorConfig) (*ProcessExecutor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &ProcessExecutor{
		runner:  cfg.Runner,
		wrapper: cfg.Wrapper,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}, nil
}

// Execute runs the sequence until every command succeeds or one of them
// fails or times out. Failures and timeouts are returned as outcomes, an
// error is only returned when a command couldn't be started.
func (p *ProcessExecutor) Execute(ctx context.Context, req Request) (*model.ExecutionResult, error) {
	shellKind := req.Shell
	if shellKind == "" {
		shellKind = model.ShellNone
	}

	commands, err := p.commands(req, shellKind)
	if err != nil {
		return nil, err
	}

	var deadline time.Time
	if req.Opts.Timeout > 0 {
		deadline = p.clock.Now().Add(req.Opts.Timeout)
	}

	res := &model.ExecutionResult{Outcome: model.OutcomeSuccess}
	for i, command := range commands {
		logger := p.logger.WithValues(log.Kv{"cmd": i + 1})

		if ctx.Err() != nil {
			logger.Warningf("Sequence cancelled before running %q", command)
			res.Results = append(res.Results, model.CommandResult{
				Command:  command,
				ExitCode: process.ExitCodeUnknown,
				Reason:   model.ResultReasonTimedOut,
			})
			res.Outcome = model.OutcomeTimeout
			return res, nil
		}

		exe, args, err := p.wrapper.Wrap(command, shellKind)
		if err != nil {
			return nil, fmt.Errorf("could not prepare command %q: %w", command, err)
		}

		var timeout time.Duration
		if !deadline.IsZero() {
			timeout = max(deadline.Sub(p.clock.Now()), minCommandTimeout)
		}

		logger.Infof("Running command (%d/%d): %s", i+1, len(commands), command)
		pres, err := p.runner.Run(ctx, process.Request{
			Executable: exe,
			Args:       args,
			WorkingDir: req.Opts.WorkingDir,
			Env:        req.Opts.Env,
			Input:      req.Opts.Input,
			Timeout:    timeout,
			Stdout:     req.Opts.Stdout,
			Stderr:     req.Opts.Stderr,
		})
		if err != nil {
			return nil, fmt.Errorf("could not run command %q: %w", command, err)
		}

		cres, outcome, failCase := classify(command, pres, req.Opts)
		res.Results = append(res.Results, cres)

		switch outcome {
		case model.OutcomeTimeout:
			logger.Warningf("Command stopped as timeout (%s, exit code %d)", cres.Reason, cres.ExitCode)
			res.Outcome = model.OutcomeTimeout
			return res, nil
		case model.OutcomeFailed:
			logger.Errorf("Command failed: %s", failCase)
			res.Outcome = model.OutcomeFailed
			res.FailCase = failCase
			return res, nil
		}
		logger.Debugf("Command finished in %s", pres.Duration)
	}

	return res, nil
}

// commands returns the commands to run, in single command mode the raw
// command is the only one.
func (p *ProcessExecutor) commands(req Request, shellKind model.ShellKind) ([]string, error) {
	if shellKind != model.ShellNone {
		if strings.TrimSpace(req.Command) == "" {
			return nil, fmt.Errorf("command cannot be empty: %w", model.ErrNotValid)
		}
		return []string{req.Command}, nil
	}

	raw := req.Commands
	if len(raw) == 0 && req.Command != "" {
		raw = []string{req.Command}
	}

	commands := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		commands = append(commands, c)
	}
	if len(commands) == 0 {
		return nil, fmt.Errorf("at least one command is required: %w", model.ErrNotValid)
	}

	return commands, nil
}

// classify maps a process result to a command result and its outcome.
// An ignored exit code stops the sequence like a timeout does, exit code 0
// is never ignored.
func classify(command string, res *process.Result, opts model.ExecOpts) (model.CommandResult, model.Outcome, string) {
	cres := model.CommandResult{
		Command:  command,
		ExitCode: res.ExitCode,
		Reason:   model.ResultReasonExited,
	}

	switch {
	case res.TimedOut:
		cres.Reason = model.ResultReasonTimedOut
		return cres, model.OutcomeTimeout, ""
	case res.ExitCode != 0 && opts.IsIgnoredExitCode(res.ExitCode):
		cres.Reason = model.ResultReasonIgnoredExit
		return cres, model.OutcomeTimeout, ""
	case res.ExitCode != 0:
		return cres, model.OutcomeFailed, fmt.Sprintf("command %q exited with code %d", command, res.ExitCode)
	case opts.FailOnStderr && res.StderrWritten:
		return cres, model.OutcomeFailed, fmt.Sprintf("command %q wrote to standard error", command)
	default:
		return cres, model.OutcomeSuccess, ""
	}
}
