// Package process supervises a single external process: it streams its
// output line by line and enforces a timeout with a graceful then
// forceful termination protocol.
package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/model"
)

// ExitCodeUnknown is returned when the process never reported an exit code.
const ExitCodeUnknown = -1

const (
	defaultGraceWait         = 1 * time.Second
	defaultInterruptAttempts = 3
	defaultInterruptInterval = 3 * time.Second
	defaultFinalWait         = 10 * time.Second
	defaultKillWait          = 5 * time.Second
	defaultCloseGrace        = 5 * time.Second
)

// SupervisorConfig is the configuration for the process supervisor.
type SupervisorConfig struct {
	// Terminator delivers the stop signals, defaults to the platform terminator.
	Terminator Terminator
	// LookPath resolves executables, defaults to exec.LookPath.
	LookPath func(file string) (string, error)
	// GraceWait is the pause after the timeout before the first interrupt.
	GraceWait time.Duration
	// InterruptAttempts is the number of soft interrupts sent before the final wait.
	InterruptAttempts int
	// InterruptInterval is the pause after each soft interrupt.
	InterruptInterval time.Duration
	// FinalWait is the last wait before killing the process.
	FinalWait time.Duration
	// KillWait bounds the wait for the exit status after the kill.
	KillWait time.Duration
	// CloseGrace bounds the wait for stdio to close after the process exited.
	CloseGrace time.Duration
	Logger     log.Logger
}

func (c *SupervisorConfig) defaults() error {
	if c.Terminator == nil {
		c.Terminator = NewPlatformTerminator()
	}
	if c.LookPath == nil {
		c.LookPath = exec.LookPath
	}
	if c.GraceWait <= 0 {
		c.GraceWait = defaultGraceWait
	}
	if c.InterruptAttempts <= 0 {
		c.InterruptAttempts = defaultInterruptAttempts
	}
	if c.InterruptInterval <= 0 {
		c.InterruptInterval = defaultInterruptInterval
	}
	if c.FinalWait <= 0 {
		c.FinalWait = defaultFinalWait
	}
	if c.KillWait <= 0 {
		c.KillWait = defaultKillWait
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = defaultCloseGrace
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "process.Supervisor"})
	return nil
}

// Runner runs external processes.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

var _ Runner = &Supervisor{}

// Supervisor runs processes one at a time.
type Supervisor struct {
	terminator        Terminator
	lookPath          func(file string) (string, error)
	graceWait         time.Duration
	interruptAttempts int
	interruptInterval time.Duration
	finalWait         time.Duration
	killWait          time.Duration
	closeGrace        time.Duration
	logger            log.Logger
}

// NewSupervisor returns a new process supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Supervisor{
		terminator:        cfg.Terminator,
		lookPath:          cfg.LookPath,
		graceWait:         cfg.GraceWait,
		interruptAttempts: cfg.InterruptAttempts,
		interruptInterval: cfg.InterruptInterval,
		finalWait:         cfg.FinalWait,
		killWait:          cfg.KillWait,
		closeGrace:        cfg.CloseGrace,
		logger:            cfg.Logger,
	}, nil
}

// Request is a single process execution.
type Request struct {
	// Executable is resolved on PATH if it's not a path.
	Executable string
	Args       []string
	WorkingDir string
	// Env is added on top of the current process environment.
	Env map[string]string
	// Input is piped to the process standard input.
	Input []byte
	// Timeout of the process, zero means no timeout.
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
}

// Result is the result of a supervised process.
type Result struct {
	// TimedOut is true when the process was terminated because of the timeout.
	TimedOut bool
	// ExitCode is the process exit code, ExitCodeUnknown if it never reported one.
	ExitCode int
	// StderrWritten is true if the process wrote anything on standard error.
	StderrWritten bool
	// Interrupts is the number of soft interrupts sent.
	Interrupts int
	// Killed is true if the process had to be forcefully killed.
	Killed   bool
	Duration time.Duration
}

// Run runs the process to completion or until the timeout expires. The
// context cancellation is handled like a timeout expiry, the process is
// stopped with the same termination protocol.
//
// Exit codes are not interpreted, a process that exits non-zero is not an
// error. Errors are only returned when the process couldn't be started.
func (s *Supervisor) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Executable == "" {
		return nil, fmt.Errorf("executable is required: %w", model.ErrNotValid)
	}

	path, err := s.lookPath(req.Executable)
	if err != nil {
		return nil, fmt.Errorf("%w: could not resolve %q: %w", model.ErrSpawn, req.Executable, err)
	}

	cmd := exec.Command(path, req.Args...)
	cmd.Dir = req.WorkingDir
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(req.Env)...)
	}
	prepareCommand(cmd)

	logger := s.logger.WithValues(log.Kv{"exe": req.Executable})
	stdout := newLineWriter(req.Stdout)
	stderr := newLineWriter(req.Stderr)
	h := newHandle(cmd, stdout, stderr)

	start := time.Now()
	if err := h.start(req.Input); err != nil {
		return nil, fmt.Errorf("could not start %q: %w", req.Executable, err)
	}
	logger.Debugf("Process started (pid %d, timeout %s)", cmd.Process.Pid, req.Timeout)

	var timeoutC <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	res := &Result{}
	select {
	case <-h.exited:
	case <-timeoutC:
		logger.Warningf("Process timed out after %s", req.Timeout)
		res.TimedOut = true
	case <-ctx.Done():
		logger.Warningf("Process cancelled: %s", ctx.Err())
		res.TimedOut = true
	}

	if res.TimedOut {
		s.terminate(h, res, logger)
	}

	if h.isExited() && !h.waitClosed(s.closeGrace) {
		// A detached grandchild inherited the stdio handles.
		logger.Warningf("Process exited but its output is still open after %s, closing it", s.closeGrace)
	}
	h.forceClose()

	res.ExitCode = h.exitCode()
	res.StderrWritten = stderr.Written()
	res.Duration = time.Since(start)
	logger.Debugf("Process finished with exit code %d in %s (state: %s)", res.ExitCode, res.Duration, h.State())

	return res, nil
}

// terminate stops a process that outlived its timeout: a grace wait,
// up to InterruptAttempts soft interrupts and a final wait, then a kill.
func (s *Supervisor) terminate(h *handle, res *Result, logger log.Logger) {
	if h.waitExited(s.graceWait) {
		logger.Debugf("Process exited during the grace period")
		return
	}

	for i := 0; i < s.interruptAttempts; i++ {
		if h.isExited() {
			return
		}

		logger.Infof("Sending interrupt to process (%d/%d)", i+1, s.interruptAttempts)
		if err := s.terminator.Interrupt(h.cmd.Process); err != nil {
			logger.Warningf("Could not interrupt process: %s", err)
		}
		res.Interrupts++

		if h.waitExited(s.interruptInterval) {
			return
		}
	}

	if h.waitExited(s.finalWait) {
		return
	}

	logger.Warningf("Process ignored the interrupts, killing it")
	if err := s.terminator.Kill(h.cmd.Process); err != nil {
		logger.Errorf("Could not kill process: %s", err)
	}
	res.Killed = true

	if !h.waitExited(s.killWait) {
		logger.Errorf("Process didn't exit after being killed")
	}
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(env))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}
