package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/slok/stager/internal/model"
)

// State is the observable state of a supervised process.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	// StateExited means the process exited but its stdio may still be open.
	StateExited
	// StateClosed means the process exited and its stdio streams are closed.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateClosed:
		return "stdio-closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// handle wraps one spawned process. Exit and stdio close are tracked as
// independent events because a detached grandchild may keep the stdio
// pipes open long after the process exited.
type handle struct {
	cmd     *exec.Cmd
	readers []*os.File
	stdout  *lineWriter
	stderr  *lineWriter

	exited chan struct{}
	closed chan struct{}

	mu        sync.Mutex
	started   bool
	hasExited bool
	hasClosed bool
	waitErr   error
}

func newHandle(cmd *exec.Cmd, stdout, stderr *lineWriter) *handle {
	return &handle{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		exited: make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// start spawns the process and the goroutines that observe it.
func (h *handle) start(input []byte) error {
	outR, outW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("%w: could not create stdout pipe: %w", model.ErrSpawn, err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return fmt.Errorf("%w: could not create stderr pipe: %w", model.ErrSpawn, err)
	}
	h.cmd.Stdout = outW
	h.cmd.Stderr = errW

	closeAll := func() {
		for _, f := range []*os.File{outR, outW, errR, errW} {
			_ = f.Close()
		}
	}

	var stdin io.WriteCloser
	if len(input) > 0 {
		stdin, err = h.cmd.StdinPipe()
		if err != nil {
			closeAll()
			return fmt.Errorf("%w: could not create stdin pipe: %w", model.ErrSpawn, err)
		}
	}

	if err := h.cmd.Start(); err != nil {
		closeAll()
		return fmt.Errorf("%w: %w", model.ErrSpawn, err)
	}

	// The child owns its copies of the write ends now.
	_ = outW.Close()
	_ = errW.Close()
	h.readers = []*os.File{outR, errR}

	h.mu.Lock()
	h.started = true
	h.mu.Unlock()

	var streams sync.WaitGroup
	streams.Add(2)
	go func() {
		defer streams.Done()
		pump(outR, h.stdout)
		_ = outR.Close()
	}()
	go func() {
		defer streams.Done()
		pump(errR, h.stderr)
		_ = errR.Close()
	}()
	go func() {
		streams.Wait()
		_ = h.stdout.Flush()
		_ = h.stderr.Flush()

		h.mu.Lock()
		h.hasClosed = true
		h.mu.Unlock()
		close(h.closed)
	}()

	go func() {
		err := h.cmd.Wait()

		h.mu.Lock()
		h.hasExited = true
		h.waitErr = err
		h.mu.Unlock()
		close(h.exited)
	}()

	if stdin != nil {
		go func() {
			// The process may exit without reading its input, the write error is irrelevant then.
			_, _ = stdin.Write(input)
			_ = stdin.Close()
		}()
	}

	return nil
}

// State returns the current state of the process.
func (h *handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case !h.started:
		return StateNotStarted
	case h.hasExited && h.hasClosed:
		return StateClosed
	case h.hasExited:
		return StateExited
	default:
		return StateRunning
	}
}

func (h *handle) isExited() bool {
	select {
	case <-h.exited:
		return true
	default:
		return false
	}
}

// waitExited waits up to d for the process to exit.
func (h *handle) waitExited(d time.Duration) bool {
	if h.isExited() {
		return true
	}
	if d <= 0 {
		return false
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.exited:
		return true
	case <-timer.C:
		return false
	}
}

// waitClosed waits up to d for the stdio streams to close.
func (h *handle) waitClosed(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.closed:
		return true
	case <-timer.C:
		return false
	}
}

// forceClose closes the read side of the stdio pipes so the stream
// goroutines stop, then waits for them to flush.
func (h *handle) forceClose() {
	for _, r := range h.readers {
		_ = r.Close()
	}
	<-h.closed
}

// exitCode returns the process exit code, or ExitCodeUnknown if the
// process didn't report one.
func (h *handle) exitCode() int {
	if !h.isExited() || h.cmd.ProcessState == nil {
		return ExitCodeUnknown
	}
	return h.cmd.ProcessState.ExitCode()
}
