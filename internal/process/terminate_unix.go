//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

type platformTerminator struct{}

func (platformTerminator) Interrupt(p *os.Process) error {
	err := unix.Kill(-p.Pid, unix.SIGINT)
	if errors.Is(err, unix.ESRCH) {
		// Not a group leader, signal the process alone.
		return p.Signal(os.Interrupt)
	}
	return err
}

func (platformTerminator) Kill(p *os.Process) error {
	err := unix.Kill(-p.Pid, unix.SIGKILL)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}

	// The group leader may have been reparented out of its group.
	err = p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// prepareCommand puts the process in its own process group so signals
// reach its children too.
func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
