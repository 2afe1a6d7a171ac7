//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

type platformTerminator struct{}

func (platformTerminator) Interrupt(p *os.Process) error {
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(p.Pid))
}

func (platformTerminator) Kill(p *os.Process) error {
	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// prepareCommand creates a new process group so CTRL_BREAK only reaches the
// child tree. The command interpreter receives `/c` arguments verbatim
// because it doesn't follow the usual argument quoting rules.
func prepareCommand(cmd *exec.Cmd) {
	attr := &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}

	exe := strings.TrimSuffix(strings.ToLower(filepath.Base(cmd.Path)), ".exe")
	if exe == "cmd" && len(cmd.Args) == 3 && strings.EqualFold(cmd.Args[1], "/c") {
		attr.CmdLine = fmt.Sprintf("%s /c %s", syscall.EscapeArg(cmd.Path), cmd.Args[2])
	}

	cmd.SysProcAttr = attr
}
