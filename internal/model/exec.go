package model

import (
	"fmt"
	"io"
	"time"
)

// ShellKind selects the interpreter used to run a raw command string.
type ShellKind string

const (
	// ShellNone runs each command line as a literal argv.
	ShellNone ShellKind = "none"
	// ShellSh runs the command with `sh -c`.
	ShellSh ShellKind = "sh"
	// ShellBash runs the command with `bash -c`.
	ShellBash ShellKind = "bash"
	// ShellPwsh runs the command with PowerShell 7 when present, falling back to Windows PowerShell.
	ShellPwsh ShellKind = "pwsh"
	// ShellPowershell runs the command with Windows PowerShell.
	ShellPowershell ShellKind = "powershell"
	// ShellCmd runs the command with the Windows command interpreter.
	ShellCmd ShellKind = "cmd"
	// ShellPython runs the command as a Python one-shot program.
	ShellPython ShellKind = "python"
	// ShellNode runs the command as a Node.js inline script.
	ShellNode ShellKind = "node"
)

// ShellKinds returns all the supported shell kinds.
func ShellKinds() []string {
	return []string{
		string(ShellNone),
		string(ShellSh),
		string(ShellBash),
		string(ShellPwsh),
		string(ShellPowershell),
		string(ShellCmd),
		string(ShellPython),
		string(ShellNode),
	}
}

// ParseShellKind parses a shell kind, empty means ShellNone.
func ParseShellKind(s string) (ShellKind, error) {
	if s == "" {
		return ShellNone, nil
	}
	for _, k := range ShellKinds() {
		if k == s {
			return ShellKind(s), nil
		}
	}
	return "", fmt.Errorf("unknown shell %q: %w", s, ErrNotValid)
}

// ExecOpts contains the options shared by all the commands of a sequence.
type ExecOpts struct {
	// WorkingDir is the directory to run the commands in (optional).
	WorkingDir string
	// Env contains additional environment variables for the commands.
	Env map[string]string
	// Input is piped to the standard input of every command (optional).
	Input []byte
	// Timeout is the budget for the whole sequence, zero means no timeout.
	Timeout time.Duration
	// IgnoreExitCodes are exit codes that stop the sequence as a timeout instead of a failure.
	IgnoreExitCodes []int
	// FailOnStderr makes a command fail if it writes anything on standard error.
	FailOnStderr bool
	// Stdout receives the command output lines (optional, defaults to discard).
	Stdout io.Writer
	// Stderr receives the command error lines (optional, defaults to discard).
	Stderr io.Writer
}

// IsIgnoredExitCode returns true if code is on the ignore list.
func (o ExecOpts) IsIgnoredExitCode(code int) bool {
	for _, c := range o.IgnoreExitCodes {
		if c == code {
			return true
		}
	}
	return false
}
