// Package shell translates a shell kind and a raw command string into the
// executable and argument vector that run it.
package shell

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/slok/stager/internal/model"
)

// Wrapper wraps raw commands for the selected interpreter. The command
// string is never quoted or escaped, the interpreter receives it as a
// single argument.
type Wrapper struct {
	// LookPath resolves executables on PATH, defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// NewWrapper returns a wrapper that resolves executables with exec.LookPath.
func NewWrapper() Wrapper {
	return Wrapper{LookPath: exec.LookPath}
}

// Wrap returns the executable and the arguments that run command with kind.
func (w Wrapper) Wrap(command string, kind model.ShellKind) (executable string, args []string, err error) {
	switch kind {
	case model.ShellNone, "":
		argv, err := SplitArgs(command)
		if err != nil {
			return "", nil, err
		}
		if len(argv) == 0 {
			return "", nil, fmt.Errorf("command cannot be empty: %w", model.ErrNotValid)
		}
		return argv[0], argv[1:], nil
	case model.ShellSh:
		return "sh", []string{"-c", command}, nil
	case model.ShellBash:
		return "bash", []string{"--noprofile", "--norc", "-c", command}, nil
	case model.ShellPwsh:
		if w.hasExecutable("pwsh") {
			return "pwsh", []string{"-NoLogo", "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Unrestricted", "-Command", command}, nil
		}
		return w.Wrap(command, model.ShellPowershell)
	case model.ShellPowershell:
		return "powershell", []string{"-NoLogo", "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command", command}, nil
	case model.ShellCmd:
		return "cmd", []string{"/c", command}, nil
	case model.ShellPython:
		return "python", []string{"-u", "-c", command}, nil
	case model.ShellNode:
		return "node", []string{"-e", command}, nil
	default:
		return "", nil, fmt.Errorf("unknown shell %q: %w", kind, model.ErrNotValid)
	}
}

func (w Wrapper) hasExecutable(name string) bool {
	lookPath := w.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	_, err := lookPath(name)
	return err == nil
}

// Wrap wraps command using the default wrapper.
func Wrap(command string, kind model.ShellKind) (string, []string, error) {
	return NewWrapper().Wrap(command, kind)
}

// SplitArgs splits a command line into an argv. Whitespace separates
// arguments, double quotes group them and a backslash only escapes a
// double quote, any other backslash is kept literally.
func SplitArgs(s string) ([]string, error) {
	var (
		args     []string
		current  strings.Builder
		inQuotes bool
		hasArg   bool
	)

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\' && i+1 < len(runes) && runes[i+1] == '"':
			current.WriteRune('"')
			hasArg = true
			i++
		case r == '"':
			inQuotes = !inQuotes
			hasArg = true
		case !inQuotes && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			if hasArg {
				args = append(args, current.String())
				current.Reset()
				hasArg = false
			}
		default:
			current.WriteRune(r)
			hasArg = true
		}
	}

	if inQuotes {
		return nil, fmt.Errorf("unterminated quote in %q: %w", s, model.ErrNotValid)
	}
	if hasArg {
		args = append(args, current.String())
	}

	return args, nil
}
