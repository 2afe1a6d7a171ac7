package process

import "os"

// Terminator stops running processes. The escalation policy lives in the
// Supervisor, implementations only know how to deliver the platform
// specific signals.
type Terminator interface {
	// Interrupt requests a graceful stop, best effort.
	Interrupt(p *os.Process) error
	// Kill stops the process unconditionally.
	Kill(p *os.Process) error
}

// NewPlatformTerminator returns the terminator for the current platform.
//
// On Unix the whole process group receives SIGINT and SIGKILL, on Windows
// the process group receives a console CTRL_BREAK event because ordinary
// termination doesn't propagate through the child tree.
func NewPlatformTerminator() Terminator {
	return platformTerminator{}
}
