package model

import "fmt"

// Outcome is the result of running a hook, a command sequence or a whole stage.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	// OutcomeTimeout is an expected suspension point, not an error.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeSkipped is only used for hook slots that were not run.
	OutcomeSkipped Outcome = "skipped"
)

// ParseOutcome parses an outcome from its string representation.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeSuccess, OutcomeFailed, OutcomeTimeout, OutcomeSkipped:
		return o, nil
	default:
		return "", fmt.Errorf("unknown outcome %q: %w", s, ErrNotValid)
	}
}

// ResultReason tells why a command stopped.
type ResultReason string

const (
	// ResultReasonExited means the process ran to natural completion.
	ResultReasonExited ResultReason = "exited"
	// ResultReasonTimedOut means the supervisor terminated the process on deadline expiry.
	ResultReasonTimedOut ResultReason = "timed_out"
	// ResultReasonIgnoredExit means the process exit code was on the ignore list.
	ResultReasonIgnoredExit ResultReason = "ignored_exit"
)

// CommandResult is the result of a single command of a sequence.
type CommandResult struct {
	Command  string
	ExitCode int
	Reason   ResultReason
}

// IsTimeout returns true when the command result is reported as a timeout marker.
func (c CommandResult) IsTimeout() bool {
	return c.Reason == ResultReasonTimedOut || c.Reason == ResultReasonIgnoredExit
}

// String returns the exit code or the "timeout" marker.
func (c CommandResult) String() string {
	if c.IsTimeout() {
		return string(OutcomeTimeout)
	}
	return fmt.Sprintf("%d", c.ExitCode)
}

// ExecutionResult is the aggregated result of running a hook or a command sequence.
type ExecutionResult struct {
	Outcome Outcome
	// FailCase is the human readable failure cause, only set on failed outcomes.
	FailCase string
	// Results has one entry per command attempted, truncated at the first command
	// that failed or timed out.
	Results []CommandResult
}

// SkippedResult returns the result for a slot that didn't run.
func SkippedResult() ExecutionResult {
	return ExecutionResult{Outcome: OutcomeSkipped}
}

// ResultMarkers returns the per command exit codes or timeout markers.
func (e ExecutionResult) ResultMarkers() []string {
	markers := make([]string, 0, len(e.Results))
	for _, r := range e.Results {
		markers = append(markers, r.String())
	}
	return markers
}
