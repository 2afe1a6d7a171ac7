package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/stager/internal/model"
)

// JSONPrinter prints stage information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

var _ Printer = &JSONPrinter{}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

type commandOutput struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
	Reason   string `json:"reason"`
}

type executionOutput struct {
	Outcome  string          `json:"outcome"`
	FailCase string          `json:"fail_case,omitempty"`
	Results  []commandOutput `json:"results"`
}

type stageOutput struct {
	ID              string          `json:"id"`
	Key             string          `json:"key,omitempty"`
	Outcome         string          `json:"outcome"`
	FailCase        string          `json:"fail_case,omitempty"`
	Before          executionOutput `json:"before"`
	Main            executionOutput `json:"main"`
	After           executionOutput `json:"after"`
	Deadline        *time.Time      `json:"deadline,omitempty"`
	Restored        bool            `json:"restored"`
	CheckpointSaved bool            `json:"checkpoint_saved"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}

type historyItem struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	Outcome    string    `json:"outcome"`
	FailCase   string    `json:"fail_case,omitempty"`
	Before     string    `json:"before"`
	Main       string    `json:"main"`
	After      string    `json:"after"`
	Results    []string  `json:"results"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type deadlineOutput struct {
	Key         string    `json:"key"`
	Deadline    time.Time `json:"deadline"`
	RemainingMs int64     `json:"remaining_ms"`
	Expired     bool      `json:"expired"`
}

type messageOutput struct {
	Message string `json:"message"`
}

func toExecutionOutput(e model.ExecutionResult) executionOutput {
	out := executionOutput{
		Outcome:  string(e.Outcome),
		FailCase: e.FailCase,
		Results:  make([]commandOutput, 0, len(e.Results)),
	}
	for _, r := range e.Results {
		out.Results = append(out.Results, commandOutput{Command: r.Command, ExitCode: r.ExitCode, Reason: string(r.Reason)})
	}
	return out
}

// PrintStageResult prints the result of a stage in JSON format.
func (j *JSONPrinter) PrintStageResult(res model.StageResult) error {
	output := stageOutput{
		ID:              res.ID,
		Key:             res.Key,
		Outcome:         string(res.Outcome),
		FailCase:        res.FailCase,
		Before:          toExecutionOutput(res.Before),
		Main:            toExecutionOutput(res.Main),
		After:           toExecutionOutput(res.After),
		Restored:        res.Restored,
		CheckpointSaved: res.CheckpointSaved,
		StartedAt:       res.StartedAt.UTC(),
		FinishedAt:      res.FinishedAt.UTC(),
	}
	if !res.Deadline.IsZero() {
		d := res.Deadline.UTC()
		output.Deadline = &d
	}

	return j.encode(output)
}

// PrintHistory prints stage runs in JSON format.
func (j *JSONPrinter) PrintHistory(runs []model.StageRun) error {
	items := make([]historyItem, len(runs))
	for i, r := range runs {
		results := r.Results
		if results == nil {
			results = []string{}
		}
		items[i] = historyItem{
			ID:         r.ID,
			Key:        r.Key,
			Outcome:    string(r.Outcome),
			FailCase:   r.FailCase,
			Before:     string(r.Before),
			Main:       string(r.Main),
			After:      string(r.After),
			Results:    results,
			StartedAt:  r.StartedAt.UTC(),
			FinishedAt: r.FinishedAt.UTC(),
		}
	}

	return j.encode(items)
}

// PrintDeadline prints the persisted deadline of a stage key in JSON format.
func (j *JSONPrinter) PrintDeadline(info model.DeadlineInfo) error {
	return j.encode(deadlineOutput{
		Key:         info.Key,
		Deadline:    info.Deadline.UTC(),
		RemainingMs: info.Remaining.Milliseconds(),
		Expired:     info.Expired,
	})
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
