package printer

import (
	"fmt"
	"strings"

	"github.com/slok/stager/internal/model"
)

// OutputAppender appends named outputs for the host automation.
type OutputAppender interface {
	Append(name, value string) error
}

// Output names written by WriteOutputs.
const (
	OutputResults = "results"
	OutputBefore  = "before"
	OutputMain    = "main"
	OutputAfter   = "after"
	OutputOutcome = "outcome"
)

// WriteOutputs appends the stage result outputs. Results are the comma
// separated per command exit codes or timeout markers.
func WriteOutputs(a OutputAppender, res model.StageResult) error {
	outputs := []struct {
		name  string
		value string
	}{
		{OutputResults, strings.Join(res.Main.ResultMarkers(), ",")},
		{OutputBefore, string(res.Before.Outcome)},
		{OutputMain, string(res.Main.Outcome)},
		{OutputAfter, string(res.After.Outcome)},
		{OutputOutcome, string(res.Outcome)},
	}

	for _, o := range outputs {
		if err := a.Append(o.name, o.value); err != nil {
			return fmt.Errorf("could not write output %q: %w", o.name, err)
		}
	}

	return nil
}
