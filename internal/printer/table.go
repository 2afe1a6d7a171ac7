package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/slok/stager/internal/model"
)

// TablePrinter prints stage information in a table format.
type TablePrinter struct {
	writer io.Writer
}

var _ Printer = &TablePrinter{}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintStageResult prints the result of a stage.
func (t *TablePrinter) PrintStageResult(res model.StageResult) error {
	fmt.Fprintf(t.writer, "Stage:       %s\n", res.ID)
	if res.Key != "" {
		fmt.Fprintf(t.writer, "Key:         %s\n", res.Key)
	}
	fmt.Fprintf(t.writer, "Outcome:     %s\n", res.Outcome)
	fmt.Fprintf(t.writer, "Before:      %s\n", res.Before.Outcome)
	fmt.Fprintf(t.writer, "Main:        %s\n", res.Main.Outcome)
	fmt.Fprintf(t.writer, "After:       %s\n", res.After.Outcome)
	fmt.Fprintf(t.writer, "Results:     %s\n", formatResults(res.Main.ResultMarkers()))

	if !res.Deadline.IsZero() {
		fmt.Fprintf(t.writer, "Deadline:    %s\n", FormatTimestamp(res.Deadline))
	}
	if res.Restored {
		fmt.Fprintf(t.writer, "Restored:    yes\n")
	}
	if res.CheckpointSaved {
		fmt.Fprintf(t.writer, "Checkpoint:  saved\n")
	}
	fmt.Fprintf(t.writer, "Duration:    %s\n", FormatDuration(res.FinishedAt.Sub(res.StartedAt)))

	if res.FailCase != "" {
		fmt.Fprintf(t.writer, "Fail case:   %s\n", res.FailCase)
	}

	return nil
}

// PrintHistory prints stage runs in a table format.
func (t *TablePrinter) PrintHistory(runs []model.StageRun) error {
	if len(runs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tKEY\tOUTCOME\tBEFORE\tMAIN\tAFTER\tRESULTS\tSTARTED\tDURATION")

	for _, r := range runs {
		key := r.Key
		if key == "" {
			key = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			key,
			r.Outcome,
			r.Before,
			r.Main,
			r.After,
			formatResults(r.Results),
			TimeAgo(r.StartedAt),
			FormatDuration(r.FinishedAt.Sub(r.StartedAt)),
		)
	}

	return nil
}

// PrintDeadline prints the persisted deadline of a stage key.
func (t *TablePrinter) PrintDeadline(info model.DeadlineInfo) error {
	fmt.Fprintf(t.writer, "Key:        %s\n", info.Key)
	fmt.Fprintf(t.writer, "Deadline:   %s (%s)\n", FormatTimestamp(info.Deadline), TimeAgo(info.Deadline))
	if info.Expired {
		fmt.Fprintf(t.writer, "Remaining:  expired\n")
	} else {
		fmt.Fprintf(t.writer, "Remaining:  %s\n", FormatDuration(info.Remaining))
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func formatResults(markers []string) string {
	if len(markers) == 0 {
		return "-"
	}
	return strings.Join(markers, ", ")
}
