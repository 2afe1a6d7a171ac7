package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/printer"
)

type DeadlineShowCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	key    string
	format string
}

// NewDeadlineShowCommand returns the deadline show command.
func NewDeadlineShowCommand(rootCmd *RootCommand, deadlineCmd *kingpin.CmdClause) *DeadlineShowCommand {
	c := &DeadlineShowCommand{rootCmd: rootCmd}

	c.Cmd = deadlineCmd.Command("show", "Show the persisted deadline of a stage key.")
	c.Cmd.Flag("key", "Stage key.").Required().StringVar(&c.key)
	c.Cmd.Flag("output", "Output format.").Short('o').Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c DeadlineShowCommand) Name() string { return c.Cmd.FullCommand() }

func (c DeadlineShowCommand) Run(ctx context.Context) error {
	st, err := c.rootCmd.newStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	tracker, err := c.rootCmd.newDeadlineTracker(st.Variables)
	if err != nil {
		return err
	}

	info, err := tracker.Info(ctx, c.key)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("no deadline for key %q: %w", c.key, err)
		}
		return fmt.Errorf("could not get deadline: %w", err)
	}

	var p printer.Printer = printer.NewTablePrinter(c.rootCmd.Stdout)
	if c.format == formatJSON {
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	}
	return p.PrintDeadline(*info)
}
