package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/stager/internal/printer"
)

type DeadlineClearCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	key string
}

// NewDeadlineClearCommand returns the deadline clear command.
func NewDeadlineClearCommand(rootCmd *RootCommand, deadlineCmd *kingpin.CmdClause) *DeadlineClearCommand {
	c := &DeadlineClearCommand{rootCmd: rootCmd}

	c.Cmd = deadlineCmd.Command("clear", "Remove the persisted deadline of a stage key, the next stage starts a new task.")
	c.Cmd.Flag("key", "Stage key.").Required().StringVar(&c.key)

	return c
}

func (c DeadlineClearCommand) Name() string { return c.Cmd.FullCommand() }

func (c DeadlineClearCommand) Run(ctx context.Context) error {
	st, err := c.rootCmd.newStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	tracker, err := c.rootCmd.newDeadlineTracker(st.Variables)
	if err != nil {
		return err
	}

	if err := tracker.Clear(ctx, c.key); err != nil {
		return fmt.Errorf("could not clear deadline: %w", err)
	}

	return printer.NewTablePrinter(c.rootCmd.Stdout).PrintMessage(fmt.Sprintf("Cleared deadline of %q", c.key))
}
