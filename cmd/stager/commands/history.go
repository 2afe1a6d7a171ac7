package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/stager/internal/app/history"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/printer"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	key           string
	outcomeFilter string
	limit         int
	format        string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "List the stage runs.")
	c.Cmd.Flag("key", "Only list the runs of this stage key.").StringVar(&c.key)
	c.Cmd.Flag("outcome", "Filter by outcome (success, failed, timeout).").StringVar(&c.outcomeFilter)
	c.Cmd.Flag("limit", "Maximum number of runs.").Default("0").IntVar(&c.limit)
	c.Cmd.Flag("output", "Output format.").Short('o').Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	var outcomeFilter *model.Outcome
	if c.outcomeFilter != "" {
		o, err := model.ParseOutcome(c.outcomeFilter)
		if err != nil {
			return fmt.Errorf("invalid outcome filter: %w", err)
		}
		outcomeFilter = &o
	}

	st, err := c.rootCmd.newStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, err := history.NewService(history.ServiceConfig{
		Repository: st.Runs,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	runs, err := svc.Run(ctx, history.Request{
		Key:           c.key,
		OutcomeFilter: outcomeFilter,
		Limit:         c.limit,
	})
	if err != nil {
		return fmt.Errorf("could not list stage runs: %w", err)
	}

	var p printer.Printer
	switch c.format {
	case formatJSON:
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default:
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintHistory(runs); err != nil {
		return fmt.Errorf("could not print history: %w", err)
	}

	return nil
}
