package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/slok/stager/cmd/stager/commands"
	"github.com/slok/stager/internal/log"
	loglogrus "github.com/slok/stager/internal/log/logrus"
)

// Version is overridden at build time with ldflags.
var Version = "dev"

// Run runs stager with the given arguments and standard streams.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("stager", "Runs long build commands as resumable time boxed stages.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	checkpointCmd := app.Command("checkpoint", "Manage checkpoints.")
	deadlineCmd := app.Command("deadline", "Manage the stage deadlines.")

	cmds := map[string]commands.Command{}
	for _, cmd := range []commands.Command{
		commands.NewRunCommand(rootCmd, app),
		commands.NewHistoryCommand(rootCmd, app),
		commands.NewCheckpointSaveCommand(rootCmd, checkpointCmd),
		commands.NewCheckpointLoadCommand(rootCmd, checkpointCmd),
		commands.NewDeadlineShowCommand(rootCmd, deadlineCmd),
		commands.NewDeadlineClearCommand(rootCmd, deadlineCmd),
	} {
		cmds[cmd.Name()] = cmd
	}

	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Commands that print reports keep stdout and stderr clean unless debugging.
	switch cmdName {
	case "history", "deadline show":
		rootCmd.NoLog = rootCmd.NoLog || !rootCmd.Debug
	}
	rootCmd.Logger = newLogger(*rootCmd).WithValues(log.Kv{"cmd": cmdName})

	// A termination signal cancels the command, the command result is the
	// process result.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var g run.Group

	// Signals.
	{
		done := make(chan struct{})
		g.Add(
			func() error {
				select {
				case <-ctx.Done():
					rootCmd.Logger.Infof("Termination signal received, stopping")
					<-done
				case <-done:
				}
				return nil
			},
			func(_ error) {
				close(done)
			},
		)
	}

	// Execute command. A cancelled context stops the running process with
	// the same protocol used on timeouts.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// newLogger returns the logrus backed logger, or a noop one when logging is disabled.
func newLogger(config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	// Logs go to stderr, stdout is left for the stage command and reports.
	l := logrus.New()
	l.Out = config.Stderr
	if config.Debug {
		l.SetLevel(logrus.DebugLevel)
	}

	switch config.LoggerType {
	case commands.LoggerTypeJSON:
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		// Stages last hours, relative timestamps are useless.
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	}

	logger := loglogrus.NewLogrus(logrus.NewEntry(l)).WithValues(log.Kv{"version": Version})
	logger.Debugf("Debug logging enabled")

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		var exitErr *commands.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "%s\n", exitErr.Msg)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
