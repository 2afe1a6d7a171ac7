package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/stager/internal/app/stage"
	"github.com/slok/stager/internal/archive"
	"github.com/slok/stager/internal/conventions"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/printer"
	"github.com/slok/stager/internal/sequence"
	"github.com/slok/stager/internal/storage/envfile"
	storageio "github.com/slok/stager/internal/storage/io"
	"github.com/slok/stager/internal/utils/encoding"
	"github.com/slok/stager/internal/utils/env"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	configFile string

	// Commands.
	commands string
	command  string
	shell    string
	before   string
	after    string

	// Execution.
	key             string
	budget          time.Duration
	workDir         string
	envSpecs        []string
	input           string
	inputEncoding   string
	ignoreExitCodes string
	failOnStderr    bool

	// Checkpoint.
	archiveRoot         string
	archiveGlob         string
	archiveName         string
	restore             bool
	checkpointOnTimeout bool
	retentionDays       int
	archiver            string
	archiveTool         string

	// Reporting.
	outputsFile     string
	timeoutExitCode int
	format          string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a stage of a staged task.")
	c.Cmd.Flag("config", "YAML stage definition, flags override its values.").Short('c').StringVar(&c.configFile)

	c.Cmd.Flag("commands", "Newline separated commands, each one run as a literal argv (shell none).").StringVar(&c.commands)
	c.Cmd.Flag("command", "Raw command run once through the shell.").StringVar(&c.command)
	c.Cmd.Flag("shell", "Shell used to run the commands.").EnumVar(&c.shell, model.ShellKinds()...)
	c.Cmd.Flag("before", "Hook run before the main commands, without timeout.").StringVar(&c.before)
	c.Cmd.Flag("after", "Hook run after the main commands succeeded, without timeout.").StringVar(&c.after)

	c.Cmd.Flag("key", "Stage key, shares the deadline across invocations.").StringVar(&c.key)
	c.Cmd.Flag("budget", "Total time budget of the staged task (e.g. 5h30m).").DurationVar(&c.budget)
	c.Cmd.Flag("workdir", "Working directory of the commands.").StringVar(&c.workDir)
	c.Cmd.Flag("env", "Environment variable for the commands (KEY=VALUE or KEY to inherit), repeatable.").Short('e').StringsVar(&c.envSpecs)
	c.Cmd.Flag("input", "Text piped to the standard input of the commands.").StringVar(&c.input)
	c.Cmd.Flag("input-encoding", "Encoding of the input.").Default("utf8").EnumVar(&c.inputEncoding, encoding.Names()...)
	c.Cmd.Flag("ignore-exit-codes", "Comma separated exit codes that stop the stage as a timeout.").StringVar(&c.ignoreExitCodes)
	c.Cmd.Flag("fail-on-stderr", "Fail a command that writes on standard error.").BoolVar(&c.failOnStderr)

	c.Cmd.Flag("archive-root", "Base directory of the checkpoint files.").StringVar(&c.archiveRoot)
	c.Cmd.Flag("archive-glob", "Glob of the checkpoint files under the archive root (`**` for any depth).").StringVar(&c.archiveGlob)
	c.Cmd.Flag("archive-name", "Checkpoint archive and artifact name (e.g. state.tar.zst).").StringVar(&c.archiveName)
	c.Cmd.Flag("restore", "Restore the checkpoint before running.").BoolVar(&c.restore)
	c.Cmd.Flag("checkpoint-on-timeout", "Save the checkpoint when the stage times out.").BoolVar(&c.checkpointOnTimeout)
	c.Cmd.Flag("retention-days", "Retention of the checkpoint.").IntVar(&c.retentionDays)
	c.Cmd.Flag("archiver", "Archiver implementation.").Default(archiverExternal).EnumVar(&c.archiver, archiverExternal, archiverNative)
	c.Cmd.Flag("archive-tool", "Tool used by the external archiver.").Default(archive.ToolTar).EnumVar(&c.archiveTool, archive.ToolTar, archive.Tool7z)

	c.Cmd.Flag("outputs-file", "File where the stage outputs are appended.").Envar(conventions.GitHubOutputVar).StringVar(&c.outputsFile)
	c.Cmd.Flag("timeout-exit-code", "Exit code when the stage times out.").Default("0").IntVar(&c.timeoutExitCode)
	c.Cmd.Flag("output", "Output format of the stage result.").Short('o').Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	cfg, err := c.stageConfig(ctx)
	if err != nil {
		return err
	}
	cfg.Opts.Stdout = c.rootCmd.Stdout
	cfg.Opts.Stderr = c.rootCmd.Stderr

	// Initialize storage.
	st, err := c.rootCmd.newStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	sup, err := c.rootCmd.newSupervisor()
	if err != nil {
		return err
	}

	executor, err := sequence.NewProcessExecutor(sequence.ProcessExecutorConfig{Runner: sup, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create executor: %w", err)
	}

	tracker, err := c.rootCmd.newDeadlineTracker(st.Variables)
	if err != nil {
		return err
	}

	checkpoints, err := c.rootCmd.newCheckpointManager(c.archiver, c.archiveTool, sup, st.Artifacts)
	if err != nil {
		return err
	}

	svc, err := stage.NewService(stage.ServiceConfig{
		Executor:    executor,
		Deadlines:   tracker,
		Checkpoints: checkpoints,
		Runs:        st.Runs,
		Grouper:     c.rootCmd.Grouper(),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, stage.RunOptions{Config: cfg})
	if err != nil {
		return fmt.Errorf("could not run stage: %w", err)
	}

	if c.outputsFile != "" {
		w, err := envfile.NewWriter(envfile.WriterConfig{Path: c.outputsFile, Logger: logger})
		if err != nil {
			return fmt.Errorf("could not create outputs writer: %w", err)
		}
		if err := printer.WriteOutputs(w, *res); err != nil {
			return err
		}
	}

	var p printer.Printer = printer.NewTablePrinter(c.rootCmd.Stdout)
	if c.format == formatJSON {
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	}
	if err := p.PrintStageResult(*res); err != nil {
		return fmt.Errorf("could not print result: %w", err)
	}

	switch res.Outcome {
	case model.OutcomeFailed:
		return fmt.Errorf("%s: %w", res.FailCase, model.ErrStageFailed)
	case model.OutcomeTimeout:
		if c.timeoutExitCode != 0 {
			return &ExitError{Code: c.timeoutExitCode, Msg: "stage timed out"}
		}
	}

	return nil
}

// stageConfig builds the stage configuration from the stage file and the flags.
func (c RunCommand) stageConfig(ctx context.Context) (model.StageConfig, error) {
	var cfg model.StageConfig
	if c.configFile != "" {
		abs, err := filepath.Abs(c.configFile)
		if err != nil {
			return cfg, fmt.Errorf("could not resolve stage file: %w", err)
		}
		repo := storageio.NewStageYAMLRepository(os.DirFS(filepath.Dir(abs)))
		cfg, err = repo.GetStageConfig(ctx, filepath.Base(abs))
		if err != nil {
			return cfg, fmt.Errorf("could not load stage file: %w", err)
		}
	}

	var shell model.ShellKind
	if c.shell != "" {
		shell = model.ShellKind(c.shell)
	}

	if c.commands != "" || c.command != "" {
		if c.commands != "" && c.command != "" {
			return cfg, fmt.Errorf("--commands and --command are mutually exclusive: %w", model.ErrNotValid)
		}
		if c.commands != "" && shell != "" && shell != model.ShellNone {
			return cfg, fmt.Errorf("--commands can't be used with --shell %s, use --command: %w", shell, model.ErrNotValid)
		}
		cfg.Main = model.CommandSpec{Commands: splitLines(c.commands), Command: c.command, Shell: shell}
	} else if shell != "" {
		cfg.Main.Shell = shell
	}
	if c.before != "" {
		cfg.Before = hookSpec(c.before, shell)
	}
	if c.after != "" {
		cfg.After = hookSpec(c.after, shell)
	}

	if c.key != "" {
		cfg.Key = c.key
	}
	if c.budget > 0 {
		cfg.Budget = c.budget
	}
	if c.workDir != "" {
		cfg.Opts.WorkingDir = c.workDir
	}
	if len(c.envSpecs) > 0 {
		flagEnv, err := env.ParseSpecs(c.envSpecs)
		if err != nil {
			return cfg, fmt.Errorf("invalid --env: %w", err)
		}
		cfg.Opts.Env = env.MergeMaps(cfg.Opts.Env, flagEnv)
	}
	if c.input != "" {
		input, err := encoding.Encode(c.input, c.inputEncoding)
		if err != nil {
			return cfg, fmt.Errorf("invalid --input: %w", err)
		}
		cfg.Opts.Input = input
	}
	if c.ignoreExitCodes != "" {
		codes, err := env.ParseExitCodes(c.ignoreExitCodes)
		if err != nil {
			return cfg, fmt.Errorf("invalid --ignore-exit-codes: %w", err)
		}
		cfg.Opts.IgnoreExitCodes = codes
	}
	if c.failOnStderr {
		cfg.Opts.FailOnStderr = true
	}

	if c.archiveRoot != "" {
		cfg.Checkpoint.RootDir = c.archiveRoot
	}
	if c.archiveGlob != "" {
		cfg.Checkpoint.Glob = c.archiveGlob
	}
	if c.archiveName != "" {
		cfg.Checkpoint.ArchiveName = c.archiveName
	}
	if c.restore {
		cfg.Restore = true
	}
	if c.checkpointOnTimeout {
		cfg.CheckpointOnTimeout = true
	}
	if c.retentionDays > 0 {
		cfg.RetentionDays = c.retentionDays
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = conventions.DefaultRetentionDays
	}

	return cfg, nil
}

// hookSpec returns the hook commands, one per line without shell.
func hookSpec(hook string, shell model.ShellKind) model.CommandSpec {
	if shell == "" || shell == model.ShellNone {
		return model.CommandSpec{Commands: splitLines(hook), Shell: model.ShellNone}
	}
	return model.CommandSpec{Command: hook, Shell: shell}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}
