package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/stager/internal/conventions"
	"github.com/slok/stager/internal/log"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	// StorageSQLite keeps the state in a SQLite database under the data dir.
	StorageSQLite = "sqlite"
	// StorageMemory keeps the state in memory, it's lost when the process exits.
	StorageMemory = "memory"

	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// ExitError makes the process exit with a specific code.
type ExitError struct {
	Code int
	Msg  string
}

func (e *ExitError) Error() string { return fmt.Sprintf("%s (exit code %d)", e.Msg, e.Code) }

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DataDir    string
	DBPath     string
	Storage    string
	// EnvFile is the variable store inherited by the next invocations.
	EnvFile string
	// CI enables the workflow log grouping markers.
	CI bool

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDataDir := filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir)
	app.Flag("data-dir", "Directory for the stager state and artifacts.").Default(defaultDataDir).StringVar(&c.DataDir)
	app.Flag("db-path", "Path to the SQLite database file (defaults to a file in the data dir).").StringVar(&c.DBPath)
	app.Flag("storage", "Storage for the stager state.").Default(StorageSQLite).EnumVar(&c.Storage, StorageSQLite, StorageMemory)
	app.Flag("env-file", "Env file inherited by the next invocations, used to persist the deadlines.").Envar(conventions.GitHubEnvVar).StringVar(&c.EnvFile)
	app.Flag("ci", "Group the output with workflow markers.").Envar("GITHUB_ACTIONS").BoolVar(&c.CI)

	return c
}

// Grouper returns the output grouper for the stage phases.
func (c *RootCommand) Grouper() log.Grouper {
	if c.CI {
		return log.NewWriterGrouper(c.Stdout)
	}
	return log.NewLoggerGrouper(c.Logger)
}
