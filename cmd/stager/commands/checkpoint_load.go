package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/stager/internal/archive"
	"github.com/slok/stager/internal/checkpoint"
	"github.com/slok/stager/internal/printer"
)

type CheckpointLoadCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	archiveRoot string
	archiveName string
	archiver    string
	archiveTool string
}

// NewCheckpointLoadCommand returns the checkpoint load command.
func NewCheckpointLoadCommand(rootCmd *RootCommand, checkpointCmd *kingpin.CmdClause) *CheckpointLoadCommand {
	c := &CheckpointLoadCommand{rootCmd: rootCmd}

	c.Cmd = checkpointCmd.Command("load", "Download and extract a checkpoint if it exists.")
	c.Cmd.Flag("archive-root", "Directory where the checkpoint is extracted.").Default(".").StringVar(&c.archiveRoot)
	c.Cmd.Flag("archive-name", "Checkpoint archive and artifact name.").Required().StringVar(&c.archiveName)
	c.Cmd.Flag("archiver", "Archiver implementation.").Default(archiverExternal).EnumVar(&c.archiver, archiverExternal, archiverNative)
	c.Cmd.Flag("archive-tool", "Tool used by the external archiver.").Default(archive.ToolTar).EnumVar(&c.archiveTool, archive.ToolTar, archive.Tool7z)

	return c
}

func (c CheckpointLoadCommand) Name() string { return c.Cmd.FullCommand() }

func (c CheckpointLoadCommand) Run(ctx context.Context) error {
	st, err := c.rootCmd.newStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	sup, err := c.rootCmd.newSupervisor()
	if err != nil {
		return err
	}

	mgr, err := c.rootCmd.newCheckpointManager(c.archiver, c.archiveTool, sup, st.Artifacts)
	if err != nil {
		return err
	}

	loaded, err := mgr.Load(ctx, checkpoint.LoadRequest{ArchiveName: c.archiveName, DestDir: c.archiveRoot})
	if err != nil {
		return fmt.Errorf("could not load checkpoint: %w", err)
	}

	msg := fmt.Sprintf("No checkpoint %s found", c.archiveName)
	if loaded {
		msg = fmt.Sprintf("Restored checkpoint %s into %s", c.archiveName, c.archiveRoot)
	}
	return printer.NewTablePrinter(c.rootCmd.Stdout).PrintMessage(msg)
}
