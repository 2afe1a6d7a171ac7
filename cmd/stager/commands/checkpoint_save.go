package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/stager/internal/archive"
	"github.com/slok/stager/internal/checkpoint"
	"github.com/slok/stager/internal/conventions"
	"github.com/slok/stager/internal/printer"
)

type CheckpointSaveCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	archiveRoot   string
	archiveGlob   string
	archiveName   string
	retentionDays int
	archiver      string
	archiveTool   string
}

// NewCheckpointSaveCommand returns the checkpoint save command.
func NewCheckpointSaveCommand(rootCmd *RootCommand, checkpointCmd *kingpin.CmdClause) *CheckpointSaveCommand {
	c := &CheckpointSaveCommand{rootCmd: rootCmd}

	c.Cmd = checkpointCmd.Command("save", "Archive the files and upload them as a checkpoint.")
	c.Cmd.Flag("archive-root", "Base directory of the checkpoint files.").Default(".").StringVar(&c.archiveRoot)
	c.Cmd.Flag("archive-glob", "Glob of the checkpoint files under the archive root.").Required().StringVar(&c.archiveGlob)
	c.Cmd.Flag("archive-name", "Checkpoint archive and artifact name.").Required().StringVar(&c.archiveName)
	c.Cmd.Flag("retention-days", "Retention of the checkpoint.").Default(fmt.Sprint(conventions.DefaultRetentionDays)).IntVar(&c.retentionDays)
	c.Cmd.Flag("archiver", "Archiver implementation.").Default(archiverExternal).EnumVar(&c.archiver, archiverExternal, archiverNative)
	c.Cmd.Flag("archive-tool", "Tool used by the external archiver.").Default(archive.ToolTar).EnumVar(&c.archiveTool, archive.ToolTar, archive.Tool7z)

	return c
}

func (c CheckpointSaveCommand) Name() string { return c.Cmd.FullCommand() }

func (c CheckpointSaveCommand) Run(ctx context.Context) error {
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

	res, err := mgr.Save(ctx, checkpoint.SaveRequest{
		RootDir:       c.archiveRoot,
		Glob:          c.archiveGlob,
		ArchiveName:   c.archiveName,
		RetentionDays: c.retentionDays,
	})
	if err != nil {
		return fmt.Errorf("could not save checkpoint: %w", err)
	}

	msg := fmt.Sprintf("Saved checkpoint %s: %d files, %s", c.archiveName, res.Files, printer.FormatBytes(res.Artifact.SizeBytes()))
	return printer.NewTablePrinter(c.rootCmd.Stdout).PrintMessage(msg)
}
