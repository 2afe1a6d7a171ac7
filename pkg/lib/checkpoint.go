package lib

import (
	"context"

	"github.com/slok/stager/internal/checkpoint"
	"github.com/slok/stager/internal/conventions"
)

// SaveCheckpoint archives the files matching the glob under the root dir and
// stores them as a checkpoint, replacing any previous one with the same name.
//
// Returns [ErrNotValid] if the options are not valid, or [ErrUploadExhausted]
// if the checkpoint could not be stored.
func (c *Client) SaveCheckpoint(ctx context.Context, opts SaveCheckpointOpts) (*Checkpoint, error) {
	if opts.RetentionDays == 0 {
		opts.RetentionDays = conventions.DefaultRetentionDays
	}

	res, err := c.checkpoints.Save(ctx, checkpoint.SaveRequest{
		RootDir:       opts.RootDir,
		Glob:          opts.Glob,
		ArchiveName:   opts.ArchiveName,
		RetentionDays: opts.RetentionDays,
	})
	if err != nil {
		return nil, mapError(err)
	}

	cp := fromInternalArtifact(res.Artifact, res.Files)
	return &cp, nil
}

// LoadCheckpoint restores a checkpoint into destDir (current dir when empty).
//
// Returns false without error when there is no checkpoint with that name.
func (c *Client) LoadCheckpoint(ctx context.Context, name, destDir string) (bool, error) {
	found, err := c.checkpoints.Load(ctx, checkpoint.LoadRequest{
		ArchiveName: name,
		DestDir:     destDir,
	})
	if err != nil {
		return false, mapError(err)
	}

	return found, nil
}
