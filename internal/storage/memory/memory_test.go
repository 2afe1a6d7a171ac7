package memory_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/stager/internal/clock"
	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/storage"
	"github.com/slok/stager/internal/storage/memory"
)

func TestRepositoryVariables(t *testing.T) {
	tests := map[string]struct {
		actions func(ctx context.Context, t *testing.T, repo *memory.Repository) error
		expErr  error
	}{
		"Getting a missing variable should fail with not found.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				_, err := repo.GetVariable(ctx, "missing")
				return err
			},
			expErr: model.ErrNotFound,
		},

		"Setting and getting a variable should work.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				require.NoError(t, repo.SetVariable(ctx, "K", "v"))
				v, err := repo.GetVariable(ctx, "K")
				require.NoError(t, err)
				assert.Equal(t, "v", v)
				return nil
			},
		},

		"An empty variable should be not found.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				require.NoError(t, repo.SetVariable(ctx, "K", ""))
				_, err := repo.GetVariable(ctx, "K")
				return err
			},
			expErr: model.ErrNotFound,
		},

		"Deleting a variable should remove it.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				require.NoError(t, repo.SetVariable(ctx, "K", "v"))
				require.NoError(t, repo.DeleteVariable(ctx, "K"))
				_, err := repo.GetVariable(ctx, "K")
				return err
			},
			expErr: model.ErrNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: log.Noop})
			require.NoError(t, err)

			err = test.actions(context.Background(), t, repo)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRepositoryArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "out"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "out", "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.txt"), []byte("bb"), 0o644))

	up, err := repo.UploadArtifact(ctx, storage.UploadArtifactRequest{
		Name:    "state",
		BaseDir: src,
		Files:   []string{filepath.Join(src, "out", "a.txt"), filepath.Join(src, "b.txt")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), up.SizeBytes())
	assert.True(t, up.ExpiresAt.IsZero())

	dst := t.TempDir()
	down, err := repo.DownloadArtifact(ctx, "state", dst)
	require.NoError(t, err)
	assert.Equal(t, up.ID, down.ID)

	got, err := os.ReadFile(filepath.Join(dst, "out", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))
	got, err = os.ReadFile(filepath.Join(dst, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bb", string(got))
}

func TestRepositoryArtifactErrors(t *testing.T) {
	tests := map[string]struct {
		actions func(ctx context.Context, t *testing.T, repo *memory.Repository, fc *clock.Fake) error
		expErr  error
	}{
		"Downloading a missing artifact should fail with not found.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository, fc *clock.Fake) error {
				_, err := repo.DownloadArtifact(ctx, "missing", t.TempDir())
				return err
			},
			expErr: model.ErrNotFound,
		},

		"Downloading an expired artifact should fail with not found.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository, fc *clock.Fake) error {
				_, err := repo.UploadArtifact(ctx, storage.UploadArtifactRequest{Name: "state", BaseDir: t.TempDir(), RetentionDays: 1})
				require.NoError(t, err)
				fc.Advance(25 * time.Hour)
				_, err = repo.DownloadArtifact(ctx, "state", t.TempDir())
				return err
			},
			expErr: model.ErrNotFound,
		},

		"Uploading files outside the base dir should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository, fc *clock.Fake) error {
				_, err := repo.UploadArtifact(ctx, storage.UploadArtifactRequest{
					Name:    "state",
					BaseDir: t.TempDir(),
					Files:   []string{filepath.Join(t.TempDir(), "x")},
				})
				return err
			},
			expErr: model.ErrNotValid,
		},

		"Uploading without a name should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository, fc *clock.Fake) error {
				_, err := repo.UploadArtifact(ctx, storage.UploadArtifactRequest{BaseDir: t.TempDir()})
				return err
			},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			fc := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
			repo, err := memory.NewRepository(memory.RepositoryConfig{Clock: fc})
			require.NoError(t, err)

			err = test.actions(context.Background(), t, repo, fc)
			assert.ErrorIs(t, err, test.expErr)
		})
	}
}

func TestRepositoryStageRuns(t *testing.T) {
	ctx := context.Background()
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateStageRun(ctx, model.StageRun{ID: "1", Key: "a", StartedAt: t0}))
	require.NoError(t, repo.CreateStageRun(ctx, model.StageRun{ID: "2", Key: "a", StartedAt: t0.Add(time.Hour)}))
	require.NoError(t, repo.CreateStageRun(ctx, model.StageRun{ID: "3", Key: "b", StartedAt: t0.Add(2 * time.Hour)}))

	err = repo.CreateStageRun(ctx, model.StageRun{ID: "1", Key: "a"})
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	runs, err := repo.ListStageRuns(ctx, "a")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "2", runs[0].ID)
	assert.Equal(t, "1", runs[1].ID)

	all, err := repo.ListStageRuns(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "3", all[0].ID)
}
