package checkpoint_test

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/slok/stager/internal/archive"
	"github.com/slok/stager/internal/archive/archivemock"
	"github.com/slok/stager/internal/checkpoint"
	"github.com/slok/stager/internal/clock"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/storage"
	"github.com/slok/stager/internal/storage/memory"
	"github.com/slok/stager/internal/storage/storagemock"
)

// flakyArtifacts fails the first uploads before delegating.
type flakyArtifacts struct {
	storage.ArtifactRepository
	failures int
	uploads  int
}

func (f *flakyArtifacts) UploadArtifact(ctx context.Context, req storage.UploadArtifactRequest) (*model.Artifact, error) {
	f.uploads++
	if f.uploads <= f.failures {
		return nil, errors.New("connection reset")
	}
	return f.ArtifactRepository.UploadArtifact(ctx, req)
}

func newMemoryRepo(t *testing.T) *memory.Repository {
	t.Helper()
	r, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	return r
}

func TestManagerSaveRetries(t *testing.T) {
	tests := map[string]struct {
		failures    int
		expAttempts int
		expSleeps   []time.Duration
		expErr      error
	}{
		"A first upload success should not retry.": {
			failures:    0,
			expAttempts: 1,
		},
		"Transient failures should be retried with a fixed delay.": {
			failures:    3,
			expAttempts: 4,
			expSleeps:   []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second},
		},
		"Failing every attempt should exhaust the retries.": {
			failures:  5,
			expSleeps: []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second},
			expErr:    model.ErrUploadExhausted,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			root := t.TempDir()
			require.NoError(os.WriteFile(filepath.Join(root, "a.o"), []byte("a"), 0o644))

			ma := &archivemock.MockArchiver{}
			ma.On("Create", mock.Anything, mock.Anything, root, []string{"a.o"}).Once().Return(func(_ context.Context, archivePath, _ string, _ []string) error {
				return os.WriteFile(archivePath, []byte("archive"), 0o644)
			})

			repo := &flakyArtifacts{ArtifactRepository: newMemoryRepo(t), failures: test.failures}
			fc := clock.NewFake(time.Now())
			m, err := checkpoint.NewManager(checkpoint.ManagerConfig{
				Archiver:  ma,
				Artifacts: repo,
				Clock:     fc,
			})
			require.NoError(err)

			res, err := m.Save(context.TODO(), checkpoint.SaveRequest{
				RootDir:       root,
				Glob:          "**",
				ArchiveName:   "cache.tar.zst",
				RetentionDays: 2,
			})
			assert.Equal(test.expSleeps, fc.Sleeps())
			ma.AssertExpectations(t)
			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
				assert.Equal(5, repo.uploads)
				return
			}
			require.NoError(err)
			assert.Equal(test.expAttempts, res.Attempts)
			assert.Equal(1, res.Files)
			assert.Equal("cache.tar.zst", res.Artifact.Name)
		})
	}
}

func TestManagerSaveCancelledDuringRetry(t *testing.T) {
	require := require.New(t)

	root := t.TempDir()
	ma := &archivemock.MockArchiver{}
	ma.On("Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	mr := &storagemock.MockArtifactRepository{}
	mr.On("UploadArtifact", mock.Anything, mock.Anything).Once().Return(nil, errors.New("boom"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, err := checkpoint.NewManager(checkpoint.ManagerConfig{Archiver: ma, Artifacts: mr, Clock: clock.NewFake(time.Now())})
	require.NoError(err)

	_, err = m.Save(ctx, checkpoint.SaveRequest{RootDir: root, Glob: "**", ArchiveName: "c.tar"})
	assert.ErrorIs(t, err, context.Canceled)
	mr.AssertExpectations(t)
}

func TestManagerInvalidArchiveName(t *testing.T) {
	m, err := checkpoint.NewManager(checkpoint.ManagerConfig{
		Archiver:  &archivemock.MockArchiver{},
		Artifacts: &storagemock.MockArtifactRepository{},
	})
	require.NoError(t, err)

	_, err = m.Save(context.TODO(), checkpoint.SaveRequest{RootDir: t.TempDir(), Glob: "**", ArchiveName: "../x.tar"})
	assert.ErrorIs(t, err, model.ErrNotValid)

	_, err = m.Load(context.TODO(), checkpoint.LoadRequest{ArchiveName: ""})
	assert.ErrorIs(t, err, model.ErrNotValid)
}

func TestManagerLoad(t *testing.T) {
	tests := map[string]struct {
		mock      func(mr *storagemock.MockArtifactRepository, ma *archivemock.MockArchiver, dest string)
		expLoaded bool
		expErr    bool
	}{
		"A missing checkpoint should be a no-op.": {
			mock: func(mr *storagemock.MockArtifactRepository, ma *archivemock.MockArchiver, dest string) {
				mr.On("DownloadArtifact", mock.Anything, "cache.tar", mock.Anything).Once().Return(nil, model.ErrNotFound)
			},
			expLoaded: false,
		},
		"A download error should fail.": {
			mock: func(mr *storagemock.MockArtifactRepository, ma *archivemock.MockArchiver, dest string) {
				mr.On("DownloadArtifact", mock.Anything, "cache.tar", mock.Anything).Once().Return(nil, errors.New("boom"))
			},
			expErr: true,
		},
		"A found checkpoint should be extracted into the destination.": {
			mock: func(mr *storagemock.MockArtifactRepository, ma *archivemock.MockArchiver, dest string) {
				mr.On("DownloadArtifact", mock.Anything, "cache.tar", mock.Anything).Once().Return(func(_ context.Context, _ string, destDir string) *model.Artifact {
					_ = os.WriteFile(filepath.Join(destDir, "cache.tar"), []byte("archive"), 0o644)
					return &model.Artifact{Name: "cache.tar", Files: []model.ArtifactFile{{Path: "cache.tar"}}}
				}, nil)
				ma.On("Extract", mock.Anything, mock.Anything, dest).Once().Return(nil)
			},
			expLoaded: true,
		},
		"A checkpoint with a matching digest should be extracted.": {
			mock: func(mr *storagemock.MockArtifactRepository, ma *archivemock.MockArchiver, dest string) {
				sum := blake3.Sum256([]byte("archive"))
				digest := hex.EncodeToString(sum[:])
				mr.On("DownloadArtifact", mock.Anything, "cache.tar", mock.Anything).Once().Return(func(_ context.Context, _ string, destDir string) *model.Artifact {
					_ = os.WriteFile(filepath.Join(destDir, "cache.tar"), []byte("archive"), 0o644)
					return &model.Artifact{Name: "cache.tar", Files: []model.ArtifactFile{{Path: "cache.tar", Digest: digest}}}
				}, nil)
				ma.On("Extract", mock.Anything, mock.Anything, dest).Once().Return(nil)
			},
			expLoaded: true,
		},
		"A checkpoint with a different digest should fail before extracting.": {
			mock: func(mr *storagemock.MockArtifactRepository, ma *archivemock.MockArchiver, dest string) {
				mr.On("DownloadArtifact", mock.Anything, "cache.tar", mock.Anything).Once().Return(func(_ context.Context, _ string, destDir string) *model.Artifact {
					_ = os.WriteFile(filepath.Join(destDir, "cache.tar"), []byte("tampered"), 0o644)
					return &model.Artifact{Name: "cache.tar", Files: []model.ArtifactFile{{Path: "cache.tar", Digest: "0123"}}}
				}, nil)
			},
			expErr: true,
		},
		"An extraction error should fail.": {
			mock: func(mr *storagemock.MockArtifactRepository, ma *archivemock.MockArchiver, dest string) {
				mr.On("DownloadArtifact", mock.Anything, "cache.tar", mock.Anything).Once().Return(&model.Artifact{Name: "cache.tar", Files: []model.ArtifactFile{{Path: "cache.tar"}}}, nil)
				ma.On("Extract", mock.Anything, mock.Anything, dest).Once().Return(errors.New("corrupt"))
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			dest := t.TempDir()
			mr := &storagemock.MockArtifactRepository{}
			ma := &archivemock.MockArchiver{}
			test.mock(mr, ma, dest)

			m, err := checkpoint.NewManager(checkpoint.ManagerConfig{Archiver: ma, Artifacts: mr})
			require.NoError(err)

			loaded, err := m.Load(context.TODO(), checkpoint.LoadRequest{ArchiveName: "cache.tar", DestDir: dest})
			mr.AssertExpectations(t)
			ma.AssertExpectations(t)
			if test.expErr {
				assert.Error(err)
				return
			}
			require.NoError(err)
			assert.Equal(test.expLoaded, loaded)
		})
	}
}

func TestManagerRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	files := map[string]string{
		"out/a.o":          "alpha",
		"out/.ninja_deps":  "deps",
		"out/gen/b.h":      "beta",
		"src/not-saved.cc": "source",
	}
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(os.WriteFile(p, []byte(content), 0o644))
	}

	archiver, err := archive.NewNative(archive.NativeConfig{})
	require.NoError(err)
	m, err := checkpoint.NewManager(checkpoint.ManagerConfig{
		Archiver:  archiver,
		Artifacts: newMemoryRepo(t),
		TempDir:   t.TempDir(),
	})
	require.NoError(err)

	_, err = m.Save(context.TODO(), checkpoint.SaveRequest{RootDir: root, Glob: "out/**", ArchiveName: "cache.tar.zst"})
	require.NoError(err)

	dest := t.TempDir()
	loaded, err := m.Load(context.TODO(), checkpoint.LoadRequest{ArchiveName: "cache.tar.zst", DestDir: dest})
	require.NoError(err)
	assert.True(loaded)

	got, err := checkpoint.FindFiles(dest, "**")
	require.NoError(err)
	assert.Equal([]string{"out/.ninja_deps", "out/a.o", "out/gen/b.h"}, got)
	for _, name := range got {
		content, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(err)
		assert.Equal(files[name], string(content))
	}
}
