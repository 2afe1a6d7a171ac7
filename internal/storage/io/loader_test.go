package io

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/stager/internal/model"
)

func TestStageYAMLRepository_GetStageConfig(t *testing.T) {
	tests := map[string]struct {
		fs     fstest.MapFS
		path   string
		expCfg model.StageConfig
		expErr bool
		errMsg string
	}{
		"A complete stage should load successfully": {
			fs: fstest.MapFS{
				"stage.yaml": &fstest.MapFile{
					Data: []byte(`key: chromium
working_dir: /src
budget: 5h
before:
  shell: bash
  command: ./setup.sh
main:
  commands:
    - ninja -C out chrome
    - ninja -C out chromedriver
after:
  shell: sh
  command: ./package.sh
env:
  FOO: bar
input: "y"
ignore_exit_codes: [124, 3]
fail_on_stderr: true
checkpoint:
  root_dir: /src
  glob: "out/**"
  archive_name: build.tar.zst
  restore: true
  on_timeout: true
  retention_days: 2
`),
				},
			},
			path: "stage.yaml",
			expCfg: model.StageConfig{
				Key:    "chromium",
				Before: model.CommandSpec{Command: "./setup.sh", Shell: model.ShellBash},
				Main: model.CommandSpec{
					Commands: []string{"ninja -C out chrome", "ninja -C out chromedriver"},
					Shell:    model.ShellNone,
				},
				After: model.CommandSpec{Command: "./package.sh", Shell: model.ShellSh},
				Opts: model.ExecOpts{
					WorkingDir:      "/src",
					Env:             map[string]string{"FOO": "bar"},
					Input:           []byte("y"),
					IgnoreExitCodes: []int{124, 3},
					FailOnStderr:    true,
				},
				Budget: 5 * time.Hour,
				Checkpoint: model.CheckpointConfig{
					RootDir:     "/src",
					Glob:        "out/**",
					ArchiveName: "build.tar.zst",
				},
				Restore:             true,
				CheckpointOnTimeout: true,
				RetentionDays:       2,
			},
		},
		"A budget in milliseconds should load successfully": {
			fs: fstest.MapFS{
				"stage.yaml": &fstest.MapFile{Data: []byte("budget: 1500\nmain:\n  command: make\n  shell: sh\n")},
			},
			path: "stage.yaml",
			expCfg: model.StageConfig{
				Before: model.CommandSpec{Shell: model.ShellNone},
				Main:   model.CommandSpec{Command: "make", Shell: model.ShellSh},
				After:  model.CommandSpec{Shell: model.ShellNone},
				Budget: 1500 * time.Millisecond,
			},
		},
		"Input should be encoded with the input encoding": {
			fs: fstest.MapFS{
				"stage.yaml": &fstest.MapFile{Data: []byte("input: ab\ninput_encoding: utf16le\n")},
			},
			path: "stage.yaml",
			expCfg: model.StageConfig{
				Before: model.CommandSpec{Shell: model.ShellNone},
				Main:   model.CommandSpec{Shell: model.ShellNone},
				After:  model.CommandSpec{Shell: model.ShellNone},
				Opts:   model.ExecOpts{Input: []byte{'a', 0, 'b', 0}},
			},
		},
		"Missing file should return error": {
			fs:     fstest.MapFS{},
			path:   "nonexistent.yaml",
			expErr: true,
			errMsg: "reading stage file",
		},
		"Invalid YAML should return error": {
			fs: fstest.MapFS{
				"invalid.yaml": &fstest.MapFile{Data: []byte(`invalid: yaml: content: {}`)},
			},
			path:   "invalid.yaml",
			expErr: true,
			errMsg: "parsing YAML",
		},
		"Invalid budget should return error": {
			fs: fstest.MapFS{
				"stage.yaml": &fstest.MapFile{Data: []byte("budget: soon\n")},
			},
			path:   "stage.yaml",
			expErr: true,
			errMsg: "invalid duration",
		},
		"Unknown shell should return error": {
			fs: fstest.MapFS{
				"stage.yaml": &fstest.MapFile{Data: []byte("main:\n  shell: fish\n  command: ls\n")},
			},
			path:   "stage.yaml",
			expErr: true,
			errMsg: "unknown shell",
		},
		"Command and commands at the same time should return error": {
			fs: fstest.MapFS{
				"stage.yaml": &fstest.MapFile{Data: []byte("main:\n  command: ls\n  commands: [ls]\n")},
			},
			path:   "stage.yaml",
			expErr: true,
			errMsg: "mutually exclusive",
		},
		"Unknown input encoding should return error": {
			fs: fstest.MapFS{
				"stage.yaml": &fstest.MapFile{Data: []byte("input: x\ninput_encoding: ebcdic\n")},
			},
			path:   "stage.yaml",
			expErr: true,
			errMsg: "unknown encoding",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			repo := NewStageYAMLRepository(tc.fs)
			cfg, err := repo.GetStageConfig(context.Background(), tc.path)

			if tc.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expCfg, cfg)
		})
	}
}

func TestStageYAMLRepository_GetStageConfig_ContextCancellation(t *testing.T) {
	fs := fstest.MapFS{
		"test.yaml": &fstest.MapFile{Data: []byte("key: test\n")},
	}

	repo := NewStageYAMLRepository(fs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetStageConfig(ctx, "test.yaml")
	require.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}
