package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/stager/internal/model"
)

func TestRunCommandStageConfig(t *testing.T) {
	t.Setenv("FROM_HOST", "host-value")

	tests := map[string]struct {
		stageFile string
		cmd       func(c *RunCommand)
		expCfg    model.StageConfig
		expErr    bool
	}{
		"Flags alone should build the stage": {
			cmd: func(c *RunCommand) {
				c.commands = "make deps\nmake all"
				c.key = "build"
				c.budget = time.Hour
				c.envSpecs = []string{"FOO=bar", "FROM_HOST"}
				c.ignoreExitCodes = "124,3"
			},
			expCfg: model.StageConfig{
				Key:    "build",
				Main:   model.CommandSpec{Commands: []string{"make deps", "make all"}},
				Budget: time.Hour,
				Opts: model.ExecOpts{
					Env:             map[string]string{"FOO": "bar", "FROM_HOST": "host-value"},
					IgnoreExitCodes: []int{124, 3},
				},
				RetentionDays: 1,
			},
		},

		"A shell should apply to the command and hooks": {
			cmd: func(c *RunCommand) {
				c.command = "./build.sh"
				c.shell = "bash"
				c.before = "./setup.sh"
				c.budget = time.Minute
			},
			expCfg: model.StageConfig{
				Before:        model.CommandSpec{Command: "./setup.sh", Shell: model.ShellBash},
				Main:          model.CommandSpec{Command: "./build.sh", Shell: model.ShellBash},
				Budget:        time.Minute,
				RetentionDays: 1,
			},
		},

		"Hooks without shell should be split per line": {
			cmd: func(c *RunCommand) {
				c.command = "make"
				c.after = "echo one\r\necho two"
				c.budget = time.Minute
			},
			expCfg: model.StageConfig{
				Main:          model.CommandSpec{Command: "make"},
				After:         model.CommandSpec{Commands: []string{"echo one", "echo two"}, Shell: model.ShellNone},
				Budget:        time.Minute,
				RetentionDays: 1,
			},
		},

		"Flags should override the stage file": {
			stageFile: `key: chromium
budget: 5h
main:
  shell: bash
  command: ninja -C out chrome
env:
  FOO: bar
checkpoint:
  glob: "out/**"
  archive_name: build.tar.zst
  retention_days: 3
`,
			cmd: func(c *RunCommand) {
				c.budget = 2 * time.Hour
				c.envSpecs = []string{"BAZ=qux"}
				c.archiveName = "other.tar.zst"
				c.checkpointOnTimeout = true
				c.input = "y"
			},
			expCfg: model.StageConfig{
				Key:    "chromium",
				Before: model.CommandSpec{Shell: model.ShellNone},
				Main:   model.CommandSpec{Command: "ninja -C out chrome", Shell: model.ShellBash},
				After:  model.CommandSpec{Shell: model.ShellNone},
				Budget: 2 * time.Hour,
				Opts: model.ExecOpts{
					Env:   map[string]string{"FOO": "bar", "BAZ": "qux"},
					Input: []byte("y"),
				},
				Checkpoint: model.CheckpointConfig{
					Glob:        "out/**",
					ArchiveName: "other.tar.zst",
				},
				CheckpointOnTimeout: true,
				RetentionDays:       3,
			},
		},

		"Latin1 input should be encoded": {
			cmd: func(c *RunCommand) {
				c.command = "cat"
				c.budget = time.Minute
				c.input = "é"
				c.inputEncoding = "latin1"
			},
			expCfg: model.StageConfig{
				Main:          model.CommandSpec{Command: "cat"},
				Budget:        time.Minute,
				Opts:          model.ExecOpts{Input: []byte{0xe9}},
				RetentionDays: 1,
			},
		},

		"Commands and command together should fail": {
			cmd: func(c *RunCommand) {
				c.commands = "make"
				c.command = "make"
			},
			expErr: true,
		},

		"Commands with a shell should fail": {
			cmd: func(c *RunCommand) {
				c.commands = "make\nmake install"
				c.shell = "bash"
			},
			expErr: true,
		},

		"Invalid env should fail": {
			cmd: func(c *RunCommand) {
				c.command = "make"
				c.envSpecs = []string{"DOES_NOT_EXIST_STAGER"}
			},
			expErr: true,
		},

		"Invalid exit codes should fail": {
			cmd: func(c *RunCommand) {
				c.command = "make"
				c.ignoreExitCodes = "a,b"
			},
			expErr: true,
		},

		"A missing stage file should fail": {
			cmd: func(c *RunCommand) {
				c.configFile = filepath.Join(t.TempDir(), "missing.yaml")
			},
			expErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			c := &RunCommand{inputEncoding: "utf8"}
			if tc.stageFile != "" {
				path := filepath.Join(t.TempDir(), "stage.yaml")
				require.NoError(os.WriteFile(path, []byte(tc.stageFile), 0o644))
				c.configFile = path
			}
			tc.cmd(c)

			cfg, err := c.stageConfig(context.Background())

			if tc.expErr {
				assert.Error(err)
				return
			}
			require.NoError(err)
			assert.Equal(tc.expCfg, cfg)
		})
	}
}
