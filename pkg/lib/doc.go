// Package lib provides a Go SDK to run staged long running builds programmatically.
//
// A staged build is a long task split across several invocations that share a
// time budget. Every invocation runs a stage: it restores the previous
// checkpoint, runs the commands until the shared deadline and saves a new
// checkpoint when the deadline is reached so the next invocation resumes
// from there.
//
// # Quick Start
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.RunStage(ctx, lib.StageOpts{
//	    Key:      "chromium",
//	    Budget:   5 * time.Hour,
//	    Main:     lib.CommandSpec{Command: "ninja -C out chrome", Shell: lib.ShellBash},
//	    Checkpoint: &lib.CheckpointOpts{
//	        RootDir:     "/src",
//	        Glob:        "out/**",
//	        ArchiveName: "build.tar.zst",
//	        Restore:     true,
//	        OnTimeout:   true,
//	    },
//	})
//
// A [StageOutcomeTimeout] outcome is not an error, it means the stage
// stopped on the deadline and the next invocation should continue.
//
// # Storage
//
// By default deadlines, checkpoints and the stage history are kept in a
// SQLite database under ~/.stager. Use [StorageMemory] for tests, the state
// is lost when the client is closed.
//
// # Errors
//
// Errors can be checked with [errors.Is] against [ErrNotFound],
// [ErrNotValid] and [ErrUploadExhausted].
package lib
