package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Run is a high-level CLI entrypoint suitable for black-box tests.
// It accepts the argument slice (excluding argv[0]) and returns the semantic
// exit code plus any error.
func Run(ctx context.Context, args []string) (CLIResult, error) {
	return RunWithIO(ctx, args, os.Stdout, os.Stderr)
}

// RunWithIO is Run with explicit output streams.
func RunWithIO(ctx context.Context, args []string, stdout, stderr io.Writer) (CLIResult, error) {
	return newApp(stdout, stderr).execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) (CLIResult, error) {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	cmd, err := root.ExecuteContextC(ctx)
	res := CLIResult{Command: strings.TrimPrefix(cmd.CommandPath(), root.Name()+" ")}

	// The trace is finalized even when the command failed.
	if a.global.tracePath != "" {
		tr := a.recorder.Trace(res.Command)
		if werr := tr.WriteFile(a.global.tracePath); werr != nil && err == nil {
			err = fmt.Errorf("write trace: %w", werr)
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}

	res.ExitCode = ExitCode(err)
	if err != nil {
		fmt.Fprintf(a.stderr, "error: %v\n", err)
	}
	return res, err
}
