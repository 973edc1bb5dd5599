package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"playbookctl/internal/cli"
)

// main only wires signals and the exit code; cli.Run reports errors itself.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	result, _ := cli.Run(ctx, os.Args[1:])
	stop()
	os.Exit(result.ExitCode)
}
