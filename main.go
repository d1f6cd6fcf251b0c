// The main package for the opinionscan executable.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/opinionscan/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.Execute(ctx)
}
