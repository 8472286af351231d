// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/goalpilot/cmd"
	"github.com/xkilldash9x/goalpilot/internal/observability"
)

// main is the entry point for the goalpilot CLI.
func main() {
	// Cancelled on SIGINT/SIGTERM so running goals and the API server wind down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := cmd.Execute(ctx)
	stop()
	observability.Sync()

	if err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}
