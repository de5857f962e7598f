package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"logsweep/cmd"
)

func main() {
	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals; the run stops before the next file
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	code := cmd.Execute(ctx)
	cancel()
	os.Exit(code)
}
