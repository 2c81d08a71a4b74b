package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pdl/orcastream/internal/cli"
	"github.com/pdl/orcastream/internal/platform/logging"
)

func main() {
	level := os.Getenv("ORCATAIL_LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	// stdout carries the command output
	slog.SetDefault(slog.New(logging.NewHandler(level, "text", os.Stderr)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRoot(cli.Connect).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "orcatail:", err)
		stop()
		os.Exit(1)
	}
}
