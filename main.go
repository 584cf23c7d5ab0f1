package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/herdwatch/herdwatch-go/cmd"
	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/logging"
	"github.com/herdwatch/herdwatch-go/internal/telemetry"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init()
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	if err := telemetry.Init(settings); err != nil {
		slog.Warn("telemetry disabled", "error", err)
	}
	defer telemetry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "command error: %v\n", err)
		telemetry.Flush(2 * time.Second)
		os.Exit(1)
	}
}
