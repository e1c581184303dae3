package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/testgen-assistant/internal/adapters/cli"
	"github.com/kirillkom/testgen-assistant/internal/bootstrap"
	"github.com/kirillkom/testgen-assistant/internal/config"
	"github.com/kirillkom/testgen-assistant/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
	slog.SetDefault(logging.NewJSONLogger(bootstrap.ServiceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cfg, bootstrap.New)
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("command_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(cli.ExitCode(err))
	}
}
