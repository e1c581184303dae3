package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/kirillkom/testgen-assistant/internal/adapters/http"
	mcpadapter "github.com/kirillkom/testgen-assistant/internal/adapters/mcp"
	"github.com/kirillkom/testgen-assistant/internal/bootstrap"
	"github.com/kirillkom/testgen-assistant/internal/config"
	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/observability/metrics"
)

// Opener wires the application for one command invocation.
type Opener func(ctx context.Context, cfg config.Config) (*bootstrap.App, error)

type commands struct {
	cfg  config.Config
	open Opener
}

// NewRootCommand builds the testgen command tree. Without a subcommand it
// starts the interactive shell.
func NewRootCommand(cfg config.Config, open Opener) *cobra.Command {
	c := &commands{cfg: cfg, open: open}

	root := &cobra.Command{
		Use:           "testgen",
		Short:         "Generate tests grounded in an indexed code base",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.runREPL,
	}

	root.AddCommand(&cobra.Command{
		Use:   "repl",
		Short: "Start the interactive shell (default)",
		Args:  cobra.NoArgs,
		RunE:  c.runREPL,
	})

	askCmd := &cobra.Command{
		Use:   "ask [request]",
		Short: "Answer a single request and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE:  c.runAsk,
	}
	askCmd.Flags().Bool("json", false, "print the full result as JSON")
	root.AddCommand(askCmd)

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Load the index, building it when missing",
		Long: `Loads the persisted index, or builds it from the source tree when none exists.
With --rebuild the source tree is always re-indexed; the previous index stays
in place until the new one is complete.`,
		Args: cobra.NoArgs,
		RunE: c.runIndex,
	}
	indexCmd.Flags().Bool("rebuild", false, "re-index even when an index exists")
	root.AddCommand(indexCmd)

	root.AddCommand(&cobra.Command{
		Use:   "plan [request]",
		Short: "Print the retrieval plan for a request without generating",
		Args:  cobra.MinimumNArgs(1),
		RunE:  c.runPlan,
	})

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  c.runServe,
	})

	root.AddCommand(&cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools over stdio",
		Long: `Starts a Model Context Protocol server on stdio exposing generate_test,
plan_retrieval and rebuild_index.`,
		Args: cobra.NoArgs,
		RunE: c.runMCP,
	})

	return root
}

func (c *commands) openWithIndex(ctx context.Context, rebuild bool) (*bootstrap.App, error) {
	app, err := c.open(ctx, c.cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if _, err := app.LoadIndex(ctx, rebuild); err != nil {
		app.Close()
		return nil, fmt.Errorf("load index: %w", err)
	}
	return app, nil
}

func (c *commands) runREPL(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	app, err := c.openWithIndex(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	if c.cfg.MetricsAddr != "" {
		stop := serveMetrics(c.cfg.MetricsAddr, app.Metrics)
		defer stop()
	}
	return RunREPL(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), app)
}

func (c *commands) runAsk(cmd *cobra.Command, args []string) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("getting json flag: %w", err)
	}

	ctx := cmd.Context()
	app, err := c.openWithIndex(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	request := strings.Join(args, " ")
	if !asJSON {
		answer(ctx, cmd.OutOrStdout(), app, request)
		return nil
	}

	result, err := app.Generate(ctx, request)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func (c *commands) runIndex(cmd *cobra.Command, _ []string) error {
	rebuild, err := cmd.Flags().GetBool("rebuild")
	if err != nil {
		return fmt.Errorf("getting rebuild flag: %w", err)
	}

	ctx := cmd.Context()
	app, err := c.open(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	stats, err := app.LoadIndex(ctx, rebuild)
	if err != nil {
		return err
	}
	if stats.Loaded {
		fmt.Fprintln(cmd.OutOrStdout(), "Index loaded; nothing to build.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunk(s) from %d file(s) in %d batch(es) (%s).\n",
		stats.Chunks, stats.FilesSeen, stats.Batches, stats.Duration.Round(time.Millisecond))
	return nil
}

func (c *commands) runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := c.open(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	return printJSON(cmd, app.Plan(ctx, strings.Join(args, " ")))
}

func (c *commands) runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	app, err := c.openWithIndex(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics(bootstrap.ServiceName, app.Metrics.Registry())
	router := httpadapter.NewRouter(c.cfg, app, app,
		httpadapter.WithIndexer(app),
		httpadapter.WithMetrics(httpMetrics, app.Metrics.Handler()),
	).Handler()

	server := &http.Server{
		Addr:         ":" + c.cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: c.cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api_shutdown_failed", "error", err)
	}
	return nil
}

func (c *commands) runMCP(cmd *cobra.Command, _ []string) error {
	app, err := c.openWithIndex(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	return mcpadapter.NewServer(app, app, app).Serve()
}

func serveMetrics(addr string, pipeline *metrics.PipelineMetrics) func() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", pipeline.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("metrics_listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics_server_failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrNoChunks):
		return 2
	default:
		return 1
	}
}
