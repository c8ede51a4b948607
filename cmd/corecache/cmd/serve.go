package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/corecache/internal/daemon"
	"github.com/standardbeagle/corecache/internal/mcp"
	"github.com/standardbeagle/corecache/internal/metrics"
)

func newServeCmd() *cobra.Command {
	var transport string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over the given transport",
		Long: `Start the Model Context Protocol server so AI coding assistants
(Claude Code, Cursor) can call corecache's search/index/index_status
tools directly.

serve does not index the project itself; search answers only for a
root already indexed by 'corecache index', the index tool, or a bare
'corecache' run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, transport, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport: stdio")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "If set, serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, transport, metricsAddr string) error {
	root := projectRoot()

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	ix, err := newIndexer(cfg)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		registry := metrics.NewRegistry()
		mux := http.NewServeMux()
		mux.Handle("/metrics", registry.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			_ = srv.ListenAndServe()
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
		go pollMetrics(ctx, ix, root, registry)
	}

	server, err := mcp.NewServer(ix)
	if err != nil {
		return fmt.Errorf("mcp server init failed: %w", err)
	}
	return server.Serve(ctx, transport)
}

// pollMetrics periodically exports the resident project's cache/coordinator
// counters to registry until ctx is cancelled.
func pollMetrics(ctx context.Context, ix *daemon.Indexer, root string, registry *metrics.Registry) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := ix.Stats(root)
			if err != nil {
				continue
			}
			registry.ObserveEmbedCache(snap.EmbedCache)
			registry.ObserveCoordinator(snap.Coordinator)
		}
	}
}
