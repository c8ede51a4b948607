// Package cmd provides the CLI commands for corecache.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/corecache/internal/config"
	"github.com/standardbeagle/corecache/internal/daemon"
	"github.com/standardbeagle/corecache/internal/logging"
	"github.com/standardbeagle/corecache/internal/mcp"
	"github.com/standardbeagle/corecache/pkg/embedder"
	"github.com/standardbeagle/corecache/pkg/version"
)

// embedDimension is the vector width used by the bundled static
// embedder (pkg/embedder.Static). No network or native embedding
// backend is wired, so every indexed project uses this fixed-width
// embedder.
const embedDimension = 128

// Debug logging flag, set on the root command's persistent flags.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the corecache CLI.
func NewRootCmd() *cobra.Command {
	var reindex bool

	cmd := &cobra.Command{
		Use:   "corecache",
		Short: "Local, symbol-aware code search for AI coding assistants",
		Long: `corecache indexes a codebase's symbols (functions, types, methods) and
serves meaning-based search over them through the Model Context Protocol,
so assistants like Claude Code can find relevant code without grepping.

Run 'corecache' with no arguments inside a project to index it (if
needed) and start serving it over stdio immediately.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runSmartDefault(cmd.Context(), cmd, reindex)
		},
	}

	cmd.SetVersionTemplate("corecache version {{.Version}}\n")

	cmd.Flags().BoolVar(&reindex, "reindex", false, "Force reindex even if an index already exists")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.corecache/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logCfg := logging.DebugConfig()
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// projectRoot resolves the project root for the current working
// directory, falling back to cwd itself when no .git or config marker
// is found.
func projectRoot() string {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return root
}

// loadConfig loads corecache's merged configuration for root.
func loadConfig(root string) (*config.Config, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newIndexer builds the daemon.Indexer every CLI command (index, search,
// stats, serve) shares: one static embedder, one vector-store manager
// rooted at cfg.Persistence.CacheDir, and an LRU of resident projects.
func newIndexer(cfg *config.Config) (*daemon.Indexer, error) {
	embedSvc := embedder.NewStatic(embedDimension)
	return daemon.NewIndexer(cfg, embedSvc, 5)
}

// runSmartDefault implements "just run corecache in your project
// directory": find the root, index it if no index exists yet (or
// --reindex was passed), and serve it over stdio.
//
// Mirrors the teacher's BUG-034 constraint: the MCP stdio transport uses
// stdout exclusively for JSON-RPC frames, so nothing may be written to
// stdout before mcp.Server.Serve takes over - all progress here goes
// through slog, which writes to stderr (and to the log file under --debug).
func runSmartDefault(ctx context.Context, cmd *cobra.Command, reindex bool) error {
	root := projectRoot()

	cfg, err := loadConfig(root)
	if err != nil {
		slog.Error("config load failed", slog.String("error", err.Error()))
		return err
	}

	ix, err := newIndexer(cfg)
	if err != nil {
		slog.Error("indexer init failed", slog.String("error", err.Error()))
		return err
	}

	marker := filepath.Join(cfg.Persistence.CacheDir, "vectorindex", "indexed-"+hashDir(root))
	if reindex || !fileExists(marker) {
		slog.Info("indexing project", slog.String("root", root))
		if _, err := ix.HandleIndex(ctx, daemon.IndexParams{RootPath: root, Force: reindex}); err != nil {
			slog.Error("indexing failed", slog.String("error", err.Error()))
			return fmt.Errorf("indexing failed: %w", err)
		}
		_ = os.MkdirAll(filepath.Dir(marker), 0o755)
		_ = os.WriteFile(marker, []byte{}, 0o644)
	}

	server, err := mcp.NewServer(ix)
	if err != nil {
		return fmt.Errorf("mcp server init failed: %w", err)
	}

	return server.Serve(ctx, cfg.Server.Transport)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// hashDir returns a short, stable, filesystem-safe identifier for a
// project root, used to name the "already indexed" marker file.
func hashDir(s string) string {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return fmt.Sprintf("%x", h)
}
