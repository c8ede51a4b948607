package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/standardbeagle/corecache/internal/daemon"
	"github.com/standardbeagle/corecache/internal/output"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory's symbols for searching",
		Long: `Scan a directory, parse every supported source file, extract its
symbols, embed them, and build a vector index over them.

Use --force to rebuild the index from scratch even if one already exists
for this root.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rebuild the index from scratch")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	cfg, err := loadConfig(absPath)
	if err != nil {
		return err
	}

	ix, err := newIndexer(cfg)
	if err != nil {
		return err
	}

	var result daemon.IndexResult
	if isatty.IsTerminal(os.Stdout.Fd()) {
		result, err = runIndexInteractive(ctx, ix, absPath, force)
	} else {
		out.Status("", fmt.Sprintf("Indexing %s...", absPath))
		result, err = ix.HandleIndex(ctx, daemon.IndexParams{RootPath: absPath, Force: force})
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	out.Success(fmt.Sprintf(
		"Indexed %d/%d files, %d symbols, in %dms",
		result.FilesIndexed, result.FilesScanned, result.SymbolsFound, result.DurationMS,
	))
	return nil
}

// runIndexInteractive drives a bubbletea spinner while HandleIndex runs in
// the background, fed progress counters through daemon.IndexParams.Progress.
func runIndexInteractive(ctx context.Context, ix *daemon.Indexer, absPath string, force bool) (daemon.IndexResult, error) {
	p := tea.NewProgram(newIndexProgressModel())

	go func() {
		result, err := ix.HandleIndex(ctx, daemon.IndexParams{
			RootPath: absPath,
			Force:    force,
			Progress: func(scanned, indexed, symbols int) {
				p.Send(progressMsg{scanned: scanned, indexed: indexed, symbols: symbols})
			},
		})
		p.Send(indexDoneMsg{result: result, err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return daemon.IndexResult{}, err
	}
	m := finalModel.(indexProgressModel)
	return m.result, m.err
}
