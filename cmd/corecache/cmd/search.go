package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/corecache/internal/daemon"
	"github.com/standardbeagle/corecache/internal/output"
)

type searchOptions struct {
	limit    int
	language string
	format   string
	path     string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed project's symbols",
		Long: `Search a previously indexed project's symbols by meaning, not just
keyword matching.

Examples:
  corecache search "parse incoming request"
  corecache search "retry with backoff" --language go --limit 5
  corecache search "compress embedding" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g. go, python)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.path, "path", ".", "Project root to search (must already be indexed)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(opts.path)
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

	results, err := ix.HandleSearch(ctx, daemon.SearchParams{
		Query:    query,
		RootPath: absPath,
		Limit:    opts.limit,
		Language: opts.language,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		out.Status("", "No matches. Has this project been indexed? Try 'corecache index'.")
		return nil
	}

	for _, r := range results {
		out.Status("", fmt.Sprintf(
			"%-8s %s:%d-%d  %s  (score %.3f)",
			r.Kind, r.FilePath, r.StartLine, r.EndLine, r.DisplayName, r.Score,
		))
	}
	return nil
}
