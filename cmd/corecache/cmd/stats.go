package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/corecache/internal/output"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool
	var path string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show embedding-cache and coordinator statistics",
		Long: `Display how effectively the three-tier embedding cache (component H)
and the cached-embedding coordinator (component M) have served the index
at the given project root.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, path, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Project root to report on")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, path string, jsonOutput bool) error {
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

	snap, err := ix.Stats(absPath)
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	out.Status("", fmt.Sprintf("Root:            %s", snap.RootPath))
	out.Status("", fmt.Sprintf("Symbols indexed: %d", snap.SymbolCount))
	out.Status("", fmt.Sprintf("Projects loaded: %d", snap.ProjectsLoaded))
	out.Newline()
	out.Status("", "Embed cache:")
	out.Status("", fmt.Sprintf("  hit rate:  %.1f%%", snap.EmbedCache.HitRate()*100))
	out.Newline()
	out.Status("", "Coordinator:")
	out.Status("", fmt.Sprintf("  hits:      %d", snap.Coordinator.Hits))
	out.Status("", fmt.Sprintf("  misses:    %d", snap.Coordinator.Misses))
	out.Status("", fmt.Sprintf("  reused:    %d", snap.Coordinator.Reused))
	out.Status("", fmt.Sprintf("  generated: %d", snap.Coordinator.Generated))
	return nil
}
