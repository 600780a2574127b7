package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arborlens/vaultengine/internal/config"
	"github.com/arborlens/vaultengine/internal/output"
	"github.com/arborlens/vaultengine/internal/worker"
)

func newSearchCmd() *cobra.Command {
	var (
		limit    int
		format   string
		reflex   bool
		minScore float64
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the vault",
		Long: `Search the indexed vault using the hybrid relevance scorer.

By default this runs the deep query mode (vector + keyword + one-hop
graph expansion). --reflex switches to the faster, keyword-dominant
mode used for as-you-type suggestions.`,
		Example: `  vaultengine search "spaced repetition"
  vaultengine search "zettelkasten" --reflex --limit 5
  vaultengine search "project planning" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, limit, format, reflex, minScore)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&reflex, "reflex", false, "Use the reflex (keyword-dominant) query mode")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Drop results scoring below this threshold")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, limit int, format string, reflex bool, minScore float64) error {
	root, err := filepath.Abs(vaultDir)
	if err != nil {
		root = vaultDir
	}
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusStartupTimeout)
	defer cancel()

	eng, err := startEngine(ctx, root, cfg, nil)
	if err != nil {
		return err
	}
	defer eng.Stop()

	var results []worker.SearchResult
	if reflex {
		results, err = eng.KeywordSearch(ctx, query, limit)
	} else {
		results, err = eng.Search(ctx, query, limit)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if minScore > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= minScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return printSearchResults(cmd, query, results)
}

func printSearchResults(cmd *cobra.Command, query string, results []worker.SearchResult) error {
	out := output.New(cmd.OutOrStdout())
	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results for %q", query))
		return nil
	}
	out.Statusf("", "Found %d results for %q:", len(results), query)
	out.Newline()
	for i, r := range results {
		label := r.Path
		if r.Drifted {
			label += " (content drifted)"
		} else if r.Healed {
			label += " (healed)"
		}
		out.Statusf("", "%d. %s (score: %.3f)", i+1, label, r.Score)
		if r.Excerpt != "" {
			out.Status("", "   "+firstLine(r.Excerpt))
		}
	}
	return nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func newSimilarCmd() *cobra.Command {
	var (
		limit    int
		format   string
		minScore float64
	)

	cmd := &cobra.Command{
		Use:   "similar <path>",
		Short: "Find notes similar to a seed note",
		Long: `Find documents related to a seed document via the graph-enhanced
similar-to-seed signal: a candidate surfaced by both the vector index
and the link graph scores highest, a pure graph neighbour is floored by
its edge weight, and the symmetric noise floor still applies.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimilar(cmd, args[0], limit, format, minScore)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Drop results scoring below this threshold")

	return cmd
}

func runSimilar(cmd *cobra.Command, path string, limit int, format string, minScore float64) error {
	root, err := filepath.Abs(vaultDir)
	if err != nil {
		root = vaultDir
	}
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusStartupTimeout)
	defer cancel()

	eng, err := startEngine(ctx, root, cfg, nil)
	if err != nil {
		return err
	}
	defer eng.Stop()

	results, err := eng.Similar(ctx, path, limit, minScore)
	if err != nil {
		return fmt.Errorf("similar failed: %w", err)
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return printSearchResults(cmd, path, results)
}
