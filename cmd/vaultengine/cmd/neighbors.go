package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/arborlens/vaultengine/internal/config"
	"github.com/arborlens/vaultengine/internal/graph"
	"github.com/arborlens/vaultengine/internal/output"
	"github.com/arborlens/vaultengine/internal/worker"
)

func newNeighborsCmd() *cobra.Command {
	var (
		direction string
		ontology  bool
		format    string
	)

	cmd := &cobra.Command{
		Use:   "neighbors <path>",
		Short: "List a note's raw graph neighbours",
		Long: `Show path's link-graph neighbours with no vector or keyword signal
applied. --ontology switches from direct adjacency to the two-hop
sibling expansion used when path sits in the configured ontology
folder.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNeighbors(cmd, args[0], direction, ontology, format)
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "both", "Edge direction: outbound, inbound, both")
	cmd.Flags().BoolVar(&ontology, "ontology", false, "Use two-hop sibling expansion instead of direct adjacency")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runNeighbors(cmd *cobra.Command, path, direction string, ontology bool, format string) error {
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

	var dir graph.Direction
	switch direction {
	case "outbound":
		dir = graph.DirectionOutbound
	case "inbound":
		dir = graph.DirectionInbound
	case "both", "":
		dir = graph.DirectionBoth
	default:
		return fmt.Errorf("unknown direction %q (want outbound, inbound or both)", direction)
	}
	mode := graph.ModeSimple
	if ontology {
		mode = graph.ModeOntology
	}

	neighbors, err := eng.Neighbors(ctx, path, worker.NeighborOptions{Direction: dir, Mode: mode})
	if err != nil {
		return fmt.Errorf("neighbors failed: %w", err)
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(neighbors)
	}

	out := output.New(cmd.OutOrStdout())
	if len(neighbors) == 0 {
		out.Status("", fmt.Sprintf("No neighbours for %q", path))
		return nil
	}
	out.Statusf("", "%d neighbours of %q:", len(neighbors), path)
	for _, n := range neighbors {
		out.Statusf("", "  %s (weight: %.3f)", n.Path, n.Weight)
	}
	return nil
}
