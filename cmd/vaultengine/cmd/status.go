package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/arborlens/vaultengine/internal/config"
	"github.com/arborlens/vaultengine/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the current index: how many notes are
indexed, the on-disk size of each shard, and which embedder is active.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	root, err := filepath.Abs(vaultDir)
	if err != nil {
		root = vaultDir
	}
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	dataDir := resolveDataDir(root, cfg)

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return &doctorError{message: "no index found in " + root + ": run 'vaultengine index' to create one"}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusStartupTimeout)
	defer cancel()

	eng, err := startEngine(ctx, root, cfg, nil)
	if err != nil {
		return err
	}
	defer eng.Stop()

	embedCfg, err := embedderConfig(cfg)
	if err != nil {
		return err
	}

	states, err := eng.FileStates()
	if err != nil {
		return err
	}

	// The keyword index (bleve, MemOnly) and vector index live only in
	// worker memory, rebuilt from the persisted shard at Start; only the
	// shard itself is on disk, so it accounts for the whole MetadataSize.
	info := ui.StatusInfo{
		VaultName:      filepath.Base(root),
		TotalFiles:     len(states),
		MetadataSize:   dirSize(filepath.Join(dataDir, "index")),
		EmbedderType:   string(embedCfg.Provider),
		EmbedderModel:  embedCfg.Model,
		EmbedderStatus: "ready",
		WatcherStatus:  "n/a",
	}
	info.TotalSize = info.MetadataSize + info.KeywordSize + info.VectorSize

	if jsonOutput {
		renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), true)
		return renderer.RenderJSON(info)
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	return renderer.Render(info)
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !fi.IsDir() {
			size += fi.Size()
		}
		return nil
	})
	return size
}
