package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arborlens/vaultengine/internal/async"
	"github.com/arborlens/vaultengine/internal/config"
	"github.com/arborlens/vaultengine/internal/facade"
	"github.com/arborlens/vaultengine/internal/fsadapter"
	"github.com/arborlens/vaultengine/internal/ui"
)

// indexPollInterval is how often the index command samples worker
// progress while waiting for the startup delta scan to drain.
const indexPollInterval = 300 * time.Millisecond

// indexQuietPeriod is how long the indexed-file count must hold steady
// before the index command considers the initial scan drained.
const indexQuietPeriod = 2 * time.Second

func newIndexCmd() *cobra.Command {
	var (
		noTUI bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the vault",
		Long: `Bring the index for --vault up to date: scan every markdown note,
chunk and embed anything new or changed, rebuild the link graph, and
persist the result.

This is the same delta scan that runs automatically at the start of
every command; 'vaultengine index' just waits for it to finish and
reports progress.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, noTUI, force)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable the interactive progress display")
	cmd.Flags().BoolVar(&force, "force", false, "Discard the existing index and rebuild from scratch")

	return cmd
}

func runIndex(cmd *cobra.Command, noTUI, force bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := filepath.Abs(vaultDir)
	if err != nil {
		root = vaultDir
	}
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	fs := fsadapter.New(root)
	files, err := fs.ListMarkdown()
	if err != nil {
		return fmt.Errorf("list markdown files: %w", err)
	}

	uiCfg := ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(noTUI), ui.WithVaultDir(root))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "progress display unavailable: %v\n", err)
	}
	defer func() { _ = renderer.Stop() }()

	start := time.Now()

	eng, err := buildEngine(root, cfg, nil)
	if err != nil {
		return err
	}

	if force {
		renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "discarding existing index"})
		if err := eng.FullReset(); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
	}

	embedCfg, err := embedderConfig(cfg)
	if err != nil {
		return err
	}
	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Total: len(files), Message: "starting worker"})
	if err := eng.Start(ctx, embedCfg); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Stop()

	if err := waitForDrain(ctx, eng, renderer, len(files)); err != nil {
		return err
	}

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Total: len(files), Current: len(files), Message: "persisting index"})
	if _, err := eng.SaveIndex(); err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	states, _ := eng.FileStates()
	renderer.Complete(ui.CompletionStats{
		Files:    len(states),
		Duration: time.Since(start),
		Embedder: ui.EmbedderInfo{Backend: string(embedCfg.Provider), Model: embedCfg.Model},
	})
	return nil
}

// waitForDrain polls the worker's indexed-file count until it stops
// changing for indexQuietPeriod (the sync orchestrator has finished the
// startup delta scan it enqueued in Start), or ctx is cancelled. The
// facade exposes no completion signal for the debounced low-priority
// queue, so settling on a quiet count is the best available proxy.
func waitForDrain(ctx context.Context, eng *facade.Engine, renderer ui.Renderer, total int) error {
	ticker := time.NewTicker(indexPollInterval)
	defer ticker.Stop()

	lastCount := -1
	quietSince := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		states, err := eng.FileStates()
		if err != nil {
			return fmt.Errorf("poll file states: %w", err)
		}
		count := len(states)
		snap := eng.Progress()
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   mapIndexStage(snap.Stage),
			Current: count,
			Total:   total,
			Message: fmt.Sprintf("%d/%d chunks embedded", snap.ChunksIndexed, snap.ChunksTotal),
		})

		if count != lastCount {
			lastCount = count
			quietSince = time.Now()
			continue
		}
		if time.Since(quietSince) >= indexQuietPeriod {
			return nil
		}
	}
}

// mapIndexStage translates the worker's async.IndexProgress stage (a
// plain string enum safe to poll cross-goroutine without importing
// internal/worker's command types into internal/ui) into the ui
// package's own Stage, used by both the TUI tracker and the plain
// renderer.
func mapIndexStage(stage string) ui.Stage {
	switch async.IndexingStage(stage) {
	case async.StageScanning:
		return ui.StageScanning
	case async.StageChunking:
		return ui.StageChunking
	case async.StageEmbedding:
		return ui.StageEmbedding
	case async.StageIndexing:
		return ui.StageIndexing
	default:
		return ui.StageScanning
	}
}
