// Package cmd provides the vaultengine CLI commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/arborlens/vaultengine/internal/config"
	"github.com/arborlens/vaultengine/internal/logging"
	"github.com/arborlens/vaultengine/internal/profiling"
	"github.com/arborlens/vaultengine/pkg/version"
)

var (
	vaultDir string
	dataDir  string

	debugMode bool

	profileCPU string
	profileMem string
	profiler   = profiling.NewProfiler()
	cpuCleanup func()

	loggingCleanup func()
)

// NewRootCmd creates the root command for the vaultengine CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vaultengine",
		Short: "Personal-knowledge retrieval engine over a markdown vault",
		Long: `vaultengine indexes a vault of markdown notes into a hybrid
vector + link-graph index and answers two kinds of queries: documents
similar to a seed document, and documents relevant to a free-text query.

It runs entirely locally. Run 'vaultengine index' in a vault once, then
'vaultengine search <query>' or 'vaultengine similar <path>'.`,
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: startProfilingAndLogging,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			stopProfilingAndLogging()
			return nil
		},
	}
	cmd.SetVersionTemplate("vaultengine version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&vaultDir, "vault", ".", "Vault root directory")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override the index data directory (default: <vault>/.vaultengine)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.vaultengine/logs/")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSimilarCmd())
	cmd.AddCommand(newNeighborsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
	}
	if profileCPU != "" {
		cleanup, err := profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("start CPU profile: %w", err)
		}
		cpuCleanup = cleanup
	}
	return nil
}

func stopProfilingAndLogging() {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			fmt.Fprintf(os.Stderr, "write memory profile: %v\n", err)
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// resolveDataDir picks the index data directory for vaultRoot. An explicit
// --data-dir flag or VAULTENGINE_DATA_DIR environment variable wins; absent
// either, every vault gets its own hidden data directory rather than
// sharing cfg.Storage.DataDir's machine-wide default, so two vaults indexed
// with the same embedding model never collide on the same shard files.
func resolveDataDir(vaultRoot string, cfg *config.Config) string {
	if dataDir != "" {
		return dataDir
	}
	if env := os.Getenv("VAULTENGINE_DATA_DIR"); env != "" {
		return env
	}
	return filepath.Join(vaultRoot, ".vaultengine")
}
