package cmd

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arborlens/vaultengine/internal/config"
	"github.com/arborlens/vaultengine/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run system diagnostics to ensure vaultengine can operate correctly
against the current --vault.

Checks:
  - Disk space (100MB minimum)
  - Memory availability (1GB minimum)
  - Write permissions
  - File descriptor limits (1024 minimum)
  - Embedder model status (downloaded/missing)
  - Embedder disk space

Embedder checks are non-critical warnings: if the model is missing,
vaultengine falls back to the static embedder.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput bool) error {
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

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, root)

	if jsonOutput {
		return outputDoctorJSON(cmd, checker, results)
	}

	checker.PrintResults(results)

	dataDir := resolveDataDir(root, cfg)
	if !preflight.NeedsCheck(dataDir) {
		if age := preflight.MarkerAge(dataDir); age > 0 {
			cmd.Printf("\nLast successful check: %s ago\n", age.Round(1e9))
		}
	} else if !checker.HasCriticalFailures(results) {
		_ = preflight.MarkPassed(dataDir)
	}

	if checker.HasCriticalFailures(results) {
		return &doctorError{message: "system check failed"}
	}
	return nil
}

type doctorError struct{ message string }

func (e *doctorError) Error() string { return e.message }

type jsonCheckResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func outputDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := struct {
		Status   string            `json:"status"`
		Checks   []jsonCheckResult `json:"checks"`
		Warnings []string          `json:"warnings,omitempty"`
		Errors   []string          `json:"errors,omitempty"`
	}{
		Status: checker.SummaryStatus(results),
		Checks: make([]jsonCheckResult, len(results)),
	}

	for i, r := range results {
		out.Checks[i] = jsonCheckResult{
			Name:     r.Name,
			Status:   r.Status.String(),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}
		switch {
		case r.IsCritical():
			out.Errors = append(out.Errors, r.Name+": "+r.Message)
		case r.Status == preflight.StatusWarn:
			out.Warnings = append(out.Warnings, r.Name+": "+r.Message)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
