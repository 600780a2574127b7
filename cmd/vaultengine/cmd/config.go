package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arborlens/vaultengine/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vaultengine configuration",
		Long: `Manage the user and vault-local configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/vaultengine/config.yaml)
  3. Vault-local config (.vaultengine.yaml, at --vault)
  4. Environment variables (VAULTENGINE_*)`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force  bool
		global bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from defaults",
		Long: `Create a configuration file populated with the current defaults.

Without --global, the file is written to --vault/.vaultengine.yaml.
With --global, it is written to the user config path instead, applying
to every vault on this machine.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force, global)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	cmd.Flags().BoolVar(&global, "global", false, "Write the user config instead of a vault-local one")

	return cmd
}

func runConfigInit(cmd *cobra.Command, force, global bool) error {
	var path string
	if global {
		path = config.GetUserConfigPath()
	} else {
		root, err := filepath.Abs(vaultDir)
		if err != nil {
			root = vaultDir
		}
		path = filepath.Join(root, ".vaultengine.yaml")
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := config.NewConfig().WriteYAML(path); err != nil {
		return err
	}
	cmd.Printf("Wrote %s\n", path)
	return nil
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Print the configuration that would be used for --vault, after merging defaults, user config, vault-local config and environment overrides.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON instead of YAML")

	return cmd
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool) error {
	root, err := filepath.Abs(vaultDir)
	if err != nil {
		root = vaultDir
	}
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func newConfigPathCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if global {
				cmd.Println(config.GetUserConfigPath())
				return nil
			}
			root, err := filepath.Abs(vaultDir)
			if err != nil {
				root = vaultDir
			}
			cmd.Println(filepath.Join(root, ".vaultengine.yaml"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "Print the user config path instead of the vault-local one")

	return cmd
}
