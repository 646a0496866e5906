package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/trellis/am"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage trellis configuration",
	Long: `am — Manage trellis configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (TRELLIS_* prefix)
2. Project config (./am.toml, searched up the directory tree)
3. User config (~/.trellis/am.toml)
4. System config (/etc/trellis/am.toml)
5. Default values

Examples:
  trellis am show                    # Show current configuration
  trellis am show --format json      # Show configuration in JSON format
  trellis am get storage.backend     # Get specific config value
  trellis am validate                # Validate current configuration
  trellis am init                    # Write a default ./am.toml`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current trellis configuration from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., server.port, storage.backend)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAmInit,
}

var (
	configFormat string
	initForce    bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
	AmCmd.AddCommand(amInitCmd)
}

// formatConfig renders cfg in one of the supported formats.
func formatConfig(cfg *am.Config, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		return string(data) + "\n", nil

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return "", fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		return "# trellis configuration\n" + string(data), nil

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return "", fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		return "# trellis configuration\n" + string(data), nil

	default:
		return "", fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	out, err := formatConfig(cfg, configFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	if _, err := am.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !am.GetViper().IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), "Configuration cascade (later overrides earlier):")
	for _, path := range am.ConfigPaths() {
		status := "missing"
		if _, err := os.Stat(path); err == nil {
			status = "loaded"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s\n", status, path)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "  [env]    TRELLIS_* environment variables")
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := "am.toml"
	if len(args) == 1 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := am.WriteDefault(abs, initForce); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", abs)
	return nil
}
