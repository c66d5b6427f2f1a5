package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	embeddedconfig "github.com/inercia/twinbridge/config"
	"github.com/inercia/twinbridge/internal/config"
)

var (
	configOutputPath string
	configForce      bool
)

// configCmd represents the config parent command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage twinbridge configuration",
}

// configCreateCmd represents the config create subcommand
var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a default configuration file",
	Long: `Write the default configuration to ~/.twinrc (or --output).

Examples:
  twinbridge config create                    # Create ~/.twinrc
  twinbridge config create --output /path/to  # Create /path/to/.twinrc
  twinbridge config create --force            # Overwrite existing file`,
	Args: cobra.NoArgs,
	RunE: runConfigCreate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printYAML(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCreateCmd)
	configCmd.AddCommand(configShowCmd)

	configCreateCmd.Flags().StringVarP(&configOutputPath, "output", "o", "",
		"Directory to write the config file (default: $HOME)")
	configCreateCmd.Flags().BoolVarP(&configForce, "force", "f", false,
		"Overwrite existing configuration file")
}

func runConfigCreate(cmd *cobra.Command, args []string) error {
	outputDir := configOutputPath
	if outputDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		outputDir = homeDir
	}
	return writeDefaultConfig(cmd.OutOrStdout(), filepath.Join(outputDir, config.ConfigFileName), configForce)
}

func writeDefaultConfig(w io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		fmt.Fprintf(w, "⚠️  Configuration file already exists: %s\n", path)
		fmt.Fprintln(w, "Use --force to overwrite the existing file.")
		return nil
	}
	if err := os.WriteFile(path, embeddedconfig.DefaultConfigYAML, 0o644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	fmt.Fprintf(w, "✅ Configuration file created: %s\n", path)
	return nil
}
