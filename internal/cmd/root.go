// Package cmd provides the CLI commands for twinbridge.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/twinbridge/internal/client"
	"github.com/inercia/twinbridge/internal/config"
	"github.com/inercia/twinbridge/internal/logging"
)

// Version is set at build time.
var Version = "dev"

var (
	// Global flags
	configPath    string
	baseURLFlag   string
	userFlag      string
	debug         bool
	logLevel      string // --log-level flag (debug, info, warn, error)
	logFile       string
	logComponents string

	// Loaded configuration, with flags applied
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "twinbridge",
	Short: "twinbridge - A CLI for the twin system agent service",
	Long: `twinbridge talks to a twin system service: a team of AI agents
with per-user memory, learned personalities and a coordinator that
routes requests between them.

It wraps the REST endpoints and the per-user real-time channel.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for help, completion and config creation
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.CommandPath() == "twinbridge config create" {
			return nil
		}

		if err := loadConfig(); err != nil {
			return err
		}

		// Priority: --log-level flag > --debug flag > config file
		effectiveLogLevel := cfg.Log.Level
		if logLevel != "" {
			effectiveLogLevel = logLevel
		} else if debug {
			effectiveLogLevel = "debug"
		}
		path := cfg.Log.File
		if logFile != "" {
			path = logFile
		}
		var file *logging.FileConfig
		if path != "" {
			file = &logging.FileConfig{Path: path}
		}
		if err := logging.Initialize(logging.Config{
			Level:      effectiveLogLevel,
			Console:    cmd.ErrOrStderr(),
			File:       file,
			JSON:       cfg.Log.JSON,
			Components: splitList(logComponents),
		}); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		logging.CLI().Debug("configuration loaded",
			"base_url", cfg.Server.BaseURL,
			"user_id", cfg.User.ID,
			"mode", cfg.Chat.Mode)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Clean up logging resources
		return logging.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path (default: $TWINRC or ~/.twinrc)")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "Base URL of the twin system service (overrides config and TWIN_BASE_URL)")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User ID for conversations, memory and sessions (overrides config and TWIN_USER_ID)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path (logs are also written to console)")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated list of components to log (e.g., 'client,session'). Empty means all components.")
}

// loadConfig loads the configuration file and applies the global flags.
// Precedence: flags > environment > file > defaults.
func loadConfig() error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	var err error
	if configPath != "" {
		// An explicit file must exist.
		cfg, err = config.Load(path)
		if err == nil {
			cfg.ApplyEnv()
		}
	} else {
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if baseURLFlag != "" {
		cfg.Server.BaseURL = baseURLFlag
	}
	if userFlag != "" {
		cfg.User.ID = userFlag
	}
	return cfg.Validate()
}

// newClient builds a REST client from the loaded configuration.
func newClient() *client.Client {
	return client.New(cfg.Server.BaseURL,
		client.WithTimeout(cfg.Server.Timeout),
		client.WithRateLimit(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst),
		client.WithUserAgent("twinbridge/"+Version),
		client.WithLogger(logging.Client()),
	)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
