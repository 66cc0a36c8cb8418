package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/logger"
)

var (
	configDir string
	debugFlag bool
	jsonFlag  bool

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Relevant context for AI coding agents, within a token budget",
	Long: "recall remembers decisions, fixes and dead ends across coding sessions and " +
		"injects only what is relevant to the files at hand, within a token budget.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding config.toml (default ~/.recall)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json-log", false, "log JSON records")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(injectCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	dir, err := resolveConfigDir()
	if err != nil {
		return err
	}
	c, err := config.Load(dir)
	if err != nil {
		return err
	}
	if debugFlag {
		c.Log.Debug = true
	}
	if jsonFlag {
		c.Log.JSON = true
	}
	cfg = c

	slog.SetDefault(logger.New(
		logger.WithDebug(c.Log.Debug),
		logger.WithJSON(c.Log.JSON),
		logger.WithPretty(c.Log.Pretty),
	))
	return nil
}

func resolveConfigDir() (string, error) {
	if configDir != "" {
		return configDir, nil
	}
	dir, err := config.DefaultDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return dir, nil
}
