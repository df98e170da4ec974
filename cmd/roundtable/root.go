package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ent0n29/roundtable/internal/config"
	"github.com/ent0n29/roundtable/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	envFile string
}

var rootCmd = &cobra.Command{
	Use:   "roundtable",
	Short: "Multi-persona discussions between Big Bang Theory characters",
	Long: "roundtable puts a panel of Big Bang Theory characters around a topic.\n" +
		"Each character speaks in turn, every line is scored for sentiment, and\n" +
		"the panel can keep going for as many rounds as you like.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.Version = version
}

// loadConfig reads the dotenv file and environment, then installs the
// configured slog handler.
func loadConfig() (config.Config, error) {
	if err := config.LoadDotEnv(rootFlags.envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	logging.Init(level, cfg.LogFormat)
	slog.Debug("configuration loaded", "agent_mode", cfg.AgentMode, "scrape_mode", cfg.ScrapeMode)
	return cfg, nil
}
