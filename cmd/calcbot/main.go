package main

import (
	"fmt"
	"log/slog"
	"os"

	"calcbot/internal/config"

	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logLevel   = new(slog.LevelVar)
	logger     = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	configPath string // overridable via --config flag
	envFile    string
)

func main() {
	root := &cobra.Command{
		Use:     "calcbot",
		Short:   "calcbot: answers calculations posted in chat",
		Long:    "calcbot watches Discord, Telegram and Slack conversations, answers messages that look like calculations or currency conversions, and stays silent otherwise.",
		Version: version,

		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.calcbot/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with tokens, loaded when present")

	root.AddCommand(gatewayCmd())
	root.AddCommand(calcCmd())
	root.AddCommand(triageCmd())
	root.AddCommand(ratesCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the env file and the config, then applies the log level.
func loadConfig() (*config.Config, error) {
	if loaded, err := config.LoadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	} else if loaded {
		logger.Debug("environment file loaded", "path", envFile)
	}
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logLevel.UnmarshalText([]byte(cfg.General.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return cfg, nil
}
