package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/signalnine/gauntlet/internal/config"
	"github.com/signalnine/gauntlet/internal/provider"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gauntlet",
		Short:        "Evaluation harness for agentic coding models",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "gauntlet.yaml", "config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newRejudgeCmd())
	return root
}

func setupLogging(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

// loadConfig reads --config. A missing file is only an error when the flag was set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.LoadOrDefault(cfgFile, cmd.Flags().Changed("config"))
}

// loadSecrets exports the env file's variables that are not already set.
func loadSecrets(cfg *config.Config) {
	if cfg.Secrets.EnvFile == "" {
		return
	}
	if err := provider.LoadEnvFile(cfg.Secrets.EnvFile); err != nil {
		slog.Warn("could not load secrets", "file", cfg.Secrets.EnvFile, "error", err)
	}
}

func newProviderClient(cfg *config.Config) *provider.Client {
	return provider.New(cfg.Provider.BaseURL, os.Getenv(cfg.Provider.APIKeyEnv))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
