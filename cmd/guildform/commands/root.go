package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/config"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/telemetry"
)

// app carries the state shared by every subcommand.
type app struct {
	version string

	// Global flags
	envFiles   []string
	guildID    string
	logLevel   string
	dbPath     string
	schemaPath string

	settings *config.Settings
	tel      *telemetry.Telemetry
	logger   zerolog.Logger
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd, a := newRootCommand(version, commit, buildDate)
	defer a.shutdown()
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) (*cobra.Command, *app) {
	a := &app{version: version, logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "guildform",
		Short: "guildform - Discord server configuration as code",
		Long: `guildform reconciles a Discord guild with a declarative configuration.

Features:
  - Roles, categories, channels and permission overwrites from one file
  - YAML, JSON, CUE and Starlark configuration formats
  - Deterministic diffs with managed-only deletion by default
  - Rate-limited, retrying apply with persisted run history
  - Policy guard-rails via OPA/rego`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "env files to load (default .env if present)")
	rootCmd.PersistentFlags().StringVarP(&a.guildID, "guild", "g", "", "guild id (overrides config and DISCORD_GUILD_ID)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "history database path (overrides GUILDFORM_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&a.schemaPath, "schema", "", "CUE schema defining #ServerConfig for .cue configs")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand(a))
	rootCmd.AddCommand(newDiffCommand(a))
	rootCmd.AddCommand(newApplyCommand(a))
	rootCmd.AddCommand(newStateCommand(a))
	rootCmd.AddCommand(newHistoryCommand(a))
	rootCmd.AddCommand(newWatchCommand(a))

	return rootCmd, a
}

// setup loads settings and telemetry before any subcommand runs.
func (a *app) setup(cmd *cobra.Command) error {
	settings, err := config.LoadSettings(a.envFiles...)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		settings.LogLevel = a.logLevel
	}
	if a.dbPath != "" {
		settings.DBPath = a.dbPath
	}
	a.settings = settings

	tel, err := telemetry.NewTelemetry(settings.Telemetry(a.version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if err := tel.StartMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	a.tel = tel
	a.logger = tel.Logger.NewComponentLogger("cli").Zerolog()

	cmd.SetContext(tel.WithContext(cmd.Context()))
	return nil
}

func (a *app) shutdown() {
	if a.tel == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to flush traces")
	}
}
