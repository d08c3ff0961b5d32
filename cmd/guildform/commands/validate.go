package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/config"
)

func newValidateCommand(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a server configuration file",
		Long: `Validate a server configuration file without contacting Discord.

This command checks:
  - Syntax for YAML, JSON, CUE and Starlark sources
  - Schema conformance and field limits
  - Permission flag names and allow/deny conflicts
  - References between channels, categories and roles`,
		Example: `  # Validate a YAML configuration
  guildform validate server.yaml

  # Treat warnings as failures
  guildform validate --strict server.star`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := args[0]

			a.logger.Info().Str("path", path).Bool("strict", strict).Msg("Validating configuration")

			cfg, err := a.loadConfig(cmd.Context(), out, path)
			if err != nil {
				return err
			}

			warnings := config.NewValidator().Check(cfg).Warnings()
			for _, w := range warnings {
				fmt.Fprintln(out, styles.warning.Render("  ! ")+w.Error())
			}

			fmt.Fprintf(out, "%s %s: %d roles, %d categories, %d channels\n",
				styles.ok.Render("✓"), path, len(cfg.Roles), len(cfg.Categories), len(cfg.Channels))

			if strict && len(warnings) > 0 {
				return &exitError{msg: fmt.Sprintf("%d warnings in strict mode", len(warnings))}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail on warnings")

	return cmd
}
