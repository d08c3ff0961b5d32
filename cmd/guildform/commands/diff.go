package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newDiffCommand(a *app) *cobra.Command {
	var (
		flags    diffFlags
		asJSON   bool
		exitCode bool
	)

	cmd := &cobra.Command{
		Use:   "diff <config>",
		Short: "Show the changes needed to reconcile a guild",
		Long: `Fetch the guild's current state and show the operations that would
bring it in line with the configuration. Nothing is changed.

Deletions are limited to objects carrying the management marker unless
--all is passed. Policies are evaluated and reported but never block.`,
		Example: `  # Show the plan for the guild named in server.id
  guildform diff server.yaml

  # Machine-readable output for a specific guild
  guildform diff -g 123456789012345678 --json server.yaml

  # Exit with status 2 when changes are pending
  guildform diff --exit-code server.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			diff, _, err := a.plan(ctx, out, args[0], &flags)
			if err != nil {
				return err
			}

			pe, err := a.policyEngine(ctx, flags.policyPaths)
			if err != nil {
				return err
			}
			verdict, err := pe.EvaluateDiff(ctx, diff, flags.policyContext("diff", true))
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(struct {
					Diff   interface{} `json:"diff"`
					Policy interface{} `json:"policy"`
				}{diff, verdict}); err != nil {
					return err
				}
			} else {
				fmt.Fprint(out, renderDiff(diff))
				renderPolicyResult(out, verdict)
			}

			if exitCode && diff.HasChanges {
				return &exitError{msg: "changes pending", code: 2}
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the diff and policy result as JSON")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "exit with status 2 when changes are pending")

	return cmd
}
