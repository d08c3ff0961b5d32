package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/engine"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/policy"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/stores"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/telemetry"
)

func newApplyCommand(a *app) *cobra.Command {
	var (
		flags           diffFlags
		dryRun          bool
		continueOnError bool
		autoApprove     bool
		noHistory       bool
	)

	cmd := &cobra.Command{
		Use:   "apply <config>",
		Short: "Reconcile a guild with a configuration",
		Long: `Compute the diff for a guild and apply it.

Operations run one at a time in dependency order: roles, then categories,
then channels, then permission overwrites. Every call is rate limited and
retried on transient failures. The first failure stops the apply unless
--continue-on-error is passed.

Blocking policy violations refuse the apply before any change is made.
Each run is recorded in the history database unless --no-history is set.`,
		Example: `  # Preview without changing anything
  guildform apply --dry-run server.yaml

  # Apply without the confirmation prompt
  guildform apply --auto-approve server.yaml

  # Allow up to 20 deletions
  guildform apply --max-deletes 20 server.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			diff, state, err := a.plan(ctx, out, args[0], &flags)
			if err != nil {
				return err
			}
			if !diff.HasChanges {
				fmt.Fprintln(out, styles.ok.Render("No changes. The guild matches the configuration."))
				return nil
			}
			fmt.Fprint(out, renderDiff(diff))

			pe, err := a.policyEngine(ctx, flags.policyPaths)
			if err != nil {
				return err
			}
			verdict, err := pe.Check(ctx, diff, flags.policyContext("apply", dryRun))
			renderPolicyResult(out, verdict)
			if err != nil {
				var engErr *engine.EngineError
				if errors.As(err, &engErr) && engErr.Code == policy.ErrCodePolicyDenied {
					return &exitError{msg: engErr.Message}
				}
				return err
			}

			if !dryRun && !autoApprove {
				title := fmt.Sprintf("Apply %d changes to guild %s?", diff.Summary.Create+diff.Summary.Update+diff.Summary.Delete, diff.GuildID)
				if diff.Summary.Delete > 0 {
					title = fmt.Sprintf("Apply %d changes to guild %s, deleting %d?",
						diff.Summary.Create+diff.Summary.Update+diff.Summary.Delete, diff.GuildID, diff.Summary.Delete)
				}
				ok, err := confirm(cmd, title)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Apply cancelled.")
					return nil
				}
			}

			opts := []engine.WriterOption{
				engine.WithLogger(a.logger),
				engine.WithMetrics(a.tel.Metrics),
				engine.WithTracer(a.tel.Tracer),
			}
			var store *stores.SQLiteStore
			if !noHistory {
				store, err = a.openStore(ctx)
				if err != nil {
					return err
				}
				defer store.Close()
				opts = append(opts, engine.WithRecorder(store))
				a.saveSnapshot(ctx, store, state, nil)
			}

			writer, err := engine.NewWriterFromEnv(a.settings.Writer(), opts...)
			if err != nil {
				return err
			}

			result, err := writer.Apply(ctx, diff, diff.GuildID, engine.ApplyOptions{
				DryRun:          dryRun,
				ContinueOnError: continueOnError,
				OnProgress: func(r engine.ApplyResult) {
					renderProgress(out, r)
				},
			})
			if err != nil {
				return err
			}
			renderApplySummary(out, result)
			ctx = telemetry.WithApplyContext(ctx, result.RunID, result.GuildID)

			if store != nil && !dryRun && result.Summary.Succeeded > 0 {
				after, err := a.fetchState(context.WithoutCancel(ctx), diff.GuildID)
				if err != nil {
					telemetry.FromContext(ctx).WithError(err).Warn("Failed to refresh state after apply")
				} else {
					runID := result.RunID
					a.saveSnapshot(ctx, store, after, &runID)
				}
			}

			if !result.Success {
				return &exitError{msg: fmt.Sprintf("apply %s: %s", result.RunID, result.Status())}
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan every operation without calling Discord")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep going after a failed operation")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip the confirmation prompt")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the run or snapshots")

	return cmd
}

// saveSnapshot stores state, logging instead of failing.
func (a *app) saveSnapshot(ctx context.Context, store *stores.SQLiteStore, state *engine.ServerState, runID *string) {
	logger := telemetry.FromContext(ctx).NewComponentLogger("snapshots").Zerolog()
	snap, created, err := store.SaveSnapshot(context.WithoutCancel(ctx), state, runID)
	if err != nil {
		logger.Warn().Err(err).Str("guild_id", state.ID).Msg("Failed to save state snapshot")
		return
	}
	logger.Debug().
		Str("snapshot_id", snap.ID).
		Str("hash", snap.Hash).
		Bool("created", created).
		Msg("State snapshot")
}
