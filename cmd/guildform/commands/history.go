package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/engine"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/stores"
)

func newHistoryCommand(a *app) *cobra.Command {
	var (
		limit      int
		status     string
		pruneAfter time.Duration
		audit      bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded apply runs",
		Long: `List apply runs from the history database, newest first, or show the
per-operation results of a single run.`,
		Example: `  # Recent runs for one guild
  guildform history -g 123456789012345678

  # Only failed runs
  guildform history --status failed

  # Operations of one run
  guildform history 3f1c2a9e-6c1b-4d8e-9a55-2b0c1f7e8d21

  # Drop runs older than 30 days
  guildform history --prune-older-than 720h`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			switch {
			case pruneAfter > 0:
				n, err := store.DeleteRunsBefore(ctx, time.Now().Add(-pruneAfter))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %d runs older than %s.\n", n, pruneAfter)
				return nil

			case audit:
				entries, err := store.ListAuditEntries(ctx, nil, nil, limit, 0)
				if err != nil {
					return err
				}
				return printAudit(out, entries)

			case len(args) == 1:
				run, err := store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				records, err := store.ListResults(ctx, run.ID)
				if err != nil {
					return err
				}
				return printRunResults(out, run, records)
			}

			filter := stores.RunFilter{GuildID: a.guildID, Limit: limit}
			if status != "" {
				filter.Status = engine.RunStatus(status)
				if err := filter.Status.Validate(); err != nil {
					return engine.NewValidationError("%v", err)
				}
			}
			runs, err := store.ListRuns(ctx, filter)
			if err != nil {
				return err
			}
			return printRuns(out, runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs (0 for all)")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status")
	cmd.Flags().DurationVar(&pruneAfter, "prune-older-than", 0, "delete runs started before now minus this duration")
	cmd.Flags().BoolVar(&audit, "audit", false, "show the audit trail instead of runs")

	return cmd
}

func printRuns(out io.Writer, runs []*engine.ApplyRun) error {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tGUILD\tSTATUS\tSTARTED\tDURATION\tOPS\tFAILED")
	for _, r := range runs {
		status := string(r.Status)
		if r.DryRun {
			status += " (dry run)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%d\n",
			r.ID, r.GuildID, status,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Millisecond),
			r.Summary.Total, r.Planned, r.Summary.Failed)
	}
	return tw.Flush()
}

func printRunResults(out io.Writer, run *engine.ApplyRun, records []*stores.OperationRecord) error {
	fmt.Fprintf(out, "%s %s  guild %s  %s\n",
		styles.heading.Render("Run"), run.ID, run.GuildID, run.Status)
	if run.Truncated {
		fmt.Fprintln(out, styles.failed.Render("Stopped early; not every planned operation ran."))
	}
	for _, rec := range records {
		renderProgress(out, rec.Result)
	}
	return nil
}

func printAudit(out io.Writer, entries []*stores.AuditEntry) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tACTOR\tTARGET")
	for _, e := range entries {
		target := ""
		if e.TargetID != nil {
			target = *e.TargetID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Action, e.Actor, target)
	}
	return tw.Flush()
}
