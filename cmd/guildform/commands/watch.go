package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/policy"
)

func newWatchCommand(a *app) *cobra.Command {
	var (
		flags    diffFlags
		interval time.Duration
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <config>",
		Short: "Re-run the diff whenever the configuration changes",
		Long: `Watch a configuration file and print a fresh diff after every save.
Policy files passed with --policy are reloaded when they change.

With --interval the guild is also re-read periodically so changes made in
Discord show up without touching the file. Nothing is ever applied.`,
		Example: `  # Diff on every save
  guildform watch server.yaml

  # Also poll the guild every five minutes
  guildform watch --interval 5m server.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd.Context(), cmd.OutOrStdout(), args[0], &flags, interval, debounce)
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 0, "also re-diff on this period (0 disables)")
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "quiet period after a change before diffing")

	return cmd
}

func (a *app) watch(ctx context.Context, out io.Writer, path string, flags *diffFlags, interval, debounce time.Duration) error {
	pe, err := a.policyEngine(ctx, flags.policyPaths)
	if err != nil {
		return err
	}
	if len(flags.policyPaths) > 0 {
		loader := policy.NewLoader(a.logger)
		err := loader.Watch(ctx, flags.policyPaths, func(policies []policy.Policy) error {
			return pe.ReplacePolicies(ctx, policies)
		})
		if err != nil {
			return err
		}
		defer func() { _ = loader.StopWatching() }()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so the directory is watched.
	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	refresh := func(reason string) {
		fmt.Fprintf(out, "\n%s\n", styles.heading.Render(
			fmt.Sprintf("[%s] %s", time.Now().Format(time.TimeOnly), reason)))
		diff, _, err := a.plan(ctx, out, path, flags)
		if err != nil {
			fmt.Fprintln(out, styles.failed.Render(err.Error()))
			return
		}
		fmt.Fprint(out, renderDiff(diff))
		verdict, err := pe.EvaluateDiff(ctx, diff, flags.policyContext("watch", true))
		if err != nil {
			fmt.Fprintln(out, styles.failed.Render(err.Error()))
			return
		}
		renderPolicyResult(out, verdict)
		if err := a.tel.Tracer.ForceFlush(ctx); err != nil {
			a.logger.Debug().Err(err).Msg("Failed to flush traces")
		}
	}

	a.logger.Info().Str("path", path).Dur("interval", interval).Msg("Watching configuration")
	refresh("initial diff")

	var settle *time.Timer
	var settled <-chan time.Time
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			a.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Configuration changed")
			if settle == nil {
				settle = time.NewTimer(debounce)
			} else {
				settle.Reset(debounce)
			}
			settled = settle.C

		case <-settled:
			settled = nil
			refresh("configuration changed")

		case <-tick:
			refresh("periodic check")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
