package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/config"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/discord"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/engine"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/policy"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/stores"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/telemetry"
)

// diffFlags are shared by diff, apply and watch.
type diffFlags struct {
	allResources bool
	noPerms      bool
	policyPaths  []string
	maxDeletes   int
}

func (f *diffFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.allResources, "all", false, "also delete objects without the management marker")
	cmd.Flags().BoolVar(&f.noPerms, "no-permissions", false, "skip permission overwrites")
	cmd.Flags().StringSliceVar(&f.policyPaths, "policy", nil, "additional policy files or directories")
	cmd.Flags().IntVar(&f.maxDeletes, "max-deletes", policy.DefaultMaxDeletes, "delete-limit policy threshold")
}

func (f *diffFlags) options() engine.DiffOptions {
	return engine.DiffOptions{
		ManagedOnly:        !f.allResources,
		IncludePermissions: !f.noPerms,
	}
}

func (f *diffFlags) policyContext(operation string, dryRun bool) *policy.PolicyContext {
	return &policy.PolicyContext{
		Operation: operation,
		DryRun:    dryRun,
		Params:    map[string]interface{}{"max_deletes": f.maxDeletes},
	}
}

// loadConfig loads and validates a configuration file, printing findings.
func (a *app) loadConfig(ctx context.Context, out io.Writer, path string) (*engine.ServerConfig, error) {
	opts := []config.LoaderOption{config.WithLogger(a.logger)}
	if a.settings != nil && a.settings.StarlarkTimeout > 0 {
		opts = append(opts, config.WithStarlarkTimeout(a.settings.StarlarkTimeout))
	}
	if a.schemaPath != "" {
		data, err := os.ReadFile(a.schemaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema: %w", err)
		}
		registry := config.NewSchemaRegistry()
		if err := registry.RegisterSchema(config.ServerSchema, string(data)); err != nil {
			return nil, engine.NewValidationError("%v", err).WithResource(a.schemaPath)
		}
		opts = append(opts, config.WithSchemaRegistry(registry))
	}

	cfg, err := config.NewLoader(opts...).Load(ctx, path)
	if err != nil {
		printValidationErrors(out, err)
		return nil, err
	}
	return cfg, nil
}

// resolveGuildID picks the guild: --guild, then the config's server.id,
// then DISCORD_GUILD_ID.
func (a *app) resolveGuildID(cfg *engine.ServerConfig) (string, error) {
	switch {
	case a.guildID != "":
		return a.guildID, nil
	case cfg != nil && cfg.Server.ID != "":
		return cfg.Server.ID, nil
	case a.settings != nil && a.settings.GuildID != "":
		return a.settings.GuildID, nil
	}
	return "", engine.NewValidationError("no guild id: pass --guild, set server.id or DISCORD_GUILD_ID")
}

// reader returns a REST client for state reads.
func (a *app) reader() (discord.StateReader, error) {
	if a.settings.Token == "" {
		return nil, engine.NewValidationError("DISCORD_BOT_TOKEN is not set")
	}
	opts := []discord.RESTOption{discord.WithLogger(a.logger)}
	if a.settings.APIBase != "" {
		opts = append(opts, discord.WithBaseURL(a.settings.APIBase))
	}
	return discord.NewRESTClient(a.settings.Token, opts...), nil
}

func (a *app) fetchState(ctx context.Context, guildID string) (*engine.ServerState, error) {
	reader, err := a.reader()
	if err != nil {
		return nil, err
	}
	ctx, span := a.tel.Tracer.StartSpan(ctx, "guildform.fetch_state")
	defer span.End()

	timer := telemetry.NewTimer()
	state, err := engine.FetchState(ctx, reader, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch guild state: %w", err)
	}
	a.logger.Debug().
		Str("guild_id", guildID).
		Int("roles", len(state.Roles)).
		Int("channels", len(state.Channels)).
		Dur("elapsed", timer.Duration()).
		Msg("Fetched guild state")
	return state, nil
}

// plan loads the config, fetches state and computes the diff.
func (a *app) plan(ctx context.Context, out io.Writer, path string, flags *diffFlags) (*engine.ServerDiff, *engine.ServerState, error) {
	cfg, err := a.loadConfig(ctx, out, path)
	if err != nil {
		return nil, nil, err
	}
	guildID, err := a.resolveGuildID(cfg)
	if err != nil {
		return nil, nil, err
	}
	state, err := a.fetchState(ctx, guildID)
	if err != nil {
		return nil, nil, err
	}
	diff, err := engine.CalculateDiff(cfg, state, guildID, flags.options())
	if err != nil {
		return nil, nil, err
	}
	a.recordDiffMetrics(diff)
	return diff, state, nil
}

func (a *app) recordDiffMetrics(diff *engine.ServerDiff) {
	counts := make(map[[2]string]float64)
	for _, e := range diff.Entries() {
		counts[[2]string{string(e.ResourceType), string(e.Operation)}]++
	}
	for k, n := range counts {
		a.tel.Metrics.SetDiffOperations(k[0], k[1], n)
	}
}

// policyEngine builds the engine with the built-ins plus policyPaths.
func (a *app) policyEngine(ctx context.Context, policyPaths []string) (*policy.Engine, error) {
	eng, err := policy.NewEngine(a.logger, policy.WithMetrics(a.tel.Metrics))
	if err != nil {
		return nil, err
	}
	if len(policyPaths) > 0 {
		if err := eng.LoadPolicies(ctx, policyPaths); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

func (a *app) openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	store, err := stores.Open(ctx, stores.Config{Path: a.settings.DBPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", a.settings.DBPath, err)
	}
	return store, nil
}

// printValidationErrors lists the per-field findings carried by a
// validation error.
func printValidationErrors(out io.Writer, err error) {
	var engErr *engine.EngineError
	if !errors.As(err, &engErr) {
		return
	}
	findings, ok := engErr.Details["errors"].([]config.ValidationError)
	if !ok {
		return
	}
	for _, f := range findings {
		fmt.Fprintln(out, styles.failed.Render("  ✗ ")+f.Error())
	}
}

// exitError makes the process exit non-zero without repeating output
// already shown to the user.
type exitError struct {
	msg  string
	code int
}

func (e *exitError) Error() string { return e.msg }

// IsSilent reports whether err was already reported to the user.
func IsSilent(err error) bool {
	var ee *exitError
	return errors.As(err, &ee)
}

// ExitCode maps err to a process exit status.
func ExitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) && ee.code != 0 {
		return ee.code
	}
	if err != nil {
		return 1
	}
	return 0
}
