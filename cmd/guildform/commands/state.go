package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/engine"
)

func newStateCommand(a *app) *cobra.Command {
	var (
		output string
		query  string
		save   bool
		latest bool
	)

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show a guild's current state",
		Long: `Fetch and print the guild's roles, categories, channels and permission
overwrites as the diff engine sees them.

--jq filters the output with a jq expression. --save stores the state as a
snapshot in the history database. --latest prints the most recent stored
snapshot instead of contacting Discord.`,
		Example: `  # Dump the state as YAML
  guildform state -g 123456789012345678

  # List managed role names
  guildform state --jq '.roles[] | select(.ownership == "owned") | .name'

  # Record a snapshot for drift tracking
  guildform state --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			guildID, err := a.resolveGuildID(nil)
			if err != nil {
				return err
			}

			var state *engine.ServerState
			if latest {
				store, err := a.openStore(ctx)
				if err != nil {
					return err
				}
				defer store.Close()
				snap, err := store.LatestSnapshot(ctx, guildID)
				if err != nil {
					return fmt.Errorf("no snapshot for guild %s: %w", guildID, err)
				}
				if state, err = snap.Decode(); err != nil {
					return err
				}
			} else {
				if state, err = a.fetchState(ctx, guildID); err != nil {
					return err
				}
				if save {
					store, err := a.openStore(ctx)
					if err != nil {
						return err
					}
					defer store.Close()
					snap, created, err := store.SaveSnapshot(ctx, state, nil)
					if err != nil {
						return err
					}
					if created {
						a.logger.Info().Str("snapshot_id", snap.ID).Msg("Saved state snapshot")
					} else {
						a.logger.Info().Str("snapshot_id", snap.ID).Msg("State unchanged since last snapshot")
					}
				}
			}

			return printState(out, state, output, query)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format (yaml, json)")
	cmd.Flags().StringVar(&query, "jq", "", "jq expression applied to the state")
	cmd.Flags().BoolVar(&save, "save", false, "store the fetched state as a snapshot")
	cmd.Flags().BoolVar(&latest, "latest", false, "print the latest stored snapshot")
	cmd.MarkFlagsMutuallyExclusive("save", "latest")

	return cmd
}

// printState encodes state in format, optionally filtered through a jq
// expression. Each jq result is printed as its own document.
func printState(out io.Writer, state *engine.ServerState, format, query string) error {
	if format != "yaml" && format != "json" {
		return engine.NewValidationError("unsupported output format %q", format)
	}

	doc, err := toGeneric(state)
	if err != nil {
		return err
	}
	if query == "" {
		return encode(out, doc, format)
	}

	q, err := gojq.Parse(query)
	if err != nil {
		return engine.NewValidationError("invalid jq expression: %v", err)
	}
	iter := q.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := v.(error); ok {
			if err, ok := err.(*gojq.HaltError); ok && err.Value() == nil {
				return nil
			}
			return fmt.Errorf("jq: %w", err)
		}
		if s, ok := v.(string); ok {
			fmt.Fprintln(out, s)
			continue
		}
		if err := encode(out, v, format); err != nil {
			return err
		}
	}
}

// toGeneric converts v to the map/slice form gojq operates on, keeping
// the JSON field names.
func toGeneric(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return integers(doc), nil
}

// integers turns integral float64 values back into ints so colors and
// permission bits print without exponents.
func integers(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, e := range t {
			t[k] = integers(e)
		}
	case []interface{}:
		for i, e := range t {
			t[i] = integers(e)
		}
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int(t)
		}
	}
	return v
}

func encode(out io.Writer, v interface{}, format string) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
