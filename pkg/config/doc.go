// Package config loads guild configuration documents and process settings.
//
// # Documents
//
// A ServerConfig document can be written in four formats, chosen by file
// extension:
//
//   - .yaml / .yml, decoded with gopkg.in/yaml.v3 (unknown fields rejected)
//   - .json
//   - .cue, unified with the built-in #ServerConfig schema so type errors
//     carry file, line and column
//   - .star, a Starlark script whose global "config" dict is the document
//
// Starlark scripts get two helpers besides the standard builtins:
// managed(name) appends the management marker, and rgb(r, g, b) renders a
// role color.
//
// # Validation
//
// Every loaded document passes through Validator, which runs the struct
// tags (go-playground/validator), checks the version against
// SupportedVersions (Masterminds/semver) and then the cross references:
// duplicate names, channel parents, overwrite subjects and flags that are
// both allowed and denied. Failures are returned as an engine.EngineError
// with code VALIDATION_ERROR whose "errors" detail holds the individual
// ValidationError values.
//
// # Settings
//
// LoadSettings reads DISCORD_* and GUILDFORM_* variables, after loading a
// .env file through godotenv when one is present.
//
//	settings, err := config.LoadSettings()
//	if err != nil {
//	    return err
//	}
//	cfg, err := config.NewLoader().Load(ctx, "guild.yaml")
//	if err != nil {
//	    return err
//	}
//	writer, err := engine.NewWriterFromEnv(settings.Writer())
package config
