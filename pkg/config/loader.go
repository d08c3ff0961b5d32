package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/engine"
)

// Loader reads ServerConfig documents in any supported format.
type Loader struct {
	schemas   *SchemaRegistry
	starlark  *StarlarkEvaluator
	validator *Validator
	logger    zerolog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(logger zerolog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// WithStarlarkTimeout bounds script evaluation.
func WithStarlarkTimeout(timeout time.Duration) LoaderOption {
	return func(l *Loader) { l.starlark = NewStarlarkEvaluator(timeout) }
}

// WithSchemaRegistry replaces the built-in CUE schema registry.
func WithSchemaRegistry(sr *SchemaRegistry) LoaderOption {
	return func(l *Loader) { l.schemas = sr }
}

// NewLoader creates a loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		starlark:  NewStarlarkEvaluator(0),
		validator: NewValidator(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.schemas == nil {
		l.schemas = NewSchemaRegistry()
	}
	return l
}

// Load reads and validates the document at path.
func Load(ctx context.Context, path string) (*engine.ServerConfig, error) {
	return NewLoader().Load(ctx, path)
}

// Load reads the document at path, picking the format from its extension,
// and validates it.
func (l *Loader) Load(ctx context.Context, path string) (*engine.ServerConfig, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, engine.NewValidationError("%v", err).WithResource(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return l.LoadBytes(ctx, format, path, data)
}

// LoadBytes decodes and validates a document. name is used in error
// positions.
func (l *Loader) LoadBytes(ctx context.Context, format Format, name string, data []byte) (*engine.ServerConfig, error) {
	cfg, err := l.Decode(ctx, format, name, data)
	if err != nil {
		return nil, err
	}

	findings := l.validator.Check(cfg)
	for _, w := range findings.Warnings() {
		l.logger.Warn().Str("file", name).Str("path", w.Path).Msg(w.Message)
	}
	if err := validationFailure(name, findings.Errors()); err != nil {
		return nil, err
	}

	l.logger.Debug().
		Str("file", name).
		Str("format", string(format)).
		Int("roles", len(cfg.Roles)).
		Int("categories", len(cfg.Categories)).
		Int("channels", len(cfg.Channels)).
		Msg("Loaded server configuration")
	return cfg, nil
}

// Decode parses a document without semantic validation.
func (l *Loader) Decode(ctx context.Context, format Format, name string, data []byte) (*engine.ServerConfig, error) {
	var (
		cfg engine.ServerConfig
		err error
	)
	switch format {
	case FormatYAML:
		err = decodeYAML(data, &cfg)
	case FormatJSON:
		err = decodeJSON(data, &cfg)
	case FormatCUE:
		err = l.decodeCUE(name, data, &cfg)
	case FormatStarlark:
		err = l.decodeStarlark(ctx, name, data, &cfg)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		if verrs, ok := err.(ValidationErrors); ok {
			return nil, validationFailure(name, verrs)
		}
		return nil, engine.NewValidationError("%s: %v", name, err).WithResource(name)
	}
	return &cfg, nil
}

func decodeYAML(data []byte, cfg *engine.ServerConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	return nil
}

func decodeJSON(data []byte, cfg *engine.ServerConfig) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func (l *Loader) decodeCUE(name string, data []byte, cfg *engine.ServerConfig) error {
	val, err := l.schemas.CompileDocument(ServerSchema, name, data)
	if err != nil {
		return convertCUEErrors(err)
	}
	doc, err := val.MarshalJSON()
	if err != nil {
		return convertCUEErrors(err)
	}
	return json.Unmarshal(doc, cfg)
}

func (l *Loader) decodeStarlark(ctx context.Context, name string, data []byte, cfg *engine.ServerConfig) error {
	result, err := l.starlark.EvaluateFile(ctx, name, string(data), nil)
	if err != nil {
		return err
	}
	doc, ok := result.Output["config"]
	if !ok {
		return fmt.Errorf("script does not define a global named config")
	}
	if _, ok := doc.(map[string]interface{}); !ok {
		return fmt.Errorf("config must be a dict, got %T", doc)
	}

	// Round-trip through JSON so the engine's field tags and color
	// handling apply.
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return decodeJSON(raw, cfg)
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var validationErrors ValidationErrors

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     pathString(e.Path()),
			Message:  errors.Details(e, nil),
			Severity: SeverityError,
		})
	}

	return validationErrors
}

func pathString(parts []string) string {
	var b bytes.Buffer
	for i, p := range parts {
		if len(p) > 0 && p[0] >= '0' && p[0] <= '9' {
			fmt.Fprintf(&b, "[%s]", p)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}

// validationFailure wraps error findings in a VALIDATION_ERROR EngineError.
func validationFailure(name string, errs ValidationErrors) error {
	if len(errs) == 0 {
		return nil
	}
	return engine.NewValidationError("%s: %d validation error(s): %v", name, len(errs), errs).
		WithResource(name).
		WithDetail("errors", []ValidationError(errs))
}
