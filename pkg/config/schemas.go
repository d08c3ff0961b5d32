package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ServerSchema is the registry name of the guild configuration schema.
const ServerSchema = "server"

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with the built-in schema.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	if err := sr.RegisterSchema(ServerSchema, builtinServerSchema); err != nil {
		panic(err)
	}
	return sr
}

// RegisterSchema registers a CUE schema with the given name. The schema
// must define #ServerConfig.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".schema.cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	def := val.LookupPath(cue.ParsePath("#ServerConfig"))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not define #ServerConfig", name)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// CompileDocument compiles CUE source and unifies it with the named schema.
// The unified value is returned even when it fails validation so callers
// can report every error position.
func (sr *SchemaRegistry) CompileDocument(schemaName, filename string, src []byte) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}

	// cue.Context is not safe for concurrent compilation.
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileBytes(src, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return val, err
	}
	unified := schema.Unify(val)
	return unified, unified.Validate(cue.Concrete(true))
}

const builtinServerSchema = `
#Permission: string & =~"^([A-Z_]+|[0-9]+)$"

#Overwrite: {
	role:   string & !=""
	allow?: [...#Permission]
	deny?:  [...#Permission]
}

#Role: {
	name:         string & !=""
	color?:       string | int
	permissions?: [...#Permission]
	hoist?:       bool
	mentionable?: bool
	position?:    int & >=0
}

#Category: {
	name:         string & !=""
	position?:    int & >=0
	permissions?: [...#Overwrite]
}

#Channel: {
	name:         string & !=""
	type?:        "text" | "voice" | "announcement" | "news" | "stage" | "forum"
	parent?:      string
	topic?:       string
	position?:    int & >=0
	nsfw?:        bool
	slowmode?:    int & >=0 & <=21600
	bitrate?:     int & >=8000 & <=384000
	user_limit?:  int & >=0 & <=99
	permissions?: [...#Overwrite]
}

#ServerConfig: {
	version: string
	server: {
		name?: string
		id?:   =~"^[0-9]+$"
	}
	roles?:      [...#Role]
	categories?: [...#Category]
	channels?:   [...#Channel]
}
`
