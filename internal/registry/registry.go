package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

const (
	ToolInitializeConnection = "initialize-connection"
	ToolReadSchemas          = "read-schemas"
	ToolExecuteQuery         = "execute-query"
)

var ErrUnknownTool = errors.New("unknown tool")

type InitializeConnectionInput struct {
	Type string `json:"type" jsonschema:"Database kind to connect to: DuckDB for a local in-memory database or MotherDuck for the hosted service. Case-insensitive."`
}

type ReadSchemasInput struct {
	DatabaseName string `json:"database_name" jsonschema:"Name of an attached database as listed by initialize-connection, e.g. memory or my_db."`
}

type ExecuteQueryInput struct {
	Query string `json:"query" jsonschema:"SQL statement to run. Any statement DuckDB accepts is passed through as-is."`
}

// ValidationError reports the first constraint a tool's arguments violate.
type ValidationError struct {
	Tool    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %s", e.Tool, e.Message)
}

// Descriptor is the protocol-facing description of a tool.
type Descriptor struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

type entry struct {
	desc     Descriptor
	resolved *jsonschema.Resolved
	decode   func(map[string]any) (any, error)
}

// Registry declares the recognized tools and validates their arguments.
type Registry struct {
	entries []entry
	byName  map[string]int
}

func New() (*Registry, error) {
	r := &Registry{byName: make(map[string]int)}

	if err := add[InitializeConnectionInput](r, ToolInitializeConnection, `
		Create a connection to a DuckDB or MotherDuck database.
		Call this before read-schemas or execute-query. Calling it again replaces the current connection.
		Returns the names of the databases available on the new connection.
	`); err != nil {
		return nil, err
	}
	if err := add[ReadSchemasInput](r, ToolReadSchemas, `
		Get the CREATE statements of all tables and views in a database.
		Table and view names in the output are qualified with the database name.
	`); err != nil {
		return nil, err
	}
	if err := add[ExecuteQueryInput](r, ToolExecuteQuery, `
		Execute a SQL query against the current connection and return the result rows as JSON.
		Use read-schemas first to learn the available tables and columns.
	`); err != nil {
		return nil, err
	}

	return r, nil
}

func add[T any](r *Registry, name, description string) error {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return fmt.Errorf("failed to create %s input schema: %w", name, err)
	}
	// Extra fields are ignored rather than rejected.
	schema.AdditionalProperties = nil

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("failed to resolve %s input schema: %w", name, err)
	}

	r.byName[name] = len(r.entries)
	r.entries = append(r.entries, entry{
		desc: Descriptor{
			Name:        name,
			Description: description,
			InputSchema: schema,
		},
		resolved: resolved,
		decode: func(args map[string]any) (any, error) {
			b, err := json.Marshal(args)
			if err != nil {
				return nil, err
			}
			var in T
			if err := json.Unmarshal(b, &in); err != nil {
				return nil, err
			}
			return in, nil
		},
	})
	return nil
}

// Tools returns the tool descriptors in declaration order.
func (r *Registry) Tools() []Descriptor {
	tools := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		tools = append(tools, e.desc)
	}
	return tools
}

// Lookup returns the descriptor of a recognized tool.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return r.entries[i].desc, true
}

// Validate checks args against the tool's input schema and returns the typed
// input (InitializeConnectionInput, ReadSchemasInput or ExecuteQueryInput).
func (r *Registry) Validate(name string, args map[string]any) (any, error) {
	i, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	e := r.entries[i]

	if args == nil {
		args = map[string]any{}
	}
	if err := e.resolved.Validate(args); err != nil {
		return nil, &ValidationError{Tool: name, Message: err.Error()}
	}

	in, err := e.decode(args)
	if err != nil {
		return nil, &ValidationError{Tool: name, Message: err.Error()}
	}
	return in, nil
}

// ValidateRaw decodes raw JSON arguments as sent on the wire and validates them.
func (r *Registry) ValidateRaw(name string, raw json.RawMessage) (any, error) {
	if _, ok := r.byName[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	var args map[string]any
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return nil, &ValidationError{Tool: name, Message: "arguments must be a JSON object"}
		}
	}
	return r.Validate(name, args)
}
