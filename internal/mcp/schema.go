// Package mcp validates MCP tool input against operator-registered JSON
// Schemas before the call reaches classification. A server can register a
// schema for one of its actions so a malformed or unexpectedly-shaped
// call is rejected at the door instead of being classified and evaluated
// against a shape it was never intended to have.
//
// Schema validation is opt-in per action type — a tool-name-to-compiled-
// schema map checked before dispatch, with no schema registered meaning
// no validation is performed. There is no allowlist half: SafeClaw
// classifies every tool rather than blocking unknown ones outright.
package mcp

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaRegistry holds compiled JSON Schemas keyed by MCP action type
// (the dotted form classify.Classify produces, e.g. "mcp.github.create_issue").
type SchemaRegistry struct {
	mu     sync.RWMutex
	schema map[string]*jsonschema.Schema
}

// NewSchemaRegistry returns an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schema: make(map[string]*jsonschema.Schema)}
}

// Register compiles schemaJSON and associates it with actionType. An
// empty schemaJSON removes any existing schema for that action.
func (r *SchemaRegistry) Register(actionType, schemaJSON string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if schemaJSON == "" {
		delete(r.schema, actionType)
		return nil
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://safeclaw.local/mcp/%s.schema.json", strings.ReplaceAll(actionType, ".", "/"))
	if err := c.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("mcp: schema load for %s: %w", actionType, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("mcp: schema compile for %s: %w", actionType, err)
	}
	r.schema[actionType] = compiled
	return nil
}

// Validate checks input against the schema registered for actionType. A
// missing schema is not an error — validation is opt-in per action, and
// the zero value of SchemaRegistry validates nothing.
func (r *SchemaRegistry) Validate(actionType string, input map[string]any) error {
	r.mu.RLock()
	schema, ok := r.schema[actionType]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := schema.Validate(input); err != nil {
		return fmt.Errorf("mcp: %s failed schema validation: %w", actionType, err)
	}
	return nil
}

// Has reports whether a schema is registered for actionType.
func (r *SchemaRegistry) Has(actionType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schema[actionType]
	return ok
}
