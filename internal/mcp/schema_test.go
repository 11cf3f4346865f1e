package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWithNoRegisteredSchemaPasses(t *testing.T) {
	r := NewSchemaRegistry()
	assert.NoError(t, r.Validate("mcp.github.create_issue", map[string]any{"anything": true}))
}

func TestRegisterAndValidateRejectsMismatch(t *testing.T) {
	r := NewSchemaRegistry()
	schema := `{
		"type": "object",
		"required": ["title"],
		"properties": {"title": {"type": "string"}}
	}`
	require.NoError(t, r.Register("mcp.github.create_issue", schema))

	assert.NoError(t, r.Validate("mcp.github.create_issue", map[string]any{"title": "bug"}))

	err := r.Validate("mcp.github.create_issue", map[string]any{"body": "no title"})
	assert.Error(t, err)
}

func TestRegisterWithEmptySchemaRemovesIt(t *testing.T) {
	r := NewSchemaRegistry()
	schema := `{"type": "object", "required": ["title"]}`
	require.NoError(t, r.Register("mcp.github.create_issue", schema))
	require.True(t, r.Has("mcp.github.create_issue"))

	require.NoError(t, r.Register("mcp.github.create_issue", ""))
	assert.False(t, r.Has("mcp.github.create_issue"))
	assert.NoError(t, r.Validate("mcp.github.create_issue", map[string]any{}))
}

func TestRegisterInvalidSchemaErrors(t *testing.T) {
	r := NewSchemaRegistry()
	err := r.Register("mcp.x.y", `{not valid json`)
	assert.Error(t, err)
}
