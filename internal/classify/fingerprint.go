package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Descriptor is a canonical, hashable binding between a tool name and the
// shape Classify currently assigns it: the action type it maps to, and the
// set of input field names Classify consults to build the resource string.
// It exists so a producer that redefines an MCP tool's behavior out from
// under a previously-approved policy rule can be caught, rather than
// silently inheriting the old tool's trust.
type Descriptor struct {
	ToolName     string   `json:"tool_name"`
	ActionType   string   `json:"action_type"`
	ResourceKeys []string `json:"resource_keys"`
}

// Fingerprint computes a deterministic SHA-256 hash over the descriptor's
// canonical form.
func (d Descriptor) Fingerprint() string {
	sorted := make([]string, len(d.ResourceKeys))
	copy(sorted, d.ResourceKeys)
	sort.Strings(sorted)

	canonical := struct {
		ToolName     string   `json:"tool_name"`
		ActionType   string   `json:"action_type"`
		ResourceKeys []string `json:"resource_keys"`
	}{d.ToolName, d.ActionType, sorted}

	data, err := json.Marshal(canonical)
	if err != nil {
		data = []byte(fmt.Sprintf("%s:%s", d.ToolName, d.ActionType))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DescribeFromInput builds a Descriptor for a single observed call, keyed
// on whichever resource fields were actually present in toolInput.
func DescribeFromInput(toolName string, toolInput map[string]any) Descriptor {
	r := Classify(toolName, toolInput)
	var keys []string
	for _, f := range resourceFieldPriority {
		if _, ok := toolInput[f]; ok {
			keys = append(keys, f)
		}
	}
	return Descriptor{ToolName: toolName, ActionType: r.Envelope.Type, ResourceKeys: keys}
}

// ChangeDetector tracks the last-known fingerprint per tool name and flags
// when a tool's classified shape drifts, so a caller can force policy
// reevaluation instead of reusing a cached allow decision from before the
// drift. Safe for concurrent use.
type ChangeDetector struct {
	mu           sync.Mutex
	known        map[string]string
	needsRecheck map[string]bool
}

// NewChangeDetector returns a detector with no baseline.
func NewChangeDetector() *ChangeDetector {
	return &ChangeDetector{
		known:        make(map[string]string),
		needsRecheck: make(map[string]bool),
	}
}

// Observe records d's fingerprint as the baseline the first time toolName
// is seen. On subsequent calls it compares against the baseline; a mismatch
// marks the tool as needing reevaluation and the method returns true along
// with a human-readable reason. The new fingerprint becomes the baseline
// either way, so a tool that changes twice in a row is reported each time.
func (c *ChangeDetector) Observe(d Descriptor) (changed bool, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fp := d.Fingerprint()
	old, known := c.known[d.ToolName]
	c.known[d.ToolName] = fp
	if !known {
		return false, ""
	}
	if fp == old {
		return false, ""
	}
	c.needsRecheck[d.ToolName] = true
	return true, fmt.Sprintf("tool %s shape changed: %s -> %s", d.ToolName, old[:12], fp[:12])
}

// NeedsReevaluation reports whether toolName has an unresolved drift.
func (c *ChangeDetector) NeedsReevaluation(toolName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needsRecheck[toolName]
}

// Acknowledge clears the pending-reevaluation flag once the gateway has
// forced a fresh (non-cached) policy decision for toolName.
func (c *ChangeDetector) Acknowledge(toolName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.needsRecheck, toolName)
}
