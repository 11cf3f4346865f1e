// Package envelope defines the Action Envelope — the minimal, vendor-neutral
// description of a tool invocation that is allowed to cross the trust
// boundary between an agent and the rest of SafeClaw.
//
// Per the boundary contract, an envelope carries exactly two fields: a
// dotted action type and a bounded, already-redacted resource string.
// Nothing else about a tool call — file contents, API keys, raw command
// text — is permitted to travel alongside it.
package envelope

import "strings"

// MaxResourceLen is the hard cap on a sanitized resource string.
const MaxResourceLen = 200

// Namespace prefixes recognized in the action type vocabulary.
const (
	PrefixSafeRead = "safe.read."
	PrefixFS       = "filesystem."
	PrefixNetwork  = "network."
	PrefixMCP      = "mcp."
	PrefixUnknown  = "unknown."

	TypeCodeExec     = "code.exec"
	TypeCodeExecKill = "code.exec.kill"
	TypeAgentSub     = "agent.subagent"
)

// RiskSignal is an advisory tag describing a suspicious-but-not-disqualifying
// property of the raw tool input. Signals never change a decision; they are
// metadata that flows through to the audit ledger and approval notifications.
type RiskSignal string

const (
	RiskObfuscatedExecution  RiskSignal = "obfuscated_execution"
	RiskPipeToExternal       RiskSignal = "pipe_to_external"
	RiskCredentialAdjacent   RiskSignal = "credential_adjacent"
	RiskBroadDestructive     RiskSignal = "broad_destructive"
	RiskPersistenceMechanism RiskSignal = "persistence_mechanism"
)

// Envelope is the `{type, resource}` pair sent across the trust boundary.
// Envelopes are per-call value objects; they never outlive a single
// decision and are never persisted on their own (only as fields of an
// audit.Entry).
type Envelope struct {
	Type     string `json:"type"`
	Resource string `json:"resource"`
}

// RiskSignals is a deduplicated, order-preserving set of RiskSignal values.
type RiskSignals struct {
	ordered []RiskSignal
	seen    map[RiskSignal]bool
}

// NewRiskSignals builds a RiskSignals set from zero or more signals,
// deduplicating as it goes.
func NewRiskSignals(signals ...RiskSignal) RiskSignals {
	rs := RiskSignals{seen: make(map[RiskSignal]bool, len(signals))}
	for _, s := range signals {
		rs.Add(s)
	}
	return rs
}

// Add inserts a signal if not already present.
func (rs *RiskSignals) Add(s RiskSignal) {
	if rs.seen == nil {
		rs.seen = make(map[RiskSignal]bool)
	}
	if rs.seen[s] {
		return
	}
	rs.seen[s] = true
	rs.ordered = append(rs.ordered, s)
}

// Slice returns the signals in insertion order. A nil/empty set returns an
// empty (never nil) slice so JSON marshaling produces `[]` rather than `null`.
func (rs RiskSignals) Slice() []RiskSignal {
	if len(rs.ordered) == 0 {
		return []RiskSignal{}
	}
	out := make([]RiskSignal, len(rs.ordered))
	copy(out, rs.ordered)
	return out
}

// Has reports whether a signal is present in the set.
func (rs RiskSignals) Has(s RiskSignal) bool {
	return rs.seen != nil && rs.seen[s]
}

// Len reports the number of distinct signals.
func (rs RiskSignals) Len() int { return len(rs.ordered) }

// MarshalJSON renders the set as a JSON array, never null.
func (rs RiskSignals) MarshalJSON() ([]byte, error) {
	slice := rs.Slice()
	strs := make([]string, len(slice))
	for i, s := range slice {
		strs[i] = string(s)
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, s := range strs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(s)
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}

// IsSafeRead reports whether an action type is in the safe-read namespace
// (`safe.read.*`), which the gateway approves locally without ever
// contacting the control plane.
func IsSafeRead(actionType string) bool {
	return strings.HasPrefix(actionType, PrefixSafeRead)
}

// IsFilesystem reports whether an action type is in the filesystem
// namespace, which is the trigger for the workspace guard check.
func IsFilesystem(actionType string) bool {
	return strings.HasPrefix(actionType, PrefixFS)
}

// Truncate bounds s to MaxResourceLen runes, matching the sanitize
// contract's 200-character cap on resource strings.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxResourceLen {
		return s
	}
	return string(r[:MaxResourceLen])
}
