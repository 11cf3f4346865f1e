// Package classify maps a raw (tool name, tool input) pair from an agent
// producer into the vendor-neutral Action Envelope that is all SafeClaw is
// willing to let cross the trust boundary, plus a fixed tool-name-to-risk
// mapping for the handful of signals worth flagging on the raw input
// before it's discarded.
package classify

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/safeclaw/core/internal/redact"
	"github.com/safeclaw/core/pkg/envelope"
)

// Result is the output of Classify: an envelope plus the risk signals
// detected on the raw (unsanitized) input. Risk signals are computed over
// data that is then discarded — they are never themselves persisted in
// raw form.
type Result struct {
	Envelope envelope.Envelope
	Risks    envelope.RiskSignals
}

// toolTypeMap is the fixed tool-name-to-action-type mapping table. Tools
// not listed here fall through to the unknown.<ToolName> namespace.
var toolTypeMap = map[string]string{
	"Read":         envelope.PrefixSafeRead + "file",
	"Write":        envelope.PrefixFS + "write",
	"Edit":         envelope.PrefixFS + "write",
	"NotebookEdit": envelope.PrefixFS + "write",
	"Bash":         envelope.TypeCodeExec,
	"Glob":         envelope.PrefixSafeRead + "glob",
	"Grep":         envelope.PrefixSafeRead + "grep",
	"WebFetch":     envelope.PrefixNetwork + "http",
	"WebSearch":    envelope.PrefixNetwork + "search",
	"Task":         envelope.TypeAgentSub,

	"TodoWrite":        envelope.PrefixSafeRead + "meta",
	"AskUserQuestion":  envelope.PrefixSafeRead + "meta",
	"ExitPlanMode":     envelope.PrefixSafeRead + "meta",
	"EnterPlanMode":    envelope.PrefixSafeRead + "meta",
	"ListMcpResources": envelope.PrefixSafeRead + "meta",
	"ReadMcpResource":  envelope.PrefixSafeRead + "meta",
	"Skill":            envelope.PrefixSafeRead + "meta",
	"TaskOutput":       envelope.PrefixSafeRead + "meta",

	"TaskStop": envelope.TypeCodeExecKill,
}

// resourceFieldPriority is the ordered list of input fields consulted for
// the resource string.
var resourceFieldPriority = []string{
	"file_path", "notebook_path", "url", "command", "pattern", "query", "description", "skill",
}

// Classify turns a raw tool call into an envelope plus risk signals.
func Classify(toolName string, toolInput map[string]any) Result {
	if toolInput == nil {
		toolInput = map[string]any{}
	}

	var actionType string
	switch {
	case strings.HasPrefix(toolName, "mcp__"):
		actionType = mcpActionType(toolName)
	default:
		if mapped, ok := toolTypeMap[toolName]; ok {
			actionType = mapped
		} else {
			actionType = envelope.PrefixUnknown + toolName
		}
	}

	resource := resourceFor(toolName, actionType, toolInput)

	risks := detectRisks(actionType, toolInput)

	return Result{
		Envelope: envelope.Envelope{Type: actionType, Resource: resource},
		Risks:    risks,
	}
}

// mcpActionType splits mcp__<server>__<action...> on "__"; the server is
// the second segment, the action is the dot-joined remainder.
func mcpActionType(toolName string) string {
	parts := strings.Split(toolName, "__")
	if len(parts) < 3 {
		// Malformed mcp__ name: still namespaced, never an error per
		// the classifier's "never surfaces" failure semantics.
		return envelope.PrefixMCP + "unknown"
	}
	server := parts[1]
	action := strings.Join(parts[2:], ".")
	return envelope.PrefixMCP + server + "." + action
}

func resourceFor(toolName, actionType string, toolInput map[string]any) string {
	if strings.HasPrefix(toolName, "mcp__") {
		return redact.Sanitize(sanitizedJSON(toolInput), envelope.MaxResourceLen)
	}

	for _, field := range resourceFieldPriority {
		if v, ok := toolInput[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return redact.Sanitize(s, envelope.MaxResourceLen)
			}
		}
	}

	return redact.Sanitize(sanitizedJSON(toolInput), envelope.MaxResourceLen)
}

// sanitizedJSON marshals toolInput to a compact JSON string for use as a
// fallback resource. Marshal failures (e.g. unsupported types smuggled in
// by a misbehaving producer) degrade to an empty string rather than an
// error — the classifier never surfaces errors to its caller.
func sanitizedJSON(toolInput map[string]any) string {
	b, err := json.Marshal(toolInput)
	if err != nil {
		return ""
	}
	return string(b)
}

// rawString extracts the first populated string among the given fields
// from toolInput, used internally by risk detectors that need the
// unsanitized value (command text, a path) rather than the redacted
// resource.
func rawString(toolInput map[string]any, fields ...string) string {
	for _, f := range fields {
		if v, ok := toolInput[f]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func detectRisks(actionType string, toolInput map[string]any) envelope.RiskSignals {
	rs := envelope.NewRiskSignals()

	// credential_adjacent applies to code.exec and any file-path-bearing
	// tool.
	resourceRaw := rawString(toolInput, "file_path", "notebook_path", "command", "url")
	if resourceRaw != "" && isCredentialAdjacent(resourceRaw) {
		rs.Add(envelope.RiskCredentialAdjacent)
	}

	if actionType != envelope.TypeCodeExec {
		return rs
	}

	command := rawString(toolInput, "command")
	if command == "" {
		return rs
	}

	if isObfuscatedExecution(command) {
		rs.Add(envelope.RiskObfuscatedExecution)
	}
	if isPipeToExternal(command) {
		rs.Add(envelope.RiskPipeToExternal)
	}
	if isBroadDestructive(command) {
		rs.Add(envelope.RiskBroadDestructive)
	}
	if isPersistenceMechanism(command) {
		rs.Add(envelope.RiskPersistenceMechanism)
	}

	return rs
}

var credentialPaths = []string{
	".aws/credentials", ".aws/config",
	".ssh/id_rsa", ".ssh/id_ed25519", ".ssh/id_ecdsa", ".ssh/authorized_keys",
	".netrc", ".pgpass",
	".docker/config.json",
	".kube/config",
	".gnupg/",
	"credentials.json",
}

func isCredentialAdjacent(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range credentialPaths {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

var (
	base64PipeRe = regexp.MustCompile(`base64\s+(-d|--decode)[^|]*\|\s*(sh|bash|zsh)\b`)
	inlineExecRe = regexp.MustCompile(`\b(python3?|node|ruby|perl)\s+-[ce]\s+['"].*exec\(`)
	evalFetchRe  = regexp.MustCompile(`\beval\s+"?\$\((curl|wget)\b`)
)

func isObfuscatedExecution(command string) bool {
	return base64PipeRe.MatchString(command) ||
		inlineExecRe.MatchString(command) ||
		evalFetchRe.MatchString(command)
}

var (
	pipeExternalRe = regexp.MustCompile(`\|\s*(curl|wget|nc|ncat)\b`)
	dataStdinRe    = regexp.MustCompile(`\bcurl\b[^|]*(-d\s*@-|--data\s*@-)`)
)

func isPipeToExternal(command string) bool {
	return pipeExternalRe.MatchString(command) || dataStdinRe.MatchString(command)
}

var systemDirs = []string{
	"/etc", "/usr", "/var", "/home", "/opt", "/lib", "/boot", "/sbin", "/bin", "/root", "/sys", "/proc", "/mnt", "/srv",
}

var (
	rmRfRe       = regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f[a-zA-Z]*|-[a-zA-Z]*f[a-zA-Z]*r[a-zA-Z]*)\b`)
	findDeleteRe = regexp.MustCompile(`\bfind\s+/\S*\s+.*-delete\b`)
	shredWipeRe  = regexp.MustCompile(`\b(shred|wipefs)\b`)
)

func isBroadDestructive(command string) bool {
	if shredWipeRe.MatchString(command) || findDeleteRe.MatchString(command) {
		return true
	}
	if !rmRfRe.MatchString(command) {
		return false
	}
	for _, dir := range systemDirs {
		if strings.Contains(command, dir+"/") || strings.HasSuffix(strings.TrimSpace(command), dir) {
			return true
		}
	}
	return false
}

var (
	crontabWriteRe  = regexp.MustCompile(`\bcrontab\s+(-e|-r|\S+\.cron)\b`)
	systemctlEnable = regexp.MustCompile(`\bsystemctl\s+(enable|start)\b`)
	launchctlLoadRe = regexp.MustCompile(`\blaunchctl\s+load\b`)
	rcAppendRe      = regexp.MustCompile(`\b(echo|cat|tee)\b.*>>\s*.*(\.bashrc|\.zshrc|\.profile|\.bash_profile)`)
)

func isPersistenceMechanism(command string) bool {
	return crontabWriteRe.MatchString(command) ||
		systemctlEnable.MatchString(command) ||
		launchctlLoadRe.MatchString(command) ||
		rcAppendRe.MatchString(command)
}
