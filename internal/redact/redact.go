// Package redact scrubs known secret shapes out of any string that is about
// to cross the trust boundary (into a resource field, an audit line, or an
// event sent to an external observer). It is the one component every other
// piece of SafeClaw routes text through before that text leaves the
// process — classify sanitizes every resource string through it, and the
// audit ledger never sees an unredacted value.
package redact

import "regexp"

// sentinel is appended after a preserved prefix, keeping enough of the
// original token visible for a human to recognize which credential
// leaked without exposing the credential itself.
const sentinel = "[REDACTED]"

// pattern pairs a compiled regex with the replacement template applied to
// its matches. Order is significant: more specific patterns MUST run
// before more general ones, or the general pattern will consume the
// specific one's prefix and the specific pattern will never fire (e.g. a
// generic `sk-...` pattern run before the Anthropic-specific one would eat
// `sk-ant-` and emit `[REDACTED]` instead of `sk-ant-[REDACTED]`).
type pattern struct {
	name string
	re   *regexp.Regexp
	repl string
}

// patterns is evaluated top to bottom, exactly once per call to Redact.
var patterns = []pattern{
	// Anthropic API keys — must precede the generic sk- pattern below.
	{
		name: "anthropic_key",
		re:   regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{8,}`),
		repl: "sk-ant-" + sentinel,
	},
	// Generic sk-prefixed secret keys, excluding the Anthropic prefix
	// (already consumed above, so this only sees what's left).
	{
		name: "generic_sk_key",
		re:   regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{8,}`),
		repl: "sk-" + sentinel,
	},
	// SafeClaw / authensor session tokens.
	{
		name: "authensor_token",
		re:   regexp.MustCompile(`\bauthensor_[A-Za-z0-9]{12,}`),
		repl: "authensor_" + sentinel,
	},
	// Bearer tokens in Authorization headers or inline.
	{
		name: "bearer_token",
		re:   regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._~+/=-]{8,}`),
		repl: "Bearer " + sentinel,
	},
	// GitHub / GitLab personal access tokens.
	{
		name: "forge_pat",
		re:   regexp.MustCompile(`\b(ghp|gho|ghu|ghs|ghr|glpat)_[A-Za-z0-9]{16,}`),
		repl: "${1}_" + sentinel,
	},
	// Slack tokens.
	{
		name: "slack_token",
		re:   regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}`),
		repl: "xox" + sentinel,
	},
	// Specific-named sensitive environment variable assignments.
	{
		name: "named_env_assignment",
		re: regexp.MustCompile(`(?i)\b(ANTHROPIC_API_KEY|OPENAI_API_KEY|AWS_SECRET_ACCESS_KEY|AWS_SESSION_TOKEN|GITHUB_TOKEN|SLACK_TOKEN|DATABASE_URL|PRIVATE_KEY)=\S+`),
		repl: "${1}=" + sentinel,
	},
	// Generic KEY=/SECRET=/TOKEN=-suffixed assignments not already caught
	// above. Runs last so it never masks a more specific pattern's prefix.
	{
		name: "generic_kv_assignment",
		re:   regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:KEY|SECRET|TOKEN)[A-Z0-9_]*)=\S+`),
		repl: "${1}=" + sentinel,
	},
}

// Redact replaces every recognized secret shape in s with a
// prefix-preserving sentinel. Non-string input is the caller's problem —
// this function only operates on strings; callers that receive arbitrary
// values should coerce to "" before calling (see Sanitize for the
// resource-field variant that does this for them).
func Redact(s string) string {
	out := s
	for _, p := range patterns {
		out = p.re.ReplaceAllString(out, p.repl)
	}
	return out
}

// Sanitize is the stricter variant used on `resource` fields: it redacts
// known secret shapes and then truncates to maxLen characters (runes).
// Non-string input coerces to an empty string, matching the classifier's
// failure semantics (malformed input never surfaces as an error — it
// becomes an empty-resource envelope).
func Sanitize(v any, maxLen int) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	redacted := Redact(s)
	r := []rune(redacted)
	if len(r) <= maxLen {
		return redacted
	}
	return string(r[:maxLen])
}
