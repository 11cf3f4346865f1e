package redact

import "regexp"

// nestedQuantifierRe flags the classic ReDoS shapes: a quantified group
// that itself contains a quantified atom, e.g. `(a+)+`, `(a*)+`,
// `(a+)*`. This is a syntactic guard, not a full backtracking-complexity
// analysis — it is deliberately conservative and will reject some safe
// patterns along with the genuinely catastrophic ones.
var nestedQuantifierRe = regexp.MustCompile(`\([^()]*[+*][^()]*\)[+*]`)

// CompileGuarded compiles pattern as a regexp.Regexp, first rejecting it
// if it matches a known nested-quantifier ReDoS shape. Used by the policy
// evaluator's `matches` predicate: a rejected or uncompilable pattern
// causes that predicate to evaluate false rather than panic or hang.
func CompileGuarded(pattern string) (*regexp.Regexp, bool) {
	if nestedQuantifierRe.MatchString(pattern) {
		return nil, false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false
	}
	return re, true
}
