// Package policy implements the policy store and policy evaluator: the
// versioned document that encodes which actions are allowed, denied, or
// require approval, and the pure function that evaluates one action
// envelope against it.
package policy

import "github.com/safeclaw/core/pkg/envelope"

// Effect is the three-valued verdict a Rule or Policy can produce.
type Effect = envelope.Outcome

const (
	EffectAllow           = envelope.OutcomeAllow
	EffectDeny            = envelope.OutcomeDeny
	EffectRequireApproval = envelope.OutcomeRequireApproval
)

// Operator is one of the predicate comparisons a Rule's Condition can use.
type Operator string

const (
	OpEq         Operator = "eq"
	OpStartsWith Operator = "startsWith"
	OpContains   Operator = "contains"
	OpMatches    Operator = "matches"
	OpIn         Operator = "in"
)

// Field is one of the two envelope attributes a Predicate can test.
type Field string

const (
	FieldActionType     Field = "action.type"
	FieldActionResource Field = "action.resource"
)

// Predicate is a single comparison against one envelope field. Value
// holds either a string (eq/startsWith/contains/matches) or a
// comma-separated string / list (in) — callers of In should use
// ValueList, which accepts both representations.
type Predicate struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value,omitempty"`
	Values   []string `json:"values,omitempty"`
}

// Condition is the recursive any/all/bare-predicate sum type. Exactly one
// of Any, All, or the embedded Predicate fields is meaningful for a given
// instance; IsPredicate reports which.
type Condition struct {
	Any []Predicate `json:"any,omitempty"`
	All []Predicate `json:"all,omitempty"`
	Predicate
}

// IsAny reports whether c is an `any` (OR) condition.
func (c Condition) IsAny() bool { return len(c.Any) > 0 }

// IsAll reports whether c is an `all` (AND) condition.
func (c Condition) IsAll() bool { return len(c.All) > 0 }

// Schedule restricts a Rule to a UTC hour range and/or a set of UTC
// weekdays (0 = Sunday .. 6 = Saturday, matching time.Weekday).
type Schedule struct {
	HoursUTC   *[2]int `json:"hoursUtc,omitempty"` // [start, endExclusive)
	DaysOfWeek []int   `json:"daysOfWeek,omitempty"`
}

// Rule is one entry in a Policy's ordered rule list.
type Rule struct {
	ID          string    `json:"id"`
	Effect      Effect    `json:"effect"`
	Description string    `json:"description"`
	Condition   Condition `json:"condition"`
	ExpiresAt   *string   `json:"expiresAt,omitempty"` // RFC-3339 UTC
	Schedule    *Schedule `json:"schedule,omitempty"`
}

// Document is the full policy: a version, a default effect applied when
// no rule matches, and the ordered rule list itself.
type Document struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Version       string `json:"version"` // e.g. "v3"; an integer is embedded in the string
	DefaultEffect Effect `json:"defaultEffect"`
	Rules         []Rule `json:"rules"`
}
