package policy

import (
	"strings"
	"time"

	"github.com/safeclaw/core/internal/redact"
	"github.com/safeclaw/core/pkg/envelope"
)

// Decision is the evaluator's verdict for one envelope.
type Decision struct {
	MatchedRuleID string // empty if no rule matched
	Effect        Effect
	Reason        string
}

// Clock abstracts "now" so schedule-based rule activation is testable
// without sleeping past an hour boundary.
type Clock interface {
	Now() time.Time
}

// systemClock is the default Clock, backed by time.Now.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// Evaluate scans doc's active rules in order and returns the first match,
// or doc.DefaultEffect if none match. A nil doc (no policy loaded at
// all) always evaluates to deny.
func Evaluate(doc *Document, env envelope.Envelope, clock Clock) Decision {
	if doc == nil {
		return Decision{Effect: EffectDeny, Reason: "no policy loaded"}
	}
	if clock == nil {
		clock = SystemClock
	}

	now := clock.Now().UTC()
	for _, rule := range doc.Rules {
		if !isActive(rule, now) {
			continue
		}
		if evalCondition(rule.Condition, env) {
			return Decision{
				MatchedRuleID: rule.ID,
				Effect:        rule.Effect,
				Reason:        rule.Description,
			}
		}
	}

	return Decision{Effect: doc.DefaultEffect, Reason: "default effect"}
}

// isActive reports whether rule applies at now, given its expiry and
// schedule.
func isActive(rule Rule, now time.Time) bool {
	if rule.ExpiresAt != nil {
		expiry, err := time.Parse(time.RFC3339, *rule.ExpiresAt)
		if err == nil && now.After(expiry) {
			return false
		}
	}

	if rule.Schedule == nil {
		return true
	}

	if rule.Schedule.HoursUTC != nil {
		start, end := rule.Schedule.HoursUTC[0], rule.Schedule.HoursUTC[1]
		hour := now.Hour()
		if !hourInRange(hour, start, end) {
			return false
		}
	}

	if len(rule.Schedule.DaysOfWeek) > 0 {
		today := int(now.Weekday())
		if !containsInt(rule.Schedule.DaysOfWeek, today) {
			return false
		}
	}

	return true
}

// hourInRange reports whether hour falls in [start, end), wrapping past
// midnight when start > end (so [22, 6) means 22:00-23:59 or 00:00-05:59).
func hourInRange(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// evalCondition evaluates c against env. A bare predicate (no Any/All) is
// itself the condition.
func evalCondition(c Condition, env envelope.Envelope) bool {
	switch {
	case c.IsAny():
		for _, p := range c.Any {
			if evalPredicate(p, env) {
				return true
			}
		}
		return false
	case c.IsAll():
		for _, p := range c.All {
			if !evalPredicate(p, env) {
				return false
			}
		}
		return true
	default:
		return evalPredicate(c.Predicate, env)
	}
}

func fieldValue(f Field, env envelope.Envelope) string {
	switch f {
	case FieldActionResource:
		return env.Resource
	default:
		return env.Type
	}
}

func evalPredicate(p Predicate, env envelope.Envelope) bool {
	actual := fieldValue(p.Field, env)

	switch p.Operator {
	case OpEq:
		return actual == p.Value
	case OpStartsWith:
		return strings.HasPrefix(actual, p.Value)
	case OpContains:
		return strings.Contains(actual, p.Value)
	case OpMatches:
		re, ok := redact.CompileGuarded(p.Value)
		if !ok {
			return false
		}
		return re.MatchString(actual)
	case OpIn:
		return containsString(predicateValueList(p), actual)
	case OpCEL:
		return evalCELPredicate(p, env)
	default:
		return false
	}
}

// predicateValueList normalizes the in-operator's dual representation: a
// Values slice if set, otherwise a comma-separated Value string.
func predicateValueList(p Predicate) []string {
	if len(p.Values) > 0 {
		return p.Values
	}
	if p.Value == "" {
		return nil
	}
	parts := strings.Split(p.Value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
