// CEL-backed predicate evaluation: a rule author who needs an expression
// the fixed Operator set can't express (arithmetic, string functions,
// combining multiple fields) can write a CEL expression instead of a
// Predicate. This is opt-in per rule — OpCEL is just another Operator
// value, evaluated by compiling and running Value as a CEL program
// against the envelope's fields.
//
// Uses a single "input" variable cel.Env and a plain
// compile-then-Program-then-Eval sequence, narrowed to one boolean
// predicate over one envelope: a failed CEL predicate just means
// "doesn't match," under the same fail-closed discipline as every other
// operator, rather than surfacing a structured error.
package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/safeclaw/core/pkg/envelope"
)

// OpCEL evaluates Predicate.Value as a CEL boolean expression against the
// envelope, exposed as the "input" variable with "type" and "resource"
// fields.
const OpCEL Operator = "cel"

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

func sharedCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

// evalCELPredicate compiles and runs p.Value against env. Any compile or
// runtime error is treated as a non-match, consistent with the rest of
// the evaluator's "a broken predicate never matches" discipline.
func evalCELPredicate(p Predicate, env envelope.Envelope) bool {
	celEnv, err := sharedCELEnv()
	if err != nil {
		return false
	}

	ast, issues := celEnv.Compile(p.Value)
	if issues != nil && issues.Err() != nil {
		return false
	}

	prg, err := celEnv.Program(ast)
	if err != nil {
		return false
	}

	input := map[string]any{
		"type":     env.Type,
		"resource": env.Resource,
	}
	val, _, err := prg.Eval(map[string]any{"input": input})
	if err != nil {
		return false
	}

	result, ok := val.Value().(bool)
	return ok && result
}

// ValidateCELExpression compiles expr without evaluating it, for use by
// policy authoring tools that want to reject a bad rule before it is
// saved rather than have it silently never match.
func ValidateCELExpression(expr string) error {
	celEnv, err := sharedCELEnv()
	if err != nil {
		return fmt.Errorf("policy: cel environment: %w", err)
	}
	_, issues := celEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("policy: invalid cel expression: %w", issues.Err())
	}
	return nil
}
