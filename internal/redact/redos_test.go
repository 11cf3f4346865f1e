package redact

import "testing"

func TestCompileGuardedRejectsNestedQuantifier(t *testing.T) {
	cases := []string{`(a+)+`, `(a*)+`, `(a+)*`, `(x*)*`}
	for _, c := range cases {
		if _, ok := CompileGuarded(c); ok {
			t.Errorf("expected %q to be rejected", c)
		}
	}
}

func TestCompileGuardedAcceptsOrdinaryPattern(t *testing.T) {
	re, ok := CompileGuarded(`^foo.*bar$`)
	if !ok {
		t.Fatal("expected ordinary pattern to compile")
	}
	if !re.MatchString("foo123bar") {
		t.Error("expected match")
	}
}

func TestCompileGuardedRejectsInvalidSyntax(t *testing.T) {
	if _, ok := CompileGuarded(`(unclosed`); ok {
		t.Error("expected invalid syntax to be rejected")
	}
}
