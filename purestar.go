// Package purestar evaluates the side-effect-free subset of Starlark
// expression trees.
//
// Given a parsed go.starlark.net/syntax tree and a set of known name
// bindings, an Evaluator determines which subexpressions can be computed
// with a guarantee that evaluation observes no external effect: no calls,
// no user-overridable attribute or index hooks, no operators whose behavior
// an unknown type could redefine. Anything ambiguous is refused rather than
// guessed, so a reported value is always the value full evaluation would
// have produced.
//
// The intended consumers are debuggers, REPLs and analysis tools that want
// to show the runtime value of subexpressions in source without the danger
// or cost of actually executing them.
package purestar

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ErrCannotEval is the soft failure reported for every expression that
// cannot be proven side-effect free under the current bindings. It is a
// normal return value, never a fault: callers match it with errors.Is and
// treat it as "no value available", distinct from an evaluated None.
var ErrCannotEval = errors.New("cannot evaluate")

// A CannotEvalError wraps ErrCannotEval with a diagnostic reason.
// The reason is informational only; callers must not branch on it.
type CannotEvalError struct {
	Reason string
}

func (e *CannotEvalError) Error() string { return "cannot evaluate: " + e.Reason }

func (e *CannotEvalError) Unwrap() error { return ErrCannotEval }

func cannotEval(format string, args ...any) error {
	return &CannotEvalError{Reason: fmt.Sprintf(format, args...)}
}

// An Evaluator is one evaluation session: a fixed binding environment plus
// a memo cache keyed by node identity. The cache is append-only and must
// never outlive its bindings, so callers create a fresh Evaluator whenever
// the environment changes. An Evaluator is not safe for concurrent use.
type Evaluator struct {
	names starlark.StringDict
	cache map[syntax.Expr]outcome
}

type outcome struct {
	value starlark.Value
	err   error
}

// NewEvaluator returns an Evaluator over the given bindings. Identifier
// resolution consults names first, then starlark.Universe, mirroring the
// locals/globals/builtins chain of a live frame. The bindings are never
// mutated.
func NewEvaluator(names starlark.StringDict) *Evaluator {
	return &Evaluator{
		names: names,
		cache: make(map[syntax.Expr]outcome),
	}
}

// Eval returns the value of e if it can be computed without any externally
// visible effect, or an error matching ErrCannotEval otherwise. The outcome
// is a pure function of (e, bindings) and is memoized on node identity, so
// repeated queries over shared subtrees cost nothing.
func (ev *Evaluator) Eval(e syntax.Expr) (starlark.Value, error) {
	if e == nil {
		panic("purestar: Eval called with nil expression")
	}
	if out, ok := ev.cache[e]; ok {
		return out.value, out.err
	}
	value, err := ev.eval(e)
	ev.cache[e] = outcome{value, err}
	return value, err
}
