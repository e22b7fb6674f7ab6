package purestar

import (
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// A ValueGroup collects every node that evaluated to the same value.
type ValueGroup struct {
	Exprs []syntax.Expr
	Value starlark.Value
}

// GroupByValue partitions results into equivalence classes by value,
// preserving first-seen order. Equality is structural for values whose
// comparison the language fixes (primitives and built-in containers of
// them), pointer identity for functions, builtins, structs, modules and
// containers, and never-equal otherwise: comparing an unknown type could
// run arbitrary code, which grouping must not do. Every node lands in
// exactly one group.
func GroupByValue(results []Expression) []ValueGroup {
	var groups []ValueGroup
	for _, r := range results {
		placed := false
		for i := range groups {
			if sameValue(groups[i].Value, r.Value) {
				groups[i].Exprs = append(groups[i].Exprs, r.Expr)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, ValueGroup{
				Exprs: []syntax.Expr{r.Expr},
				Value: r.Value,
			})
		}
	}
	return groups
}

// InterestingGroupedExpressions is the find → filter → group composition:
// every non-obvious evaluated subexpression under root, grouped by value.
func (ev *Evaluator) InterestingGroupedExpressions(root syntax.Node) []ValueGroup {
	var interesting []Expression
	for _, r := range ev.FindExpressions(root) {
		if IsInteresting(r.Expr, r.Value) {
			interesting = append(interesting, r)
		}
	}
	return GroupByValue(interesting)
}

func sameValue(a, b starlark.Value) bool {
	if pureComparable(a) && pureComparable(b) {
		eq, err := starlark.Equal(a, b)
		return err == nil && eq
	}
	switch a.(type) {
	case *starlark.Function, *starlark.Builtin, *starlark.List, *starlark.Dict,
		*starlark.Set, *starlarkstruct.Struct, *starlarkstruct.Module:
		// Pointer identity. Comparing interfaces of differing dynamic
		// types is false, never a panic.
		return a == b
	}
	return false
}

// pureComparable reports whether equality on v is fixed by the language
// all the way down.
func pureComparable(v starlark.Value) bool {
	if isPrimitive(v) {
		return true
	}
	switch v := v.(type) {
	case starlark.Tuple:
		for _, elem := range v {
			if !pureComparable(elem) {
				return false
			}
		}
		return true
	case *starlark.List:
		for i := 0; i < v.Len(); i++ {
			if !pureComparable(v.Index(i)) {
				return false
			}
		}
		return true
	case *starlark.Dict:
		for _, kv := range v.Items() {
			if !pureComparable(kv[0]) || !pureComparable(kv[1]) {
				return false
			}
		}
		return true
	case *starlark.Set:
		for _, elem := range iterateElems(v) {
			if !pureComparable(elem) {
				return false
			}
		}
		return true
	}
	return false
}
