package purestar

import (
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// IsInteresting reports whether an evaluated result tells the reader
// anything the source doesn't already. Constants, containers rebuilt
// verbatim from constant elements, values referred to by their own declared
// name, and builtins accessed under their conventional name are all
// self-evident and filtered out.
func IsInteresting(e syntax.Expr, v starlark.Value) bool {
	if isConstantExpr(e) {
		return false
	}
	if name, ok := declaredName(v); ok && name == referenceName(e) {
		return false
	}
	if id, ok := e.(*syntax.Ident); ok {
		if u, ok := starlark.Universe[id.Name]; ok && u == v {
			return false
		}
	}
	return true
}

// isConstantExpr reports whether e is a constant the reader can evaluate by
// sight: a literal, True/False/None, or parens/unary/container literals
// built from such.
func isConstantExpr(e syntax.Expr) bool {
	switch e := e.(type) {
	case *syntax.Literal:
		return true
	case *syntax.Ident:
		return e.Name == "True" || e.Name == "False" || e.Name == "None"
	case *syntax.UnaryExpr:
		return e.X != nil && isConstantExpr(e.X)
	case *syntax.ParenExpr:
		return isConstantExpr(e.X)
	case *syntax.ListExpr:
		return allConstant(e.List)
	case *syntax.TupleExpr:
		return allConstant(e.List)
	case *syntax.DictExpr:
		for _, item := range e.List {
			entry, ok := item.(*syntax.DictEntry)
			if !ok || !isConstantExpr(entry.Key) || !isConstantExpr(entry.Value) {
				return false
			}
		}
		return true
	}
	return false
}

func allConstant(exprs []syntax.Expr) bool {
	for _, item := range exprs {
		if !isConstantExpr(item) {
			return false
		}
	}
	return true
}

// declaredName returns the intrinsic name a value carries, for the kinds
// that have one.
func declaredName(v starlark.Value) (string, bool) {
	switch v := v.(type) {
	case *starlark.Function:
		return v.Name(), true
	case *starlark.Builtin:
		return v.Name(), true
	case *starlarkstruct.Module:
		return v.Name, true
	}
	return "", false
}

// referenceName returns the name under which e refers to its value, if e is
// a name or attribute reference.
func referenceName(e syntax.Expr) string {
	switch e := e.(type) {
	case *syntax.Ident:
		return e.Name
	case *syntax.DotExpr:
		return e.Name.Name
	}
	return ""
}
