package purestar

import (
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// An Expression pairs a tree node with its evaluated value.
type Expression struct {
	Expr  syntax.Expr
	Value starlark.Value
}

// FindExpressions walks the tree rooted at root in document order and
// returns every subexpression that evaluates, paired with its value. A
// refused parent never suppresses its descendants: the arguments of a call
// are still reported even though the call itself is not. The walk visits
// value positions only: store targets, keyword-argument names, attribute
// names and load statements denote nothing to evaluate, and the bodies of
// comprehensions and lambdas resolve names in an inner scope that may
// shadow the bindings, so descending into them could report a wrong value.
func (ev *Evaluator) FindExpressions(root syntax.Node) []Expression {
	var out []Expression
	walkValueExprs(root, func(e syntax.Expr) {
		if v, err := ev.Eval(e); err == nil {
			out = append(out, Expression{Expr: e, Value: v})
		}
	})
	return out
}

func walkValueExprs(n syntax.Node, f func(syntax.Expr)) {
	if n == nil {
		return
	}
	if e, ok := n.(syntax.Expr); ok {
		walkExpr(e, f)
		return
	}
	switch n := n.(type) {
	case *syntax.File:
		walkStmts(n.Stmts, f)
	case syntax.Stmt:
		walkStmt(n, f)
	}
}

func walkStmts(stmts []syntax.Stmt, f func(syntax.Expr)) {
	for _, stmt := range stmts {
		walkStmt(stmt, f)
	}
}

func walkStmt(stmt syntax.Stmt, f func(syntax.Expr)) {
	switch s := stmt.(type) {
	case *syntax.ExprStmt:
		walkExpr(s.X, f)
	case *syntax.AssignStmt:
		if s.Op != syntax.EQ {
			// An augmented assignment reads its target.
			walkExpr(s.LHS, f)
		}
		walkExpr(s.RHS, f)
	case *syntax.ReturnStmt:
		if s.Result != nil {
			walkExpr(s.Result, f)
		}
	case *syntax.IfStmt:
		walkExpr(s.Cond, f)
		walkStmts(s.True, f)
		walkStmts(s.False, f)
	case *syntax.ForStmt:
		// A for statement binds in the enclosing scope, so its body reads
		// the same environment.
		walkExpr(s.X, f)
		walkStmts(s.Body, f)
	case *syntax.WhileStmt:
		walkExpr(s.Cond, f)
		walkStmts(s.Body, f)
	case *syntax.DefStmt:
		walkParamDefaults(s.Params, f)
		// The function body resolves names in its own scope; skip it.
	case *syntax.LoadStmt, *syntax.BranchStmt:
		// Nothing to evaluate.
	}
}

func walkExpr(e syntax.Expr, f func(syntax.Expr)) {
	if e == nil {
		return
	}
	f(e)
	switch e := e.(type) {
	case *syntax.Ident, *syntax.Literal:
		// Leaves.

	case *syntax.ParenExpr:
		walkExpr(e.X, f)

	case *syntax.DotExpr:
		// e.Name is an attribute name, not a variable reference.
		walkExpr(e.X, f)

	case *syntax.IndexExpr:
		walkExpr(e.X, f)
		walkExpr(e.Y, f)

	case *syntax.SliceExpr:
		walkExpr(e.X, f)
		walkExpr(e.Lo, f)
		walkExpr(e.Hi, f)
		walkExpr(e.Step, f)

	case *syntax.ListExpr:
		for _, item := range e.List {
			walkExpr(item, f)
		}

	case *syntax.TupleExpr:
		for _, item := range e.List {
			walkExpr(item, f)
		}

	case *syntax.DictExpr:
		for _, item := range e.List {
			entry := item.(*syntax.DictEntry)
			walkExpr(entry.Key, f)
			walkExpr(entry.Value, f)
		}

	case *syntax.UnaryExpr:
		walkExpr(e.X, f)

	case *syntax.BinaryExpr:
		if e.Op == syntax.EQ {
			// Keyword argument: the LHS is a name, not a variable.
			walkExpr(e.Y, f)
			return
		}
		walkExpr(e.X, f)
		walkExpr(e.Y, f)

	case *syntax.CondExpr:
		walkExpr(e.Cond, f)
		walkExpr(e.True, f)
		walkExpr(e.False, f)

	case *syntax.CallExpr:
		walkExpr(e.Fn, f)
		for _, arg := range e.Args {
			walkExpr(arg, f)
		}

	case *syntax.Comprehension:
		// Only the first for-clause iterable is resolved in the enclosing
		// scope; everything else may reference comprehension-bound names.
		if len(e.Clauses) > 0 {
			if fc, ok := e.Clauses[0].(*syntax.ForClause); ok {
				walkExpr(fc.X, f)
			}
		}

	case *syntax.LambdaExpr:
		walkParamDefaults(e.Params, f)
	}
}

// walkParamDefaults visits default parameter values, which are evaluated in
// the enclosing scope when the function is defined.
func walkParamDefaults(params []syntax.Expr, f func(syntax.Expr)) {
	for _, param := range params {
		if be, ok := param.(*syntax.BinaryExpr); ok && be.Op == syntax.EQ {
			walkExpr(be.Y, f)
		}
	}
}
