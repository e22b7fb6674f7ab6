package purestar

import (
	"math/big"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// eval is the per-kind dispatch. Every expression kind of the syntax
// package is listed explicitly, including the ones that always refuse, so
// that a new kind added upstream lands in the default refusal rather than
// being silently mis-evaluated. Children are evaluated through Eval so that
// every subexpression outcome is cached.
func (ev *Evaluator) eval(e syntax.Expr) (starlark.Value, error) {
	switch e := e.(type) {
	case *syntax.Literal:
		return literalValue(e)

	case *syntax.Ident:
		if v, ok := ev.names[e.Name]; ok {
			return v, nil
		}
		if v, ok := starlark.Universe[e.Name]; ok {
			return v, nil
		}
		return nil, cannotEval("name %q is not bound", e.Name)

	case *syntax.ParenExpr:
		return ev.Eval(e.X)

	case *syntax.DotExpr:
		x, err := ev.Eval(e.X)
		if err != nil {
			return nil, err
		}
		return safeAttr(x, e.Name.Name)

	case *syntax.IndexExpr:
		x, err := ev.Eval(e.X)
		if err != nil {
			return nil, err
		}
		y, err := ev.Eval(e.Y)
		if err != nil {
			return nil, err
		}
		return safeIndex(x, y)

	case *syntax.SliceExpr:
		x, err := ev.Eval(e.X)
		if err != nil {
			return nil, err
		}
		var lo, hi, step starlark.Value
		if e.Lo != nil {
			if lo, err = ev.Eval(e.Lo); err != nil {
				return nil, err
			}
		}
		if e.Hi != nil {
			if hi, err = ev.Eval(e.Hi); err != nil {
				return nil, err
			}
		}
		if e.Step != nil {
			if step, err = ev.Eval(e.Step); err != nil {
				return nil, err
			}
		}
		return safeSlice(x, lo, hi, step)

	case *syntax.ListExpr:
		elems, err := ev.evalAll(e.List)
		if err != nil {
			return nil, err
		}
		return starlark.NewList(elems), nil

	case *syntax.TupleExpr:
		elems, err := ev.evalAll(e.List)
		if err != nil {
			return nil, err
		}
		return starlark.Tuple(elems), nil

	case *syntax.DictExpr:
		d := starlark.NewDict(len(e.List))
		for _, item := range e.List {
			entry := item.(*syntax.DictEntry)
			k, err := ev.Eval(entry.Key)
			if err != nil {
				return nil, err
			}
			if !safeHashKey(k) {
				return nil, cannotEval("%s is not a safely hashable key", k.Type())
			}
			v, err := ev.Eval(entry.Value)
			if err != nil {
				return nil, err
			}
			if _, found, _ := d.Get(k); found {
				// A duplicate key is a dynamic error in Starlark.
				return nil, cannotEval("duplicate key %s in dictionary literal", k.String())
			}
			if err := d.SetKey(k, v); err != nil {
				return nil, cannotEval("%v", err)
			}
		}
		return d, nil

	case *syntax.UnaryExpr:
		if e.Op == syntax.STAR || e.Op == syntax.STARSTAR {
			return nil, cannotEval("starred element has no value of its own")
		}
		x, err := ev.Eval(e.X)
		if err != nil {
			return nil, err
		}
		return safeUnary(e.Op, x)

	case *syntax.BinaryExpr:
		switch e.Op {
		case syntax.EQ:
			// Keyword argument or named binding, not a value.
			return nil, cannotEval("binding is not a value")
		case syntax.AND, syntax.OR:
			return ev.evalBoolOp(e)
		}
		x, err := ev.Eval(e.X)
		if err != nil {
			return nil, err
		}
		y, err := ev.Eval(e.Y)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case syntax.EQL, syntax.NEQ, syntax.LT, syntax.LE, syntax.GT, syntax.GE,
			syntax.IN, syntax.NOT_IN:
			return safeCompare(e.Op, x, y)
		}
		return safeBinary(e.Op, x, y)

	case *syntax.CondExpr:
		// Picking a branch needs the condition's truth value, and silently
		// picking the wrong branch would report a wrong value. Refuse.
		return nil, cannotEval("conditional expression")

	case *syntax.CallExpr:
		return nil, cannotEval("call may run arbitrary code")

	case *syntax.Comprehension:
		return nil, cannotEval("comprehension")

	case *syntax.LambdaExpr:
		return nil, cannotEval("lambda")

	case *syntax.DictEntry:
		// Only meaningful inside a DictExpr.
		return nil, cannotEval("dictionary entry has no value of its own")

	default:
		return nil, cannotEval("unsupported expression")
	}
}

func (ev *Evaluator) evalAll(exprs []syntax.Expr) ([]starlark.Value, error) {
	elems := make([]starlark.Value, len(exprs))
	for i, item := range exprs {
		v, err := ev.Eval(item)
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}
	return elems, nil
}

// evalBoolOp handles and/or. Starlark's short-circuit semantics are not
// replicated: skipping an operand would validate an expression whose
// skipped half might have effects, so both operands must evaluate and be
// primitive before the fixed truth rule selects the result.
func (ev *Evaluator) evalBoolOp(e *syntax.BinaryExpr) (starlark.Value, error) {
	x, err := ev.Eval(e.X)
	if err != nil {
		return nil, err
	}
	y, err := ev.Eval(e.Y)
	if err != nil {
		return nil, err
	}
	if !isPrimitive(x) || !isPrimitive(y) {
		return nil, cannotEval("truth value of %s may run arbitrary code", x.Type())
	}
	if e.Op == syntax.AND {
		if !x.Truth() {
			return x, nil
		}
		return y, nil
	}
	if x.Truth() {
		return x, nil
	}
	return y, nil
}

func literalValue(lit *syntax.Literal) (starlark.Value, error) {
	switch lit.Token {
	case syntax.INT:
		switch v := lit.Value.(type) {
		case int64:
			return starlark.MakeInt64(v), nil
		case *big.Int:
			return starlark.MakeBigInt(v), nil
		}
	case syntax.FLOAT:
		return starlark.Float(lit.Value.(float64)), nil
	case syntax.STRING:
		return starlark.String(lit.Value.(string)), nil
	case syntax.BYTES:
		return starlark.Bytes(lit.Value.(string)), nil
	}
	return nil, cannotEval("unknown literal %s", lit.Raw)
}
