package purestar

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bazelbuild/buildtools/build"
	"github.com/bazelbuild/buildtools/convertast"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

var dummyFile = "<value>"

// validPos gives synthetic nodes a valid position so the formatter treats
// them as single-line.
var validPos = syntax.MakePosition(&dummyFile, 1, 1)

// ValueToExpr converts a value back into a syntax expression that would
// evaluate to it. It returns nil for values with no literal form (functions,
// builtins, sets, bytes, out-of-range ints, non-finite floats).
func ValueToExpr(v starlark.Value) syntax.Expr {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case starlark.NoneType:
		return &syntax.Ident{Name: "None", NamePos: validPos}

	case starlark.Bool:
		if val {
			return &syntax.Ident{Name: "True", NamePos: validPos}
		}
		return &syntax.Ident{Name: "False", NamePos: validPos}

	case starlark.String:
		s := string(val)
		return &syntax.Literal{Token: syntax.STRING, Raw: strconv.Quote(s), Value: s, TokenPos: validPos}

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return nil
		}
		if i64 >= 0 {
			return &syntax.Literal{
				Token:    syntax.INT,
				Raw:      fmt.Sprintf("%d", i64),
				Value:    i64,
				TokenPos: validPos,
			}
		}
		lit := &syntax.Literal{
			Token:    syntax.INT,
			Raw:      fmt.Sprintf("%d", -i64),
			Value:    -i64,
			TokenPos: validPos,
		}
		return &syntax.UnaryExpr{Op: syntax.MINUS, OpPos: validPos, X: lit}

	case starlark.Float:
		f := float64(val)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil
		}
		if f >= 0 {
			return &syntax.Literal{Token: syntax.FLOAT, Raw: formatFloat(f), Value: f, TokenPos: validPos}
		}
		lit := &syntax.Literal{Token: syntax.FLOAT, Raw: formatFloat(-f), Value: -f, TokenPos: validPos}
		return &syntax.UnaryExpr{Op: syntax.MINUS, OpPos: validPos, X: lit}

	case *starlark.List:
		items := make([]syntax.Expr, val.Len())
		for i := 0; i < val.Len(); i++ {
			s := ValueToExpr(val.Index(i))
			if s == nil {
				return nil
			}
			items[i] = s
		}
		return &syntax.ListExpr{List: items, Lbrack: validPos, Rbrack: validPos}

	case starlark.Tuple:
		items := make([]syntax.Expr, val.Len())
		for i := 0; i < val.Len(); i++ {
			s := ValueToExpr(val[i])
			if s == nil {
				return nil
			}
			items[i] = s
		}
		return &syntax.TupleExpr{List: items, Lparen: validPos, Rparen: validPos}

	case *starlark.Dict:
		items := val.Items()
		entries := make([]syntax.Expr, len(items))
		for i, kv := range items {
			k := ValueToExpr(kv[0])
			v2 := ValueToExpr(kv[1])
			if k == nil || v2 == nil {
				return nil
			}
			entries[i] = &syntax.DictEntry{Key: k, Value: v2}
		}
		return &syntax.DictExpr{List: entries, Lbrace: validPos, Rbrace: validPos}

	default:
		return nil
	}
}

// ExprString renders an expression as formatted source text.
func ExprString(e syntax.Expr) string {
	f := &syntax.File{Stmts: []syntax.Stmt{&syntax.ExprStmt{X: e}}}
	buildFile := convertast.ConvFile(f)
	buildFile.Type = build.TypeDefault
	return strings.TrimSpace(string(build.Format(buildFile)))
}

// ValueString renders a value as source text where it has a literal form,
// falling back to the value's own repr.
func ValueString(v starlark.Value) string {
	if e := ValueToExpr(v); e != nil {
		return ExprString(e)
	}
	return v.String()
}

// formatFloat formats a float so that it reads back as a float literal.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return s
		}
	}
	return s + ".0"
}
