package purestar_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/fmeum/purestar"
)

func parseExpr(t *testing.T, src string) syntax.Expr {
	t.Helper()
	opts := &syntax.FileOptions{}
	e, err := opts.ParseExpr("<test>", src, 0)
	require.NoError(t, err, "parse %q", src)
	return e
}

func parseFile(t *testing.T, src string) *syntax.File {
	t.Helper()
	opts := &syntax.FileOptions{}
	f, err := opts.Parse("<test>", []byte(src), 0)
	require.NoError(t, err, "parse %q", src)
	return f
}

// evalStr evaluates src under names and returns the value's repr.
func evalStr(t *testing.T, names starlark.StringDict, src string) (string, error) {
	t.Helper()
	v, err := purestar.NewEvaluator(names).Eval(parseExpr(t, src))
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// gadget is a HasAttrs value whose attribute access must never run.
type gadget struct {
	attrCalls *int
}

func (g gadget) String() string        { return "gadget" }
func (g gadget) Type() string          { return "gadget" }
func (g gadget) Freeze()               {}
func (g gadget) Truth() starlark.Bool  { return true }
func (g gadget) Hash() (uint32, error) { return 0, errors.New("unhashable: gadget") }

func (g gadget) Attr(name string) (starlark.Value, error) {
	*g.attrCalls++
	return starlark.None, nil
}

func (g gadget) AttrNames() []string { return []string{"boom"} }

// record implements the SafeAttrs extension: plain stored fields only.
type record struct {
	fields starlark.StringDict
	gets   int
}

func (r *record) String() string        { return "record" }
func (r *record) Type() string          { return "record" }
func (r *record) Freeze()               {}
func (r *record) Truth() starlark.Bool  { return true }
func (r *record) Hash() (uint32, error) { return 0, errors.New("unhashable: record") }

func (r *record) SafeAttr(name string) (starlark.Value, bool) {
	r.gets++
	v, ok := r.fields[name]
	return v, ok
}

func TestLiterals(t *testing.T) {
	tests := []struct {
		src, want string
	}{
		{`42`, `42`},
		{`"hi"`, `"hi"`},
		{`3.5`, `3.5`},
		{`b"ab"`, `b"ab"`},
		{`True`, `True`},
		{`None`, `None`},
	}
	for _, tt := range tests {
		got, err := evalStr(t, nil, tt.src)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.want, got, tt.src)
	}
}

func TestIdent(t *testing.T) {
	names := starlark.StringDict{"x": starlark.MakeInt(1)}

	got, err := evalStr(t, names, "x")
	require.NoError(t, err)
	assert.Equal(t, "1", got)

	// Builtins resolve through the universe, like a frame's builtins chain.
	v, err := purestar.NewEvaluator(names).Eval(parseExpr(t, "len"))
	require.NoError(t, err)
	assert.Same(t, starlark.Universe["len"], v)

	_, err = evalStr(t, names, "missing")
	require.ErrorIs(t, err, purestar.ErrCannotEval)

	var ce *purestar.CannotEvalError
	require.ErrorAs(t, err, &ce)
	assert.NotEmpty(t, ce.Reason)
}

func TestArithmetic(t *testing.T) {
	names := starlark.StringDict{"x": starlark.MakeInt(1)}
	tests := []struct {
		src, want string
	}{
		{`x + 1`, `2`},
		{`"a" + "b"`, `"ab"`},
		{`7 // 2`, `3`},
		{`7 % 3`, `1`},
		{`2 * 3.0`, `6.0`},
		{`"ab" * 2`, `"abab"`},
		{`"%d apples" % 3`, `"3 apples"`},
		{`x << 4`, `16`},
		{`6 ^ 3`, `5`},
	}
	for _, tt := range tests {
		got, err := evalStr(t, names, tt.src)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.want, got, tt.src)
	}

	// Dynamic faults refuse instead of surfacing.
	_, err := evalStr(t, names, "1 // 0")
	assert.ErrorIs(t, err, purestar.ErrCannotEval)

	// Operands of unknown type could overload the operator.
	names["g"] = gadget{attrCalls: new(int)}
	_, err = evalStr(t, names, "g + 1")
	assert.ErrorIs(t, err, purestar.ErrCannotEval)
}

func TestComparisons(t *testing.T) {
	names := starlark.StringDict{"x": starlark.MakeInt(1)}
	tests := []struct {
		src, want string
	}{
		{`x < 2`, `True`},
		{`x == 1.0`, `True`},
		{`x != 1`, `False`},
		{`"a" <= "b"`, `True`},
		{`2 in [1, 2, 3]`, `True`},
		{`"el" in "hello"`, `True`},
		{`4 not in (1, 2)`, `True`},
		{`x in {1: "a"}`, `True`},
	}
	for _, tt := range tests {
		got, err := evalStr(t, names, tt.src)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.want, got, tt.src)
	}

	_, err := evalStr(t, names, `"a" < 1`)
	assert.ErrorIs(t, err, purestar.ErrCannotEval, "unordered types")

	names["g"] = gadget{attrCalls: new(int)}
	_, err = evalStr(t, names, "x in g")
	assert.ErrorIs(t, err, purestar.ErrCannotEval, "membership in unknown container")
}

func TestBoolOps(t *testing.T) {
	names := starlark.StringDict{
		"t": starlark.True,
		"z": starlark.MakeInt(0),
	}
	tests := []struct {
		src, want string
	}{
		{`t and z`, `0`},
		{`z and t`, `0`},
		{`z or t`, `True`},
		{`t or z`, `True`},
	}
	for _, tt := range tests {
		got, err := evalStr(t, names, tt.src)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.want, got, tt.src)
	}

	// No short-circuiting: even though z is falsy and the language would
	// never look at the right operand, the unknown name refuses the whole
	// expression.
	_, err := evalStr(t, names, "z and unknown_name")
	assert.ErrorIs(t, err, purestar.ErrCannotEval)
}

func TestCondExprRefuses(t *testing.T) {
	names := starlark.StringDict{"t": starlark.True}
	_, err := evalStr(t, names, "1 if t else 2")
	assert.ErrorIs(t, err, purestar.ErrCannotEval)
}

func TestCallsRefuse(t *testing.T) {
	// Even a builtin call is a call.
	_, err := evalStr(t, nil, "len([1, 2])")
	assert.ErrorIs(t, err, purestar.ErrCannotEval)

	_, err = evalStr(t, nil, "[i for i in [1]]")
	assert.ErrorIs(t, err, purestar.ErrCannotEval)

	_, err = evalStr(t, nil, "lambda: 1")
	assert.ErrorIs(t, err, purestar.ErrCannotEval)
}

func TestAttrAccess(t *testing.T) {
	s := starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"a": starlark.MakeInt(1),
	})
	names := starlark.StringDict{"s": s, "x": starlark.MakeInt(1)}

	got, err := evalStr(t, names, "s.a")
	require.NoError(t, err)
	assert.Equal(t, "1", got)

	_, err = evalStr(t, names, "s.missing_attr")
	assert.ErrorIs(t, err, purestar.ErrCannotEval)

	_, err = evalStr(t, names, "x.missing_attr")
	assert.ErrorIs(t, err, purestar.ErrCannotEval)

	// Built-in method tables bind without calling.
	v, err := purestar.NewEvaluator(names).Eval(parseExpr(t, `"hi".upper`))
	require.NoError(t, err)
	b, ok := v.(*starlark.Builtin)
	require.True(t, ok)
	assert.Equal(t, "upper", b.Name())
}

func TestUnsafeAttrNeverInvoked(t *testing.T) {
	calls := 0
	names := starlark.StringDict{"g": gadget{attrCalls: &calls}}

	_, err := evalStr(t, names, "g.boom")
	assert.ErrorIs(t, err, purestar.ErrCannotEval)
	assert.Zero(t, calls, "computed attribute access must not run")
}

func TestSafeAttrsExtension(t *testing.T) {
	r := &record{fields: starlark.StringDict{"size": starlark.MakeInt(7)}}
	names := starlark.StringDict{"r": r}

	got, err := evalStr(t, names, "r.size")
	require.NoError(t, err)
	assert.Equal(t, "7", got)

	_, err = evalStr(t, names, "r.missing_attr")
	assert.ErrorIs(t, err, purestar.ErrCannotEval)
}

func TestSubscript(t *testing.T) {
	names := starlark.StringDict{"x": starlark.MakeInt(1)}
	tests := []struct {
		src, want string
	}{
		{`"hello"[1]`, `"e"`},
		{`[1, 2, 3][-1]`, `3`},
		{`(4, 5)[x]`, `5`},
		{`{"a": x}["a"]`, `1`},
		{`{(1, "b"): 9}[(1, "b")]`, `9`},
	}
	for _, tt := range tests {
		got, err := evalStr(t, names, tt.src)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.want, got, tt.src)
	}

	for _, src := range []string{
		`(1, 2)[5]`,          // out of range
		`{"a": 1}["b"]`,      // missing key
		`[1, 2]["a"]`,        // non-int index
		`{"a": 1}[[1]]`,      // unhashable key
		`"abc"[1.0]`,         // float index
		`missing_dict["a"]`,  // container refused
	} {
		_, err := evalStr(t, names, src)
		assert.ErrorIs(t, err, purestar.ErrCannotEval, src)
	}
}

func TestSubscriptHugeDict(t *testing.T) {
	d := starlark.NewDict(10000)
	for i := 0; i < 10000; i++ {
		require.NoError(t, d.SetKey(starlark.MakeInt(i), starlark.MakeInt(i)))
	}
	names := starlark.StringDict{"d": d}
	_, err := evalStr(t, names, "d[3]")
	assert.ErrorIs(t, err, purestar.ErrCannotEval, "key safety scan is bounded")
}

func TestSlice(t *testing.T) {
	tests := []struct {
		src, want string
	}{
		{`"hello"[1:3]`, `"el"`},
		{`"hello"[::-1]`, `"olleh"`},
		{`[1, 2, 3, 4][::2]`, `[1, 3]`},
		{`[1, 2, 3][10:]`, `[]`},
		{`(1, 2, 3)[:2]`, `(1, 2)`},
		{`[1, 2, 3][-2:]`, `[2, 3]`},
	}
	for _, tt := range tests {
		got, err := evalStr(t, nil, tt.src)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.want, got, tt.src)
	}

	_, err := evalStr(t, nil, "[1, 2, 3][::0]")
	assert.ErrorIs(t, err, purestar.ErrCannotEval)

	_, err = evalStr(t, nil, `{"a": 1}[:1]`)
	assert.ErrorIs(t, err, purestar.ErrCannotEval)
}

func TestUnary(t *testing.T) {
	names := starlark.StringDict{"x": starlark.MakeInt(1)}
	tests := []struct {
		src, want string
	}{
		{`-x`, `-1`},
		{`+x`, `1`},
		{`~x`, `-2`},
		{`not x`, `False`},
		{`not ""`, `True`},
	}
	for _, tt := range tests {
		got, err := evalStr(t, names, tt.src)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.want, got, tt.src)
	}

	_, err := evalStr(t, names, `-"a"`)
	assert.ErrorIs(t, err, purestar.ErrCannotEval)

	_, err = evalStr(t, names, `not [1]`)
	assert.ErrorIs(t, err, purestar.ErrCannotEval, "truth of non-primitives is refused")
}

func TestContainerLiterals(t *testing.T) {
	names := starlark.StringDict{"x": starlark.MakeInt(1)}

	got, err := evalStr(t, names, "[x, 2, 3]")
	require.NoError(t, err)
	assert.Equal(t, "[1, 2, 3]", got)

	got, err = evalStr(t, names, `(x, [x], {1: x})`)
	require.NoError(t, err)
	assert.Equal(t, "(1, [1], {1: 1})", got)

	// Monotonic propagation: one refused child refuses the parent.
	_, err = evalStr(t, names, "[x, missing]")
	assert.ErrorIs(t, err, purestar.ErrCannotEval)

	_, err = evalStr(t, names, "{[1]: 2}")
	assert.ErrorIs(t, err, purestar.ErrCannotEval, "unhashable literal key")

	_, err = evalStr(t, names, `{"a": 1, "a": 2}`)
	assert.ErrorIs(t, err, purestar.ErrCannotEval, "duplicate key is a dynamic error")
}

func TestKeywordBindingRefuses(t *testing.T) {
	// The a=x inside a call is a binding, not a value.
	e := parseExpr(t, "f(a=1)")
	call := e.(*syntax.CallExpr)
	_, err := purestar.NewEvaluator(nil).Eval(call.Args[0])
	assert.ErrorIs(t, err, purestar.ErrCannotEval)
}

func TestDeterminism(t *testing.T) {
	names := starlark.StringDict{"x": starlark.MakeInt(3)}
	e := parseExpr(t, "x * x + 1")

	ev := purestar.NewEvaluator(names)
	v1, err1 := ev.Eval(e)
	v2, err2 := ev.Eval(e)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, v1.String(), v2.String())

	// A fresh session over the same bindings agrees.
	v3, err3 := purestar.NewEvaluator(names).Eval(e)
	require.NoError(t, err3)
	assert.Equal(t, "10", v3.String())
}

// Conservative soundness: anything reported evaluated must match what the
// real interpreter computes for the same expression and bindings.
func TestAgreesWithFullEvaluation(t *testing.T) {
	names := starlark.StringDict{"x": starlark.MakeInt(3)}
	opts := &syntax.FileOptions{}
	thread := &starlark.Thread{Name: "check"}

	for _, src := range []string{
		`x + 1`,
		`-x`,
		`x * x`,
		`"ab" * x`,
		`x < 4`,
		`x == 3.0`,
		`[x, 2][1]`,
		`"hello"[x]`,
		`"hello"[1:x]`,
		`[1, 2, 3, 4][::-1]`,
		`{"a": x}["a"]`,
		`x in [1, 2, 3]`,
		`not x`,
		`x and 7`,
		`0 or x`,
		`(x, [x], {1: x})`,
	} {
		e := parseExpr(t, src)
		got, err := purestar.NewEvaluator(names).Eval(e)
		require.NoError(t, err, src)
		want, err := starlark.EvalExprOptions(opts, thread, e, names)
		require.NoError(t, err, src)
		eq, err := starlark.Equal(got, want)
		require.NoError(t, err, src)
		assert.True(t, eq, "%s: got %s, want %s", src, got, want)
	}
}

func TestEvaluatedNoneIsNotRefusal(t *testing.T) {
	names := starlark.StringDict{"n": starlark.None}
	v, err := purestar.NewEvaluator(names).Eval(parseExpr(t, "n"))
	require.NoError(t, err)
	assert.Equal(t, starlark.None, v)
}

func TestNilExprPanics(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = purestar.NewEvaluator(nil).Eval(nil)
	})
}

func TestCannotEvalErrorMessage(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &purestar.CannotEvalError{Reason: "name \"q\" is not bound"})
	assert.ErrorIs(t, err, purestar.ErrCannotEval)
	assert.Contains(t, err.Error(), "cannot evaluate")
}
