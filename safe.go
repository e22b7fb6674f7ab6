package purestar

import (
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// SafeAttrs is implemented by values whose attributes resolve through plain
// storage, with no computed logic on the lookup path. Host environments with
// their own value types implement it to opt those types into attribute
// evaluation; everything else refuses, because a HasAttrs implementation is
// free to run arbitrary code.
type SafeAttrs interface {
	starlark.Value

	// SafeAttr returns the stored attribute, or ok=false if absent.
	// It must not observe or cause any external effect.
	SafeAttr(name string) (_ starlark.Value, ok bool)
}

// maxCheckedDict bounds the per-lookup scan that proves every existing key
// of a dict compares safely against the subscript key.
const maxCheckedDict = 10000

// isPrimitive reports whether v is one of the immutable atomic kinds whose
// operators, truth value and hash are fixed by the language.
func isPrimitive(v starlark.Value) bool {
	switch v.(type) {
	case starlark.NoneType, starlark.Bool, starlark.Int, starlark.Float,
		starlark.String, starlark.Bytes:
		return true
	}
	return false
}

// safeHashKey reports whether v can be hashed and compared without invoking
// anything user-defined: a primitive, or a tuple of such keys.
func safeHashKey(v starlark.Value) bool {
	if isPrimitive(v) {
		return true
	}
	if t, ok := v.(starlark.Tuple); ok {
		for _, elem := range t {
			if !safeHashKey(elem) {
				return false
			}
		}
		return true
	}
	return false
}

// safeAttr resolves name on v only when the lookup path is provably plain:
// a SafeAttrs value, a struct/module field, or the fixed method table of a
// built-in type (which yields a bound Builtin without calling it).
func safeAttr(v starlark.Value, name string) (starlark.Value, error) {
	if sa, ok := v.(SafeAttrs); ok {
		if res, ok := sa.SafeAttr(name); ok {
			return res, nil
		}
		return nil, cannotEval("%s value has no attribute %q", v.Type(), name)
	}
	switch v.(type) {
	case *starlarkstruct.Struct, *starlarkstruct.Module,
		starlark.String, starlark.Bytes, *starlark.List, *starlark.Dict, *starlark.Set:
		res, err := v.(starlark.HasAttrs).Attr(name)
		if err != nil || res == nil {
			return nil, cannotEval("%s value has no attribute %q", v.Type(), name)
		}
		return res, nil
	}
	return nil, cannotEval("attribute access on %s may run arbitrary code", v.Type())
}

// safeIndex resolves container[key] for the built-in sequence kinds with an
// int key, and for dicts whose keys are all provably safe to compare.
func safeIndex(container, key starlark.Value) (starlark.Value, error) {
	switch c := container.(type) {
	case starlark.String, starlark.Bytes, starlark.Tuple, *starlark.List:
		seq := container.(starlark.Indexable)
		i, err := asIndex(key)
		if err != nil {
			return nil, err
		}
		n := seq.Len()
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return nil, cannotEval("index %s out of range", key.String())
		}
		return seq.Index(i), nil

	case *starlark.Dict:
		if !safeHashKey(key) {
			return nil, cannotEval("%s is not a safely hashable key", key.Type())
		}
		// Every existing key must compare safely against the subscript key.
		// Skip huge dicts rather than scan them.
		if c.Len() >= maxCheckedDict {
			return nil, cannotEval("dict too large to verify key safety")
		}
		for _, k := range c.Keys() {
			if !safeHashKey(k) {
				return nil, cannotEval("dict holds a %s key", k.Type())
			}
		}
		v, found, err := c.Get(key)
		if err != nil {
			return nil, cannotEval("%v", err)
		}
		if !found {
			return nil, cannotEval("key %s not found", key.String())
		}
		return v, nil
	}
	return nil, cannotEval("subscript on %s may run arbitrary code", container.Type())
}

// safeSlice resolves seq[lo:hi:step] for the built-in sequence kinds.
// Absent bounds are nil. Index semantics match the interpreter's clamping.
func safeSlice(seq, lo, hi, step starlark.Value) (starlark.Value, error) {
	indexable, ok := seq.(starlark.Indexable)
	if !ok {
		return nil, cannotEval("slice of %s may run arbitrary code", seq.Type())
	}
	switch seq.(type) {
	case starlark.String, starlark.Bytes, starlark.Tuple, *starlark.List:
	default:
		return nil, cannotEval("slice of %s may run arbitrary code", seq.Type())
	}
	start, end, stride, err := sliceIndices(lo, hi, step, indexable.Len())
	if err != nil {
		return nil, err
	}
	var idx []int
	if stride > 0 {
		for i := start; i < end; i += stride {
			idx = append(idx, i)
		}
	} else {
		for i := start; i > end; i += stride {
			idx = append(idx, i)
		}
	}
	switch s := seq.(type) {
	case starlark.String:
		var b strings.Builder
		for _, i := range idx {
			b.WriteByte(string(s)[i])
		}
		return starlark.String(b.String()), nil
	case starlark.Bytes:
		var b strings.Builder
		for _, i := range idx {
			b.WriteByte(string(s)[i])
		}
		return starlark.Bytes(b.String()), nil
	case starlark.Tuple:
		elems := make(starlark.Tuple, len(idx))
		for j, i := range idx {
			elems[j] = s[i]
		}
		return elems, nil
	case *starlark.List:
		elems := make([]starlark.Value, len(idx))
		for j, i := range idx {
			elems[j] = s.Index(i)
		}
		return starlark.NewList(elems), nil
	}
	return nil, cannotEval("slice of %s may run arbitrary code", seq.Type())
}

// sliceIndices resolves optional slice bounds against a sequence of length
// n, clamping like slice.indices: out-of-range bounds saturate instead of
// refusing.
func sliceIndices(lo, hi, step starlark.Value, n int) (start, end, stride int, err error) {
	stride = 1
	if step != nil {
		if stride, err = asIndex(step); err != nil {
			return 0, 0, 0, err
		}
		if stride == 0 {
			return 0, 0, 0, cannotEval("slice step cannot be zero")
		}
	}
	if stride > 0 {
		start, end = 0, n
	} else {
		start, end = n-1, -1
	}
	if lo != nil {
		i, err := asIndex(lo)
		if err != nil {
			return 0, 0, 0, err
		}
		start = clampSliceIndex(i, n, stride)
	}
	if hi != nil {
		i, err := asIndex(hi)
		if err != nil {
			return 0, 0, 0, err
		}
		end = clampSliceIndex(i, n, stride)
	}
	return start, end, stride, nil
}

func clampSliceIndex(i, n, stride int) int {
	if i < 0 {
		i += n
		if i < 0 {
			if stride < 0 {
				return -1
			}
			return 0
		}
	}
	if i >= n {
		if stride < 0 {
			return n - 1
		}
		return n
	}
	return i
}

func asIndex(v starlark.Value) (int, error) {
	if _, ok := v.(starlark.Int); !ok {
		return 0, cannotEval("%s is not a valid index", v.Type())
	}
	i, err := starlark.AsInt32(v)
	if err != nil {
		return 0, cannotEval("%v", err)
	}
	return i, nil
}

// safeUnary computes a unary operation on a primitive operand. The operand
// type gate guarantees the operator's behavior is fixed by the language.
func safeUnary(op syntax.Token, x starlark.Value) (starlark.Value, error) {
	switch op {
	case syntax.NOT:
		if !isPrimitive(x) {
			return nil, cannotEval("truth value of %s may run arbitrary code", x.Type())
		}
		return !x.Truth(), nil
	case syntax.PLUS, syntax.MINUS, syntax.TILDE:
		switch x.(type) {
		case starlark.Int, starlark.Float:
			v, err := starlark.Unary(op, x)
			if err != nil {
				return nil, cannotEval("%v", err)
			}
			return v, nil
		}
	}
	return nil, cannotEval("unary %s of %s may run arbitrary code", op, x.Type())
}

// safeBinary computes arithmetic on primitive operands, where no operator
// overload can exist. Dynamic faults (division by zero, a bad % format)
// refuse rather than surface.
func safeBinary(op syntax.Token, x, y starlark.Value) (starlark.Value, error) {
	if !isPrimitive(x) || !isPrimitive(y) {
		return nil, cannotEval("%s %s %s may run arbitrary code", x.Type(), op, y.Type())
	}
	v, err := starlark.Binary(op, x, y)
	if err != nil {
		return nil, cannotEval("%v", err)
	}
	return v, nil
}

// safeCompare computes ordered/equality comparison of primitives and
// membership tests against built-in containers of safe keys.
func safeCompare(op syntax.Token, x, y starlark.Value) (starlark.Value, error) {
	if op == syntax.IN || op == syntax.NOT_IN {
		found, err := safeContains(y, x)
		if err != nil {
			return nil, err
		}
		if op == syntax.NOT_IN {
			found = !found
		}
		return starlark.Bool(found), nil
	}
	if !isPrimitive(x) || !isPrimitive(y) {
		return nil, cannotEval("comparison of %s and %s may run arbitrary code", x.Type(), y.Type())
	}
	ok, err := starlark.Compare(op, x, y)
	if err != nil {
		return nil, cannotEval("%v", err)
	}
	return starlark.Bool(ok), nil
}

func safeContains(haystack, needle starlark.Value) (bool, error) {
	switch c := haystack.(type) {
	case starlark.String:
		n, ok := needle.(starlark.String)
		if !ok {
			return false, cannotEval("%s in string", needle.Type())
		}
		return strings.Contains(string(c), string(n)), nil

	case starlark.Tuple:
		return containsScan(needle, c)

	case *starlark.List:
		elems := make([]starlark.Value, c.Len())
		for i := 0; i < c.Len(); i++ {
			elems[i] = c.Index(i)
		}
		return containsScan(needle, elems)

	case *starlark.Set:
		if !safeHashKey(needle) {
			return false, cannotEval("%s is not a safely hashable key", needle.Type())
		}
		for _, elem := range iterateElems(c) {
			if !safeHashKey(elem) {
				return false, cannotEval("set holds a %s element", elem.Type())
			}
		}
		found, err := c.Has(needle)
		if err != nil {
			return false, cannotEval("%v", err)
		}
		return found, nil

	case *starlark.Dict:
		if !safeHashKey(needle) {
			return false, cannotEval("%s is not a safely hashable key", needle.Type())
		}
		if c.Len() >= maxCheckedDict {
			return false, cannotEval("dict too large to verify key safety")
		}
		for _, k := range c.Keys() {
			if !safeHashKey(k) {
				return false, cannotEval("dict holds a %s key", k.Type())
			}
		}
		_, found, err := c.Get(needle)
		if err != nil {
			return false, cannotEval("%v", err)
		}
		return found, nil
	}
	return false, cannotEval("membership in %s may run arbitrary code", haystack.Type())
}

func containsScan(needle starlark.Value, elems []starlark.Value) (bool, error) {
	if !safeHashKey(needle) {
		return false, cannotEval("%s is not safely comparable", needle.Type())
	}
	for _, elem := range elems {
		if !safeHashKey(elem) {
			return false, cannotEval("container holds a %s element", elem.Type())
		}
		eq, err := starlark.Equal(needle, elem)
		if err != nil {
			return false, cannotEval("%v", err)
		}
		if eq {
			return true, nil
		}
	}
	return false, nil
}

// iterateElems snapshots the elements of a built-in iterable. Only called
// for *starlark.Set, whose iterator runs no user code.
func iterateElems(iterable starlark.Iterable) []starlark.Value {
	var elems []starlark.Value
	it := iterable.Iterate()
	defer it.Done()
	var v starlark.Value
	for it.Next(&v) {
		elems = append(elems, v)
	}
	return elems
}
