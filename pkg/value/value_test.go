package value

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectOrder(t *testing.T) {
	o := ObjectOf("b", Number(1), "a", Number(2))
	o.Set("c", Number(3))
	o.Set("b", Number(4))
	assert.Equal(t, []string{"b", "a", "c"}, o.Keys())

	o.Delete("a")
	assert.Equal(t, []string{"b", "c"}, o.Keys())
	v, ok := o.Get("b")
	require.True(t, ok)
	assert.Equal(t, Number(4), v)
}

func TestMapAndSetUseSameValueZero(t *testing.T) {
	m := NewMap()
	m.Set(Number(math.NaN()), String("nan"))
	m.Set(Number(math.Copysign(0, -1)), String("zero"))

	v, ok := m.Get(Number(math.NaN()))
	require.True(t, ok)
	assert.Equal(t, String("nan"), v)
	v, ok = m.Get(Number(0))
	require.True(t, ok)
	assert.Equal(t, String("zero"), v)

	a, b := NewObject(), NewObject()
	s := NewSet(a, a, b)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has(b))
	assert.False(t, s.Has(NewObject()))
}

func TestEqualCyclic(t *testing.T) {
	x := NewObject()
	x.Set("self", x)
	y := NewObject()
	y.Set("self", y)
	assert.True(t, Equal(x, y))

	y.Set("extra", Null{})
	assert.False(t, Equal(x, y))
}

func TestEqualKinds(t *testing.T) {
	assert.True(t, Equal(Number(math.NaN()), Number(math.NaN())))
	assert.False(t, Equal(Number(1), String("1")))
	assert.True(t, Equal(NewBigInt(big.NewInt(7)), NewBigInt(big.NewInt(7))))
	assert.True(t, Equal(NewBinary([]byte{1, 2}), NewBinary([]byte{1, 2})))
	assert.False(t, Equal(NewArray(Number(1)), NewArray(Number(1), Number(2))))

	// property order does not matter for objects
	assert.True(t, Equal(
		ObjectOf("a", Number(1), "b", Number(2)),
		ObjectOf("b", Number(2), "a", Number(1)),
	))
	fn := &Function{Name: "f"}
	assert.True(t, Equal(fn, fn))
	assert.False(t, Equal(fn, &Function{Name: "f"}))
}

func TestFormat(t *testing.T) {
	a := NewArray(Number(1), String("x"), Null{})
	a.Append(a)
	assert.Equal(t, `[1, "x", null, [Circular]]`, Format(a))

	o := ObjectOf("n", Number(math.Inf(1)), "d", &Date{Millis: math.NaN()})
	assert.Equal(t, `{n: Infinity, d: Date(Invalid)}`, Format(o))
}

type profile struct {
	Name  string
	Tags  []string
	Owner *profile
	skip  int
}

func TestFromGo(t *testing.T) {
	shared := map[string]any{"k": 1}
	v, err := FromGo(map[string]any{
		"a":    shared,
		"b":    shared,
		"when": time.UnixMilli(1000),
		"raw":  []byte("hi"),
	})
	require.NoError(t, err)

	o := v.(*Object)
	assert.Equal(t, []string{"a", "b", "raw", "when"}, o.Keys())
	av, _ := o.Get("a")
	bv, _ := o.Get("b")
	assert.Same(t, av.(*Object), bv.(*Object))
	when, _ := o.Get("when")
	assert.Equal(t, float64(1000), when.(*Date).Millis)

	p := &profile{Name: "ann", Tags: []string{"x"}}
	p.Owner = p
	v, err = FromGo(p)
	require.NoError(t, err)
	po := v.(*Object)
	assert.Equal(t, []string{"Name", "Tags", "Owner"}, po.Keys())
	owner, _ := po.Get("Owner")
	assert.Same(t, po, owner.(*Object))

	_, err = FromGo(map[int]string{1: "x"})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestToGo(t *testing.T) {
	inner := ObjectOf("n", Number(2))
	v := ObjectOf("list", NewArray(inner, inner), "flag", Bool(true))
	out := ToGo(v).(map[string]any)
	assert.Equal(t, true, out["flag"])
	list := out["list"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, map[string]any{"n": float64(2)}, list[0])
}
