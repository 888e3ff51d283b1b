package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/idbstore/pkg/value"
)

func TestKeyPathValidate(t *testing.T) {
	for _, kp := range []KeyPath{{}, Path(""), Path("a"), Path("a.b_c.$d"), Paths("x", "y.z")} {
		assert.NoError(t, kp.Validate(), kp.String())
	}
	for _, kp := range []KeyPath{Path("a..b"), Path("1a"), Path("a-b"), Paths(), Paths("ok", " ")} {
		assert.ErrorIs(t, kp.Validate(), ErrInvalidKeyPath, kp.String())
	}
}

func TestEvaluate(t *testing.T) {
	v := value.ObjectOf(
		"id", value.Number(4),
		"name", value.String("héllo"),
		"addr", value.ObjectOf("zip", value.String("02139")),
		"tags", value.NewArray(value.String("b"), value.String("a"), value.String("b"), value.Null{}),
	)

	k, err := Path("id").Evaluate(v)
	require.NoError(t, err)
	assert.True(t, Equal(Number(4), k))

	k, err = Path("addr.zip").Evaluate(v)
	require.NoError(t, err)
	assert.True(t, Equal(String("02139"), k))

	k, err = Path("name.length").Evaluate(v)
	require.NoError(t, err)
	assert.True(t, Equal(Number(5), k))

	k, err = Path("missing.deep").Evaluate(v)
	require.NoError(t, err)
	assert.True(t, k.IsNone())

	k, err = Paths("id", "addr.zip").Evaluate(v)
	require.NoError(t, err)
	assert.True(t, Equal(Array(Number(4), String("02139")), k))

	_, err = Paths("id", "nope").Evaluate(v)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = Path("tags").Evaluate(v)
	assert.ErrorIs(t, err, ErrInvalidKey)

	k, err = Path("").Evaluate(value.String("self"))
	require.NoError(t, err)
	assert.True(t, Equal(String("self"), k))
}

func TestEvaluateMulti(t *testing.T) {
	v := value.ObjectOf(
		"tags", value.NewArray(value.String("b"), value.String("a"), value.String("b"), value.Null{}),
		"one", value.Number(3),
		"bad", value.Bool(true),
	)

	ks, err := Path("tags").EvaluateMulti(v)
	require.NoError(t, err)
	require.Len(t, ks, 2)
	assert.True(t, Equal(String("a"), ks[0]))
	assert.True(t, Equal(String("b"), ks[1]))

	ks, err = Path("one").EvaluateMulti(v)
	require.NoError(t, err)
	require.Len(t, ks, 1)

	ks, err = Path("bad").EvaluateMulti(v)
	require.NoError(t, err)
	assert.Empty(t, ks)

	_, err = Paths("a", "b").EvaluateMulti(v)
	assert.ErrorIs(t, err, ErrInvalidKeyPath)
}

func TestInject(t *testing.T) {
	v := value.ObjectOf("name", value.String("x"))
	kp := Path("meta.id")
	require.True(t, kp.CanInject(v))
	require.NoError(t, kp.Inject(v, Number(9)))

	k, err := kp.Evaluate(v)
	require.NoError(t, err)
	assert.True(t, Equal(Number(9), k))

	blocked := value.ObjectOf("meta", value.Number(1))
	assert.False(t, kp.CanInject(blocked))
	assert.ErrorIs(t, kp.Inject(blocked, Number(1)), ErrInvalidKeyPath)
	assert.False(t, Path("id").CanInject(value.String("prim")))
}

func TestFromValueCycle(t *testing.T) {
	arr := value.NewArray(value.Number(1))
	arr.Append(arr)
	_, err := FromValue(arr)
	assert.ErrorIs(t, err, ErrInvalidKey)

	shared := value.NewArray(value.Number(1))
	k, err := FromValue(value.NewArray(shared, shared))
	require.NoError(t, err)
	assert.True(t, Equal(Array(Array(Number(1)), Array(Number(1))), k))

	back := ToValue(k)
	assert.True(t, value.Equal(value.NewArray(shared, shared), back))
}
