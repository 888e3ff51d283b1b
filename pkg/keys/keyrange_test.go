package keys

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyRangeIncludes(t *testing.T) {
	r, err := Bound(Number(1), Number(5), true, false)
	require.NoError(t, err)
	assert.False(t, r.Includes(Number(1)))
	assert.True(t, r.Includes(Number(1.0001)))
	assert.True(t, r.Includes(Number(5)))
	assert.False(t, r.Includes(Number(6)))
	assert.False(t, r.Includes(String("3")))

	only, err := Only(String("x"))
	require.NoError(t, err)
	assert.True(t, only.IsOnly())
	assert.True(t, only.Includes(String("x")))
	assert.False(t, only.Includes(String("xy")))

	lo, err := LowerBound(String("b"), false)
	require.NoError(t, err)
	assert.True(t, lo.Includes(Array()))
	assert.False(t, lo.Includes(Number(1e9)))

	up, err := UpperBound(Number(0), true)
	require.NoError(t, err)
	assert.True(t, up.Includes(Number(-1)))
	assert.False(t, up.Includes(Number(0)))

	var all *KeyRange
	assert.True(t, all.Includes(Binary([]byte("anything"))))
}

func TestKeyRangeErrors(t *testing.T) {
	_, err := Bound(Number(5), Number(1), false, false)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Bound(Number(1), Number(1), true, false)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Bound(Number(1), Number(1), false, false)
	assert.NoError(t, err)

	_, err = Only(Number(math.NaN()))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = LowerBound(None, false)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
