package keys

import (
	"bytes"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ordered lists keys in strictly ascending order.
func ordered() []Key {
	return []Key{
		Number(-1e308),
		Number(-1.5),
		Number(0),
		Number(1),
		Number(2),
		Number(1e300),
		DateMillis(-1000),
		Date(time.UnixMilli(0)),
		Date(time.UnixMilli(1700000000000)),
		String(""),
		String("\x00"),
		String("\x01"),
		String("A"),
		String("a"),
		String("ab"),
		String("b"),
		String("é"),
		String("😀"),
		Binary(nil),
		Binary([]byte{0}),
		Binary([]byte{0, 0}),
		Binary([]byte{1}),
		Binary([]byte{0xff}),
		Array(),
		Array(Number(1)),
		Array(Number(1), Number(2)),
		Array(Number(1), String("a")),
		Array(Number(2)),
		Array(String("a")),
		Array(Array()),
		Array(Array(Number(0))),
	}
}

func TestCompareOrder(t *testing.T) {
	ks := ordered()
	for i := range ks {
		for j := range ks {
			want := 0
			switch {
			case i < j:
				want = -1
			case i > j:
				want = 1
			}
			assert.Equal(t, want, Compare(ks[i], ks[j]), "%s vs %s", ks[i], ks[j])
		}
	}
}

func TestCompareConsistentWithEncoding(t *testing.T) {
	ks := ordered()
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 2000; n++ {
		a, b, c := ks[rng.Intn(len(ks))], ks[rng.Intn(len(ks))], ks[rng.Intn(len(ks))]

		// antisymmetry
		assert.Equal(t, Compare(a, b), -Compare(b, a))
		// transitivity
		if Compare(a, b) <= 0 && Compare(b, c) <= 0 {
			assert.LessOrEqual(t, Compare(a, c), 0)
		}
		ea, eb := MustEncode(a), MustEncode(b)
		assert.Equal(t, Compare(a, b), bytes.Compare(ea, eb), "%s vs %s", a, b)
	}
}

func TestNegativeZero(t *testing.T) {
	nz := Number(math.Copysign(0, -1))
	assert.Equal(t, 0, Compare(nz, Number(0)))
	assert.Equal(t, MustEncode(Number(0)), MustEncode(nz))
	assert.False(t, math.Signbit(nz.Num()))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(Number(3)))
	require.NoError(t, Validate(Array(String("x"), Array())))

	for _, k := range []Key{
		None,
		Number(math.NaN()),
		Number(math.Inf(1)),
		DateMillis(math.NaN()),
		Array(Number(1), Number(math.NaN())),
	} {
		assert.ErrorIs(t, Validate(k), ErrInvalidKey, "%s", k)
	}
}
