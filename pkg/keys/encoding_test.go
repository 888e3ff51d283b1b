package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	for _, k := range ordered() {
		enc, err := Encode(k)
		require.NoError(t, err)
		got, err := Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, 0, Compare(k, got), "%s decoded as %s", k, got)
		assert.Equal(t, k.Kind(), got.Kind())
	}
}

func TestSplitConcatenated(t *testing.T) {
	ik, pk := Array(String("a\x00b"), Number(7)), String("pk")
	buf := Append(Append(nil, ik), pk)

	first, rest, err := Split(buf)
	require.NoError(t, err)
	assert.True(t, Equal(ik, first))
	second, err := Decode(rest)
	require.NoError(t, err)
	assert.True(t, Equal(pk, second))
}

func TestSuccessorBracketsEntries(t *testing.T) {
	k := String("m")
	enc := MustEncode(k)
	succ := Successor(enc)

	for _, pk := range []Key{Number(-1e300), String("zzzz"), Array(Array())} {
		entry := Append(append([]byte{}, enc...), pk)
		assert.Less(t, string(entry), string(succ))
	}
	assert.Less(t, string(succ), string(MustEncode(String("m\x00"))))
	assert.Less(t, string(succ), string(MustEncode(String("n"))))
}

func TestEncodeLimits(t *testing.T) {
	_, err := Encode(String(strings.Repeat("x", MaxEncodedKey)))
	assert.ErrorIs(t, err, ErrKeyTooLarge)

	_, err = Encode(None)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestDecodeCorrupt(t *testing.T) {
	for _, b := range [][]byte{
		nil,
		{0x10, 1, 2},
		{0x30, 'a'},
		{0x30, 0x01, 0x05, 0x00},
		{0x50, 0x10},
		{0x99},
		{0x30, 0x00, 0x00},
	} {
		_, err := Decode(b)
		assert.ErrorIs(t, err, ErrCorrupt, "%x", b)
	}
}
