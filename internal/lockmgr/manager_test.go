package lockmgr

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadersShare(t *testing.T) {
	m := New()
	r1, r2 := uuid.New(), uuid.New()
	assert.True(t, m.Acquire(r1, []string{"a"}, ReadOnly))
	assert.True(t, m.Acquire(r2, []string{"a", "b"}, ReadOnly))
	assert.Equal(t, 0, m.Waits())
}

func TestWritersSerialize(t *testing.T) {
	m := New()
	w1, w2, w3 := uuid.New(), uuid.New(), uuid.New()
	require.True(t, m.Acquire(w1, []string{"a"}, ReadWrite))
	require.False(t, m.Acquire(w2, []string{"a"}, ReadWrite))
	require.False(t, m.Acquire(w3, []string{"a", "b"}, ReadWrite))

	assert.Equal(t, []uuid.UUID{w2}, m.Release(w1))
	assert.False(t, m.Granted(w3))
	assert.Equal(t, []uuid.UUID{w3}, m.Release(w2))
	assert.Empty(t, m.Release(w3))
	assert.Equal(t, 0, m.Len())
}

func TestDisjointWritersRunTogether(t *testing.T) {
	m := New()
	assert.True(t, m.Acquire(uuid.New(), []string{"a"}, ReadWrite))
	assert.True(t, m.Acquire(uuid.New(), []string{"b"}, ReadWrite))
}

func TestReaderBehindWaitingWriterWaits(t *testing.T) {
	m := New()
	r1, w, r2 := uuid.New(), uuid.New(), uuid.New()
	require.True(t, m.Acquire(r1, []string{"a"}, ReadOnly))
	require.False(t, m.Acquire(w, []string{"a"}, ReadWrite))
	require.False(t, m.Acquire(r2, []string{"a"}, ReadOnly))

	assert.Equal(t, []uuid.UUID{w}, m.Release(r1))
	assert.Equal(t, []uuid.UUID{r2}, m.Release(w))
	assert.Equal(t, 2, m.Waits())
}

func TestVersionChangeIsExclusive(t *testing.T) {
	m := New()
	r, vc, other := uuid.New(), uuid.New(), uuid.New()
	require.True(t, m.Acquire(r, []string{"a"}, ReadOnly))
	require.False(t, m.Acquire(vc, nil, VersionChange))
	require.False(t, m.Acquire(other, []string{"zzz"}, ReadOnly))

	assert.Equal(t, []uuid.UUID{vc}, m.Release(r))
	assert.Equal(t, []uuid.UUID{other}, m.Release(vc))
}

func TestReleaseWaitingRequest(t *testing.T) {
	m := New()
	w1, w2, r := uuid.New(), uuid.New(), uuid.New()
	require.True(t, m.Acquire(w1, []string{"a"}, ReadWrite))
	require.False(t, m.Acquire(w2, []string{"a"}, ReadWrite))
	require.False(t, m.Acquire(r, []string{"a"}, ReadOnly))

	// dropping the waiting writer does not unblock the reader while w1 runs
	assert.Empty(t, m.Release(w2))
	assert.Equal(t, []uuid.UUID{r}, m.Release(w1))
	assert.Nil(t, m.Release(uuid.New()))
}
