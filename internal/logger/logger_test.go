package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogTxnFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Output: &buf}).DbLogger("library")

	l.LogTxn("abc", "readwrite", "committed", 3*time.Millisecond, 2, nil)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "idbstore", line["service"])
	assert.Equal(t, "library", line["db"])
	assert.Equal(t, "abc", line["txn"])
	assert.Equal(t, "committed", line["outcome"])
	assert.Equal(t, "debug", line["level"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})

	l.LogTxn("a", "readonly", "committed", 0, 0, nil)
	assert.Zero(t, buf.Len())

	l.LogTxn("b", "readwrite", "aborted", 0, 1, errors.New("boom"))
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestNop(t *testing.T) {
	Nop().Component("x").Error("dropped").Send()
}
