package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordRequest("put", "ok", time.Millisecond)
	m.RecordRequest("put", "ok", time.Millisecond)
	m.RecordRequest("add", "error", time.Millisecond)
	m.RecordTransaction("readwrite", "aborted")
	m.RecordLockWait()
	m.RecordBlocked("delete")
	m.AddConnections(2)
	m.AddConnections(-1)
	m.SetDatabases(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("put", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("add", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("readwrite", "aborted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockWaitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlockedTotal.WithLabelValues("delete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpenConnections))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Databases))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordRequest("get", "ok", 0)
	m.RecordTransaction("readonly", "committed")
	m.RecordLockWait()
	m.RecordBlocked("open")
	m.AddConnections(1)
	m.SetDatabases(1)
}
