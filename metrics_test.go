package main

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateSubmissionMetrics(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	now := time.Now()
	a := createTestSubmission(t, db, "alice", now)
	createTestSubmission(t, db, "alice", now)
	createTestSubmission(t, db, "bob", now)
	require.NoError(t, CompleteSubmission(db, a.ID, SubmissionAccepted, "0x1", "ev", nil, ""))

	require.NoError(t, m.UpdateSubmissionMetrics(db))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SubmissionsByStatus.WithLabelValues("pending")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SubmissionsByStatus.WithLabelValues("accepted")))

	count, err := testutil.GatherAndCount(reg, "ledgergate_submissions")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RPCRequests.WithLabelValues("get_config", "success").Inc()
	m.ConnectedClients.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RPCRequests.WithLabelValues("get_config", "success")))
	assert.Panics(t, func() { NewMetricsWithRegistry(reg) }, "metrics must not be registered twice")
}
