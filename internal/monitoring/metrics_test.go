package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ScrapeExposesInstruments(t *testing.T) {
	m, err := New("agent-governance-test")
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRun(ctx, "inbox_triage", "success")
	m.RecordRun(ctx, "inbox_triage", "failed")
	m.ObserveRunDuration(ctx, "inbox_triage", 0.42)
	m.IncAuditWriteFailure(ctx)
	m.IncEventDropped(ctx)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "agent_runs_total")
	assert.Contains(t, body, "agent_run_duration_seconds")
	assert.Contains(t, body, "audit_write_failures_total")
	assert.Contains(t, body, "agent_events_dropped_total")
}

func TestMetrics_NilReceiverIsNoOp(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordRun(ctx, "inbox_triage", "success")
		m.ObserveRunDuration(ctx, "inbox_triage", 1)
		m.IncAuditWriteFailure(ctx)
		m.IncEventDropped(ctx)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
