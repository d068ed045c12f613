package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDegraded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)

	m.Degraded("exchange_rates")
	m.Degraded("exchange_rates")
	m.Degraded("llm")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpstreamDegraded.WithLabelValues("exchange_rates")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamDegraded.WithLabelValues("llm")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.Degraded("llm") })
}

func TestHandler(t *testing.T) {
	m := New()
	m.RPCRequests.WithLabelValues("/limitly.v1.GroupService/CreateGroup", "ok").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `limitly_rpc_requests_total{code="ok",procedure="/limitly.v1.GroupService/CreateGroup"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
