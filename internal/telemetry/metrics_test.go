package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.AuthEvent("signin", OutcomeSuccess)
	m.AuthEvent("signin", OutcomeSuccess)
	m.AuthEvent("refresh", OutcomeExpired)
	m.ExternalTokenRead(OutcomeStale)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authEvents.WithLabelValues("signin", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authEvents.WithLabelValues("refresh", OutcomeExpired)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.externalRefresh.WithLabelValues(OutcomeStale)))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AuthEvent("signin", OutcomeFailure)
		m.ExternalTokenRead(OutcomeSuccess)
		m.HTTPRequest("/auth/me", "GET", "200", 0.01)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.HTTPRequest("/auth/signin", http.MethodPost, "200", 0.02)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `jiaa_http_requests_total{method="POST",route="/auth/signin",status="200"} 1`)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "jiaa-auth", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
