package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/healthz", 200, time.Millisecond)
		m.RecordProfileBuild("ok", time.Second)
		m.RecordCacheHit()
		m.RecordPartialData("posts")
		m.RecordProviderCall("openai", "ok", 10, time.Second)
		m.RecordTurn("completed")
		m.RecordSchedulerCycle()
		m.WSConnected(1)
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := New("bizdna", nil)

	m.RecordProviderCall("openai", "ok", 42, 200*time.Millisecond)
	m.RecordProviderCall("openai", "error", 0, time.Second)
	m.RecordPartialData("posts")
	m.RecordPartialData("posts")
	m.RecordTurn("failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRequestsTotal.WithLabelValues("openai", "ok")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.ProviderTokensTotal.WithLabelValues("openai")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PartialDataTotal.WithLabelValues("posts")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("failed")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New("bizdna", nil)
	m.RecordCacheHit()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bizdna_profile_cache_hits_total 1")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New("bizdna", nil)
		New("bizdna", nil)
	})
}
