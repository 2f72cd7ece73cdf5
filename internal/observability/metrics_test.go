package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.ObserveDecision("direct")
	m.ObserveDecision("direct")
	m.ObserveDecision("fallback")
	m.ObserveFallback("segmenter", "inference_failure")
	m.ObserveIdentityResolution("name-match")
	m.ObserveInference("classifier", time.Now().Add(-100*time.Millisecond))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("direct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("segmenter", "inference_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.identityResolutions.WithLabelValues("name-match")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.inferenceLatency))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveDecision("direct")
		m.ObserveFallback("resolver", "validation_failure")
		m.ObserveIdentityResolution("lost")
		m.ObserveInference("segmenter", time.Now())
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveDecision("direct")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `deskmind_decisions_total{route="direct"} 1`)
}
