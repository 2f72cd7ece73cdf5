package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the decision-core collectors on a private registry. A nil
// *Metrics is valid and records nothing, so components can take it optionally.
type Metrics struct {
	registry *prometheus.Registry

	decisions           *prometheus.CounterVec
	fallbacks           *prometheus.CounterVec
	identityResolutions *prometheus.CounterVec
	inferenceLatency    *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskmind",
			Name:      "decisions_total",
			Help:      "Per-action routing decisions by route.",
		}, []string{"route"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskmind",
			Name:      "fallbacks_total",
			Help:      "Component fallbacks by component and failure kind.",
		}, []string{"component", "kind"}),
		identityResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskmind",
			Name:      "identity_resolutions_total",
			Help:      "Application handle resolutions by identity basis.",
		}, []string{"basis"}),
		inferenceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deskmind",
			Name:      "inference_duration_seconds",
			Help:      "Latency of inference service calls by component.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"component"}),
	}
	m.registry.MustRegister(m.decisions, m.fallbacks, m.identityResolutions, m.inferenceLatency)
	return m
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveDecision(route string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(route).Inc()
}

func (m *Metrics) ObserveFallback(component, kind string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(component, kind).Inc()
}

func (m *Metrics) ObserveIdentityResolution(basis string) {
	if m == nil {
		return
	}
	m.identityResolutions.WithLabelValues(basis).Inc()
}

// ObserveInference records how long an inference call took.
func (m *Metrics) ObserveInference(component string, started time.Time) {
	if m == nil {
		return
	}
	m.inferenceLatency.WithLabelValues(component).Observe(time.Since(started).Seconds())
}
