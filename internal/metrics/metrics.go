// Package metrics exposes Prometheus counters for passage lookups and
// pagination. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "juniperbot"

// OutcomeOK labels a successful operation; failures use the error kind name.
const OutcomeOK = "ok"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	passages        *prometheus.CounterVec
	chunks          prometheus.Histogram
	navigations     *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	sessionsEvicted prometheus.Counter
}

// New registers the collectors, plus Go runtime and process collectors, on
// a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passages_total",
			Help:      "Passage requests by delivery and outcome.",
		}, []string{"delivery", "outcome"}),
		chunks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "passage_chunks",
			Help:      "Number of chunks per delivered passage.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigations_total",
			Help:      "Pagination actions by action and outcome.",
		}, []string{"action", "outcome"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Pagination sessions created.",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Live pagination sessions dropped by the capacity bound.",
		}),
	}
	m.registry.MustRegister(
		m.passages,
		m.chunks,
		m.navigations,
		m.sessionsCreated,
		m.sessionsEvicted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePassage records one passage request. chunks is ignored for
// failed requests.
func (m *Metrics) ObservePassage(delivery, outcome string, chunks int) {
	if m == nil {
		return
	}
	m.passages.WithLabelValues(delivery, outcome).Inc()
	if outcome == OutcomeOK {
		m.chunks.Observe(float64(chunks))
	}
}

// ObserveNavigation records one pagination action.
func (m *Metrics) ObserveNavigation(action, outcome string) {
	if m == nil {
		return
	}
	m.navigations.WithLabelValues(action, outcome).Inc()
}

// SessionCreated counts a new pagination session.
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

// SessionEvicted counts a live session dropped for capacity.
func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.sessionsEvicted.Inc()
}
