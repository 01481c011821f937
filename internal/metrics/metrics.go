package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/ledger-import/internal/importer"
)

const namespace = "ledger_import"

// Metrics records import and HTTP activity on a private registry
type Metrics struct {
	registry     *prometheus.Registry
	imports      *prometheus.CounterVec
	transactions *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	requests     *prometheus.CounterVec
}

// New creates and registers every collector
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Finished imports by mode and outcome.",
		}, []string{"mode", "outcome"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_imported_total",
			Help:      "Transactions persisted by imports.",
		}, []string{"mode"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Time from upload to response for an import.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		m.imports,
		m.transactions,
		m.duration,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ImportFinished implements importer.Observer
func (m *Metrics) ImportFinished(mode importer.Mode, outcome importer.Outcome, imported int, elapsed time.Duration) {
	m.imports.WithLabelValues(string(mode), string(outcome)).Inc()
	if imported > 0 {
		m.transactions.WithLabelValues(string(mode)).Add(float64(imported))
	}
	m.duration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
}

// Instrument counts requests served by next under route
func (m *Metrics) Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	counter := m.requests.MustCurryWith(prometheus.Labels{"route": route})
	return promhttp.InstrumentHandlerCounter(counter, next)
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
