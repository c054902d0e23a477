package services

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexconsult/quote-harvester/internal/models"
)

// Metrics holds the harvester's prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	eventsDiscovered prometheus.Counter
	eventsInserted   prometheus.Counter
	linksInserted    prometheus.Counter
	itemsExtracted   prometheus.Counter
	itemsInserted    prometheus.Counter
	rowsSkipped      *prometheus.CounterVec
	authFailures     prometheus.Counter
	runDuration      *prometheus.HistogramVec
	runs             *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "harvester",
			Name:      "events_discovered_total",
			Help:      "Events read from the listing, before deduplication",
		}),
		eventsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "harvester",
			Name:      "events_inserted_total",
			Help:      "New events stored",
		}),
		linksInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "harvester",
			Name:      "links_inserted_total",
			Help:      "New tenant to event links stored",
		}),
		itemsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "harvester",
			Name:      "items_extracted_total",
			Help:      "Line items read from detail pages",
		}),
		itemsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "harvester",
			Name:      "items_inserted_total",
			Help:      "New line items stored",
		}),
		rowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harvester",
			Name:      "rows_skipped_total",
			Help:      "Detail rows that yielded no line item",
		}, []string{"reason"}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "harvester",
			Name:      "auth_failures_total",
			Help:      "Portal logins that failed",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "harvester",
			Name:      "run_duration_seconds",
			Help:      "Duration of harvesting runs",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}, []string{"kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harvester",
			Name:      "runs_total",
			Help:      "Harvesting runs by outcome",
		}, []string{"kind", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsDiscovered, m.eventsInserted, m.linksInserted,
		m.itemsExtracted, m.itemsInserted, m.rowsSkipped,
		m.authFailures, m.runDuration, m.runs,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) AuthFailed() {
	m.authFailures.Inc()
}

func (m *Metrics) RowSkipped(reason string) {
	m.rowsSkipped.WithLabelValues(reason).Inc()
}

// ObserveTenant adds one tenant's counters
func (m *Metrics) ObserveTenant(r models.TenantResult) {
	m.eventsDiscovered.Add(float64(r.Discovered))
	m.eventsInserted.Add(float64(r.EventsInserted))
	m.linksInserted.Add(float64(r.LinksInserted))
	m.itemsExtracted.Add(float64(r.ItemsExtracted))
	m.itemsInserted.Add(float64(r.ItemsInserted))
}

// ObserveRun records a finished run
func (m *Metrics) ObserveRun(s *models.RunSummary) {
	outcome := "success"
	if s.Error != "" {
		outcome = "failure"
	}
	m.runs.WithLabelValues(string(s.Kind), outcome).Inc()
	m.runDuration.WithLabelValues(string(s.Kind)).Observe(s.Duration().Seconds())
}
