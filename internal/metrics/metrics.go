package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects per-run pipeline counters. Runs are short lived, so the
// registry is exported as a node_exporter textfile rather than served.
type Metrics struct {
	registry *prometheus.Registry

	EntriesTotal     prometheus.Counter
	RejectedTotal    *prometheus.CounterVec
	DuplicatesTotal  prometheus.Counter
	NewTotal         prometheus.Counter
	NotifyFailures   prometheus.Counter
	FetchFailures    *prometheus.CounterVec
	LastRunTimestamp prometheus.Gauge
	LastRunSuccess   prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.EntriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cvewatch_feed_entries_total",
		Help: "Feed entries examined",
	})

	m.RejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cvewatch_entries_rejected_total",
			Help: "Feed entries rejected, by reason",
		},
		[]string{"reason"},
	)

	m.DuplicatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cvewatch_duplicates_total",
		Help: "Qualifying entries that were already alerted",
	})

	m.NewTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cvewatch_new_vulnerabilities_total",
		Help: "Newly observed vulnerabilities persisted",
	})

	m.NotifyFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cvewatch_notify_failures_total",
		Help: "Alerts that failed to reach at least one channel",
	})

	m.FetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cvewatch_fetch_failures_total",
			Help: "Failed feed fetches, by window",
		},
		[]string{"window"},
	)

	m.LastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cvewatch_last_run_timestamp_seconds",
		Help: "Completion time of the last run",
	})

	m.LastRunSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cvewatch_last_run_success",
		Help: "1 if the last run obtained feed data, 0 otherwise",
	})

	m.registry.MustRegister(
		m.EntriesTotal,
		m.RejectedTotal,
		m.DuplicatesTotal,
		m.NewTotal,
		m.NotifyFailures,
		m.FetchFailures,
		m.LastRunTimestamp,
		m.LastRunSuccess,
	)

	return m
}

// Registry exposes the gatherer for tests and exporters
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the Prometheus text format
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
