package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "edgedash"

// Resource labels.
const (
	ResourceFolder     = "folder"
	ResourceDatasource = "datasource"
	ResourceDashboard  = "dashboard"
)

// Metrics holds the counters of one run on a private registry, so a run can
// be written out as a node_exporter textfile.
type Metrics struct {
	Registry *prometheus.Registry

	ResourcesTotal *prometheus.CounterVec
	EdgeFailures   *prometheus.CounterVec
	EdgeDuration   *prometheus.HistogramVec
	LastRunEdges   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ResourcesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resources_total",
				Help:      "Grafana resources reconciled, by resource and outcome",
			},
			[]string{"resource", "outcome"},
		),
		EdgeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "edge_failures_total",
				Help:      "Edges whose datasource or dashboard could not be reconciled",
			},
			[]string{"edge"},
		),
		EdgeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "edge_reconcile_duration_seconds",
				Help:      "Time spent reconciling one edge",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"edge"},
		),
		LastRunEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_edges",
			Help:      "Edges configured in the last run",
		}),
	}
	m.Registry.MustRegister(m.ResourcesTotal, m.EdgeFailures, m.EdgeDuration, m.LastRunEdges)
	return m
}

// Observe counts one reconciled resource.
func (m *Metrics) Observe(resource, outcome string) {
	m.ResourcesTotal.WithLabelValues(resource, outcome).Inc()
}

// WriteTextfile writes all metrics in the text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
