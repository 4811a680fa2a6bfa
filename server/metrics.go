package server

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the server's atomic counters, exposed to Prometheus
// through a prometheus.Collector so a deployment can scrape them. The
// transport layer's connection counts are not part of it. This extends the
// atomic-counter-plus-Snapshot shape orchestrate/hub/metrics.go uses,
// wired to a real collector rather than a bespoke Snapshot struct
// since the state server is the component worth exporting externally.
type Metrics struct {
	commits      atomic.Int64
	keysChanged  atomic.Int64

	commitsDesc     *prometheus.Desc
	keysChangedDesc *prometheus.Desc
}

// NewMetrics creates a Metrics ready to register with a
// prometheus.Registry via RegisterWith.
func NewMetrics() *Metrics {
	return &Metrics{
		commitsDesc: prometheus.NewDesc(
			"zproc_server_commits_total",
			"Number of commits that advanced the revision.",
			nil, nil,
		),
		keysChangedDesc: prometheus.NewDesc(
			"zproc_server_keys_changed_total",
			"Number of key changes committed across all commits.",
			nil, nil,
		),
	}
}

func (m *Metrics) recordCommit(keysChanged int) {
	m.commits.Add(1)
	m.keysChanged.Add(int64(keysChanged))
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.commitsDesc
	ch <- m.keysChangedDesc
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(m.commitsDesc, prometheus.CounterValue, float64(m.commits.Load()))
	ch <- prometheus.MustNewConstMetric(m.keysChangedDesc, prometheus.CounterValue, float64(m.keysChanged.Load()))
}

// RegisterWith registers the server's metrics with reg. Tests and
// embedded uses that don't care about Prometheus export can skip this
// entirely; the counters are still recorded either way.
func (s *Server) RegisterWith(reg *prometheus.Registry) error {
	return reg.Register(s.metrics)
}
