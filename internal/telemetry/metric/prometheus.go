// Package metric provides Prometheus metrics for TokMesh.
//
// It exposes counters and histograms for cluster-bus traffic, gossip
// failure-detection transitions, and storage I/O, plus gauges for
// known-node and live-master counts computed at scrape time from the
// node's own neighbor table.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric this node exposes at /metrics.
type Registry struct {
	registry *prometheus.Registry

	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	PFailTotal       prometheus.Counter
	FailTotal        prometheus.Counter
	AOFAppendsTotal  prometheus.Counter
	SnapshotDuration prometheus.Histogram
}

// NewRegistry creates a metrics registry and registers every collector,
// including Go runtime and process collectors, matching the teacher's own
// BadgerEngine.RegisterMetrics convention of registering everything up
// front against a dedicated *prometheus.Registry rather than the global
// default one.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{registry: reg}

	r.MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tokmesh",
		Subsystem: "bus",
		Name:      "messages_sent_total",
		Help:      "Cluster-bus messages sent, by payload kind.",
	}, []string{"kind"})

	r.MessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tokmesh",
		Subsystem: "bus",
		Name:      "messages_received_total",
		Help:      "Cluster-bus messages received, by payload kind.",
	}, []string{"kind"})

	r.PFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tokmesh",
		Subsystem: "gossip",
		Name:      "pfail_total",
		Help:      "Neighbor transitions into PFAIL.",
	})

	r.FailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tokmesh",
		Subsystem: "gossip",
		Name:      "fail_total",
		Help:      "Neighbor transitions into FAIL.",
	})

	r.AOFAppendsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tokmesh",
		Subsystem: "aof",
		Name:      "appends_total",
		Help:      "Commands appended to the append-only file.",
	})

	r.SnapshotDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tokmesh",
		Subsystem: "rdb",
		Name:      "snapshot_duration_seconds",
		Help:      "Time taken to write an RDB snapshot.",
		Buckets:   prometheus.DefBuckets,
	})

	reg.MustRegister(
		r.MessagesSent,
		r.MessagesReceived,
		r.PFailTotal,
		r.FailTotal,
		r.AOFAppendsTotal,
		r.SnapshotDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// RegisterNodeCollector wires the known-node/live-master gauges derived
// from node's neighbor table, scraped live rather than cached.
func (r *Registry) RegisterNodeCollector(node NodeStatsSource) {
	r.registry.MustRegister(NewNodeCollector(node))
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
