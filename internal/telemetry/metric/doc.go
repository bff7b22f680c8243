// Package metric provides Prometheus metrics for TokMesh.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Registry construction, registration, and the
//     /metrics HTTP handler
//   - collector.go: NodeCollector, a custom prometheus.Collector that
//     reports known-node/live-master gauges straight from the neighbor
//     table on every scrape
//
// Metrics cover:
//
//   - Cluster-bus messages sent/received, by payload kind
//   - Gossip PFAIL/FAIL transitions
//   - AOF append counts and RDB snapshot durations
//   - Known-node and live-master gauges
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
