package metric

import "github.com/prometheus/client_golang/prometheus"

// NodeStatsSource is the subset of clusternode.Node's neighbor table a
// NodeCollector reads at scrape time.
type NodeStatsSource interface {
	KnownNodeCount() int
	LiveMasterCount() int
}

// NodeCollector reports known-node and live-master gauges computed
// directly from the node's neighbor table on every scrape, rather than
// maintaining separately-updated gauges that could drift from knows_nodes.
type NodeCollector struct {
	node NodeStatsSource

	knownNodes  *prometheus.Desc
	liveMasters *prometheus.Desc
}

// NewNodeCollector creates a NodeCollector for node.
func NewNodeCollector(node NodeStatsSource) *NodeCollector {
	return &NodeCollector{
		node: node,
		knownNodes: prometheus.NewDesc(
			"tokmesh_known_nodes",
			"Neighbors currently known to this node.",
			nil, nil,
		),
		liveMasters: prometheus.NewDesc(
			"tokmesh_live_masters",
			"Known masters not currently marked FAIL.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *NodeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.knownNodes
	ch <- c.liveMasters
}

// Collect implements prometheus.Collector.
func (c *NodeCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.knownNodes, prometheus.GaugeValue, float64(c.node.KnownNodeCount()))
	ch <- prometheus.MustNewConstMetric(c.liveMasters, prometheus.GaugeValue, float64(c.node.LiveMasterCount()))
}
