// Package heartbeat implements the ping loop, pong-audit loop, and gossip
// exchange of §4.4: PFAIL/FAIL detection and cluster-state coverage
// computation.
package heartbeat

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/tokmesh/cluster/internal/bus"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
	"github.com/tokmesh/cluster/internal/telemetry/metric"
)

// Sender delivers a bus message to a known neighbor. Implemented by the
// connection layer that owns outgoing_streams; heartbeat never holds that
// map directly, per the cyclic-reference design note.
type Sender interface {
	Send(ctx context.Context, to clusterid.NodeId, msg bus.Message) error
}

// FailObserver is notified when a neighbor transitions to FAIL, so the
// promotion coordinator can react if self is a replica of that node.
type FailObserver interface {
	OnNeighborFailed(id clusterid.NodeId)
}

// Coordinator owns the ping/pong-audit loops and gossip processing for one
// Node.
type Coordinator struct {
	node     *clusternode.Node
	sender   Sender
	observer FailObserver
	logger   *slog.Logger

	mu           sync.Mutex
	pfailReports map[clusterid.NodeId]map[clusterid.NodeId]bool

	discoverer Discoverer
	metrics    *metric.Registry
}

// New constructs a Coordinator.
func New(node *clusternode.Node, sender Sender, observer FailObserver, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		node:         node,
		sender:       sender,
		observer:     observer,
		logger:       logger,
		pfailReports: make(map[clusterid.NodeId]map[clusterid.NodeId]bool),
	}
}

// SetSender wires the component that owns outgoing_streams. Kept as a
// setter for the same reason as SetDiscoverer: the bus server and the
// heartbeat coordinator can be constructed in either order.
func (c *Coordinator) SetSender(s Sender) {
	c.sender = s
}

// SetFailObserver wires the component notified of FAIL transitions, for
// callers that construct the Coordinator before its observer exists.
func (c *Coordinator) SetFailObserver(o FailObserver) {
	c.observer = o
}

// SetMetrics wires the metrics registry. A nil registry leaves PFAIL/FAIL
// counting a no-op.
func (c *Coordinator) SetMetrics(m *metric.Registry) {
	c.metrics = m
}

func (c *Coordinator) nodeTimeout() time.Duration {
	return time.Duration(c.node.Self.NodeTimeout) * time.Millisecond
}

// RunPingLoop wakes every node_timeout/10 ms and sends Ping to a random
// subset of neighbors, plus any neighbor overdue for one.
func (c *Coordinator) RunPingLoop(ctx context.Context) {
	interval := c.nodeTimeout() / 10
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pingTick(ctx)
		}
	}
}

func (c *Coordinator) pingTick(ctx context.Context) {
	var all []clusterid.NodeId
	c.node.KnowsNodes.Range(func(id clusterid.NodeId, _ *neighbor.Info) bool {
		all = append(all, id)
		return true
	})
	if len(all) == 0 {
		return
	}

	pickCount := len(all) / 2
	if pickCount < 1 {
		pickCount = 1
	}

	shuffled := append([]clusterid.NodeId(nil), all...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	picked := make(map[clusterid.NodeId]bool, pickCount)
	for i := 0; i < pickCount && i < len(shuffled); i++ {
		picked[shuffled[i]] = true
	}

	now := time.Now()
	half := c.nodeTimeout() / 2

	for _, id := range all {
		info, ok := c.node.KnowsNodes.Get(id)
		if !ok {
			continue
		}
		send := picked[id]
		if !send && (info.PingSentAt.IsZero() || now.Sub(info.PingSentAt) > half) {
			send = true
		}
		if !send {
			continue
		}
		c.sendPing(ctx, id)
	}
}

func (c *Coordinator) sendPing(ctx context.Context, to clusterid.NodeId) {
	gossip := c.sampleGossip(3, to)
	msg := bus.Message{
		Header:  c.header(bus.KindPing),
		Payload: bus.PingPayload{Gossip: gossip},
	}
	c.node.KnowsNodes.Update(to, func(info *neighbor.Info) *neighbor.Info {
		info.PingSentAt = time.Now()
		return info
	})
	if err := c.sender.Send(ctx, to, msg); err != nil {
		c.markPFail(to)
		c.logger.Warn("ping send failed, marking PFAIL", "node", to, "error", err)
	}
}

// sampleGossip returns up to n GossipEntry values describing known nodes
// other than exclude, for piggy-backing onto a Ping/Pong.
func (c *Coordinator) sampleGossip(n int, exclude clusterid.NodeId) []bus.GossipEntry {
	var entries []bus.GossipEntry
	c.node.KnowsNodes.Range(func(id clusterid.NodeId, info *neighbor.Info) bool {
		if id == exclude {
			return true
		}
		entries = append(entries, toGossipEntry(id, info))
		return len(entries) < n
	})
	return entries
}

func toGossipEntry(id clusterid.NodeId, info *neighbor.Info) bus.GossipEntry {
	e := bus.GossipEntry{
		NodeID: id,
		Addr:   info.ClusterAddr,
		Flags:  info.Flags,
		Slots:  info.Slots,
	}
	if info.Role == neighbor.RoleReplica {
		e.HasMaster = true
		e.MasterID = info.MasterID
	}
	return e
}

func (c *Coordinator) header(kind bus.Kind) bus.Header {
	return bus.Header{
		Kind:         kind,
		Sender:       c.node.Self.ID,
		CurrentEpoch: c.node.CurrentEpoch.Load(),
		ConfigEpoch:  c.node.ConfigEpoch.Load(),
		SenderFlags:  selfFlags(c.node),
		SenderSlots:  c.node.Storage.SlotRange(),
		ClusterState: c.node.ClusterState(),
	}
}

func selfFlags(node *clusternode.Node) neighbor.Flags {
	if node.Role() == neighbor.RoleMaster {
		return neighbor.FlagMaster
	}
	return neighbor.FlagReplica
}

// markPFail sets the PFAIL flag for a neighbor if not already set.
func (c *Coordinator) markPFail(id clusterid.NodeId) {
	c.node.KnowsNodes.Update(id, func(info *neighbor.Info) *neighbor.Info {
		info.Flags = info.Flags.Set(neighbor.FlagPFail)
		return info
	})
	if c.metrics != nil {
		c.metrics.PFailTotal.Inc()
	}
}

// HandlePong records that a Pong was received from the sender.
func (c *Coordinator) HandlePong(from clusterid.NodeId) {
	c.node.KnowsNodes.Update(from, func(info *neighbor.Info) *neighbor.Info {
		info.PongRecvAt = time.Now()
		return info
	})
}
