package heartbeat

import (
	"context"

	"github.com/tokmesh/cluster/internal/bus"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
)

// Discoverer opens a bus connection to a node first learned about through
// gossip. Implemented by the bus server, which owns outgoing_streams.
type Discoverer interface {
	Discover(ctx context.Context, id clusterid.NodeId, addr string)
}

// SetDiscoverer wires the component that dials newly-learned neighbors.
// Kept as a setter (rather than a constructor argument) because the bus
// server and the heartbeat coordinator are constructed in either order
// depending on wiring; both need a handle to the other.
func (c *Coordinator) SetDiscoverer(d Discoverer) {
	c.discoverer = d
}

// ProcessGossipEntries implements the gossip-exchange rules of §4.4: for
// each entry, open a connection to an unknown non-FAIL node, update stale
// flags for known nodes, and count PFAIL reports toward a Fail broadcast.
func (c *Coordinator) ProcessGossipEntries(ctx context.Context, reporter clusterid.NodeId, reporterIsMaster bool, entries []bus.GossipEntry) {
	for _, e := range entries {
		if e.NodeID == c.node.Self.ID {
			continue
		}
		_, known := c.node.KnowsNodes.Get(e.NodeID)
		if !known {
			if !e.Flags.Has(neighbor.FlagFail) {
				c.node.KnowsNodes.Update(e.NodeID, func(info *neighbor.Info) *neighbor.Info {
					info.ClusterAddr = e.Addr
					info.Flags = e.Flags
					info.Slots = e.Slots
					if e.HasMaster {
						info.Role = neighbor.RoleReplica
						info.MasterID = e.MasterID
					} else {
						info.Role = neighbor.RoleMaster
					}
					return info
				})
				if c.discoverer != nil {
					c.discoverer.Discover(ctx, e.NodeID, e.Addr)
				}
			}
			continue
		}

		c.node.KnowsNodes.Update(e.NodeID, func(info *neighbor.Info) *neighbor.Info {
			if info.Flags != e.Flags {
				// Only adopt newly-reported fail bits; never clear bits we
				// observed locally based on a stale remote view.
				info.Flags = info.Flags | (e.Flags & (neighbor.FlagPFail | neighbor.FlagFail))
			}
			return info
		})

		if e.Flags.Has(neighbor.FlagPFail) && reporterIsMaster {
			c.recordPFailReport(ctx, e.NodeID, reporter)
		}
	}
}

func (c *Coordinator) recordPFailReport(ctx context.Context, target, reporter clusterid.NodeId) {
	c.mu.Lock()
	reporters, ok := c.pfailReports[target]
	if !ok {
		reporters = make(map[clusterid.NodeId]bool)
		c.pfailReports[target] = reporters
	}
	reporters[reporter] = true
	reporters[c.node.Self.ID] = true // self always counts as one reporter
	count := len(reporters)
	c.mu.Unlock()

	threshold := c.node.InitialMasterCount / 2
	if threshold < 1 {
		threshold = 1
	}

	if c.node.Role() == neighbor.RoleMaster && count >= threshold {
		c.markFail(ctx, target)
	}
}

// markFail marks target FAIL locally, tears down its bookkeeping, and
// broadcasts Fail(target) to every other known node. FAIL is terminal:
// the node is removed from knows_nodes after the broadcast.
func (c *Coordinator) markFail(ctx context.Context, target clusterid.NodeId) {
	info, ok := c.node.KnowsNodes.Get(target)
	if !ok || info.IsFail() {
		return
	}

	c.node.KnowsNodes.Update(target, func(i *neighbor.Info) *neighbor.Info {
		i.Flags = i.Flags.Set(neighbor.FlagFail)
		return i
	})
	if c.metrics != nil {
		c.metrics.FailTotal.Inc()
	}

	c.logger.Warn("marking neighbor FAIL", "node", target)

	var peers []clusterid.NodeId
	c.node.KnowsNodes.Range(func(id clusterid.NodeId, _ *neighbor.Info) bool {
		if id != target {
			peers = append(peers, id)
		}
		return true
	})
	msg := bus.Message{
		Header:  c.header(bus.KindFail),
		Payload: bus.FailPayload{NodeID: target},
	}
	for _, id := range peers {
		_ = c.sender.Send(ctx, id, msg)
	}

	c.teardownFailed(target)
}

// teardownFailed removes target from knows_nodes and the local PFAIL
// report bookkeeping, and notifies the observer so replica promotion can
// start if self was a replica of target.
func (c *Coordinator) teardownFailed(target clusterid.NodeId) {
	c.node.KnowsNodes.Delete(target)

	c.mu.Lock()
	delete(c.pfailReports, target)
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.OnNeighborFailed(target)
	}
}

// HandleFail applies a Fail message received from another node: mark the
// target FAIL and tear down bookkeeping, without re-broadcasting (the
// sender already did).
func (c *Coordinator) HandleFail(target clusterid.NodeId) {
	c.node.KnowsNodes.Update(target, func(i *neighbor.Info) *neighbor.Info {
		i.Flags = i.Flags.Set(neighbor.FlagFail)
		return i
	})
	if c.metrics != nil {
		c.metrics.FailTotal.Inc()
	}
	c.teardownFailed(target)
}
