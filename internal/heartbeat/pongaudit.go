package heartbeat

import (
	"context"
	"sort"
	"time"

	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
)

// RunPongAuditLoop wakes every 100ms, marks overdue neighbors PFAIL, and
// recomputes the node's cluster-state coverage.
func (c *Coordinator) RunPongAuditLoop(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.PongAuditTick()
		}
	}
}

// PongAuditTick runs a single audit pass. Exported so tests (and the
// concrete "PFAIL detection" scenario) can drive it deterministically.
func (c *Coordinator) PongAuditTick() {
	now := time.Now()
	timeout := c.nodeTimeout()

	c.node.KnowsNodes.Range(func(id clusterid.NodeId, info *neighbor.Info) bool {
		if info.PingSentAt.After(info.PongRecvAt) && now.Sub(info.PongRecvAt) > timeout {
			if !info.IsPFail() {
				c.node.KnowsNodes.Update(id, func(i *neighbor.Info) *neighbor.Info {
					i.Flags = i.Flags.Set(neighbor.FlagPFail)
					return i
				})
				if c.metrics != nil {
					c.metrics.PFailTotal.Inc()
				}
				c.logger.Warn("neighbor marked PFAIL", "node", id)
			}
		}
		return true
	})

	c.RecomputeClusterState()
}

// RecomputeClusterState implements the coverage rule of §4.4 step 2: gather
// slot ranges of all non-FAIL masters plus self; coverage is OK iff sorted
// ranges start at 0 and each successor's start <= previous limit and the
// union reaches SlotCount. For a Master, cluster-state is Ok iff coverage
// AND live_masters >= floor(N/2)+1; for a Replica, coverage alone suffices.
func (c *Coordinator) RecomputeClusterState() {
	var ranges []clusterid.Range
	if c.node.Role() == neighbor.RoleMaster {
		ranges = append(ranges, c.node.Storage.SlotRange())
	}
	liveMasters := 0
	if c.node.Role() == neighbor.RoleMaster {
		liveMasters = 1
	}
	for _, info := range c.node.KnowsNodes.MastersSnapshot() {
		ranges = append(ranges, info.Slots)
		liveMasters++
	}

	covered := coversFullRange(ranges)

	ok := covered
	if c.node.Role() == neighbor.RoleMaster {
		quorum := c.node.InitialMasterCount/2 + 1
		ok = covered && liveMasters >= quorum
	}

	if ok {
		c.node.SetClusterState(neighbor.StateOk)
	} else {
		c.node.SetClusterState(neighbor.StateFail)
	}
}

func coversFullRange(ranges []clusterid.Range) bool {
	if len(ranges) == 0 {
		return clusterid.SlotCount == 0
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	if ranges[0].Start != 0 {
		return false
	}
	limit := ranges[0].End
	for _, r := range ranges[1:] {
		if r.Start > limit {
			return false
		}
		if r.End > limit {
			limit = r.End
		}
	}
	return limit >= clusterid.SlotCount
}
