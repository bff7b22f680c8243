package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/tokmesh/cluster/internal/bus"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
)

type noopSender struct{}

func (noopSender) Send(context.Context, clusterid.NodeId, bus.Message) error { return nil }

func newTestNode(t *testing.T, role neighbor.Role, slots clusterid.Range, masterCount int) *clusternode.Node {
	t.Helper()
	id, err := clusterid.New()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	self := clusternode.Self{ID: id, NodeTimeout: 1000}
	return clusternode.New(self, masterCount, role, slots)
}

func TestPFAILDetection(t *testing.T) {
	node := newTestNode(t, neighbor.RoleMaster, clusterid.Range{Start: 0, End: 16384}, 1)
	coord := New(node, noopSender{}, nil, nil)

	bID, _ := clusterid.New()
	now := time.Now()
	node.KnowsNodes.Set(bID, &neighbor.Info{
		ID:         bID,
		Role:       neighbor.RoleMaster,
		PingSentAt: now.Add(-1000 * time.Millisecond),
		PongRecvAt: now.Add(-1500 * time.Millisecond),
	})

	coord.PongAuditTick()

	info, ok := node.KnowsNodes.Get(bID)
	if !ok {
		t.Fatalf("expected neighbor to still be present")
	}
	if !info.IsPFail() {
		t.Fatalf("expected PFAIL flag set, got flags=%v", info.Flags)
	}
}

func TestCoverageGap(t *testing.T) {
	node := newTestNode(t, neighbor.RoleMaster, clusterid.Range{Start: 0, End: 5000}, 1)
	coord := New(node, noopSender{}, nil, nil)

	coord.RecomputeClusterState()

	if node.ClusterState() != neighbor.StateFail {
		t.Fatalf("expected cluster_state=Fail for partial coverage, got %v", node.ClusterState())
	}
}

func TestCoverageOk(t *testing.T) {
	node := newTestNode(t, neighbor.RoleMaster, clusterid.Range{Start: 0, End: 8000}, 2)
	coord := New(node, noopSender{}, nil, nil)

	otherID, _ := clusterid.New()
	node.KnowsNodes.Set(otherID, &neighbor.Info{
		ID:    otherID,
		Role:  neighbor.RoleMaster,
		Slots: clusterid.Range{Start: 8000, End: 16384},
	})

	coord.RecomputeClusterState()

	if node.ClusterState() != neighbor.StateOk {
		t.Fatalf("expected cluster_state=Ok for full coverage with quorum, got %v", node.ClusterState())
	}
}

func TestPingLoopUpdatesPingSentTime(t *testing.T) {
	node := newTestNode(t, neighbor.RoleMaster, clusterid.Range{Start: 0, End: 16384}, 3)
	coord := New(node, noopSender{}, nil, nil)

	for _, addr := range []string{"b", "c"} {
		id, _ := clusterid.New()
		node.KnowsNodes.Set(id, &neighbor.Info{ID: id, ClusterAddr: addr, Role: neighbor.RoleMaster})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	coord.RunPingLoop(ctx)

	node.KnowsNodes.Range(func(id clusterid.NodeId, info *neighbor.Info) bool {
		if info.PingSentAt.IsZero() {
			t.Fatalf("expected ping_sent_time to be set for %v", id)
		}
		if time.Since(info.PingSentAt) > 100*time.Millisecond {
			t.Fatalf("ping_sent_time too stale for %v", id)
		}
		return true
	})
}
