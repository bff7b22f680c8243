package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/tokmesh/cluster/internal/bus"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
)

type recordingSender struct {
	sent []bus.Message
}

func (s *recordingSender) Send(_ context.Context, _ clusterid.NodeId, msg bus.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func newTestNode(t *testing.T, role neighbor.Role, slots clusterid.Range, masterCount int) *clusternode.Node {
	t.Helper()
	id, err := clusterid.New()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	self := clusternode.Self{ID: id, NodeTimeout: 200}
	return clusternode.New(self, masterCount, role, slots)
}

// TestSelfPromotionWithNoPeers covers the case where a replica's master
// fails and no co-replicas are known: it must promote immediately.
func TestSelfPromotionWithNoPeers(t *testing.T) {
	node := newTestNode(t, neighbor.RoleReplica, clusterid.Range{}, 2)

	masterID, _ := clusterid.New()
	node.SetMaster(masterID)
	node.KnowsNodes.Set(masterID, &neighbor.Info{
		ID:    masterID,
		Role:  neighbor.RoleMaster,
		Slots: clusterid.Range{Start: 0, End: 16384},
		Flags: neighbor.FlagMaster | neighbor.FlagFail,
	})

	sender := &recordingSender{}
	mgr := New(node, sender, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	mgr.OnNeighborFailed(masterID)

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		if node.Role() == neighbor.RoleMaster {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	_ = ctx

	if node.Role() != neighbor.RoleMaster {
		t.Fatalf("expected self-promotion to Master, got role=%v", node.Role())
	}
	if node.Storage.SlotRange() != (clusterid.Range{Start: 0, End: 16384}) {
		t.Fatalf("expected promoted node to take over failed master's slots, got %v", node.Storage.SlotRange())
	}
}

// TestVoteAcceptedForHigherEpoch covers the normal case: teardownFailed
// (internal/heartbeat/gossip.go) already deleted failedMaster from
// KnowsNodes before any vote request can arrive, so the vote is granted
// purely on the epoch check.
func TestVoteAcceptedForHigherEpoch(t *testing.T) {
	node := newTestNode(t, neighbor.RoleMaster, clusterid.Range{Start: 0, End: 8000}, 5)
	node.CurrentEpoch.Store(3)

	failedMaster, _ := clusterid.New()

	mgr := New(node, &recordingSender{}, nil)
	requester, _ := clusterid.New()

	if !mgr.EvaluateFailAuthReq(requester, 4, failedMaster) {
		t.Fatalf("expected vote to be accepted for epoch 4 > current_epoch 3")
	}
	if node.CurrentEpoch.Load() < 4 {
		t.Fatalf("expected current_epoch to advance to at least the voted epoch, got %d", node.CurrentEpoch.Load())
	}
}

// TestVoteAcceptedWhenMasterStillPresentButMarkedFail covers the case where
// the master has not yet been removed from KnowsNodes but is already
// flagged FAIL: the vote is still granted, since rejection requires the
// master to be present and *not* marked FAIL.
func TestVoteAcceptedWhenMasterStillPresentButMarkedFail(t *testing.T) {
	node := newTestNode(t, neighbor.RoleMaster, clusterid.Range{Start: 0, End: 8000}, 5)

	failedMaster, _ := clusterid.New()
	node.KnowsNodes.Set(failedMaster, &neighbor.Info{
		ID:    failedMaster,
		Role:  neighbor.RoleMaster,
		Flags: neighbor.FlagMaster | neighbor.FlagFail,
	})

	mgr := New(node, &recordingSender{}, nil)
	requester, _ := clusterid.New()

	if !mgr.EvaluateFailAuthReq(requester, 1, failedMaster) {
		t.Fatalf("expected vote to be accepted when target is present but marked FAIL")
	}
}

func TestVoteRejectedWithinTimeoutWindow(t *testing.T) {
	node := newTestNode(t, neighbor.RoleMaster, clusterid.Range{Start: 0, End: 8000}, 5)

	failedMaster, _ := clusterid.New()

	mgr := New(node, &recordingSender{}, nil)
	first, _ := clusterid.New()
	second, _ := clusterid.New()

	if !mgr.EvaluateFailAuthReq(first, 1, failedMaster) {
		t.Fatalf("expected first vote to be accepted")
	}
	if mgr.EvaluateFailAuthReq(second, 2, failedMaster) {
		t.Fatalf("expected second vote within node_timeout to be rejected even with a higher epoch")
	}
}

func TestVoteRejectedForNonFailMaster(t *testing.T) {
	node := newTestNode(t, neighbor.RoleMaster, clusterid.Range{Start: 0, End: 8000}, 3)

	otherMaster, _ := clusterid.New()
	node.KnowsNodes.Set(otherMaster, &neighbor.Info{ID: otherMaster, Role: neighbor.RoleMaster})

	mgr := New(node, &recordingSender{}, nil)
	requester, _ := clusterid.New()

	if mgr.EvaluateFailAuthReq(requester, 10, otherMaster) {
		t.Fatalf("expected vote to be rejected when the target is still present and not marked FAIL")
	}
}
