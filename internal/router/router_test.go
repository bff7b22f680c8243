package router

import (
	"context"
	"testing"
	"time"

	"github.com/tokmesh/cluster/internal/bus"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
)

type fakeHeartbeat struct {
	pongs    []clusterid.NodeId
	fails    []clusterid.NodeId
	gossiped bool
}

func (f *fakeHeartbeat) HandlePong(from clusterid.NodeId) { f.pongs = append(f.pongs, from) }
func (f *fakeHeartbeat) HandleFail(target clusterid.NodeId) {
	f.fails = append(f.fails, target)
}
func (f *fakeHeartbeat) ProcessGossipEntries(context.Context, clusterid.NodeId, bool, []bus.GossipEntry) {
	f.gossiped = true
}

type fakePromotion struct {
	meetNewMaster clusterid.NodeId
	gotMeet       bool
	acked         clusterid.NodeId
	gotAck        bool
}

func (f *fakePromotion) DeliverOffset(clusterid.NodeId, uint64) {}
func (f *fakePromotion) DeliverAck(masterID clusterid.NodeId) {
	f.acked = masterID
	f.gotAck = true
}
func (f *fakePromotion) DeliverMeetNewMaster(sender clusterid.NodeId) {
	f.meetNewMaster = sender
	f.gotMeet = true
}
func (f *fakePromotion) EvaluateFailAuthReq(clusterid.NodeId, clusterid.Epoch, clusterid.NodeId) bool {
	return false
}

type fakePubSub struct{ got []string }

func (f *fakePubSub) HandleClusterPubSub(tokens []string) { f.got = tokens }

type noopSender struct{}

func (noopSender) Send(context.Context, clusterid.NodeId, bus.Message) error { return nil }

func newRouterNode(t *testing.T) *clusternode.Node {
	t.Helper()
	id, err := clusterid.New()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	self := clusternode.Self{ID: id, NodeTimeout: 1000}
	return clusternode.New(self, 3, neighbor.RoleMaster, clusterid.Range{Start: 0, End: 16384})
}

func TestDispatchPongUpdatesHeartbeatAndNeighbor(t *testing.T) {
	node := newRouterNode(t)
	hb := &fakeHeartbeat{}
	pr := &fakePromotion{}
	ps := &fakePubSub{}
	r := New(node, hb, pr, ps, noopSender{}, nil, 0)

	sender, _ := clusterid.New()
	r.Submit(bus.Message{
		Header: bus.Header{
			Kind:        bus.KindPong,
			Sender:      sender,
			SenderFlags: neighbor.FlagMaster,
		},
		Payload: bus.PongPayload{},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go r.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	if len(hb.pongs) != 1 || hb.pongs[0] != sender {
		t.Fatalf("expected HandlePong called with sender, got %v", hb.pongs)
	}
	if _, ok := node.KnowsNodes.Get(sender); !ok {
		t.Fatalf("expected router to learn sender into knows_nodes")
	}
}

func TestDispatchMeetNewMasterForwardsToPromotion(t *testing.T) {
	node := newRouterNode(t)
	hb := &fakeHeartbeat{}
	pr := &fakePromotion{}
	ps := &fakePubSub{}
	r := New(node, hb, pr, ps, noopSender{}, nil, 0)

	sender, _ := clusterid.New()
	r.Submit(bus.Message{
		Header:  bus.Header{Kind: bus.KindMeetNewMaster, Sender: sender},
		Payload: bus.MeetNewMasterPayload{},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go r.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	if !pr.gotMeet || pr.meetNewMaster != sender {
		t.Fatalf("expected DeliverMeetNewMaster called with sender, got %v gotMeet=%v", pr.meetNewMaster, pr.gotMeet)
	}
}
