package busserver

import (
	"context"
	"testing"
	"time"

	"github.com/tokmesh/cluster/internal/bus"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
	"github.com/tokmesh/cluster/internal/executor"
	"github.com/tokmesh/cluster/internal/pubsub"
	"github.com/tokmesh/cluster/internal/telemetry/logger"
)

type recordingRouter struct {
	ch chan bus.Message
}

func newRecordingRouter() *recordingRouter {
	return &recordingRouter{ch: make(chan bus.Message, 16)}
}

func (r *recordingRouter) Submit(msg bus.Message) {
	r.ch <- msg
}

func newTestID(t *testing.T) clusterid.NodeId {
	t.Helper()
	id, err := clusterid.New()
	if err != nil {
		t.Fatalf("new node id: %v", err)
	}
	return id
}

func newTestNode(t *testing.T, addr string) *clusternode.Node {
	t.Helper()
	self := clusternode.Self{ID: newTestID(t), ClusterAddr: addr, NodeTimeout: 200}
	return clusternode.New(self, 1, neighbor.RoleMaster, clusterid.Range{Start: 0, End: clusterid.SlotCount})
}

func TestSendDeliversFrameToRouter(t *testing.T) {
	nodeA := newTestNode(t, "127.0.0.1:0")
	nodeB := newTestNode(t, "127.0.0.1:0")

	routerA := newRecordingRouter()
	routerB := newRecordingRouter()
	log := logger.Default()

	broker := pubsub.New(func(clusterid.Slot) bool { return true })
	execA := executor.New(nodeA, nil, broker, nil)
	execB := executor.New(nodeB, nil, broker, nil)

	serverA := New("127.0.0.1:0", nil, nodeA, routerA, execA, log)
	serverB := New("127.0.0.1:0", nil, nodeB, routerB, execB, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go serverA.ListenAndServe(ctx)
	go serverB.ListenAndServe(ctx)

	addrA := waitForAddr(t, serverA)
	waitForAddr(t, serverB)

	nodeB.KnowsNodes.Set(nodeA.Self.ID, &neighbor.Info{ID: nodeA.Self.ID, ClusterAddr: addrA, Role: neighbor.RoleMaster})

	msg := bus.Message{
		Header: bus.Header{
			Kind:         bus.KindPing,
			Sender:       nodeB.Self.ID,
			CurrentEpoch: nodeB.CurrentEpoch.Load(),
			ConfigEpoch:  nodeB.ConfigEpoch.Load(),
			SenderSlots:  nodeB.Storage.SlotRange(),
			ClusterState: nodeB.ClusterState(),
		},
		Payload: bus.PingPayload{},
	}
	if err := serverB.Send(ctx, nodeA.Self.ID, msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case got := <-routerA.ch:
		if got.Header.Kind != bus.KindPing {
			t.Fatalf("expected KindPing, got %v", got.Header.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for router to receive the message")
	}
}

func waitForAddr(t *testing.T, s *Server) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a := s.Addr(); a != nil {
			return a.String()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server never bound a listener")
	return ""
}
