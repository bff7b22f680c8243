package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/tokmesh/cluster/internal/bus"
	"github.com/tokmesh/cluster/internal/clusterconfig"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
	"github.com/tokmesh/cluster/internal/pubsub"
)

type recordingSender struct {
	sent []bus.Message
}

func (s *recordingSender) Send(_ context.Context, _ clusterid.NodeId, msg bus.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func newTestNodeId(t *testing.T) clusterid.NodeId {
	t.Helper()
	id, err := clusterid.New()
	if err != nil {
		t.Fatalf("new node id: %v", err)
	}
	return id
}

func newTestExecutor(t *testing.T) (*Executor, *clusternode.Node, *recordingSender) {
	t.Helper()
	self := clusternode.Self{ID: newTestNodeId(t), NodeTimeout: 200}
	node := clusternode.New(self, 3, neighbor.RoleMaster, clusterid.Range{Start: 0, End: clusterid.SlotCount})
	sender := &recordingSender{}
	broker := pubsub.New(func(clusterid.Slot) bool { return true })
	return New(node, nil, broker, sender), node, sender
}

func TestExecuteRejectsWhenClusterDown(t *testing.T) {
	exec, node, _ := newTestExecutor(t)
	node.SetClusterState(neighbor.StateFail)

	_, err := exec.Execute(context.Background(), 0, nil, []string{"GET", "foo"})
	if err == nil {
		t.Fatalf("expected CLUSTERDOWN error")
	}
	ce, ok := err.(*CommandError)
	if !ok || ce.Code != "CLUSTERDOWN" {
		t.Fatalf("expected CLUSTERDOWN CommandError, got %v", err)
	}
}

func TestExecuteRejectsWhenNodeUnhealthy(t *testing.T) {
	exec, node, _ := newTestExecutor(t)
	node.SetStatus(clusternode.StatusFail)

	_, err := exec.Execute(context.Background(), 0, nil, []string{"GET", "foo"})
	if err == nil {
		t.Fatalf("expected NODEDOWN error")
	}
	ce, ok := err.(*CommandError)
	if !ok || ce.Code != "NODEDOWN" {
		t.Fatalf("expected NODEDOWN CommandError, got %v", err)
	}
}

func TestExecuteSetFansOutToReplicas(t *testing.T) {
	exec, node, sender := newTestExecutor(t)
	replica := newTestNodeId(t)
	node.SetReplicas([]clusterid.NodeId{replica})

	reply, err := exec.Execute(context.Background(), 0, nil, []string{"SET", "foo", "bar"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := reply.(SimpleString); !ok {
		t.Fatalf("expected SimpleString reply, got %T", reply)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 fan-out message, got %d", len(sender.sent))
	}
	if sender.sent[0].Header.Kind != bus.KindRedisCommand {
		t.Fatalf("expected KindRedisCommand, got %v", sender.sent[0].Header.Kind)
	}
	if node.ReplicationOffset() != 1 {
		t.Fatalf("expected replication offset 1, got %d", node.ReplicationOffset())
	}
}

func TestExecuteConvertsMovedError(t *testing.T) {
	exec, node, _ := newTestExecutor(t)
	node.Storage.SetSlotRange(clusterid.Range{Start: 0, End: 1})

	_, err := exec.Execute(context.Background(), 0, nil, []string{"GET", "a-key-outside-range"})
	if err == nil {
		t.Fatalf("expected a MOVED error for an out-of-range key")
	}
	if _, ok := err.(*CommandError); ok {
		t.Fatalf("expected MovedError, got CommandError %v", err)
	}
}

func TestExecutePubSubSubscribeDispatchesToBroker(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	sub := &recordingSubscriber{}

	reply, err := exec.Execute(context.Background(), 1, sub, []string{"SUBSCRIBE", "news"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	envs, ok := reply.([]any)
	if !ok || len(envs) != 1 {
		t.Fatalf("expected one subscribe envelope, got %#v", reply)
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	_, err := exec.Execute(context.Background(), 0, nil, []string{"NOSUCHCOMMAND"})
	if err == nil {
		t.Fatalf("expected unknown command error")
	}
	ce, ok := err.(*CommandError)
	if !ok || ce.Code != "ERR" {
		t.Fatalf("expected ERR CommandError, got %v", err)
	}
}

func TestExecuteClusterInfo(t *testing.T) {
	exec, node, _ := newTestExecutor(t)
	node.SetClusterState(neighbor.StateOk)

	reply, err := exec.Execute(context.Background(), 0, nil, []string{"CLUSTER", "INFO"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, ok := reply.(string)
	if !ok {
		t.Fatalf("expected string reply, got %T", reply)
	}
	if !strings.Contains(s, "cluster_state:ok") {
		t.Fatalf("expected cluster_state:ok, got %q", s)
	}
}

func TestExecuteClusterNodes(t *testing.T) {
	exec, node, _ := newTestExecutor(t)

	reply, err := exec.Execute(context.Background(), 0, nil, []string{"CLUSTER", "NODES"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, ok := reply.(string)
	if !ok {
		t.Fatalf("expected string reply, got %T", reply)
	}
	if !strings.Contains(s, node.Self.ID.String()) {
		t.Fatalf("expected self node id in CLUSTER NODES output, got %q", s)
	}
	if !strings.Contains(s, "master") {
		t.Fatalf("expected a master role flag in CLUSTER NODES output, got %q", s)
	}
}

func TestExecuteClusterUnknownSubcommand(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	_, err := exec.Execute(context.Background(), 0, nil, []string{"CLUSTER", "BOGUS"})
	if err == nil {
		t.Fatalf("expected unknown subcommand error")
	}
}

type recordingSubscriber struct {
	delivered [][]any
}

func (s *recordingSubscriber) Deliver(envelope []any) error {
	s.delivered = append(s.delivered, envelope)
	return nil
}
