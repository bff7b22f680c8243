// Package promotion implements replica-promotion consensus: §4.5's
// FailNegotiation/FailAuthReq/FailAuthAck election and §4.5.2's
// vote-evaluation rule run on the master side.
package promotion

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tokmesh/cluster/internal/bus"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
)

// Sender delivers a bus message to a known neighbor.
type Sender interface {
	Send(ctx context.Context, to clusterid.NodeId, msg bus.Message) error
}

// Manager owns: (a) at most one in-flight promotion attempt, spawned on
// demand when this node's master is marked FAIL, and (b) the vote book used
// when this node, as a Master, evaluates FailAuthReq from others.
type Manager struct {
	node   *clusternode.Node
	sender Sender
	logger *slog.Logger

	mu     sync.Mutex
	active *attempt

	votes *voteBook
}

// New constructs a Manager.
func New(node *clusternode.Node, sender Sender, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		node:   node,
		sender: sender,
		logger: logger,
		votes:  newVoteBook(),
	}
}

// SetSender wires the component that owns outgoing_streams, for callers
// that construct the Manager before the bus server exists.
func (m *Manager) SetSender(s Sender) {
	m.sender = s
}

// OnNeighborFailed implements heartbeat.FailObserver: if self is a replica
// of the failed node, kick off promotion (§4.4 "FAIL is terminal").
func (m *Manager) OnNeighborFailed(id clusterid.NodeId) {
	if !m.node.IsReplicaOf(id) {
		return
	}
	m.mu.Lock()
	if m.active != nil && m.active.failedMaster == id {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	go m.run(context.Background(), id)
}

func (m *Manager) run(ctx context.Context, failedMaster clusterid.NodeId) {
	a := newAttempt(failedMaster)
	m.mu.Lock()
	m.active = a
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.active == a {
			m.active = nil
		}
		m.mu.Unlock()
	}()

	runAttempt(ctx, m.node, m.sender, m.logger, a)
}

// DeliverOffset forwards a FailNegotiation peer offset to the active
// attempt for failedMaster, if any.
func (m *Manager) DeliverOffset(failedMaster clusterid.NodeId, offset uint64) {
	m.mu.Lock()
	a := m.active
	m.mu.Unlock()
	if a == nil || a.failedMaster != failedMaster {
		return
	}
	select {
	case a.offsetCh <- offset:
	default:
	}
}

// DeliverAck forwards a FailAuthAck to the active attempt. FailAuthAck
// carries only the acking master's own identity, not the failed master
// being voted on; since a node runs at most one attempt at a time, the ack
// is routed to whichever attempt is currently active.
func (m *Manager) DeliverAck(masterID clusterid.NodeId) {
	m.mu.Lock()
	a := m.active
	m.mu.Unlock()
	if a == nil {
		return
	}
	select {
	case a.ackCh <- masterID:
	default:
	}
}

// DeliverMeetNewMaster forwards a MeetNewMaster sender header to whichever
// attempt is active, regardless of failedMaster (any MeetNewMaster means
// someone else already won).
func (m *Manager) DeliverMeetNewMaster(sender clusterid.NodeId) {
	m.mu.Lock()
	a := m.active
	m.mu.Unlock()
	if a == nil {
		return
	}
	select {
	case a.meetNewMasterCh <- sender:
	default:
	}
}

// EvaluateFailAuthReq implements §4.5.2 at a Master M'. Returns true if the
// vote is accepted (caller should send FailAuthAck back to the requester).
func (m *Manager) EvaluateFailAuthReq(requester clusterid.NodeId, requesterEpoch clusterid.Epoch, failedMaster clusterid.NodeId) bool {
	return m.votes.evaluate(m.node, requester, requesterEpoch, failedMaster)
}
