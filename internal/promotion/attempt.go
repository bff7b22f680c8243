package promotion

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/tokmesh/cluster/internal/bus"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
)

// attempt is the state of one run of the §4.5 election procedure, scoped to
// a single failed master. A Manager runs at most one at a time.
type attempt struct {
	failedMaster clusterid.NodeId

	offsetCh        chan uint64
	ackCh           chan clusterid.NodeId
	meetNewMasterCh chan clusterid.NodeId
}

func newAttempt(failedMaster clusterid.NodeId) *attempt {
	return &attempt{
		failedMaster:    failedMaster,
		offsetCh:        make(chan uint64, 32),
		ackCh:           make(chan clusterid.NodeId, 32),
		meetNewMasterCh: make(chan clusterid.NodeId, 4),
	}
}

// runAttempt implements §4.5 steps 1-9. It loops (step 9's "restart from
// step 2") until it wins, adopts a new master learned via MeetNewMaster, or
// self stops being a replica of failedMaster.
func runAttempt(ctx context.Context, node *clusternode.Node, sender Sender, logger *slog.Logger, a *attempt) {
	for {
		if !node.IsReplicaOf(a.failedMaster) {
			return
		}

		node.CurrentEpoch.Bump()

		peers := node.KnowsNodes.ReplicasOf(a.failedMaster)
		contacted := negotiateWithPeers(ctx, node, sender, a.failedMaster, peers)

		if contacted == 0 {
			logger.Info("no co-replicas to negotiate with, self-promoting", "master", a.failedMaster)
			promote(node, sender, logger, a.failedMaster)
			return
		}

		rank := waitForRank(ctx, node, a, contacted)

		delay := time.Duration(500+rand.Intn(501))*time.Millisecond + time.Duration(rank)*time.Second
		select {
		case <-ctx.Done():
			return
		case newMaster := <-a.meetNewMasterCh:
			adoptNewMaster(node, logger, newMaster)
			return
		case <-time.After(delay):
		}

		broadcastFailAuthReq(ctx, node, sender, a.failedMaster)

		won, adopted := waitForElection(ctx, node, a)
		if adopted != nil {
			adoptNewMaster(node, logger, *adopted)
			return
		}
		if won {
			promote(node, sender, logger, a.failedMaster)
			return
		}

		// No win within node_timeout: give a new master up to 4x node_timeout
		// to announce itself before restarting the procedure.
		longWait := time.Duration(node.Self.NodeTimeout) * 4 * time.Millisecond
		select {
		case <-ctx.Done():
			return
		case newMaster := <-a.meetNewMasterCh:
			adoptNewMaster(node, logger, newMaster)
			return
		case <-time.After(longWait):
		}
	}
}

func negotiateWithPeers(ctx context.Context, node *clusternode.Node, sender Sender, failedMaster clusterid.NodeId, peers []clusterid.NodeId) int {
	msg := bus.Message{
		Header: baseHeader(node, bus.KindFailNegotiation),
		Payload: bus.FailNegotiationPayload{
			FailedMaster: failedMaster,
			Offset:       node.ReplicationOffset(),
		},
	}
	contacted := 0
	for _, p := range peers {
		if err := sender.Send(ctx, p, msg); err == nil {
			contacted++
		}
	}
	return contacted
}

// waitForRank collects up to node_timeout ms of peer offsets and returns the
// count of peers that reported a strictly higher offset than self.
func waitForRank(ctx context.Context, node *clusternode.Node, a *attempt, expected int) int {
	myOffset := node.ReplicationOffset()
	deadline := time.After(time.Duration(node.Self.NodeTimeout) * time.Millisecond)
	rank := 0
	received := 0
	for received < expected {
		select {
		case <-ctx.Done():
			return rank
		case offset := <-a.offsetCh:
			received++
			if offset > myOffset {
				rank++
			}
		case <-deadline:
			return rank
		}
	}
	return rank
}

func broadcastFailAuthReq(ctx context.Context, node *clusternode.Node, sender Sender, failedMaster clusterid.NodeId) {
	msg := bus.Message{
		Header: baseHeader(node, bus.KindFailAuthReq),
		Payload: bus.FailAuthReqPayload{
			FailedMaster: failedMaster,
			Offset:       node.ReplicationOffset(),
		},
	}
	node.KnowsNodes.Range(func(id clusterid.NodeId, _ *neighbor.Info) bool {
		_ = sender.Send(ctx, id, msg)
		return true
	})
}

// waitForElection collects FailAuthAck replies for up to node_timeout ms.
// Winning requires exactly N-1 distinct master votes, N = InitialMasterCount
// (every master other than self and the failed one). A MeetNewMaster seen
// meanwhile aborts the election in favor of adopting the announced master.
func waitForElection(ctx context.Context, node *clusternode.Node, a *attempt) (won bool, adoptedMaster *clusterid.NodeId) {
	need := node.InitialMasterCount - 1
	if need < 0 {
		need = 0
	}
	if need == 0 {
		return true, nil
	}
	voters := make(map[clusterid.NodeId]bool, need)
	deadline := time.After(time.Duration(node.Self.NodeTimeout) * time.Millisecond)
	for {
		select {
		case <-ctx.Done():
			return false, nil
		case sender := <-a.meetNewMasterCh:
			return false, &sender
		case voter := <-a.ackCh:
			voters[voter] = true
			if len(voters) == need {
				return true, nil
			}
		case <-deadline:
			return false, nil
		}
	}
}

// promote implements §4.5.1: become Master over the failed master's slots
// and former replicas.
func promote(node *clusternode.Node, sender Sender, logger *slog.Logger, failedMaster clusterid.NodeId) {
	node.SetRole(neighbor.RoleMaster)
	node.SetMaster(clusterid.NodeId{})

	if info, ok := node.KnowsNodes.Get(failedMaster); ok {
		node.Storage.SetSlotRange(info.Slots)
	}

	replicas := node.KnowsNodes.ReplicasOf(failedMaster)
	node.SetReplicas(replicas)

	logger.Warn("promoted to master", "former_master", failedMaster, "replicas", len(replicas))

	ctx := context.Background()
	meetMsg := bus.Message{Header: baseHeader(node, bus.KindMeetNewMaster), Payload: bus.MeetNewMasterPayload{}}
	for _, r := range replicas {
		_ = sender.Send(ctx, r, meetMsg)
	}

	updateMsg := bus.Message{Header: baseHeader(node, bus.KindUpdate), Payload: bus.UpdatePayload{}}
	node.KnowsNodes.Range(func(id clusterid.NodeId, _ *neighbor.Info) bool {
		_ = sender.Send(ctx, id, updateMsg)
		return true
	})
}

// adoptNewMaster implements the "MeetNewMaster received" abort path: another
// replica already won the election.
func adoptNewMaster(node *clusternode.Node, logger *slog.Logger, newMaster clusterid.NodeId) {
	node.SetRole(neighbor.RoleReplica)
	node.SetMaster(newMaster)
	logger.Info("adopted new master", "master", newMaster)
}

func baseHeader(node *clusternode.Node, kind bus.Kind) bus.Header {
	role := node.Role()
	flags := neighbor.FlagReplica
	if role == neighbor.RoleMaster {
		flags = neighbor.FlagMaster
	}
	return bus.Header{
		Kind:         kind,
		Sender:       node.Self.ID,
		CurrentEpoch: node.CurrentEpoch.Load(),
		ConfigEpoch:  node.ConfigEpoch.Load(),
		SenderFlags:  flags,
		SenderSlots:  node.Storage.SlotRange(),
		ClusterState: node.ClusterState(),
	}
}
