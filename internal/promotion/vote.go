package promotion

import (
	"sync"
	"time"

	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
)

// lastVote records the most recent vote cast for a failed master's
// election, per §4.5.2.
type lastVote struct {
	voter clusterid.NodeId
	at    time.Time
	epoch clusterid.Epoch
}

// voteBook tracks, per failed master, the last vote this node (acting as a
// Master) cast. A node only ever casts one vote per failed master within a
// node_timeout window, and only for a strictly higher epoch than its own.
type voteBook struct {
	mu    sync.Mutex
	votes map[clusterid.NodeId]lastVote
}

func newVoteBook() *voteBook {
	return &voteBook{votes: make(map[clusterid.NodeId]lastVote)}
}

// evaluate implements §4.5.2: a replica R requests a vote for failedMaster
// at requesterEpoch. teardownFailed removes a master from KnowsNodes as
// soon as it is marked FAIL (internal/heartbeat/gossip.go), so the normal
// state by the time a vote request arrives is that failedMaster is already
// gone; only reject when it is still present and not marked FAIL. The vote
// is otherwise accepted iff self is a Master, R's epoch exceeds both this
// node's current_epoch and the epoch of any prior vote for failedMaster,
// and the prior vote (if any) is older than node_timeout.
func (b *voteBook) evaluate(node *clusternode.Node, requester clusterid.NodeId, requesterEpoch clusterid.Epoch, failedMaster clusterid.NodeId) bool {
	if node.Role() != neighbor.RoleMaster {
		return false
	}
	if info, known := node.KnowsNodes.Get(failedMaster); known && !info.IsFail() {
		return false
	}

	timeout := time.Duration(node.Self.NodeTimeout) * time.Millisecond
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	prior, hasPrior := b.votes[failedMaster]

	selfEpoch := node.CurrentEpoch.Load()
	floor := selfEpoch
	if hasPrior && prior.epoch > floor {
		floor = prior.epoch
	}
	if requesterEpoch <= floor {
		return false
	}
	if hasPrior && now.Sub(prior.at) <= timeout {
		return false
	}

	node.CurrentEpoch.Observe(requesterEpoch)
	b.votes[failedMaster] = lastVote{voter: requester, at: now, epoch: requesterEpoch}
	return true
}
