// Package clusternode defines Node, the per-process aggregate every
// goroutine in the thread inventory (§5) is handed explicitly at spawn time,
// replacing the reference-counted global-singleton shape the design notes
// (§9) call out as something to avoid.
//
// Fields that must be reassigned after construction (role, master, replicas,
// cluster_state, status) each live behind their own RWMutex; epoch counters
// and the replication offset are lock-free atomics. Lock acquisition must
// respect the stated order: role -> master -> knows_nodes -> replicas ->
// outgoing_streams -> incoming_streams -> cluster_state.
package clusternode

import (
	"sync"
	"sync/atomic"

	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
	"github.com/tokmesh/cluster/internal/storage/aof"
	"github.com/tokmesh/cluster/internal/storage/kv"
)

// Status is the node's own health status.
type Status int

const (
	StatusOK Status = iota
	StatusFail
)

// Self holds the node's own static identity and configuration.
type Self struct {
	ID          clusterid.NodeId
	ClientAddr  string
	ClusterAddr string
	PublicAddr  string
	NodeTimeout int64 // ms
	MaxClients  int64
}

// Node is the explicit, shared process-wide state.
type Node struct {
	Self Self

	InitialMasterCount int // N in the spec's vote-win condition

	roleMu sync.RWMutex
	role   neighbor.Role

	masterMu sync.RWMutex
	master   clusterid.NodeId // zero value when Role == Master

	replicasMu sync.RWMutex
	replicas   []clusterid.NodeId

	KnowsNodes *neighbor.Table

	clusterStateMu sync.RWMutex
	clusterState   neighbor.ClusterState

	statusMu sync.RWMutex
	status   Status

	CurrentEpoch clusterid.EpochCounter
	ConfigEpoch  clusterid.EpochCounter

	replicationOffset atomic.Uint64

	Storage *kv.Store
	AOF     *aof.Log // nil when AOF is disabled
}

// New constructs a Node in the given initial role.
func New(self Self, initialMasterCount int, role neighbor.Role, slots clusterid.Range) *Node {
	return &Node{
		Self:               self,
		InitialMasterCount: initialMasterCount,
		role:               role,
		KnowsNodes:         neighbor.NewTable(),
		clusterState:       neighbor.StateOk,
		status:             StatusOK,
		Storage:            kv.New(slots),
	}
}

func (n *Node) Role() neighbor.Role {
	n.roleMu.RLock()
	defer n.roleMu.RUnlock()
	return n.role
}

func (n *Node) SetRole(r neighbor.Role) {
	n.roleMu.Lock()
	defer n.roleMu.Unlock()
	n.role = r
}

func (n *Node) Master() clusterid.NodeId {
	n.masterMu.RLock()
	defer n.masterMu.RUnlock()
	return n.master
}

func (n *Node) SetMaster(id clusterid.NodeId) {
	n.masterMu.Lock()
	defer n.masterMu.Unlock()
	n.master = id
}

func (n *Node) Replicas() []clusterid.NodeId {
	n.replicasMu.RLock()
	defer n.replicasMu.RUnlock()
	out := make([]clusterid.NodeId, len(n.replicas))
	copy(out, n.replicas)
	return out
}

func (n *Node) SetReplicas(ids []clusterid.NodeId) {
	n.replicasMu.Lock()
	defer n.replicasMu.Unlock()
	n.replicas = ids
}

func (n *Node) AddReplica(id clusterid.NodeId) {
	n.replicasMu.Lock()
	defer n.replicasMu.Unlock()
	for _, r := range n.replicas {
		if r == id {
			return
		}
	}
	n.replicas = append(n.replicas, id)
}

// KnownNodeCount returns the number of neighbors currently in knows_nodes,
// for metrics exposition.
func (n *Node) KnownNodeCount() int {
	return n.KnowsNodes.Count()
}

// LiveMasterCount returns the number of known masters not currently marked
// FAIL, for metrics exposition.
func (n *Node) LiveMasterCount() int {
	return len(n.KnowsNodes.MastersSnapshot())
}

func (n *Node) ClusterState() neighbor.ClusterState {
	n.clusterStateMu.RLock()
	defer n.clusterStateMu.RUnlock()
	return n.clusterState
}

func (n *Node) SetClusterState(s neighbor.ClusterState) {
	n.clusterStateMu.Lock()
	defer n.clusterStateMu.Unlock()
	n.clusterState = s
}

func (n *Node) Status() Status {
	n.statusMu.RLock()
	defer n.statusMu.RUnlock()
	return n.status
}

func (n *Node) SetStatus(s Status) {
	n.statusMu.Lock()
	defer n.statusMu.Unlock()
	n.status = s
}

// ReplicationOffset returns the current applied-command count.
func (n *Node) ReplicationOffset() uint64 {
	return n.replicationOffset.Load()
}

// IncrReplicationOffset bumps the offset by one, called after every
// successfully applied mutating command.
func (n *Node) IncrReplicationOffset() uint64 {
	return n.replicationOffset.Add(1)
}

// SetReplicationOffset seeds the offset, used at restore.
func (n *Node) SetReplicationOffset(v uint64) {
	n.replicationOffset.Store(v)
}

// IsReplicaOf reports whether this node is currently a replica of master.
func (n *Node) IsReplicaOf(master clusterid.NodeId) bool {
	return n.Role() == neighbor.RoleReplica && n.Master() == master
}
