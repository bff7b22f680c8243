// Package neighbor holds the per-known-node bookkeeping the gossip and
// heartbeat protocols maintain: NeighborInfo records, role/flag types, and
// the shared knows_nodes table.
package neighbor

import (
	"time"

	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/pkg/cmap"
)

// Role is a node's position in the cluster: Master or Replica.
type Role int

const (
	RoleMaster Role = iota
	RoleReplica
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "replica"
}

// Flags is a bitset of a neighbor's observed state.
type Flags uint8

const (
	FlagMaster Flags = 1 << iota
	FlagReplica
	FlagPFail
	FlagFail
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }
func (f Flags) Set(bit Flags) Flags { return f | bit }
func (f Flags) Clear(bit Flags) Flags { return f &^ bit }

// ClusterState is the node-local view of overall cluster health.
type ClusterState int

const (
	StateOk ClusterState = iota
	StateFail
)

func (s ClusterState) String() string {
	if s == StateOk {
		return "ok"
	}
	return "fail"
}

// Info is the per-known-node record the spec names NeighborInfo.
type Info struct {
	ID          clusterid.NodeId
	ClusterAddr string
	ClientAddr  string
	Slots       clusterid.Range
	Role        Role
	MasterID    clusterid.NodeId // only meaningful when Role == RoleReplica
	Flags       Flags
	PingSentAt  time.Time
	PongRecvAt  time.Time
	ClusterState ClusterState
}

// IsFail reports whether the neighbor is marked terminally FAIL.
func (i *Info) IsFail() bool { return i.Flags.Has(FlagFail) }

// IsPFail reports whether the neighbor is suspected (PFAIL) but not FAIL.
func (i *Info) IsPFail() bool { return i.Flags.Has(FlagPFail) && !i.IsFail() }

// Clone returns a shallow copy, used so callers can mutate-then-store a
// snapshot instead of holding a pointer into the table across I/O.
func (i *Info) Clone() *Info {
	c := *i
	return &c
}

// Table is the knows_nodes map: NodeId -> *Info, independently guarded
// per the stated lock order (role -> master -> knows_nodes -> replicas ->
// outgoing_streams -> incoming_streams -> cluster_state).
type Table struct {
	m *cmap.Map[clusterid.NodeId, *Info]
}

// NewTable creates an empty knows_nodes table.
func NewTable() *Table {
	return &Table{m: cmap.New[clusterid.NodeId, *Info]()}
}

func (t *Table) Get(id clusterid.NodeId) (*Info, bool) { return t.m.Get(id) }
func (t *Table) Set(id clusterid.NodeId, info *Info)   { t.m.Set(id, info) }
func (t *Table) Delete(id clusterid.NodeId)            { t.m.Delete(id) }
func (t *Table) Has(id clusterid.NodeId) bool          { return t.m.Has(id) }
func (t *Table) Count() int                            { return t.m.Count() }
func (t *Table) Range(fn func(id clusterid.NodeId, info *Info) bool) {
	t.m.Range(fn)
}

// Update atomically mutates (or inserts) the record for id. fn receives the
// existing record, or a freshly zeroed one with ID set if absent, and
// returns the record to store.
func (t *Table) Update(id clusterid.NodeId, fn func(info *Info) *Info) *Info {
	return t.m.Update(id, func(cur *Info, exists bool) *Info {
		if !exists || cur == nil {
			cur = &Info{ID: id}
		}
		return fn(cur)
	})
}

// MastersSnapshot returns Info copies of every known node currently acting
// as Master and not marked FAIL, used by the coverage/cluster-state check.
func (t *Table) MastersSnapshot() []*Info {
	var out []*Info
	t.Range(func(_ clusterid.NodeId, info *Info) bool {
		if info.Role == RoleMaster && !info.IsFail() {
			out = append(out, info.Clone())
		}
		return true
	})
	return out
}

// ReplicasOf returns the NodeIds of every known replica of master.
func (t *Table) ReplicasOf(master clusterid.NodeId) []clusterid.NodeId {
	var out []clusterid.NodeId
	t.Range(func(id clusterid.NodeId, info *Info) bool {
		if info.Role == RoleReplica && info.MasterID == master {
			out = append(out, id)
		}
		return true
	})
	return out
}
