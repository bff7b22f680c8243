package executor

import (
	"fmt"
	"strings"

	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
)

// dispatchCluster implements CLUSTER INFO and CLUSTER NODES on the client
// port, mirroring the same knows_nodes/cluster-state snapshot the admin RPC
// surface exposes, for clients that query cluster topology over the
// data-plane connection instead of the admin plane.
func (e *Executor) dispatchCluster(tokens []string) (any, error) {
	if len(tokens) < 2 {
		return nil, errWrongNumArgs("cluster")
	}
	switch strings.ToUpper(tokens[1]) {
	case "INFO":
		return e.clusterInfo(), nil
	case "NODES":
		return e.clusterNodes(), nil
	default:
		return nil, errUnknownCommand("cluster|" + tokens[1])
	}
}

func (e *Executor) clusterInfo() string {
	state := "fail"
	if e.node.ClusterState() == neighbor.StateOk {
		state = "ok"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "cluster_state:%s\r\n", state)
	fmt.Fprintf(&b, "cluster_known_nodes:%d\r\n", e.node.KnowsNodes.Count()+1)
	fmt.Fprintf(&b, "cluster_current_epoch:%d\r\n", e.node.CurrentEpoch.Load())
	fmt.Fprintf(&b, "cluster_my_epoch:%d\r\n", e.node.ConfigEpoch.Load())
	return b.String()
}

func (e *Executor) clusterNodes() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s :%s@%s %s - 0 0 %d connected %d-%d\r\n",
		e.node.Self.ID, e.node.Self.ClientAddr, e.node.Self.ClusterAddr,
		selfNodeFlag(e.node.Role()), e.node.ConfigEpoch.Load(),
		e.node.Storage.SlotRange().Start, e.node.Storage.SlotRange().End)

	e.node.KnowsNodes.Range(func(id clusterid.NodeId, info *neighbor.Info) bool {
		flag := selfNodeFlag(info.Role)
		if info.IsFail() {
			flag += ",fail"
		} else if info.IsPFail() {
			flag += ",fail?"
		}
		master := "-"
		if info.Role == neighbor.RoleReplica {
			master = info.MasterID.String()
		}
		fmt.Fprintf(&b, "%s %s@%s %s %s 0 0 0 connected %d-%d\r\n",
			id, info.ClientAddr, info.ClusterAddr, flag, master,
			info.Slots.Start, info.Slots.End)
		return true
	})
	return b.String()
}

func selfNodeFlag(role neighbor.Role) string {
	if role == neighbor.RoleReplica {
		return "slave"
	}
	return "master"
}
