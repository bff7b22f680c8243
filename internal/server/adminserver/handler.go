// Package adminserver implements the ClusterAdmin Connect RPC surface: a
// read-only snapshot of this node's state, a snapshot of every known
// neighbor, and the Meet call the admin CLI uses to introduce a new node.
package adminserver

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	v1 "github.com/tokmesh/cluster/api/proto/v1"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
	"github.com/tokmesh/cluster/internal/telemetry/logger"
)

var errEmptyAddress = errors.New("adminserver: address is required")

// Discoverer is the subset of busserver.Server the Meet RPC needs: dial a
// newly-named address and introduce this node to it.
type Discoverer interface {
	MeetAddress(ctx context.Context, addr string) error
}

// Handler implements the generated ClusterAdminServiceHandler interface.
type Handler struct {
	node       *clusternode.Node
	discoverer Discoverer
	log        logger.Logger
}

// NewHandler constructs a Handler.
func NewHandler(node *clusternode.Node, discoverer Discoverer, log logger.Logger) *Handler {
	return &Handler{node: node, discoverer: discoverer, log: log}
}

// Info handles the Info RPC: a snapshot of this node's own identity,
// role, epoch counters, and declared slot range.
func (h *Handler) Info(ctx context.Context, req *connect.Request[v1.InfoRequest]) (*connect.Response[v1.InfoResponse], error) {
	slots := h.node.Storage.SlotRange()
	return connect.NewResponse(&v1.InfoResponse{
		NodeId:            h.node.Self.ID.String(),
		Role:              h.node.Role().String(),
		ClusterState:      h.node.ClusterState().String(),
		CurrentEpoch:      uint64(h.node.CurrentEpoch.Load()),
		ConfigEpoch:       uint64(h.node.ConfigEpoch.Load()),
		SlotStart:         uint32(slots.Start),
		SlotEnd:           uint32(slots.End),
		ReplicationOffset: h.node.ReplicationOffset(),
		KnownNodes:        int32(h.node.KnowsNodes.Count()),
	}), nil
}

// Nodes handles the Nodes RPC: a snapshot of every entry in knows_nodes.
func (h *Handler) Nodes(ctx context.Context, req *connect.Request[v1.NodesRequest]) (*connect.Response[v1.NodesResponse], error) {
	resp := &v1.NodesResponse{}
	h.node.KnowsNodes.Range(func(id clusterid.NodeId, info *neighbor.Info) bool {
		resp.Nodes = append(resp.Nodes, toProto(info))
		return true
	})
	return connect.NewResponse(resp), nil
}

// Meet handles the Meet RPC: dial addr and send it this node's identity so
// gossip can pick the new neighbor up on the next ping round.
func (h *Handler) Meet(ctx context.Context, req *connect.Request[v1.MeetRequest]) (*connect.Response[v1.MeetResponse], error) {
	if req.Msg.Address == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errEmptyAddress)
	}
	if err := h.discoverer.MeetAddress(ctx, req.Msg.Address); err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	h.log.Info("admin meet dispatched", "address", req.Msg.Address)
	return connect.NewResponse(&v1.MeetResponse{Accepted: true}), nil
}

func toProto(info *neighbor.Info) *v1.NeighborInfo {
	return &v1.NeighborInfo{
		NodeId:      info.ID.String(),
		Role:        info.Role.String(),
		MasterId:    info.MasterID.String(),
		ClusterAddr: info.ClusterAddr,
		ClientAddr:  info.ClientAddr,
		SlotStart:   uint32(info.Slots.Start),
		SlotEnd:     uint32(info.Slots.End),
		Pfail:       info.IsPFail(),
		Fail:        info.IsFail(),
	}
}
