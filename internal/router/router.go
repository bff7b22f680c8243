// Package router implements the single-thread message dispatcher of §4.6:
// one goroutine drains a channel of incoming messages and hands each to the
// heartbeat, promotion, or pub/sub component responsible for it, respecting
// the cluster's stated lock order.
package router

import (
	"context"
	"log/slog"

	"github.com/tokmesh/cluster/internal/bus"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
)

// Heartbeat is the subset of heartbeat.Coordinator the router drives.
type Heartbeat interface {
	HandlePong(from clusterid.NodeId)
	HandleFail(target clusterid.NodeId)
	ProcessGossipEntries(ctx context.Context, reporter clusterid.NodeId, reporterIsMaster bool, entries []bus.GossipEntry)
}

// Promotion is the subset of promotion.Manager the router drives.
type Promotion interface {
	DeliverOffset(failedMaster clusterid.NodeId, offset uint64)
	DeliverAck(masterID clusterid.NodeId)
	DeliverMeetNewMaster(sender clusterid.NodeId)
	EvaluateFailAuthReq(requester clusterid.NodeId, requesterEpoch clusterid.Epoch, failedMaster clusterid.NodeId) bool
}

// PubSub is the subset of pubsub.Broker the router drives for PubSub
// messages forwarded across the bus (PUBLISH and SPUBLISH propagation).
type PubSub interface {
	HandleClusterPubSub(tokens []string)
}

// Sender is used to reply with a FailAuthAck after accepting a vote.
type Sender interface {
	Send(ctx context.Context, to clusterid.NodeId, msg bus.Message) error
}

// Inbound is one message arriving from a bus connection, tagged with
// whether it came from the cluster bus (Outer) or was generated locally by
// another component on this node (Inner) for local dispatch.
type Inbound struct {
	Msg   bus.Message
	Inner bool
}

// Router owns the inbound channel and the single goroutine draining it.
type Router struct {
	node      *clusternode.Node
	heartbeat Heartbeat
	promotion Promotion
	pubsub    PubSub
	sender    Sender
	logger    *slog.Logger

	inbound chan Inbound
}

// New constructs a Router. bufSize sizes the inbound channel; 0 uses a
// reasonable default.
func New(node *clusternode.Node, heartbeat Heartbeat, promotion Promotion, pubsub PubSub, sender Sender, logger *slog.Logger, bufSize int) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Router{
		node:      node,
		heartbeat: heartbeat,
		promotion: promotion,
		pubsub:    pubsub,
		sender:    sender,
		logger:    logger,
		inbound:   make(chan Inbound, bufSize),
	}
}

// SetSender wires the component that owns outgoing_streams, for callers
// that construct the Router before the bus server exists.
func (r *Router) SetSender(s Sender) {
	r.sender = s
}

// Submit enqueues a message for dispatch. Called by bus connection readers;
// never blocks the caller for long since the channel is buffered and Run
// drains it on a single goroutine.
func (r *Router) Submit(msg bus.Message) {
	r.inbound <- Inbound{Msg: msg}
}

// Run drains the inbound channel until ctx is cancelled. Exactly one
// goroutine should call Run for a given Router.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-r.inbound:
			r.dispatch(ctx, in.Msg)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, msg bus.Message) {
	r.observeEpoch(msg.Header)
	r.learnSender(msg.Header)

	switch msg.Header.Kind {
	case bus.KindMeet, bus.KindMeetMaster:
		// Handled at the connection-accept layer (busserver), which replies
		// with the node's own identity; nothing further to dispatch.
	case bus.KindMeetNewMaster:
		r.promotion.DeliverMeetNewMaster(msg.Header.Sender)
	case bus.KindGossip:
		p := msg.Payload.(bus.GossipPayload)
		r.heartbeat.ProcessGossipEntries(ctx, msg.Header.Sender, senderIsMaster(msg.Header), p.Entries)
	case bus.KindPing:
		p := msg.Payload.(bus.PingPayload)
		r.heartbeat.ProcessGossipEntries(ctx, msg.Header.Sender, senderIsMaster(msg.Header), p.Gossip)
	case bus.KindPong:
		p := msg.Payload.(bus.PongPayload)
		r.heartbeat.HandlePong(msg.Header.Sender)
		r.heartbeat.ProcessGossipEntries(ctx, msg.Header.Sender, senderIsMaster(msg.Header), p.Gossip)
	case bus.KindFail:
		p := msg.Payload.(bus.FailPayload)
		r.heartbeat.HandleFail(p.NodeID)
	case bus.KindFailNegotiation:
		p := msg.Payload.(bus.FailNegotiationPayload)
		r.promotion.DeliverOffset(p.FailedMaster, p.Offset)
	case bus.KindFailAuthReq:
		p := msg.Payload.(bus.FailAuthReqPayload)
		r.handleFailAuthReq(ctx, msg.Header, p)
	case bus.KindFailAuthAck:
		p := msg.Payload.(bus.FailAuthAckPayload)
		r.promotion.DeliverAck(p.MasterID)
	case bus.KindPubSub:
		p := msg.Payload.(bus.PubSubPayload)
		r.pubsub.HandleClusterPubSub(p.Tokens)
	case bus.KindUpdate:
		// Carries only the sender's header, already applied above by
		// observeEpoch/learnSender.
	case bus.KindRedisCommand, bus.KindEmpty:
		// RedisCommand (replication fan-out) is consumed by the executor,
		// which registers its own inbound path; nothing to do here.
	}
}

func (r *Router) handleFailAuthReq(ctx context.Context, hdr bus.Header, p bus.FailAuthReqPayload) {
	if !r.promotion.EvaluateFailAuthReq(hdr.Sender, hdr.CurrentEpoch, p.FailedMaster) {
		return
	}
	ack := bus.Message{
		Header: bus.Header{
			Kind:         bus.KindFailAuthAck,
			Sender:       r.node.Self.ID,
			CurrentEpoch: r.node.CurrentEpoch.Load(),
			ConfigEpoch:  r.node.ConfigEpoch.Load(),
			SenderSlots:  r.node.Storage.SlotRange(),
			ClusterState: r.node.ClusterState(),
		},
		Payload: bus.FailAuthAckPayload{MasterID: r.node.Self.ID},
	}
	if err := r.sender.Send(ctx, hdr.Sender, ack); err != nil {
		r.logger.Warn("failed to send FailAuthAck", "to", hdr.Sender, "error", err)
	}
}

// observeEpoch raises current_epoch to match any higher epoch seen on the
// wire, per the cluster logical-clock rule.
func (r *Router) observeEpoch(hdr bus.Header) {
	r.node.CurrentEpoch.Observe(hdr.CurrentEpoch)
}

// learnSender updates (or inserts) the sender's neighbor record from the
// header it attached to every message, independent of gossip piggy-backing.
func (r *Router) learnSender(hdr bus.Header) {
	if hdr.Sender == r.node.Self.ID {
		return
	}
	r.node.KnowsNodes.Update(hdr.Sender, func(info *neighbor.Info) *neighbor.Info {
		info.Flags = info.Flags | (hdr.SenderFlags &^ (neighbor.FlagPFail | neighbor.FlagFail))
		info.Slots = hdr.SenderSlots
		if hdr.SenderFlags.Has(neighbor.FlagReplica) {
			info.Role = neighbor.RoleReplica
			if hdr.HasMasterID {
				info.MasterID = hdr.MasterID
			}
		} else {
			info.Role = neighbor.RoleMaster
		}
		return info
	})
}

func senderIsMaster(hdr bus.Header) bool {
	return hdr.SenderFlags.Has(neighbor.FlagMaster)
}
