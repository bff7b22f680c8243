// Package bus implements the cluster bus wire protocol: the header and
// payload framing every inter-node message uses, per §4.3.
package bus

import (
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
)

// Kind identifies a message's payload variant.
type Kind uint8

const (
	KindMeet Kind = iota
	KindMeetMaster
	KindMeetNewMaster
	KindGossip
	KindPing
	KindPong
	KindFail
	KindRedisCommand
	KindPubSub
	KindFailNegotiation
	KindFailAuthReq
	KindFailAuthAck
	KindUpdate
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindMeet:
		return "Meet"
	case KindMeetMaster:
		return "MeetMaster"
	case KindMeetNewMaster:
		return "MeetNewMaster"
	case KindGossip:
		return "Gossip"
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindFail:
		return "Fail"
	case KindRedisCommand:
		return "RedisCommand"
	case KindPubSub:
		return "PubSub"
	case KindFailNegotiation:
		return "FailNegotiation"
	case KindFailAuthReq:
		return "FailAuthReq"
	case KindFailAuthAck:
		return "FailAuthAck"
	case KindUpdate:
		return "Update"
	default:
		return "Empty"
	}
}

// Header carries the sender's identity and view of the cluster, attached to
// every message regardless of payload kind.
type Header struct {
	Kind          Kind
	Sender        clusterid.NodeId
	CurrentEpoch  clusterid.Epoch
	ConfigEpoch   clusterid.Epoch
	SenderFlags   neighbor.Flags
	SenderSlots   clusterid.Range
	ClientPort    uint16
	ClusterPort   uint16
	ClusterState  neighbor.ClusterState
	HasMasterID   bool
	MasterID      clusterid.NodeId
}

// GossipEntry is a compact per-neighbor summary piggy-backed onto
// heartbeats.
type GossipEntry struct {
	NodeID    clusterid.NodeId
	Addr      string
	Flags     neighbor.Flags
	Slots     clusterid.Range
	HasMaster bool
	MasterID  clusterid.NodeId
}

// Payload is implemented by each of the message kinds' bodies.
type Payload interface {
	Kind() Kind
}

type MeetPayload struct{}

func (MeetPayload) Kind() Kind { return KindMeet }

type MeetMasterPayload struct{}

func (MeetMasterPayload) Kind() Kind { return KindMeetMaster }

type MeetNewMasterPayload struct{}

func (MeetNewMasterPayload) Kind() Kind { return KindMeetNewMaster }

type GossipPayload struct {
	Entries []GossipEntry
}

func (GossipPayload) Kind() Kind { return KindGossip }

type PingPayload struct {
	Gossip []GossipEntry
}

func (PingPayload) Kind() Kind { return KindPing }

type PongPayload struct {
	Gossip []GossipEntry
}

func (PongPayload) Kind() Kind { return KindPong }

type FailPayload struct {
	NodeID clusterid.NodeId
}

func (FailPayload) Kind() Kind { return KindFail }

type RedisCommandPayload struct {
	Tokens []string
}

func (RedisCommandPayload) Kind() Kind { return KindRedisCommand }

type PubSubPayload struct {
	Tokens []string
}

func (PubSubPayload) Kind() Kind { return KindPubSub }

type FailNegotiationPayload struct {
	FailedMaster clusterid.NodeId
	Offset       uint64
}

func (FailNegotiationPayload) Kind() Kind { return KindFailNegotiation }

type FailAuthReqPayload struct {
	FailedMaster clusterid.NodeId
	Offset       uint64
}

func (FailAuthReqPayload) Kind() Kind { return KindFailAuthReq }

type FailAuthAckPayload struct {
	MasterID clusterid.NodeId
}

func (FailAuthAckPayload) Kind() Kind { return KindFailAuthAck }

type UpdatePayload struct{}

func (UpdatePayload) Kind() Kind { return KindUpdate }

type EmptyPayload struct{}

func (EmptyPayload) Kind() Kind { return KindEmpty }

// Message is a full bus message: header plus payload.
type Message struct {
	Header  Header
	Payload Payload
}
