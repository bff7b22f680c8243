package bus

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
)

// Encode renders a Message to bytes suitable for a wire.WriteFrame payload.
func Encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	writeHeader(&buf, msg.Header)
	if err := writePayload(&buf, msg.Payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode.
func Decode(b []byte) (Message, error) {
	r := bytes.NewReader(b)
	hdr, err := readHeader(r)
	if err != nil {
		return Message{}, fmt.Errorf("bus: read header: %w", err)
	}
	payload, err := readPayload(r, hdr.Kind)
	if err != nil {
		return Message{}, fmt.Errorf("bus: read payload: %w", err)
	}
	return Message{Header: hdr, Payload: payload}, nil
}

func writeHeader(buf *bytes.Buffer, h Header) {
	buf.WriteByte(byte(h.Kind))
	buf.Write(h.Sender.Bytes())
	writeU64(buf, uint64(h.CurrentEpoch))
	writeU64(buf, uint64(h.ConfigEpoch))
	buf.WriteByte(byte(h.SenderFlags))
	writeU16(buf, uint16(h.SenderSlots.Start))
	writeU16(buf, uint16(h.SenderSlots.End))
	writeU16(buf, h.ClientPort)
	writeU16(buf, h.ClusterPort)
	buf.WriteByte(byte(h.ClusterState))
	if h.HasMasterID {
		buf.WriteByte(1)
		buf.Write(h.MasterID.Bytes())
	} else {
		buf.WriteByte(0)
	}
}

func readHeader(r *bytes.Reader) (Header, error) {
	var h Header
	kindByte, err := r.ReadByte()
	if err != nil {
		return h, err
	}
	h.Kind = Kind(kindByte)

	idBuf := make([]byte, clusterid.Len)
	if _, err := readFullBytes(r, idBuf); err != nil {
		return h, err
	}
	id, err := clusterid.FromBytes(idBuf)
	if err != nil {
		return h, err
	}
	h.Sender = id

	cur, err := readU64(r)
	if err != nil {
		return h, err
	}
	h.CurrentEpoch = clusterid.Epoch(cur)

	cfg, err := readU64(r)
	if err != nil {
		return h, err
	}
	h.ConfigEpoch = clusterid.Epoch(cfg)

	flagsByte, err := r.ReadByte()
	if err != nil {
		return h, err
	}
	h.SenderFlags = neighbor.Flags(flagsByte)

	start, err := readU16(r)
	if err != nil {
		return h, err
	}
	end, err := readU16(r)
	if err != nil {
		return h, err
	}
	h.SenderSlots = clusterid.Range{Start: clusterid.Slot(start), End: clusterid.Slot(end)}

	clientPort, err := readU16(r)
	if err != nil {
		return h, err
	}
	h.ClientPort = clientPort

	clusterPort, err := readU16(r)
	if err != nil {
		return h, err
	}
	h.ClusterPort = clusterPort

	stateByte, err := r.ReadByte()
	if err != nil {
		return h, err
	}
	h.ClusterState = neighbor.ClusterState(stateByte)

	hasMaster, err := r.ReadByte()
	if err != nil {
		return h, err
	}
	if hasMaster == 1 {
		mid := make([]byte, clusterid.Len)
		if _, err := readFullBytes(r, mid); err != nil {
			return h, err
		}
		masterID, err := clusterid.FromBytes(mid)
		if err != nil {
			return h, err
		}
		h.HasMasterID = true
		h.MasterID = masterID
	}

	return h, nil
}

func writePayload(buf *bytes.Buffer, p Payload) error {
	switch v := p.(type) {
	case MeetPayload, MeetMasterPayload, MeetNewMasterPayload, UpdatePayload, EmptyPayload:
		// no body
	case GossipPayload:
		writeGossipEntries(buf, v.Entries)
	case PingPayload:
		writeGossipEntries(buf, v.Gossip)
	case PongPayload:
		writeGossipEntries(buf, v.Gossip)
	case FailPayload:
		buf.Write(v.NodeID.Bytes())
	case RedisCommandPayload:
		writeTokens(buf, v.Tokens)
	case PubSubPayload:
		writeTokens(buf, v.Tokens)
	case FailNegotiationPayload:
		buf.Write(v.FailedMaster.Bytes())
		writeU64(buf, v.Offset)
	case FailAuthReqPayload:
		buf.Write(v.FailedMaster.Bytes())
		writeU64(buf, v.Offset)
	case FailAuthAckPayload:
		buf.Write(v.MasterID.Bytes())
	default:
		return fmt.Errorf("bus: unknown payload type %T", p)
	}
	return nil
}

func readPayload(r *bytes.Reader, kind Kind) (Payload, error) {
	switch kind {
	case KindMeet:
		return MeetPayload{}, nil
	case KindMeetMaster:
		return MeetMasterPayload{}, nil
	case KindMeetNewMaster:
		return MeetNewMasterPayload{}, nil
	case KindUpdate:
		return UpdatePayload{}, nil
	case KindEmpty:
		return EmptyPayload{}, nil
	case KindGossip:
		entries, err := readGossipEntries(r)
		if err != nil {
			return nil, err
		}
		return GossipPayload{Entries: entries}, nil
	case KindPing:
		entries, err := readGossipEntries(r)
		if err != nil {
			return nil, err
		}
		return PingPayload{Gossip: entries}, nil
	case KindPong:
		entries, err := readGossipEntries(r)
		if err != nil {
			return nil, err
		}
		return PongPayload{Gossip: entries}, nil
	case KindFail:
		idBuf := make([]byte, clusterid.Len)
		if _, err := readFullBytes(r, idBuf); err != nil {
			return nil, err
		}
		id, err := clusterid.FromBytes(idBuf)
		if err != nil {
			return nil, err
		}
		return FailPayload{NodeID: id}, nil
	case KindRedisCommand:
		toks, err := readTokens(r)
		if err != nil {
			return nil, err
		}
		return RedisCommandPayload{Tokens: toks}, nil
	case KindPubSub:
		toks, err := readTokens(r)
		if err != nil {
			return nil, err
		}
		return PubSubPayload{Tokens: toks}, nil
	case KindFailNegotiation:
		idBuf := make([]byte, clusterid.Len)
		if _, err := readFullBytes(r, idBuf); err != nil {
			return nil, err
		}
		failedMaster, err := clusterid.FromBytes(idBuf)
		if err != nil {
			return nil, err
		}
		off, err := readU64(r)
		if err != nil {
			return nil, err
		}
		return FailNegotiationPayload{FailedMaster: failedMaster, Offset: off}, nil
	case KindFailAuthReq:
		idBuf := make([]byte, clusterid.Len)
		if _, err := readFullBytes(r, idBuf); err != nil {
			return nil, err
		}
		failedMaster, err := clusterid.FromBytes(idBuf)
		if err != nil {
			return nil, err
		}
		off, err := readU64(r)
		if err != nil {
			return nil, err
		}
		return FailAuthReqPayload{FailedMaster: failedMaster, Offset: off}, nil
	case KindFailAuthAck:
		idBuf := make([]byte, clusterid.Len)
		if _, err := readFullBytes(r, idBuf); err != nil {
			return nil, err
		}
		id, err := clusterid.FromBytes(idBuf)
		if err != nil {
			return nil, err
		}
		return FailAuthAckPayload{MasterID: id}, nil
	default:
		return nil, fmt.Errorf("bus: unknown message kind %d", kind)
	}
}

func writeGossipEntries(buf *bytes.Buffer, entries []GossipEntry) {
	writeU32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf.Write(e.NodeID.Bytes())
		writeString(buf, e.Addr)
		buf.WriteByte(byte(e.Flags))
		writeU16(buf, uint16(e.Slots.Start))
		writeU16(buf, uint16(e.Slots.End))
		if e.HasMaster {
			buf.WriteByte(1)
			buf.Write(e.MasterID.Bytes())
		} else {
			buf.WriteByte(0)
		}
	}
}

func readGossipEntries(r *bytes.Reader) ([]GossipEntry, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	entries := make([]GossipEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		var e GossipEntry
		idBuf := make([]byte, clusterid.Len)
		if _, err := readFullBytes(r, idBuf); err != nil {
			return nil, err
		}
		id, err := clusterid.FromBytes(idBuf)
		if err != nil {
			return nil, err
		}
		e.NodeID = id

		addr, err := readString(r)
		if err != nil {
			return nil, err
		}
		e.Addr = addr

		flagsByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		e.Flags = neighbor.Flags(flagsByte)

		start, err := readU16(r)
		if err != nil {
			return nil, err
		}
		end, err := readU16(r)
		if err != nil {
			return nil, err
		}
		e.Slots = clusterid.Range{Start: clusterid.Slot(start), End: clusterid.Slot(end)}

		hasMaster, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if hasMaster == 1 {
			mid := make([]byte, clusterid.Len)
			if _, err := readFullBytes(r, mid); err != nil {
				return nil, err
			}
			masterID, err := clusterid.FromBytes(mid)
			if err != nil {
				return nil, err
			}
			e.HasMaster = true
			e.MasterID = masterID
		}

		entries = append(entries, e)
	}
	return entries, nil
}

func writeTokens(buf *bytes.Buffer, tokens []string) {
	writeU32(buf, uint32(len(tokens)))
	for _, t := range tokens {
		writeString(buf, t)
	}
}

func readTokens(r *bytes.Reader) ([]string, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := readFullBytes(r, b); err != nil {
			return "", err
		}
	}
	return string(b), nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := readFullBytes(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFullBytes(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFullBytes(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readFullBytes(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err != nil {
		return n, err
	}
	if n != len(b) {
		return n, fmt.Errorf("bus: short read: got %d want %d", n, len(b))
	}
	return n, nil
}
