package rdb

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tokmesh/cluster/internal/storage/kv"
)

// encodeValue renders v in the at-rest byte form the snapshot format stores
// (encrypted) per key: RESP-style type tags ('$' string, '*' list), but each
// length is a 4-byte big-endian integer rather than a CRLF-terminated decimal
// line, and no CRLF follows a body. Only the two value kinds the engine
// supports (string, list) round-trip through here.
func encodeValue(v kv.Value) []byte {
	var buf bytes.Buffer
	switch v.Kind {
	case kv.KindString:
		writeBulk(&buf, v.Str)
	case kv.KindList:
		writeArrayHeader(&buf, len(v.List))
		for _, item := range v.List {
			writeBulk(&buf, item)
		}
	}
	return buf.Bytes()
}

func decodeValue(b []byte) (kv.Value, error) {
	r := bytes.NewReader(b)
	kindByte, err := r.ReadByte()
	if err != nil {
		return kv.Value{}, fmt.Errorf("rdb: empty value")
	}
	switch kindByte {
	case '$':
		data, err := readBulkBody(r)
		if err != nil {
			return kv.Value{}, err
		}
		return kv.StringValue(data), nil
	case '*':
		n, err := readLengthLine(r)
		if err != nil {
			return kv.Value{}, err
		}
		items := make([][]byte, 0, n)
		for i := 0; i < n; i++ {
			tag, err := r.ReadByte()
			if err != nil || tag != '$' {
				return kv.Value{}, fmt.Errorf("rdb: malformed list element")
			}
			item, err := readBulkBody(r)
			if err != nil {
				return kv.Value{}, err
			}
			items = append(items, item)
		}
		return kv.ListValue(items), nil
	default:
		return kv.Value{}, fmt.Errorf("rdb: unknown value tag %q", kindByte)
	}
}

func writeBulk(buf *bytes.Buffer, b []byte) {
	buf.WriteByte('$')
	writeLengthLine(buf, len(b))
	buf.Write(b)
}

func writeArrayHeader(buf *bytes.Buffer, n int) {
	buf.WriteByte('*')
	writeLengthLine(buf, n)
}

func writeLengthLine(buf *bytes.Buffer, n int) {
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(n))
	buf.Write(lb[:])
}

func readLengthLine(r *bytes.Reader) (int, error) {
	var lb [4]byte
	if _, err := r.Read(lb[:]); err != nil {
		return 0, fmt.Errorf("rdb: read length: %w", err)
	}
	return int(binary.BigEndian.Uint32(lb[:])), nil
}

func readBulkBody(r *bytes.Reader) ([]byte, error) {
	n, err := readLengthLine(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return nil, fmt.Errorf("rdb: read bulk body: %w", err)
		}
	}
	return b, nil
}
