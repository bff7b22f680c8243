// Package clusterid defines the identifiers and logical clocks shared across
// the cluster core: node identifiers, slot numbers, and epoch counters.
package clusterid

import (
	"encoding/hex"
	"fmt"
	"hash/crc32"

	"github.com/tokmesh/cluster/pkg/token"
)

// Len is the fixed byte length of a NodeId.
const Len = 40

// NodeId is a 40-byte opaque node identifier. Equality and map keys use the
// raw bytes, so NodeId must stay a comparable array type.
type NodeId [Len]byte

// String renders the id as hex, truncated the way Redis Cluster logs node
// ids (first 8 bytes) so log lines stay readable.
func (id NodeId) String() string {
	return hex.EncodeToString(id[:8])
}

// Full renders the complete 40-byte id as hex.
func (id NodeId) Full() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the id is the zero value (unset).
func (id NodeId) IsZero() bool {
	return id == NodeId{}
}

// New generates a fresh random NodeId.
func New() (NodeId, error) {
	raw, err := token.GenerateBytes(Len)
	if err != nil {
		return NodeId{}, fmt.Errorf("clusterid: generate node id: %w", err)
	}
	var id NodeId
	copy(id[:], raw)
	return id, nil
}

// FromSeed derives a NodeId deterministically from a seed address, so a node
// restarting with the same `node_id_seed = host:port` recovers its identity
// without reading the metadata file. The first Len bytes of a stretched hash
// of the seed become the id.
func FromSeed(seed string) NodeId {
	var id NodeId
	// CRC-32 (IEEE) stretched across the fixed-width id: each byte re-hashes
	// the previous sum prefixed to the seed and keeps the low byte.
	sum := crc32.ChecksumIEEE([]byte(seed))
	for i := 0; i < Len; i++ {
		sum = crc32.ChecksumIEEE(append(uint32Bytes(sum), seed...))
		id[i] = byte(sum)
	}
	return id
}

func uint32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// Bytes returns the raw bytes of the id.
func (id NodeId) Bytes() []byte {
	return id[:]
}

// FromBytes parses a NodeId out of a byte slice of exactly Len bytes.
func FromBytes(b []byte) (NodeId, error) {
	var id NodeId
	if len(b) != Len {
		return id, fmt.Errorf("clusterid: node id must be %d bytes, got %d", Len, len(b))
	}
	copy(id[:], b)
	return id, nil
}
