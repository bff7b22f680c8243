// Package metafile implements the node's fixed-layout binary metadata file,
// read back bit-for-bit at restore. The server writes it once at every
// startup; role or slot-range changes made while running (a promotion,
// Store.SetSlotRange) are not written to it.
package metafile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
)

const (
	roleTagLen   = 7
	statusTagLen = 4
)

var (
	roleTagMaster  = padTag("master", roleTagLen)
	roleTagReplica = padTag("replica", roleTagLen)

	statusTagOk   = padTag("ok", statusTagLen)
	statusTagFail = padTag("fail", statusTagLen)
)

func padTag(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	for i := len(s); i < n; i++ {
		b[i] = ' '
	}
	return b
}

// Status is the node's own health status, distinct from a neighbor's
// cluster-wide ClusterState: it is what this metadata file records about
// itself.
type Status int

const (
	StatusOK Status = iota
	StatusFail
)

// Metadata is the full, byte-layout-stable record.
type Metadata struct {
	NodeID        clusterid.NodeId
	Role          neighbor.Role
	Status        Status
	Slots         clusterid.Range
	SaveInterval  int64 // ms
	MaxClients    int64
	LoggerPath    string
	NodeTimeout   int64 // ms
	ClusterAddr   string
	PublicAddr    string
}

// Encode renders m in the exact on-disk byte layout specified in §4.2:
// 40B NodeId, 7B role tag, 4B status tag, 2B slot_start, 2B slot_end,
// 8B save_interval, 8B max_clients, 4B logger_path_len+bytes,
// 8B node_timeout, 4B cluster_addr_len+bytes, 4B public_addr_len+bytes.
func (m *Metadata) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(m.NodeID.Bytes())

	if m.Role == neighbor.RoleMaster {
		buf.Write(roleTagMaster)
	} else {
		buf.Write(roleTagReplica)
	}

	if m.Status == StatusOK {
		buf.Write(statusTagOk)
	} else {
		buf.Write(statusTagFail)
	}

	writeU16(&buf, uint16(m.Slots.Start))
	writeU16(&buf, uint16(m.Slots.End))
	writeU64(&buf, uint64(m.SaveInterval))
	writeU64(&buf, uint64(m.MaxClients))
	writeLenPrefixed(&buf, []byte(m.LoggerPath))
	writeU64(&buf, uint64(m.NodeTimeout))
	writeLenPrefixed(&buf, []byte(m.ClusterAddr))
	writeLenPrefixed(&buf, []byte(m.PublicAddr))

	return buf.Bytes()
}

// Decode parses the byte layout Encode produces. Any short read or tag
// mismatch is a fatal restore error, per §4.2.
func Decode(b []byte) (*Metadata, error) {
	r := bytes.NewReader(b)
	m := &Metadata{}

	idBuf := make([]byte, clusterid.Len)
	if _, err := readFull(r, idBuf); err != nil {
		return nil, fmt.Errorf("metafile: read node id: %w", err)
	}
	id, err := clusterid.FromBytes(idBuf)
	if err != nil {
		return nil, err
	}
	m.NodeID = id

	roleTag := make([]byte, roleTagLen)
	if _, err := readFull(r, roleTag); err != nil {
		return nil, fmt.Errorf("metafile: read role tag: %w", err)
	}
	switch {
	case bytes.Equal(roleTag, roleTagMaster):
		m.Role = neighbor.RoleMaster
	case bytes.Equal(roleTag, roleTagReplica):
		m.Role = neighbor.RoleReplica
	default:
		return nil, fmt.Errorf("metafile: unrecognized role tag %q", roleTag)
	}

	statusTag := make([]byte, statusTagLen)
	if _, err := readFull(r, statusTag); err != nil {
		return nil, fmt.Errorf("metafile: read status tag: %w", err)
	}
	switch {
	case bytes.Equal(statusTag, statusTagOk):
		m.Status = StatusOK
	case bytes.Equal(statusTag, statusTagFail):
		m.Status = StatusFail
	default:
		return nil, fmt.Errorf("metafile: unrecognized status tag %q", statusTag)
	}

	start, err := readU16(r)
	if err != nil {
		return nil, fmt.Errorf("metafile: read slot_start: %w", err)
	}
	end, err := readU16(r)
	if err != nil {
		return nil, fmt.Errorf("metafile: read slot_end: %w", err)
	}
	m.Slots = clusterid.Range{Start: clusterid.Slot(start), End: clusterid.Slot(end)}

	saveInterval, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("metafile: read save_interval: %w", err)
	}
	m.SaveInterval = int64(saveInterval)

	maxClients, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("metafile: read max_clients: %w", err)
	}
	m.MaxClients = int64(maxClients)

	loggerPath, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("metafile: read logger_path: %w", err)
	}
	m.LoggerPath = string(loggerPath)

	nodeTimeout, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("metafile: read node_timeout: %w", err)
	}
	m.NodeTimeout = int64(nodeTimeout)

	clusterAddr, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("metafile: read cluster_addr: %w", err)
	}
	m.ClusterAddr = string(clusterAddr)

	publicAddr, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("metafile: read public_addr: %w", err)
	}
	m.PublicAddr = string(publicAddr)

	if r.Len() != 0 {
		return nil, fmt.Errorf("metafile: %d trailing bytes after metadata", r.Len())
	}

	return m, nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(b)))
	buf.Write(lb[:])
	buf.Write(b)
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err != nil {
		return n, err
	}
	if n != len(b) {
		return n, fmt.Errorf("short read: got %d want %d", n, len(b))
	}
	return n, nil
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var lb [4]byte
	if _, err := readFull(r, lb[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lb[:])
	b := make([]byte, n)
	if n > 0 {
		if _, err := readFull(r, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Manager guards reads and writes of the metadata file on disk. It is
// written once at startup and not on later role/slot changes; readers at
// restore never race a writer since restore happens before any other
// goroutine starts.
type Manager struct {
	mu   sync.Mutex
	path string
}

// NewManager returns a Manager bound to path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Write persists m, replacing any existing file content.
func (mgr *Manager) Write(m *Metadata) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return os.WriteFile(mgr.path, m.Encode(), 0o600)
}

// Read loads and decodes the metadata file. A missing file is a fatal
// restore error per §4.2's restore protocol step 1.
func (mgr *Manager) Read() (*Metadata, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	b, err := os.ReadFile(mgr.path)
	if err != nil {
		return nil, fmt.Errorf("metafile: read %s: %w", mgr.path, err)
	}
	return Decode(b)
}

// Exists reports whether the metadata file is present.
func (mgr *Manager) Exists() bool {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	_, err := os.Stat(mgr.path)
	return err == nil
}
