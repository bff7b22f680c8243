package metafile

import (
	"path/filepath"
	"testing"

	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
)

func sampleMetadata(t *testing.T) *Metadata {
	t.Helper()
	id, err := clusterid.New()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	return &Metadata{
		NodeID:       id,
		Role:         neighbor.RoleMaster,
		Status:       StatusOK,
		Slots:        clusterid.Range{Start: 0, End: 8000},
		SaveInterval: 60000,
		MaxClients:   10000,
		LoggerPath:   "/var/log/tokmesh.log",
		NodeTimeout:  15000,
		ClusterAddr:  "127.0.0.1:16379",
		PublicAddr:   "10.0.0.1:6379",
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := sampleMetadata(t)
	decoded, err := Decode(m.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.NodeID != m.NodeID || decoded.Role != m.Role || decoded.Status != m.Status ||
		decoded.Slots != m.Slots || decoded.SaveInterval != m.SaveInterval ||
		decoded.MaxClients != m.MaxClients || decoded.LoggerPath != m.LoggerPath ||
		decoded.NodeTimeout != m.NodeTimeout || decoded.ClusterAddr != m.ClusterAddr ||
		decoded.PublicAddr != m.PublicAddr {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, m)
	}
}

func TestManagerWriteRead(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(filepath.Join(dir, "node.meta"))
	m := sampleMetadata(t)

	if mgr.Exists() {
		t.Fatalf("expected no file before Write")
	}
	if err := mgr.Write(m); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !mgr.Exists() {
		t.Fatalf("expected file after Write")
	}
	got, err := mgr.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.NodeID != m.NodeID {
		t.Fatalf("node id mismatch")
	}
}

func TestDecodeRejectsBadTag(t *testing.T) {
	m := sampleMetadata(t)
	b := m.Encode()
	b[clusterid.Len] = 'X' // corrupt role tag
	if _, err := Decode(b); err == nil {
		t.Fatalf("expected error on corrupted role tag")
	}
}
