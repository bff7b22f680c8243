// Package rdb implements the periodic binary snapshot artifact: grouping the
// live slot-restricted key-value map by slot and writing it in the byte
// layout the spec fixes as a stable on-disk contract.
package rdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/storage/kv"
	"github.com/tokmesh/cluster/internal/telemetry/metric"
	"github.com/tokmesh/cluster/pkg/crypto/adaptive"
)

// Manager creates and loads RDB snapshots at a fixed path, encrypting each
// stored value's tagged byte form (see encodeValue) with cipher. A nil cipher disables
// encryption (values are stored as plain RESP bytes), used by tests and by
// nodes booted without an encryption key configured.
type Manager struct {
	path    string
	cipher  adaptive.Cipher
	metrics *metric.Registry
}

// NewManager returns a Manager writing to path using cipher (may be nil).
func NewManager(path string, cipher adaptive.Cipher) *Manager {
	return &Manager{path: path, cipher: cipher}
}

// SetMetrics wires the metrics registry. A nil registry leaves snapshot
// duration tracking a no-op.
func (mgr *Manager) SetMetrics(m *metric.Registry) {
	mgr.metrics = m
}

// Create writes a full snapshot of store to disk, grouping entries by slot
// in ascending order for deterministic output:
// 2B slot_start, 2B slot_end, then per non-empty slot:
// 2B slot, 4B count, count x (4B key_len+key, 4B value_len+value).
func (mgr *Manager) Create(store *kv.Store) error {
	start := time.Now()
	if mgr.metrics != nil {
		defer func() {
			mgr.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		}()
	}
	slots := store.SlotRange()

	bySlot := make(map[clusterid.Slot][][2][]byte) // slot -> [][key,value]
	var encErr error
	store.Iter(func(key string, value kv.Value) {
		if encErr != nil {
			return
		}
		slot := clusterid.KeySlot([]byte(key))
		raw := encodeValue(value)
		enc, err := mgr.encrypt(raw)
		if err != nil {
			// An encryption failure fails the whole snapshot, so the
			// caller does not truncate the AOF and the AOF retains the
			// authoritative record for this key.
			encErr = err
			return
		}
		bySlot[slot] = append(bySlot[slot], [2][]byte{[]byte(key), enc})
	})
	if encErr != nil {
		return fmt.Errorf("rdb: encrypt value: %w", encErr)
	}

	slotNums := make([]int, 0, len(bySlot))
	for s := range bySlot {
		slotNums = append(slotNums, int(s))
	}
	sort.Ints(slotNums)

	var buf bytes.Buffer
	writeU16(&buf, uint16(slots.Start))
	writeU16(&buf, uint16(slots.End))

	for _, sn := range slotNums {
		slot := clusterid.Slot(sn)
		entries := bySlot[slot]
		writeU16(&buf, uint16(slot))
		writeU32(&buf, uint32(len(entries)))
		for _, kvpair := range entries {
			writeLenPrefixed(&buf, kvpair[0])
			writeLenPrefixed(&buf, kvpair[1])
		}
	}

	tmp := mgr.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("rdb: write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, mgr.path); err != nil {
		return fmt.Errorf("rdb: finalize snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot file and returns the slot range and the decoded
// key/value pairs it contained. A missing or corrupt file is reported to
// the caller so restore can fall back to an empty store per §4.2 step 2.
func (mgr *Manager) Load() (clusterid.Range, []KV, error) {
	b, err := os.ReadFile(mgr.path)
	if err != nil {
		return clusterid.Range{}, nil, fmt.Errorf("rdb: read %s: %w", mgr.path, err)
	}
	return mgr.decode(b)
}

// KV is a decoded snapshot entry.
type KV struct {
	Key   string
	Value kv.Value
}

func (mgr *Manager) decode(b []byte) (clusterid.Range, []KV, error) {
	r := bytes.NewReader(b)
	start, err := readU16(r)
	if err != nil {
		return clusterid.Range{}, nil, fmt.Errorf("rdb: read slot_start: %w", err)
	}
	end, err := readU16(r)
	if err != nil {
		return clusterid.Range{}, nil, fmt.Errorf("rdb: read slot_end: %w", err)
	}
	rng := clusterid.Range{Start: clusterid.Slot(start), End: clusterid.Slot(end)}

	var out []KV
	for r.Len() > 0 {
		_, err := readU16(r) // slot number; keys already carry their own slot
		if err != nil {
			return clusterid.Range{}, nil, fmt.Errorf("rdb: read slot: %w", err)
		}
		count, err := readU32(r)
		if err != nil {
			return clusterid.Range{}, nil, fmt.Errorf("rdb: read count: %w", err)
		}
		for i := uint32(0); i < count; i++ {
			keyBytes, err := readLenPrefixed(r)
			if err != nil {
				return clusterid.Range{}, nil, fmt.Errorf("rdb: read key: %w", err)
			}
			valBytes, err := readLenPrefixed(r)
			if err != nil {
				return clusterid.Range{}, nil, fmt.Errorf("rdb: read value: %w", err)
			}
			plain, err := mgr.decrypt(valBytes)
			if err != nil {
				return clusterid.Range{}, nil, fmt.Errorf("rdb: decrypt value for key %q: %w", keyBytes, err)
			}
			v, err := decodeValue(plain)
			if err != nil {
				return clusterid.Range{}, nil, fmt.Errorf("rdb: decode value for key %q: %w", keyBytes, err)
			}
			out = append(out, KV{Key: string(keyBytes), Value: v})
		}
	}
	return rng, out, nil
}

func (mgr *Manager) encrypt(plain []byte) ([]byte, error) {
	if mgr.cipher == nil {
		return plain, nil
	}
	return mgr.cipher.Encrypt(plain, nil)
}

func (mgr *Manager) decrypt(data []byte) ([]byte, error) {
	if mgr.cipher == nil {
		return data, nil
	}
	return mgr.cipher.Decrypt(data, nil)
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

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	writeU32(buf, uint32(len(b)))
	buf.Write(b)
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}
