// Package kv implements the node's slot-restricted in-memory key-value map:
// a flat Key -> Value map whose keys must hash into the node's declared slot
// range.
package kv

import (
	"sort"
	"sync"

	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/clustererr"
)

// Store is the node's in-memory data map. It is exclusively mutated through
// a single writer lock; readers take a shared lock. The executor holds the
// write lock only for the duration of a single command.
type Store struct {
	mu    sync.RWMutex
	slots clusterid.Range
	data  map[string]Value
}

// New creates an empty store scoped to the given slot range.
func New(slots clusterid.Range) *Store {
	return &Store{
		slots: slots,
		data:  make(map[string]Value),
	}
}

// SlotRange returns the node's declared slot range, so the persistence
// layer can round-trip it into the metadata file and snapshot header.
func (s *Store) SlotRange() clusterid.Range {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots
}

// SetSlotRange updates the declared range, e.g. after a promotion grants
// this node ownership of a different range.
func (s *Store) SetSlotRange(r clusterid.Range) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = r
}

func (s *Store) ownSlot(key string) (clusterid.Slot, error) {
	slot := clusterid.KeySlot([]byte(key))
	if !s.slots.Contains(slot) {
		return slot, &clustererr.MovedError{Slot: slot}
	}
	return slot, nil
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (Value, bool, error) {
	if _, err := s.ownSlot(key); err != nil {
		return Value{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return Value{}, false, nil
	}
	return v.Clone(), true, nil
}

// Set stores value under key, replacing any existing entry.
func (s *Store) Set(key string, value Value) error {
	if _, err := s.ownSlot(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// GetMutable runs fn against the live value for key under the write lock,
// letting callers implement list mutations (LPUSH, LSET, ...) without a
// copy/replace round trip. fn's return value replaces the stored value; if
// fn returns ok=false the key is left untouched (used for "key must already
// exist" commands like LSET).
func (s *Store) GetMutable(key string, fn func(v Value, exists bool) (Value, bool)) error {
	if _, err := s.ownSlot(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.data[key]
	next, ok := fn(cur, exists)
	if ok {
		s.data[key] = next
	}
	return nil
}

// Remove deletes key, returning whether it existed.
func (s *Store) Remove(key string) (bool, error) {
	if _, err := s.ownSlot(key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.data[key]
	delete(s.data, key)
	return existed, nil
}

// Iter calls fn for every key currently stored, in ascending key order, for
// deterministic snapshot output. Iteration holds the read lock for its
// duration; fn must not call back into the Store.
func (s *Store) Iter(fn func(key string, value Value)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fn(k, s.data[k])
	}
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Reset clears the store and adopts a new slot range; used when restoring
// from a snapshot.
func (s *Store) Reset(slots clusterid.Range) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = slots
	s.data = make(map[string]Value)
}

// LoadRaw inserts key/value directly, bypassing ownership checks. The restore
// paths do not call it: snapshot restore goes through Set and AOF replay
// through the executor.
func (s *Store) LoadRaw(key string, value Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}
