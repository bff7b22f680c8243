package clusterid

import "sync/atomic"

// Epoch is a monotonic 64-bit logical clock value.
type Epoch uint64

// EpochCounter is a lock-free monotonic counter. Reads and compare-bumps use
// sequentially consistent ordering since election correctness depends on the
// bump-then-read-back being visible cluster-wide in a single total order;
// plain reads elsewhere (metrics, logging) can use Load directly since they
// never gate a decision on the value.
type EpochCounter struct {
	v atomic.Uint64
}

// Load returns the current value.
func (c *EpochCounter) Load() Epoch {
	return Epoch(c.v.Load())
}

// Store sets the value unconditionally (used when seeding from persisted
// metadata at boot).
func (c *EpochCounter) Store(e Epoch) {
	c.v.Store(uint64(e))
}

// Bump advances the counter by one and returns the new value.
func (c *EpochCounter) Bump() Epoch {
	return Epoch(c.v.Add(1))
}

// Observe advances the counter to max(current, seen), matching the rule that
// current_epoch only ever increases and is raised to any higher value seen
// in an inbound header. Returns the resulting value.
func (c *EpochCounter) Observe(seen Epoch) Epoch {
	for {
		cur := c.v.Load()
		if uint64(seen) <= cur {
			return Epoch(cur)
		}
		if c.v.CompareAndSwap(cur, uint64(seen)) {
			return seen
		}
	}
}
