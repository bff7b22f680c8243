// Package storage provides the storage engine for TokMesh.
//
// The storage engine combines memory storage, an append-only command log
// (AOF), and snapshots to provide durable, high-performance storage.
//
// Architecture:
//
//   - Memory Store (kv): one map guarded by a single RWMutex
//   - AOF (aof): append-only command log for durability and crash recovery
//   - Snapshot (rdb): Periodic snapshots for faster recovery
//
// The engine supports:
//
//   - Durability: with the AOF enabled, writes are logged before acknowledgment
//   - Recovery: Automatic recovery from snapshot and AOF on startup
//   - Performance: Target ≥5,000 TPS per shard, cold start <5s
//   - Encryption: Optional at-rest encryption using adaptive ciphers
//
// @req RQ-0101
// @design DS-0102
package storage
