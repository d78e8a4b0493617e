// Package memkv is a sharded, goroutine-safe in-memory byte store with TTLs,
// an optional total size limit and lock-free counters. The compositor keeps
// per-connection documents in it; expired keys are removed by a background
// goroutine and lazily on read.
package memkv
