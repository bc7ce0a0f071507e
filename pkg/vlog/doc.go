// Package vlog implements the value-log engine for a key-value-separated
// database: an append-only, crash-consistent log that stores keys and
// values off the primary index and returns 16-byte Positions for the index
// to keep instead of the values themselves.
//
// The engine owns one directory with two subdirectories: wal/ holds the
// rotated log files, bin/ holds payloads too large to live in a log file.
// Appends go through a double-buffered write pipeline with three durability
// levels (buffered, flushed, synced); reads resolve Positions through three
// LRU caches and the in-memory write slots; Open runs a two-tier crash
// recovery (O(1) tail-marker fast path, forward corruption-skipping scan as
// fallback) and hands the caller a replay sequence; GC rewrites live
// records through the ordinary pipeline and deletes source files only after
// the external index accepted the new positions.
//
// The primary index, existence filters, and checkpoint management are
// external collaborators consumed through the Liveness, IndexUpdate, Cache,
// and Checkpoint interfaces.
package vlog
