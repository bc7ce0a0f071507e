package vlog

import (
	"context"
	"errors"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/valyx/valog/pkg/codec"
)

// Errors surfaced by the engine. Corruption and lock contention are
// recoverable at their own granularity; only I/O errors abort an operation
// wholesale.
var (
	// ErrCorrupt marks a checksum mismatch on a Head or payload. It is
	// scoped to a single record and never crashes the process.
	ErrCorrupt = errors.New("valog: record corrupted")

	// ErrNotFound means a Position does not resolve to a record, for
	// example after the caller kept a handle across an over-eager GC.
	ErrNotFound = errors.New("valog: position not found")

	// ErrLockBusy means a GC target file is locked by another process.
	// The file is skipped for the round.
	ErrLockBusy = errors.New("valog: gc target file is locked")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("valog: engine is closed")

	// ErrKeyEmpty rejects writes with an empty key.
	ErrKeyEmpty = errors.New("valog: key is empty")
)

// WalPointer marks a durably indexed prefix of the log: recovery replays
// only records at-or-after it. The zero value means "replay everything".
type WalPointer struct {
	LogID  uint64
	Offset uint64
}

// PositionMapping records that GC moved a key's record from Old to New.
type PositionMapping struct {
	Key []byte
	Old codec.Position
	New codec.Position
}

// Liveness is the external liveness capability consulted during GC. It may
// suspend (block on I/O of its own); the context carries cancellation for
// the surrounding GC round.
type Liveness interface {
	IsLive(ctx context.Context, key []byte) (bool, error)
}

// LivenessFunc adapts a function to the Liveness interface.
type LivenessFunc func(ctx context.Context, key []byte) (bool, error)

func (f LivenessFunc) IsLive(ctx context.Context, key []byte) (bool, error) {
	return f(ctx, key)
}

// IndexUpdate applies a batch of GC position mappings to the external
// index. The batch is expected to be atomic from the index's perspective;
// GC deletes source files only after Apply returns nil.
type IndexUpdate interface {
	Apply(ctx context.Context, mappings []PositionMapping) error
}

// IndexUpdateFunc adapts a function to the IndexUpdate interface.
type IndexUpdateFunc func(ctx context.Context, mappings []PositionMapping) error

func (f IndexUpdateFunc) Apply(ctx context.Context, mappings []PositionMapping) error {
	return f(ctx, mappings)
}

// Cache is the minimal capability contract the engine consumes for its
// read-side caches. Peek must not update recency statistics.
type Cache interface {
	Lookup(pos codec.Position) ([]byte, bool)
	Insert(pos codec.Position, data []byte, sizeHint int)
	Peek(pos codec.Position) ([]byte, bool)
	Remove(pos codec.Position)
}

// Checkpoint supplies the WalPointer at open time and accepts updated
// pointers after a successful Sync.
type Checkpoint interface {
	Pointer() (WalPointer, error)
	Advance(ptr WalPointer) error
}

// Config holds the engine tunables. The zero value is usable: every field
// falls back to its default.
type Config struct {
	// MaxSize is the rotation threshold per log file.
	MaxSize int64
	// BufMax is the capacity of each write slot; a full active slot while
	// a flush is in flight is the engine's sole backpressure point.
	BufMax int
	// SameFileMax separates same-file payloads from external bin/ payloads.
	SameFileMax int

	HeadCacheCap       int
	DataCacheCap       int
	FileHandleCacheCap int

	// GCMaxRounds bounds one GCAuto invocation.
	GCMaxRounds int
	// GCReclaimThreshold is the reclaimed-byte ratio below which GCAuto
	// stops iterating.
	GCReclaimThreshold float64

	// DatabaseID identifies the root logical database owning this log;
	// forks register under it.
	DatabaseID uint64

	Logger     *log.Logger
	Registerer prometheus.Registerer
}

// Defaults per the on-disk format documentation.
const (
	DefaultMaxSize            = 256 << 20
	DefaultBufMax             = 8 << 20
	DefaultHeadCacheCap       = 8192
	DefaultDataCacheCap       = 1024
	DefaultFileHandleCacheCap = 64
	DefaultGCMaxRounds        = 16
	DefaultGCReclaimThreshold = 0.25
)

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.BufMax <= 0 {
		c.BufMax = DefaultBufMax
	}
	if c.SameFileMax <= 0 {
		c.SameFileMax = codec.DefaultSameFileMax
	}
	if c.HeadCacheCap <= 0 {
		c.HeadCacheCap = DefaultHeadCacheCap
	}
	if c.DataCacheCap <= 0 {
		c.DataCacheCap = DefaultDataCacheCap
	}
	if c.FileHandleCacheCap <= 0 {
		c.FileHandleCacheCap = DefaultFileHandleCacheCap
	}
	if c.GCMaxRounds <= 0 {
		c.GCMaxRounds = DefaultGCMaxRounds
	}
	if c.GCReclaimThreshold <= 0 {
		c.GCReclaimThreshold = DefaultGCReclaimThreshold
	}
	if c.DatabaseID == 0 {
		c.DatabaseID = 1
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}
