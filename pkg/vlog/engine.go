package vlog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/valyx/valog/pkg/codec"
)

// Engine is the value-log engine: an append-only, crash-consistent binary
// log that stores keys and values off the primary index and hands back
// Positions for the index to keep. One Engine owns one directory.
type Engine struct {
	mu  sync.Mutex
	dir string
	cfg Config

	metrics *Metrics
	logger  *log.Logger
	ids     idGenerator

	pipe *pipeline
	side *sideWriter

	headCache Cache
	dataCache Cache
	files     *fileHandleCache

	checkpoint Checkpoint
	forks      *ForkRegistry

	sealed []uint64 // wal files no longer written to, ascending
	lastGC map[uint64]time.Time

	closed bool
}

// Open recovers the log under dir and returns the engine together with a
// replay sequence of every record at-or-after the checkpoint pointer. The
// caller replays the sequence into its index before issuing writes.
func Open(dir string, cfg Config, checkpoint Checkpoint) (*Engine, *ReplayIterator, error) {
	cfg = cfg.withDefaults()

	for _, sub := range []string{walDirName, binDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0750); err != nil {
			return nil, nil, err
		}
	}

	e := &Engine{
		dir:        dir,
		cfg:        cfg,
		metrics:    NewMetrics(cfg.Registerer),
		logger:     cfg.Logger,
		checkpoint: checkpoint,
		forks:      NewForkRegistry(cfg.DatabaseID),
		lastGC:     make(map[uint64]time.Time),
	}

	var err error
	if e.headCache, err = NewLRUCache(cfg.HeadCacheCap); err != nil {
		return nil, nil, err
	}
	if e.dataCache, err = NewLRUCache(cfg.DataCacheCap); err != nil {
		return nil, nil, err
	}
	if e.files, err = newFileHandleCache(cfg.FileHandleCacheCap); err != nil {
		return nil, nil, err
	}

	walIDs, err := listFiles(filepath.Join(dir, walDirName), walFileSuffix)
	if err != nil {
		return nil, nil, err
	}
	binIDs, err := listFiles(filepath.Join(dir, binDirName), binFileSuffix)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range walIDs {
		e.ids.seed(id)
	}
	for _, id := range binIDs {
		e.ids.seed(id)
	}

	// Recover the newest file; older ones were sealed by rotation and are
	// validated lazily when scanned.
	var activeID uint64
	var cursor int64
	if len(walIDs) > 0 {
		activeID = walIDs[len(walIDs)-1]
		e.sealed = walIDs[:len(walIDs)-1]
		cursor, err = recoverWalFile(walFilePath(dir, activeID), e.logger, e.metrics)
		if err != nil {
			return nil, nil, fmt.Errorf("valog: recover %d: %w", activeID, err)
		}
	}

	if e.pipe, err = newPipeline(dir, cfg, e.metrics, &e.ids, activeID, cursor); err != nil {
		return nil, nil, err
	}
	if e.side, err = newSideWriter(dir, cfg.MaxSize, &e.ids); err != nil {
		e.pipe.file.Close()
		return nil, nil, err
	}

	var ptr WalPointer
	if checkpoint != nil {
		if ptr, err = checkpoint.Pointer(); err != nil {
			return nil, nil, fmt.Errorf("valog: checkpoint pointer: %w", err)
		}
	}

	return e, newReplayIterator(e, walIDs, ptr), nil
}

// Put appends a key/value record and returns its Position. The record lives
// in the active write slot until the next flush or sync; the Position is
// readable immediately.
func (e *Engine) Put(key, val []byte) (codec.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.put(key, val)
}

// Remove appends a tombstone for key. The primary index interprets it; the
// log only records it so recovery and GC can see the removal.
func (e *Engine) Remove(key []byte) (codec.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.put(key, nil)
}

func (e *Engine) put(key, val []byte) (codec.Position, error) {
	if e.closed {
		return codec.Position{}, ErrClosed
	}
	if len(key) == 0 {
		return codec.Position{}, ErrKeyEmpty
	}

	keyMode, valMode := codec.SelectModes(len(key), len(val), e.cfg.SameFileMax)
	keySpec, err := e.operandSpec(key, keyMode)
	if err != nil {
		return codec.Position{}, err
	}
	valSpec, err := e.operandSpec(val, valMode)
	if err != nil {
		return codec.Position{}, err
	}

	var head [codec.HeadSize]byte
	if err := codec.EncodeHead(head[:], keySpec, valSpec); err != nil {
		return codec.Position{}, err
	}

	chunks := make([][]byte, 0, 2)
	if keyMode == codec.ModeSameFile {
		chunks = append(chunks, key)
	}
	if valMode == codec.ModeSameFile {
		chunks = append(chunks, val)
	}

	prevID := e.pipe.fileID
	pos, err := e.pipe.appendRecord(head[:], chunks...)
	if err != nil {
		return codec.Position{}, err
	}
	if e.pipe.fileID != prevID {
		// Rotation sealed the previous file; it becomes a GC candidate.
		e.sealed = append(e.sealed, prevID)
	}
	return pos, nil
}

func (e *Engine) operandSpec(operand []byte, mode codec.Mode) (codec.OperandSpec, error) {
	spec := codec.OperandSpec{Len: uint32(len(operand)), Mode: mode}
	switch mode {
	case codec.ModeInline:
		spec.Inline = operand
	case codec.ModeSameFile:
		spec.PayloadCRC = codec.PayloadCRC(operand)
	case codec.ModeExternal:
		pos, crc, err := e.side.append(operand)
		if err != nil {
			return codec.OperandSpec{}, err
		}
		spec.External = pos
		spec.PayloadCRC = crc
	}
	return spec, nil
}

// Flush hands buffered records to the OS. Data survives a process crash
// after Flush, but not a power failure.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.pipe.flush()
}

// Sync forces everything appended so far onto the device, then advances the
// checkpoint pointer to the durable cursor.
func (e *Engine) Sync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sync()
}

func (e *Engine) sync() error {
	if e.closed {
		return ErrClosed
	}
	if err := e.side.sync(); err != nil {
		return err
	}
	if err := e.pipe.sync(); err != nil {
		return err
	}
	if e.checkpoint != nil {
		ptr := WalPointer{LogID: e.pipe.fileID, Offset: uint64(e.pipe.offset)}
		if err := e.checkpoint.Advance(ptr); err != nil {
			return fmt.Errorf("valog: advance checkpoint: %w", err)
		}
	}
	return nil
}

// Scan walks every valid record of one log file in offset order. Corrupted
// regions are skipped with a logged warning, matching recovery's fallback
// scan behavior.
func (e *Engine) Scan(fileID uint64, visit func(pos codec.Position, head codec.Head) error) error {
	it, err := e.newRecordIter(fileID)
	if err != nil {
		return err
	}
	for it.next() {
		if err := visit(it.pos, it.head); err != nil {
			return err
		}
	}
	return it.err
}

// Stats is a point-in-time snapshot of the engine.
type Stats struct {
	ActiveFileID  uint64 `json:"active_file_id"`
	ActiveOffset  int64  `json:"active_offset"`
	SealedFiles   int    `json:"sealed_files"`
	SideFileID    uint64 `json:"side_file_id"`
	SideOffset    int64  `json:"side_offset"`
	RegisteredDBs int    `json:"registered_dbs"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		ActiveFileID:  e.pipe.fileID,
		ActiveOffset:  e.pipe.offset,
		SealedFiles:   len(e.sealed),
		SideFileID:    e.side.fileID,
		SideOffset:    e.side.offset,
		RegisteredDBs: e.forks.Size(),
	}
}

// Forks exposes the fork family registry so the owning database can record
// copy-on-write forks sharing this log.
func (e *Engine) Forks() *ForkRegistry {
	return e.forks
}

// Close syncs and releases every file handle. The engine is unusable
// afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if err := e.sync(); err != nil {
		e.closed = true
		e.files.close()
		e.pipe.file.Close()
		e.side.close()
		return err
	}
	e.closed = true
	e.files.close()
	if err := e.pipe.close(); err != nil {
		e.side.close()
		return err
	}
	return e.side.close()
}

// Files returns every wal file id, sealed files first and the active file
// last.
func (e *Engine) Files() []uint64 {
	out := e.sealedSnapshot()
	e.mu.Lock()
	defer e.mu.Unlock()
	return append(out, e.pipe.fileID)
}

// sealedSnapshot returns the sealed file ids, oldest first.
func (e *Engine) sealedSnapshot() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]uint64, len(e.sealed))
	copy(out, e.sealed)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Engine) dropSealed(fileID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, id := range e.sealed {
		if id == fileID {
			e.sealed = append(e.sealed[:i], e.sealed[i+1:]...)
			break
		}
	}
	delete(e.lastGC, fileID)
}
