package vlog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/valyx/valog/pkg/codec"
)

// readAtFunc abstracts positional reads so the scan logic below serves both
// raw files during recovery and the slot-aware engine read path afterwards.
type readAtFunc func(off int64, buf []byte) error

// recoverWalFile establishes the durable write cursor for a wal file before
// the engine accepts new appends. The protocol is: validate (and if needed
// repair) the file header, try the O(1) fast path via the trailing End
// Marker, and only fall back to a forward scan when the tail is not
// trustworthy. I/O errors are fatal; checksum failures are logged data-loss
// events.
func recoverWalFile(path string, logger *log.Logger, metrics *Metrics) (int64, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := stat.Size()

	if size < codec.FileHeaderSize {
		// Nothing recoverable; stamp a fresh header and append after it.
		var hdr [codec.FileHeaderSize]byte
		codec.EncodeFileHeader(hdr[:], codec.FormatVersion)
		if _, err := f.WriteAt(hdr[:], 0); err != nil {
			return 0, err
		}
		if err := f.Truncate(codec.FileHeaderSize); err != nil {
			return 0, err
		}
		return codec.FileHeaderSize, nil
	}

	var hdr [codec.FileHeaderSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		return 0, err
	}
	version, repaired, err := codec.DecodeFileHeader(hdr[:])
	if err != nil {
		return 0, err
	}
	if repaired {
		logger.Printf("valog: repaired file header of %s (version %d)", path, version)
		codec.EncodeFileHeader(hdr[:], version)
		if _, err := f.WriteAt(hdr[:], 0); err != nil {
			return 0, err
		}
	}

	cursor, err := durableCursor(f, size, logger, metrics)
	if err != nil {
		return 0, err
	}
	if cursor < size {
		// Drop the untrusted tail so a later fast path cannot anchor on
		// stale marker bytes.
		if err := f.Truncate(cursor); err != nil {
			return 0, err
		}
		logger.Printf("valog: truncated %s to %d, dropped %d unverified tail bytes", path, cursor, size-cursor)
	}
	return cursor, nil
}

// durableCursor finds the trusted end of a wal file. Fast path: the last 12
// bytes decode as an End Marker whose Head verifies, so every byte is
// trusted with zero scanning. Otherwise a forward fallback scan skips
// corrupted regions and stops after the last record that verified.
func durableCursor(f io.ReaderAt, size int64, logger *log.Logger, metrics *Metrics) (int64, error) {
	read := func(off int64, buf []byte) error {
		_, err := f.ReadAt(buf, off)
		return err
	}

	minRecord := int64(codec.HeadSize + codec.MarkerSize)
	if size < codec.FileHeaderSize+minRecord {
		return codec.FileHeaderSize, nil
	}

	var tail [codec.MarkerSize]byte
	if err := read(size-codec.MarkerSize, tail[:]); err != nil {
		return 0, err
	}
	if headOff, err := codec.DecodeMarker(tail[:]); err == nil {
		if int64(headOff) >= codec.FileHeaderSize && int64(headOff) <= size-minRecord {
			headBuf := make([]byte, codec.HeadSize)
			if err := read(int64(headOff), headBuf); err != nil {
				return 0, err
			}
			if head, err := codec.DecodeHead(headBuf); err == nil && int64(headOff)+codec.RecordLen(head) == size {
				return size, nil
			}
		}
	}

	return fallbackScan(read, codec.FileHeaderSize, size, logger, metrics)
}

// readRecord validates the record starting at off: Head checksum, record
// bounds, and the End Marker pointing back at the Head. io.EOF means a
// clean end of data; ErrCorrupt means the bytes at off are not a trustable
// record.
func readRecord(read readAtFunc, off, size int64) (codec.Head, int64, error) {
	if off+int64(codec.HeadSize+codec.MarkerSize) > size {
		return codec.Head{}, 0, io.EOF
	}

	headBuf := make([]byte, codec.HeadSize)
	if err := read(off, headBuf); err != nil {
		return codec.Head{}, 0, err
	}
	head, err := codec.DecodeHead(headBuf)
	if err != nil {
		return codec.Head{}, 0, fmt.Errorf("%w: head at %d: %v", ErrCorrupt, off, err)
	}

	recLen := codec.RecordLen(head)
	if off+recLen > size {
		return codec.Head{}, 0, fmt.Errorf("%w: record at %d truncated", ErrCorrupt, off)
	}

	var marker [codec.MarkerSize]byte
	if err := read(off+recLen-codec.MarkerSize, marker[:]); err != nil {
		return codec.Head{}, 0, err
	}
	headOff, err := codec.DecodeMarker(marker[:])
	if err != nil || headOff != uint64(off) {
		return codec.Head{}, 0, fmt.Errorf("%w: end marker at %d does not close record at %d", ErrCorrupt, off+recLen-codec.MarkerSize, off)
	}
	return head, recLen, nil
}

// fallbackScan walks forward from start. Valid records advance the cursor
// past their End Marker; a corrupted record is skipped by searching for the
// next occurrence of the marker magic and resuming right after it. The
// returned cursor is the end of the last record that verified.
func fallbackScan(read readAtFunc, start, size int64, logger *log.Logger, metrics *Metrics) (int64, error) {
	cursor := start
	off := start
	for {
		_, recLen, err := readRecord(read, off, size)
		switch {
		case err == nil:
			off += recLen
			cursor = off

		case errors.Is(err, io.EOF):
			return cursor, nil

		case errors.Is(err, ErrCorrupt):
			metrics.corruptionEvents.Inc()
			resume, found, ferr := findMarkerMagic(read, off+1, size)
			if ferr != nil {
				return 0, ferr
			}
			if !found {
				logger.Printf("valog: corrupt record at offset %d, no further end marker, dropping %d trailing bytes", off, size-off)
				return cursor, nil
			}
			logger.Printf("valog: corrupt record at offset %d, skipped ~%d bytes", off, resume-off)
			off = resume

		default:
			return 0, err
		}
	}
}

var markerMagicBytes = []byte{0xED, 0xED, 0xED, 0xED}

// findMarkerMagic searches [from, size) for the marker magic and returns
// the offset immediately after it.
func findMarkerMagic(read readAtFunc, from, size int64) (int64, bool, error) {
	const chunkSize = 64 << 10
	overlap := int64(len(markerMagicBytes) - 1)

	buf := make([]byte, chunkSize)
	for off := from; off < size; off += chunkSize - overlap {
		n := size - off
		if n > chunkSize {
			n = chunkSize
		}
		if n < int64(len(markerMagicBytes)) {
			return 0, false, nil
		}
		if err := read(off, buf[:n]); err != nil {
			return 0, false, err
		}
		if i := bytes.Index(buf[:n], markerMagicBytes); i >= 0 {
			return off + int64(i) + int64(len(markerMagicBytes)), true, nil
		}
	}
	return 0, false, nil
}

// recordIter walks the valid records of one wal file through the engine's
// slot-aware read path. Corrupted regions are skipped the same way the
// recovery fallback scan skips them.
type recordIter struct {
	e      *Engine
	fileID uint64
	off    int64
	size   int64

	pos  codec.Position
	head codec.Head
	err  error
}

func (e *Engine) newRecordIter(fileID uint64) (*recordIter, error) {
	size, err := e.fileEnd(fileID)
	if err != nil {
		return nil, err
	}
	return &recordIter{e: e, fileID: fileID, off: codec.FileHeaderSize, size: size}, nil
}

func (it *recordIter) read(off int64, buf []byte) error {
	return it.e.lockedReadAt(it.fileID, off, buf)
}

func (it *recordIter) next() bool {
	if it.err != nil {
		return false
	}
	for {
		head, recLen, err := readRecord(it.read, it.off, it.size)
		switch {
		case err == nil:
			it.pos = codec.Position{LogID: it.fileID, Offset: uint64(it.off)}
			it.head = head
			it.off += recLen
			return true

		case errors.Is(err, io.EOF):
			return false

		case errors.Is(err, ErrCorrupt):
			it.e.metrics.corruptionEvents.Inc()
			resume, found, ferr := findMarkerMagic(it.read, it.off+1, it.size)
			if ferr != nil {
				it.err = ferr
				return false
			}
			if !found {
				it.e.logger.Printf("valog: corrupt record at %d:%d, no further end marker", it.fileID, it.off)
				return false
			}
			it.e.logger.Printf("valog: corrupt record at %d:%d, skipped ~%d bytes", it.fileID, it.off, resume-it.off)
			it.off = resume

		default:
			it.err = err
			return false
		}
	}
}

// ReplayIterator is the lazy, restartable sequence of records at-or-after
// the checkpoint pointer that Open returns. The caller replays it into its
// in-memory index before accepting new writes.
type ReplayIterator struct {
	e       *Engine
	fileIDs []uint64
	start   WalPointer

	idx int
	cur *recordIter
	err error
}

func newReplayIterator(e *Engine, walIDs []uint64, ptr WalPointer) *ReplayIterator {
	ids := make([]uint64, 0, len(walIDs))
	for _, id := range walIDs {
		if id >= ptr.LogID {
			ids = append(ids, id)
		}
	}
	return &ReplayIterator{e: e, fileIDs: ids, start: ptr}
}

// Next advances to the next record, returning false at the end of the
// sequence or on a fatal I/O error (see Err).
func (it *ReplayIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		if it.cur == nil {
			if it.idx >= len(it.fileIDs) {
				return false
			}
			fileID := it.fileIDs[it.idx]
			cur, err := it.e.newRecordIter(fileID)
			if err != nil {
				it.err = err
				return false
			}
			if fileID == it.start.LogID && int64(it.start.Offset) > codec.FileHeaderSize {
				cur.off = int64(it.start.Offset)
			}
			it.cur = cur
			it.idx++
		}
		if it.cur.next() {
			return true
		}
		if it.cur.err != nil {
			it.err = it.cur.err
			return false
		}
		it.cur = nil
	}
}

// Head returns the current record's decoded Head.
func (it *ReplayIterator) Head() codec.Head { return it.cur.head }

// Position returns the current record's Position, the handle the caller's
// index should store.
func (it *ReplayIterator) Position() codec.Position { return it.cur.pos }

// End returns the position one past the current record, i.e. the replay
// cursor after applying it.
func (it *ReplayIterator) End() codec.Position {
	return codec.Position{LogID: it.cur.fileID, Offset: uint64(it.cur.off)}
}

// Key materializes the current record's key bytes.
func (it *ReplayIterator) Key() ([]byte, error) {
	return it.e.resolveKeyLocked(it.cur.pos, it.cur.head)
}

// Err reports the fatal error that ended the sequence, if any. Skipped
// corruption is not fatal and is only logged.
func (it *ReplayIterator) Err() error { return it.err }

// Reset restarts the sequence from the checkpoint pointer.
func (it *ReplayIterator) Reset() {
	it.idx = 0
	it.cur = nil
	it.err = nil
}
