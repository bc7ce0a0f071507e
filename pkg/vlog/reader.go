package vlog

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/valyx/valog/pkg/codec"
)

// Get resolves a Position into the value bytes it was written with.
// Resolution order: data cache, then the in-memory write slots for the
// current file, then a file read. A checksum mismatch anywhere surfaces as
// ErrCorrupt, never as garbage bytes.
func (e *Engine) Get(pos codec.Position) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	if val, ok := e.dataCache.Lookup(pos); ok {
		e.metrics.cacheHits.WithLabelValues("data").Inc()
		return val, nil
	}
	e.metrics.cacheMisses.WithLabelValues("data").Inc()

	head, err := e.readHead(pos)
	if err != nil {
		return nil, err
	}
	val, err := e.resolveOperand(pos, head, head.Val, int(head.SameFileValOff()))
	if err != nil {
		return nil, err
	}

	e.dataCache.Insert(pos, val, len(val))
	return val, nil
}

// readHead loads and verifies the 64-byte Head at pos, consulting the head
// cache first. Caller holds the engine mutex.
func (e *Engine) readHead(pos codec.Position) (codec.Head, error) {
	if buf, ok := e.headCache.Lookup(pos); ok {
		e.metrics.cacheHits.WithLabelValues("head").Inc()
		return codec.DecodeHead(buf)
	}
	e.metrics.cacheMisses.WithLabelValues("head").Inc()

	buf := make([]byte, codec.HeadSize)
	if err := e.readAt(pos.LogID, int64(pos.Offset), buf); err != nil {
		return codec.Head{}, err
	}
	head, err := codec.DecodeHead(buf)
	if err != nil {
		if errors.Is(err, codec.ErrHeadChecksum) {
			e.metrics.corruptionEvents.Inc()
			return codec.Head{}, fmt.Errorf("%w: head at %s", ErrCorrupt, pos)
		}
		return codec.Head{}, err
	}
	e.headCache.Insert(pos, buf, codec.HeadSize)
	return head, nil
}

// resolveOperand materializes one operand of a decoded Head, dispatching on
// its storage mode. sameFileOff is the operand's offset relative to the
// Head. Caller holds the engine mutex.
func (e *Engine) resolveOperand(pos codec.Position, head codec.Head, view codec.OperandView, sameFileOff int) ([]byte, error) {
	switch view.Mode {
	case codec.ModeInline:
		return append([]byte(nil), view.Inline...), nil

	case codec.ModeSameFile:
		buf := make([]byte, view.Len)
		if err := e.readAt(pos.LogID, int64(pos.Offset)+int64(sameFileOff), buf); err != nil {
			return nil, err
		}
		if codec.PayloadCRC(buf) != view.PayloadCRC {
			e.metrics.corruptionEvents.Inc()
			return nil, fmt.Errorf("%w: same-file payload at %s", ErrCorrupt, pos)
		}
		return buf, nil

	default:
		buf := make([]byte, view.Len)
		if err := e.readBinAt(view.External, buf); err != nil {
			return nil, err
		}
		if codec.PayloadCRC(buf) != view.PayloadCRC {
			e.metrics.corruptionEvents.Inc()
			return nil, fmt.Errorf("%w: external payload at %s", ErrCorrupt, view.External)
		}
		return buf, nil
	}
}

// resolveKey materializes the key bytes of a record. Used by GC and replay;
// keys are recoverable from every record regardless of mode.
func (e *Engine) resolveKey(pos codec.Position, head codec.Head) ([]byte, error) {
	return e.resolveOperand(pos, head, head.Key, codec.HeadSize)
}

func (e *Engine) resolveKeyLocked(pos codec.Position, head codec.Head) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveKey(pos, head)
}

func (e *Engine) resolveValueLocked(pos codec.Position, head codec.Head) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveOperand(pos, head, head.Val, head.SameFileValOff())
}

// readAt serves bytes of wal file logID, preferring the write pipeline's
// in-memory slots when the file is still being appended to.
func (e *Engine) readAt(logID uint64, off int64, buf []byte) error {
	if logID == e.pipe.fileID {
		err := e.pipe.readAt(buf, off)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %d:%d", ErrNotFound, logID, off)
		}
		return err
	}

	f, err := e.files.get(walFilePath(e.dir, logID))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: log %d", ErrNotFound, logID)
		}
		return err
	}
	if _, err := f.ReadAt(buf, off); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %d:%d", ErrNotFound, logID, off)
		}
		return err
	}
	return nil
}

// readBinAt serves external payload bytes from a bin/ side file.
func (e *Engine) readBinAt(pos codec.Position, buf []byte) error {
	// The side writer appends synchronously, so even its current file is
	// readable through a plain handle.
	f, err := e.files.get(binFilePath(e.dir, pos.LogID))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: bin %d", ErrNotFound, pos.LogID)
		}
		return err
	}
	if _, err := f.ReadAt(buf, int64(pos.Offset)); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %s", ErrNotFound, pos)
		}
		return err
	}
	return nil
}

// lockedReadAt is readAt for callers that do not already hold the engine
// mutex, such as record iterators.
func (e *Engine) lockedReadAt(logID uint64, off int64, buf []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.readAt(logID, off, buf)
}

// fileEnd returns the durable end of a wal file: the write cursor for the
// active file, the trusted cursor per recovery rules for sealed files.
func (e *Engine) fileEnd(fileID uint64) (int64, error) {
	e.mu.Lock()
	if fileID == e.pipe.fileID {
		end := e.pipe.offset
		e.mu.Unlock()
		return end, nil
	}
	e.mu.Unlock()

	f, err := os.Open(walFilePath(e.dir, fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: log %d", ErrNotFound, fileID)
		}
		return 0, err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return durableCursor(f, stat.Size(), e.logger, e.metrics)
}
