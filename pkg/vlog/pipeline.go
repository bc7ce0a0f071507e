package vlog

import (
	"fmt"
	"io"
	"os"

	"github.com/valyx/valog/pkg/codec"
)

// pipeline owns the double-buffered append path for wal/ files. All methods
// are called under the engine mutex; the only concurrency is the background
// flusher goroutine, which exclusively owns the flushing slot's arena until
// it signals completion on flushDone.
type pipeline struct {
	dir     string
	cfg     Config
	metrics *Metrics
	ids     *idGenerator

	file   *os.File
	fileID uint64
	offset int64 // next append offset within the current file

	active    *slot
	flushing  *slot
	flushDone chan error

	spare [][]byte // recycled slot arenas
}

// newPipeline opens the append path on the given active file, positioned at
// the durable cursor established by recovery. fileID zero means no wal file
// exists yet and a fresh one is created.
func newPipeline(dir string, cfg Config, metrics *Metrics, ids *idGenerator, fileID uint64, cursor int64) (*pipeline, error) {
	p := &pipeline{dir: dir, cfg: cfg, metrics: metrics, ids: ids}
	if fileID == 0 {
		if err := p.openNewFile(); err != nil {
			return nil, err
		}
		return p, nil
	}

	file, err := os.OpenFile(walFilePath(dir, fileID), os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	p.file = file
	p.fileID = fileID
	p.offset = cursor
	return p, nil
}

func (p *pipeline) openNewFile() error {
	id := p.ids.next()
	file, err := os.OpenFile(walFilePath(p.dir, id), os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return err
	}

	var hdr [codec.FileHeaderSize]byte
	codec.EncodeFileHeader(hdr[:], codec.FormatVersion)
	if _, err := file.Write(hdr[:]); err != nil {
		file.Close()
		return err
	}

	p.file = file
	p.fileID = id
	p.offset = codec.FileHeaderSize
	return nil
}

func (p *pipeline) arena() []byte {
	if n := len(p.spare); n > 0 {
		a := p.spare[n-1]
		p.spare = p.spare[:n-1]
		return a
	}
	return make([]byte, 0, p.cfg.BufMax)
}

// appendRecord copies a full record into the active slot: the 64-byte head,
// the same-file payload chunks, and the End Marker the pipeline writes
// itself since only it knows the head offset. Returns the record's Position.
func (p *pipeline) appendRecord(head []byte, chunks ...[]byte) (codec.Position, error) {
	recLen := int64(codec.HeadSize + codec.MarkerSize)
	for _, c := range chunks {
		recLen += int64(len(c))
	}

	if p.offset+recLen > p.cfg.MaxSize && p.offset > codec.FileHeaderSize {
		if err := p.rotate(); err != nil {
			return codec.Position{}, err
		}
	}

	if p.active != nil && int64(len(p.active.buf))+recLen > int64(p.cfg.BufMax) {
		// Hand the full slot to the flusher. If the previous flush has not
		// drained yet this waits for it: the sole backpressure point.
		if err := p.handOff(); err != nil {
			return codec.Position{}, err
		}
	}
	if p.active == nil {
		p.active = newSlot(p.fileID, p.offset, p.arena())
	}

	headOff := p.offset
	p.active.buf = append(p.active.buf, head...)
	for _, c := range chunks {
		p.active.buf = append(p.active.buf, c...)
	}
	p.active.buf = codec.AppendMarker(p.active.buf, uint64(headOff))
	p.offset += recLen

	p.metrics.appendsTotal.Inc()
	p.metrics.bytesWritten.Add(float64(recLen))
	return codec.Position{LogID: p.fileID, Offset: uint64(headOff)}, nil
}

// handOff transfers the active slot to the background flusher, waiting for
// an in-flight flush first so the two slots are written strictly in the
// order they filled.
func (p *pipeline) handOff() error {
	if p.active == nil || len(p.active.buf) == 0 {
		return nil
	}
	if err := p.waitFlush(); err != nil {
		return err
	}

	p.flushing = p.active
	p.active = nil
	p.flushDone = make(chan error, 1)
	p.metrics.flushesTotal.Inc()

	go func(s *slot, file *os.File, done chan<- error) {
		_, err := file.WriteAt(s.buf, s.base)
		done <- err
	}(p.flushing, p.file, p.flushDone)
	return nil
}

// waitFlush blocks until the in-flight flush, if any, completes, then
// recycles its arena.
func (p *pipeline) waitFlush() error {
	if p.flushing == nil {
		return nil
	}
	err := <-p.flushDone
	p.spare = append(p.spare, p.flushing.buf[:0])
	p.flushing = nil
	p.flushDone = nil
	if err != nil {
		return fmt.Errorf("valog: slot flush: %w", err)
	}
	return nil
}

// flush hands buffered bytes to the OS without waiting for the write to
// land. Survives a process crash, not a power failure.
func (p *pipeline) flush() error {
	return p.handOff()
}

// drain flushes and waits until no bytes remain in either slot.
func (p *pipeline) drain() error {
	if err := p.handOff(); err != nil {
		return err
	}
	return p.waitFlush()
}

// sync is the strongest durability level: drain both slots, then force the
// device write.
func (p *pipeline) sync() error {
	if err := p.drain(); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return err
	}
	p.metrics.syncsTotal.Inc()
	return nil
}

// rotate seals the current file and switches appends to a fresh one.
func (p *pipeline) rotate() error {
	if err := p.drain(); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return err
	}
	if err := p.file.Close(); err != nil {
		return err
	}
	if err := p.openNewFile(); err != nil {
		return err
	}
	p.metrics.rotationsTotal.Inc()
	return nil
}

// memStart returns the lowest offset of the current file still held in a
// slot. Everything below it has been handed to the OS.
func (p *pipeline) memStart() int64 {
	if p.flushing != nil {
		return p.flushing.base
	}
	if p.active != nil {
		return p.active.base
	}
	return p.offset
}

// readAt serves bytes of the current file, stitching across the on-disk
// prefix and the two in-memory slots.
func (p *pipeline) readAt(buf []byte, off int64) error {
	if off+int64(len(buf)) > p.offset {
		return io.ErrUnexpectedEOF
	}
	pos := off
	for len(buf) > 0 {
		switch {
		case p.flushing != nil && p.flushing.contains(p.fileID, pos):
			n := p.flushing.readAt(buf, pos)
			buf = buf[n:]
			pos += int64(n)
		case p.active != nil && p.active.contains(p.fileID, pos):
			n := p.active.readAt(buf, pos)
			buf = buf[n:]
			pos += int64(n)
		default:
			// On-disk prefix; never read past the first buffered byte.
			end := int64(len(buf))
			if ms := p.memStart(); pos+end > ms {
				end = ms - pos
			}
			if end <= 0 {
				return io.ErrUnexpectedEOF
			}
			if _, err := p.file.ReadAt(buf[:end], pos); err != nil {
				return err
			}
			buf = buf[end:]
			pos += end
		}
	}
	return nil
}

// close seals the pipeline. The final sync keeps close crash-equivalent to
// a clean shutdown.
func (p *pipeline) close() error {
	if err := p.sync(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}
