package vlog

import (
	"os"
	"path/filepath"

	"github.com/valyx/valog/pkg/codec"
)

// sideWriter appends EXTERNAL_FILE payloads to bin/ files. Payloads at this
// tier are at least SameFileMax bytes, so writes go straight to the file
// with no slot buffering; the returned Position is readable immediately.
type sideWriter struct {
	dir     string
	maxSize int64
	ids     *idGenerator

	file   *os.File
	fileID uint64
	offset int64
	dirty  bool
}

func newSideWriter(dir string, maxSize int64, ids *idGenerator) (*sideWriter, error) {
	w := &sideWriter{dir: dir, maxSize: maxSize, ids: ids}

	existing, err := listFiles(filepath.Join(dir, binDirName), binFileSuffix)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return w, nil
	}

	// Continue filling the newest bin file.
	id := existing[len(existing)-1]
	file, err := os.OpenFile(binFilePath(dir, id), os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	w.file = file
	w.fileID = id
	w.offset = stat.Size()
	return w, nil
}

func (w *sideWriter) openNewFile() error {
	id := w.ids.next()
	file, err := os.OpenFile(binFilePath(w.dir, id), os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return err
	}
	var hdr [codec.FileHeaderSize]byte
	codec.EncodeFileHeader(hdr[:], codec.FormatVersion)
	if _, err := file.Write(hdr[:]); err != nil {
		file.Close()
		return err
	}
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			file.Close()
			return err
		}
		w.file.Close()
	}
	w.file = file
	w.fileID = id
	w.offset = codec.FileHeaderSize
	return nil
}

// append writes payload and returns its Position and checksum for the
// owning Head's data area.
func (w *sideWriter) append(payload []byte) (codec.Position, uint32, error) {
	if w.file == nil || w.offset+int64(len(payload)) > w.maxSize {
		if err := w.openNewFile(); err != nil {
			return codec.Position{}, 0, err
		}
	}
	if _, err := w.file.WriteAt(payload, w.offset); err != nil {
		return codec.Position{}, 0, err
	}
	pos := codec.Position{LogID: w.fileID, Offset: uint64(w.offset)}
	w.offset += int64(len(payload))
	w.dirty = true
	return pos, codec.PayloadCRC(payload), nil
}

func (w *sideWriter) sync() error {
	if w.file == nil || !w.dirty {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.dirty = false
	return nil
}

func (w *sideWriter) close() error {
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
