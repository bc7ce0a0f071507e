package vlog

// slot is one of the pipeline's two write-buffer arenas. A slot is owned by
// exactly one side at a time: the appender while it is active, the
// background flusher after hand-off. The buffer is never mutated while a
// flush is in flight, which is what lets the read path serve bytes straight
// out of a flushing slot.
type slot struct {
	fileID uint64 // log file the buffered bytes belong to
	base   int64  // file offset of buf[0]
	buf    []byte
}

func newSlot(fileID uint64, base int64, arena []byte) *slot {
	return &slot{fileID: fileID, base: base, buf: arena[:0]}
}

// end returns the file offset one past the buffered bytes.
func (s *slot) end() int64 {
	return s.base + int64(len(s.buf))
}

// contains reports whether the byte at off of file fileID is buffered here.
func (s *slot) contains(fileID uint64, off int64) bool {
	return s.fileID == fileID && off >= s.base && off < s.end()
}

// readAt copies buffered bytes starting at file offset off into p,
// returning how many were copied.
func (s *slot) readAt(p []byte, off int64) int {
	return copy(p, s.buf[off-s.base:])
}
