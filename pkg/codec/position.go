package codec

import (
	"encoding/binary"
	"fmt"
)

// PositionSize is the encoded size of a Position in bytes.
const PositionSize = 16

// Position identifies the location of a record: the id of the log file it
// lives in and the byte offset of its Head within that file. A Position is
// immutable once returned by a write and is the only handle an external
// index may retain.
type Position struct {
	LogID  uint64
	Offset uint64
}

// IsZero reports whether p is the zero Position. Offset 0 is never a valid
// record offset because every log file starts with its 12-byte header.
func (p Position) IsZero() bool {
	return p.LogID == 0 && p.Offset == 0
}

// AppendTo appends the 16-byte encoding of p to buf.
func (p Position) AppendTo(buf []byte) []byte {
	var b [PositionSize]byte
	binary.LittleEndian.PutUint64(b[0:8], p.LogID)
	binary.LittleEndian.PutUint64(b[8:16], p.Offset)
	return append(buf, b[:]...)
}

// PutPosition writes the 16-byte encoding of p into buf.
func PutPosition(buf []byte, p Position) {
	binary.LittleEndian.PutUint64(buf[0:8], p.LogID)
	binary.LittleEndian.PutUint64(buf[8:16], p.Offset)
}

// ParsePosition decodes a Position from the first 16 bytes of buf.
func ParsePosition(buf []byte) (Position, error) {
	if len(buf) < PositionSize {
		return Position{}, fmt.Errorf("position: need %d bytes, have %d", PositionSize, len(buf))
	}
	return Position{
		LogID:  binary.LittleEndian.Uint64(buf[0:8]),
		Offset: binary.LittleEndian.Uint64(buf[8:16]),
	}, nil
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.LogID, p.Offset)
}
