package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	// HeadSize is the fixed encoded size of a Head.
	HeadSize = 64

	// DataAreaSize is the size of the mode-dependent data area inside a Head.
	DataAreaSize = 50

	// InlineMax is the largest combined key+value length stored entirely
	// inside the Head's data area.
	InlineMax = DataAreaSize

	// DefaultSameFileMax is the default per-operand threshold separating
	// same-file payloads from external bin/ payloads. Historically this was
	// 64 KiB; the current format uses 1 MiB. It is a tunable, not a format
	// constant: the Head records the chosen mode explicitly.
	DefaultSameFileMax = 1 << 20

	headCRCOffset = HeadSize - 4

	// Data-area slot sizes per mode.
	sameFileSlotSize = 4
	externalSlotSize = PositionSize + 4
)

// Mode says where an operand's bytes live relative to its Head.
type Mode uint8

const (
	// ModeInline stores the operand bytes inside the Head's data area.
	ModeInline Mode = iota
	// ModeSameFile stores the operand bytes immediately after the Head in
	// the same log file.
	ModeSameFile
	// ModeExternal stores the operand bytes in a bin/ side file addressed
	// by a Position kept in the data area.
	ModeExternal
)

func (m Mode) String() string {
	switch m {
	case ModeInline:
		return "inline"
	case ModeSameFile:
		return "same-file"
	case ModeExternal:
		return "external"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ErrHeadChecksum is returned when a Head fails CRC verification. Callers
// treat it as a Corrupt condition scoped to the single record.
var ErrHeadChecksum = errors.New("codec: head checksum mismatch")

// SelectModes decides the storage mode for a key/value pair. The decision is
// a pure function of the two lengths: a pair whose combined length fits the
// data area is stored inline, otherwise each operand independently goes to
// the same file when at most sameFileMax bytes and to an external file
// beyond that.
func SelectModes(keyLen, valLen int, sameFileMax int) (keyMode, valMode Mode) {
	if keyLen+valLen <= InlineMax {
		return ModeInline, ModeInline
	}
	keyMode, valMode = ModeSameFile, ModeSameFile
	if keyLen > sameFileMax {
		keyMode = ModeExternal
	}
	if valLen > sameFileMax {
		valMode = ModeExternal
	}
	return keyMode, valMode
}

// OperandSpec carries the per-operand inputs for encoding a Head. Exactly
// the fields implied by Mode are consulted.
type OperandSpec struct {
	Len  uint32
	Mode Mode

	Inline     []byte   // ModeInline: the operand bytes
	PayloadCRC uint32   // ModeSameFile, ModeExternal: CRC32 of the payload
	External   Position // ModeExternal: location of the payload in bin/
}

// OperandView is the decoded, mode-tagged counterpart of an OperandSpec.
// Callers dispatch on Mode instead of re-reading the raw data area.
type OperandView struct {
	Len  uint32
	Mode Mode

	Inline     []byte   // ModeInline: sub-slice of the decoded Head buffer
	PayloadCRC uint32   // ModeSameFile, ModeExternal
	External   Position // ModeExternal
}

// Head is the decoded form of the 64-byte record header.
type Head struct {
	Key OperandView
	Val OperandView
}

// SameFileLen returns the number of payload bytes that follow this Head in
// its own log file (same-file key bytes first, then same-file value bytes).
func (h Head) SameFileLen() int {
	var n int
	if h.Key.Mode == ModeSameFile {
		n += int(h.Key.Len)
	}
	if h.Val.Mode == ModeSameFile {
		n += int(h.Val.Len)
	}
	return n
}

// SameFileValOff returns the offset of the same-file value payload relative
// to the start of the Head.
func (h Head) SameFileValOff() int {
	off := HeadSize
	if h.Key.Mode == ModeSameFile {
		off += int(h.Key.Len)
	}
	return off
}

// IsTombstone reports whether the Head encodes a removal (zero-length value).
func (h Head) IsTombstone() bool {
	return h.Val.Len == 0
}

func slotSize(s OperandSpec) int {
	switch s.Mode {
	case ModeInline:
		return int(s.Len)
	case ModeSameFile:
		return sameFileSlotSize
	default:
		return externalSlotSize
	}
}

// EncodeHead packs key and val into dst, which must be at least HeadSize
// bytes. The data area is filled key slot first, then value slot, then
// zero padding, and the trailing CRC covers everything before it.
func EncodeHead(dst []byte, key, val OperandSpec) error {
	if len(dst) < HeadSize {
		return fmt.Errorf("codec: head buffer too small: %d", len(dst))
	}
	if key.Mode == ModeInline && int(key.Len) != len(key.Inline) {
		return fmt.Errorf("codec: inline key length %d != declared %d", len(key.Inline), key.Len)
	}
	if val.Mode == ModeInline && int(val.Len) != len(val.Inline) {
		return fmt.Errorf("codec: inline value length %d != declared %d", len(val.Inline), val.Len)
	}
	if slotSize(key)+slotSize(val) > DataAreaSize {
		return fmt.Errorf("codec: data area overflow: key %s/%d val %s/%d",
			key.Mode, key.Len, val.Mode, val.Len)
	}

	binary.LittleEndian.PutUint32(dst[0:4], key.Len)
	binary.LittleEndian.PutUint32(dst[4:8], val.Len)
	dst[8] = byte(key.Mode)
	dst[9] = byte(val.Mode)

	area := dst[10:headCRCOffset]
	n := putSlot(area, key)
	n += putSlot(area[n:], val)
	for i := n; i < DataAreaSize; i++ {
		area[i] = 0
	}

	binary.LittleEndian.PutUint32(dst[headCRCOffset:HeadSize], crc32.ChecksumIEEE(dst[:headCRCOffset]))
	return nil
}

func putSlot(area []byte, s OperandSpec) int {
	switch s.Mode {
	case ModeInline:
		return copy(area, s.Inline)
	case ModeSameFile:
		binary.LittleEndian.PutUint32(area[0:4], s.PayloadCRC)
		return sameFileSlotSize
	default:
		PutPosition(area[0:PositionSize], s.External)
		binary.LittleEndian.PutUint32(area[PositionSize:externalSlotSize], s.PayloadCRC)
		return externalSlotSize
	}
}

// DecodeHead verifies the CRC of a 64-byte Head and returns the mode-tagged
// operand views. Inline views alias buf; callers that outlive buf must copy.
func DecodeHead(buf []byte) (Head, error) {
	if len(buf) < HeadSize {
		return Head{}, fmt.Errorf("codec: head too short: %d bytes", len(buf))
	}
	buf = buf[:HeadSize]
	stored := binary.LittleEndian.Uint32(buf[headCRCOffset:HeadSize])
	if stored != crc32.ChecksumIEEE(buf[:headCRCOffset]) {
		return Head{}, ErrHeadChecksum
	}

	var h Head
	h.Key.Len = binary.LittleEndian.Uint32(buf[0:4])
	h.Val.Len = binary.LittleEndian.Uint32(buf[4:8])
	h.Key.Mode = Mode(buf[8])
	h.Val.Mode = Mode(buf[9])
	if h.Key.Mode > ModeExternal || h.Val.Mode > ModeExternal {
		return Head{}, fmt.Errorf("codec: unknown storage mode %d/%d", buf[8], buf[9])
	}

	area := buf[10:headCRCOffset]
	n, err := getSlot(area, &h.Key)
	if err != nil {
		return Head{}, err
	}
	if _, err := getSlot(area[n:], &h.Val); err != nil {
		return Head{}, err
	}
	return h, nil
}

func getSlot(area []byte, v *OperandView) (int, error) {
	switch v.Mode {
	case ModeInline:
		if int(v.Len) > len(area) {
			return 0, fmt.Errorf("codec: inline operand %d exceeds data area", v.Len)
		}
		v.Inline = area[:v.Len:v.Len]
		return int(v.Len), nil
	case ModeSameFile:
		v.PayloadCRC = binary.LittleEndian.Uint32(area[0:4])
		return sameFileSlotSize, nil
	default:
		p, err := ParsePosition(area)
		if err != nil {
			return 0, err
		}
		v.External = p
		v.PayloadCRC = binary.LittleEndian.Uint32(area[PositionSize:externalSlotSize])
		return externalSlotSize, nil
	}
}

// PayloadCRC computes the checksum stored in same-file and external slots.
func PayloadCRC(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}
