package codec

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	// FileHeaderSize is the size of the header starting every log file.
	FileHeaderSize = 12

	// FormatVersion is the current log file format version.
	FormatVersion uint32 = 1
)

// ErrFileHeader is returned when a file header cannot be repaired: fewer
// than two of its three fields agree. Recovery treats this as unrecoverable
// for the file.
var ErrFileHeader = errors.New("codec: log file header unrecoverable")

// EncodeFileHeader writes the 12-byte file header: the version, a redundant
// copy of it, and a CRC32 of the first copy.
func EncodeFileHeader(dst []byte, version uint32) {
	binary.LittleEndian.PutUint32(dst[0:4], version)
	binary.LittleEndian.PutUint32(dst[4:8], version)
	binary.LittleEndian.PutUint32(dst[8:12], crc32.ChecksumIEEE(dst[0:4]))
}

// DecodeFileHeader validates a file header and returns the version it
// carries. Corruption of exactly one field is repaired from the other two:
// the CRC relationship identifies which copy to trust, and two agreeing
// copies outvote a bad CRC. repaired reports whether such a repair happened,
// so callers can log it.
func DecodeFileHeader(buf []byte) (version uint32, repaired bool, err error) {
	if len(buf) < FileHeaderSize {
		return 0, false, ErrFileHeader
	}
	v1 := binary.LittleEndian.Uint32(buf[0:4])
	v2 := binary.LittleEndian.Uint32(buf[4:8])
	sum := binary.LittleEndian.Uint32(buf[8:12])

	crcOK := func(v uint32) bool {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		return crc32.ChecksumIEEE(b[:]) == sum
	}

	switch {
	case v1 == v2 && crcOK(v1):
		return v1, false, nil
	case v1 == v2:
		// Both copies agree, the CRC field took the hit.
		return v1, true, nil
	case crcOK(v1):
		return v1, true, nil
	case crcOK(v2):
		return v2, true, nil
	}
	return 0, false, ErrFileHeader
}
