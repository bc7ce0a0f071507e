package codec

import (
	"encoding/binary"
	"errors"
)

const (
	// MarkerSize is the encoded size of an End Marker.
	MarkerSize = 12

	// MarkerMagic closes every record. The fallback recovery scan also uses
	// it as the resync pattern after a corrupted region.
	MarkerMagic uint32 = 0xEDEDEDED
)

// ErrBadMagic is returned when candidate marker bytes do not end with
// MarkerMagic.
var ErrBadMagic = errors.New("codec: end marker magic mismatch")

// EncodeMarker writes the 12-byte End Marker for a record whose Head starts
// at headOffset.
func EncodeMarker(dst []byte, headOffset uint64) {
	binary.LittleEndian.PutUint64(dst[0:8], headOffset)
	binary.LittleEndian.PutUint32(dst[8:12], MarkerMagic)
}

// AppendMarker appends the End Marker for headOffset to buf.
func AppendMarker(buf []byte, headOffset uint64) []byte {
	var b [MarkerSize]byte
	EncodeMarker(b[:], headOffset)
	return append(buf, b[:]...)
}

// DecodeMarker parses a candidate End Marker, returning the Head offset it
// names. ErrBadMagic means the bytes are not a marker at all.
func DecodeMarker(buf []byte) (headOffset uint64, err error) {
	if len(buf) < MarkerSize {
		return 0, ErrBadMagic
	}
	if binary.LittleEndian.Uint32(buf[8:12]) != MarkerMagic {
		return 0, ErrBadMagic
	}
	return binary.LittleEndian.Uint64(buf[0:8]), nil
}

// RecordLen returns the full on-disk length of a record given its decoded
// Head: the Head itself, any same-file payload, and the End Marker.
func RecordLen(h Head) int64 {
	return int64(HeadSize + h.SameFileLen() + MarkerSize)
}
