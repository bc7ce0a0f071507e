package codec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHeaderRoundTrip(t *testing.T) {
	var buf [FileHeaderSize]byte
	EncodeFileHeader(buf[:], FormatVersion)

	v, repaired, err := DecodeFileHeader(buf[:])
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, v)
	assert.False(t, repaired)
}

func TestFileHeaderSingleFieldRepair(t *testing.T) {
	testCases := []struct {
		name    string
		corrupt func(buf []byte)
	}{
		{"first copy corrupted", func(buf []byte) {
			binary.LittleEndian.PutUint32(buf[0:4], 0x55555555)
		}},
		{"second copy corrupted", func(buf []byte) {
			binary.LittleEndian.PutUint32(buf[4:8], 0x55555555)
		}},
		{"crc corrupted", func(buf []byte) {
			binary.LittleEndian.PutUint32(buf[8:12], 0x55555555)
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf [FileHeaderSize]byte
			EncodeFileHeader(buf[:], FormatVersion)
			tc.corrupt(buf[:])

			v, repaired, err := DecodeFileHeader(buf[:])
			require.NoError(t, err)
			assert.Equal(t, FormatVersion, v)
			assert.True(t, repaired)
		})
	}
}

func TestFileHeaderUnrecoverable(t *testing.T) {
	var buf [FileHeaderSize]byte
	EncodeFileHeader(buf[:], FormatVersion)
	binary.LittleEndian.PutUint32(buf[0:4], 0x11111111)
	binary.LittleEndian.PutUint32(buf[4:8], 0x22222222)

	_, _, err := DecodeFileHeader(buf[:])
	assert.ErrorIs(t, err, ErrFileHeader)

	_, _, err = DecodeFileHeader(buf[:FileHeaderSize-1])
	assert.ErrorIs(t, err, ErrFileHeader)
}
