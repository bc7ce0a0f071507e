package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectModes(t *testing.T) {
	testCases := []struct {
		name    string
		keyLen  int
		valLen  int
		keyMode Mode
		valMode Mode
	}{
		{"combined under inline max", 10, 39, ModeInline, ModeInline},
		{"combined exactly inline max", 10, 40, ModeInline, ModeInline},
		{"combined one over inline max", 10, 41, ModeSameFile, ModeSameFile},
		{"empty value tombstone", 8, 0, ModeInline, ModeInline},
		{"value at same-file max", 16, DefaultSameFileMax, ModeSameFile, ModeSameFile},
		{"value one past same-file max", 16, DefaultSameFileMax + 1, ModeSameFile, ModeExternal},
		{"both past same-file max", DefaultSameFileMax + 1, DefaultSameFileMax + 1, ModeExternal, ModeExternal},
		{"big key small value", DefaultSameFileMax + 2, 3, ModeExternal, ModeSameFile},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			km, vm := SelectModes(tc.keyLen, tc.valLen, DefaultSameFileMax)
			assert.Equal(t, tc.keyMode, km, "key mode")
			assert.Equal(t, tc.valMode, vm, "value mode")
		})
	}
}

func TestHeadInlineRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		key  []byte
		val  []byte
	}{
		{"simple", []byte("user:123"), []byte("john@example.com")},
		{"empty value", []byte("some key"), []byte{}},
		{"binary data", []byte{0x00, 0x01, 0xff}, []byte{0xfe, 0x00, 0xfd}},
		{"fills data area", bytes.Repeat([]byte("k"), 25), bytes.Repeat([]byte("v"), 25)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, HeadSize)
			err := EncodeHead(buf,
				OperandSpec{Len: uint32(len(tc.key)), Mode: ModeInline, Inline: tc.key},
				OperandSpec{Len: uint32(len(tc.val)), Mode: ModeInline, Inline: tc.val},
			)
			require.NoError(t, err)

			h, err := DecodeHead(buf)
			require.NoError(t, err)
			assert.Equal(t, ModeInline, h.Key.Mode)
			assert.Equal(t, ModeInline, h.Val.Mode)
			assert.Equal(t, tc.key, append([]byte{}, h.Key.Inline...))
			assert.Equal(t, tc.val, append([]byte{}, h.Val.Inline...))
			assert.Equal(t, 0, h.SameFileLen())
		})
	}
}

func TestHeadSameFileRoundTrip(t *testing.T) {
	key := []byte("orders/2024/08/000917")
	val := bytes.Repeat([]byte("payload"), 512)

	buf := make([]byte, HeadSize)
	err := EncodeHead(buf,
		OperandSpec{Len: uint32(len(key)), Mode: ModeSameFile, PayloadCRC: PayloadCRC(key)},
		OperandSpec{Len: uint32(len(val)), Mode: ModeSameFile, PayloadCRC: PayloadCRC(val)},
	)
	require.NoError(t, err)

	h, err := DecodeHead(buf)
	require.NoError(t, err)
	assert.Equal(t, ModeSameFile, h.Key.Mode)
	assert.Equal(t, ModeSameFile, h.Val.Mode)
	assert.Equal(t, PayloadCRC(key), h.Key.PayloadCRC)
	assert.Equal(t, PayloadCRC(val), h.Val.PayloadCRC)
	assert.Equal(t, len(key)+len(val), h.SameFileLen())
	assert.Equal(t, HeadSize+len(key), h.SameFileValOff())
	assert.Equal(t, int64(HeadSize+len(key)+len(val)+MarkerSize), RecordLen(h))
}

func TestHeadMixedModes(t *testing.T) {
	key := []byte("k")
	extPos := Position{LogID: 42, Offset: 1234}
	extCRC := uint32(0xdeadbeef)

	buf := make([]byte, HeadSize)
	err := EncodeHead(buf,
		OperandSpec{Len: 1, Mode: ModeSameFile, PayloadCRC: PayloadCRC(key)},
		OperandSpec{Len: DefaultSameFileMax + 1, Mode: ModeExternal, External: extPos, PayloadCRC: extCRC},
	)
	require.NoError(t, err)

	h, err := DecodeHead(buf)
	require.NoError(t, err)
	assert.Equal(t, ModeSameFile, h.Key.Mode)
	assert.Equal(t, ModeExternal, h.Val.Mode)
	assert.Equal(t, extPos, h.Val.External)
	assert.Equal(t, extCRC, h.Val.PayloadCRC)
	// Only the key payload follows the Head.
	assert.Equal(t, 1, h.SameFileLen())
}

func TestHeadChecksumDetection(t *testing.T) {
	buf := make([]byte, HeadSize)
	require.NoError(t, EncodeHead(buf,
		OperandSpec{Len: 3, Mode: ModeInline, Inline: []byte("abc")},
		OperandSpec{Len: 3, Mode: ModeInline, Inline: []byte("def")},
	))

	for _, off := range []int{0, 8, 10, 30, headCRCOffset} {
		corrupted := append([]byte{}, buf...)
		corrupted[off] ^= 0x01
		_, err := DecodeHead(corrupted)
		assert.ErrorIs(t, err, ErrHeadChecksum, "flipped bit at offset %d", off)
	}
}

func TestHeadDataAreaOverflow(t *testing.T) {
	buf := make([]byte, HeadSize)
	big := bytes.Repeat([]byte("x"), 40)
	err := EncodeHead(buf,
		OperandSpec{Len: 40, Mode: ModeInline, Inline: big},
		OperandSpec{Len: 40, Mode: ModeInline, Inline: big},
	)
	assert.Error(t, err)
}

func TestHeadTombstone(t *testing.T) {
	buf := make([]byte, HeadSize)
	require.NoError(t, EncodeHead(buf,
		OperandSpec{Len: 4, Mode: ModeInline, Inline: []byte("gone")},
		OperandSpec{Len: 0, Mode: ModeInline, Inline: []byte{}},
	))

	h, err := DecodeHead(buf)
	require.NoError(t, err)
	assert.True(t, h.IsTombstone())
}

func TestPositionRoundTrip(t *testing.T) {
	positions := []Position{
		{},
		{LogID: 1, Offset: FileHeaderSize},
		{LogID: 0xffffffffffffffff, Offset: 0xfedcba9876543210},
	}
	for _, p := range positions {
		buf := p.AppendTo(nil)
		require.Len(t, buf, PositionSize)
		got, err := ParsePosition(buf)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParsePosition(make([]byte, PositionSize-1))
	assert.Error(t, err)
}
