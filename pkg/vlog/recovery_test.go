package vlog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valyx/valog/pkg/codec"
)

// writeAndClose fills a fresh engine and returns the active wal file path
// and its final size.
func writeAndClose(t *testing.T, dir string, n int) (string, int64) {
	t.Helper()
	engine, _ := openTestEngine(t, dir, testConfig())
	var fileID uint64
	for i := 0; i < n; i++ {
		pos, err := engine.Put([]byte(fmt.Sprintf("key-%02d", i)), []byte(fmt.Sprintf("value-%02d", i)))
		require.NoError(t, err)
		fileID = pos.LogID
	}
	require.NoError(t, engine.Close())

	path := walFilePath(dir, fileID)
	stat, err := os.Stat(path)
	require.NoError(t, err)
	return path, stat.Size()
}

func TestFastPathRecovery(t *testing.T) {
	dir := t.TempDir()
	_, size := writeAndClose(t, dir, 8)

	// A clean shutdown leaves a valid trailing marker: the cursor lands on
	// the file length without any scanning or truncation.
	engine, replay, err := Open(dir, testConfig(), nil)
	require.NoError(t, err)
	defer engine.Close()

	assert.Equal(t, size, engine.Stats().ActiveOffset)

	n := 0
	for replay.Next() {
		n++
	}
	require.NoError(t, replay.Err())
	assert.Equal(t, 8, n)
}

func TestFallbackScanStopsAtLastValidRecord(t *testing.T) {
	dir := t.TempDir()
	path, size := writeAndClose(t, dir, 8)

	// Junk past the last marker invalidates the fast path.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0600)
	require.NoError(t, err)
	_, err = f.Write(bytes.Repeat([]byte{0x42}, 37))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg := testConfig()
	cfg.Logger = quietLogger()
	engine, replay, err := Open(dir, cfg, nil)
	require.NoError(t, err)
	defer engine.Close()

	assert.Equal(t, size, engine.Stats().ActiveOffset, "cursor must end after the last valid record")

	n := 0
	for replay.Next() {
		n++
	}
	require.NoError(t, replay.Err())
	assert.Equal(t, 8, n)
}

func TestFallbackScanTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	path, size := writeAndClose(t, dir, 4)

	// Chop into the final marker: the last record no longer verifies.
	require.NoError(t, os.Truncate(path, size-5))

	cfg := testConfig()
	cfg.Logger = quietLogger()
	engine, replay, err := Open(dir, cfg, nil)
	require.NoError(t, err)
	defer engine.Close()

	n := 0
	for replay.Next() {
		n++
	}
	require.NoError(t, replay.Err())
	assert.Equal(t, 3, n)
	assert.Less(t, engine.Stats().ActiveOffset, size-5)
}

func TestCorruptionSkipRecoversSurroundingRecords(t *testing.T) {
	dir := t.TempDir()
	engine, _ := openTestEngine(t, dir, testConfig())

	var positions []codec.Position
	for i := 0; i < 4; i++ {
		pos, err := engine.Put([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("value-%d", i)))
		require.NoError(t, err)
		positions = append(positions, pos)
	}
	require.NoError(t, engine.Close())

	// Corrupt the second record's Head on disk.
	path := walFilePath(dir, positions[1].LogID)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[positions[1].Offset+4] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0600))

	var logBuf bytes.Buffer
	cfg := testConfig()
	cfg.Logger = log.New(&logBuf, "", 0)

	reopened, replay, err := Open(dir, cfg, nil)
	require.NoError(t, err)
	defer reopened.Close()

	var keys []string
	for replay.Next() {
		key, err := replay.Key()
		require.NoError(t, err)
		keys = append(keys, string(key))
	}
	require.NoError(t, replay.Err())
	assert.Equal(t, []string{"key-0", "key-2", "key-3"}, keys)

	warnings := 0
	for _, line := range strings.Split(logBuf.String(), "\n") {
		if strings.Contains(line, "corrupt record") {
			warnings++
			assert.Contains(t, line, fmt.Sprintf(":%d", positions[1].Offset),
				"warning must name the corrupted offset")
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestHeaderSingleFieldRepairOnOpen(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeAndClose(t, dir, 3)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[4:8], 0xBADC0DE)
	require.NoError(t, os.WriteFile(path, data, 0600))

	var logBuf bytes.Buffer
	cfg := testConfig()
	cfg.Logger = log.New(&logBuf, "", 0)

	engine, replay, err := Open(dir, cfg, nil)
	require.NoError(t, err)
	defer engine.Close()

	n := 0
	for replay.Next() {
		n++
	}
	require.NoError(t, replay.Err())
	assert.Equal(t, 3, n)
	assert.Contains(t, logBuf.String(), "repaired file header")
}

func TestHeaderDoubleCorruptionIsFatal(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeAndClose(t, dir, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[0:4], 0x11111111)
	binary.LittleEndian.PutUint32(data[4:8], 0x22222222)
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, _, err = Open(dir, testConfig(), nil)
	assert.ErrorIs(t, err, codec.ErrFileHeader)
}

func TestShortFileGetsFreshHeader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir+"/wal", 0750))
	stub := walFilePath(dir, 99)
	require.NoError(t, os.WriteFile(stub, []byte("abc"), 0600))

	engine, replay, err := Open(dir, testConfig(), nil)
	require.NoError(t, err)
	defer engine.Close()

	assert.Equal(t, int64(codec.FileHeaderSize), engine.Stats().ActiveOffset)
	assert.False(t, replay.Next())
	require.NoError(t, replay.Err())

	data, err := os.ReadFile(stub)
	require.NoError(t, err)
	version, repaired, err := codec.DecodeFileHeader(data)
	require.NoError(t, err)
	assert.Equal(t, codec.FormatVersion, version)
	assert.False(t, repaired)
}

func TestFallbackScanCursorNeverPastGap(t *testing.T) {
	// Corrupt middle record and junk tail together: the fallback scan must
	// still resync to the valid records after the gap and place the cursor
	// at the end of the last one that verified.
	dir := t.TempDir()
	engine, _ := openTestEngine(t, dir, testConfig())

	var positions []codec.Position
	for i := 0; i < 4; i++ {
		pos, err := engine.Put([]byte(fmt.Sprintf("key-%d", i)), []byte("v"))
		require.NoError(t, err)
		positions = append(positions, pos)
	}
	require.NoError(t, engine.Close())

	path := walFilePath(dir, positions[1].LogID)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lastEnd := int64(len(data))
	data[positions[1].Offset+2] ^= 0xFF
	data = append(data, bytes.Repeat([]byte{0x13}, 29)...)
	require.NoError(t, os.WriteFile(path, data, 0600))

	cfg := testConfig()
	cfg.Logger = quietLogger()
	reopened, replay, err := Open(dir, cfg, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, lastEnd, reopened.Stats().ActiveOffset)

	n := 0
	for replay.Next() {
		n++
	}
	require.NoError(t, replay.Err())
	assert.Equal(t, 3, n)
}
