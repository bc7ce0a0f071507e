// Package codec implements the on-disk record format of the valog value log.
//
// The codec is a pure transform over caller-provided buffers; it performs no
// I/O. The write pipeline, read path, recovery and GC all build on the three
// fixed-size structures defined here.
//
// # Record Format
//
// A record on disk is:
//
//	[Head(64)][same-file key bytes][same-file value bytes][End Marker(12)]
//
// The Head is a fixed 64-byte metadata block:
//
//	[KeyLen(4)][ValLen(4)][KeyMode(1)][ValMode(1)][DataArea(50)][CRC32(4)]
//
// All integers are little-endian. The CRC32 (IEEE) covers bytes 0..59.
//
// The 50-byte data area is interpreted per operand, key slot first:
//   - ModeInline: the raw operand bytes.
//   - ModeSameFile: a u32 CRC32 of the payload bytes that follow the Head.
//   - ModeExternal: a 16-byte Position into bin/ plus a u32 CRC32 of the
//     external payload.
//
// # End Marker
//
// The 12-byte End Marker closes every record:
//
//	[HeadOffset(8, u64 LE)][Magic(4) = 0xEDEDEDED]
//
// HeadOffset always names the file offset of the marker's own Head. The
// marker doubles as the fast-path recovery anchor and as the resync pattern
// for the fallback corruption scan.
//
// # Log File Header
//
// Every log file starts with 12 bytes:
//
//	[Version(4)][Version(4)][CRC32 of first copy(4)]
//
// The redundancy allows in-memory repair when exactly one of the three
// fields is corrupted.
//
// # Storage Modes
//
// Mode selection is a pure function of the operand lengths: when
// KeyLen+ValLen fits the 50-byte data area both operands are inline;
// otherwise each operand is stored in the same file when at most
// SameFileMax bytes (1 MiB by default) and in an external bin/ file beyond
// that. A Head's modes are decided once at write time and never change;
// GC re-appends produce a new Head with freshly selected modes.
package codec
