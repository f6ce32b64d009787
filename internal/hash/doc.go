// Package hash provides the CRC32-Castagnoli checksum that guards stored
// segment bodies against corruption.
//
//	sum := hash.CRC32C(payload)
//
// Go's hash/crc32 uses the SSE4.2 and ARM CRC instructions when present.
package hash
