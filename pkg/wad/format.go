// Package wad reads and writes "RW" packed game asset archives.
//
// Archive layout:
//
//	Magic:        2 bytes  ("RW")
//	Major, Minor: 1 byte each
//	Header body:  v1: 4 bytes, v2: 1+83+8+4 bytes, v3: 256+8 bytes
//	ChunkCount:   4 bytes  (int32)
//	Chunk table:  ChunkCount records, 24 bytes (v1) or 32 bytes (v2+)
//
// Chunk record:
//
//	Hash:             8 bytes (uint64)
//	DataOffset:       4 bytes (int32)
//	CompressedSize:   4 bytes (int32)
//	UncompressedSize: 4 bytes (int32)
//	Type:             1 byte  (low nibble kind, high nibble sub-chunk count)
//	Duplicated:       1 byte
//	FirstSubChunk:    2 bytes (uint16)
//	Checksum:         8 bytes (uint64, v2+ only)
//
// All integers are little-endian.
package wad

import (
	"encoding/binary"
	"fmt"
)

// Magic is the two-byte archive signature.
const Magic = "RW"

const (
	chunkRecordSizeV1 = 8 + 4 + 4 + 4 + 1 + 1 + 2
	chunkRecordSizeV2 = chunkRecordSizeV1 + 8

	// SubChunkInfoSize is the stride of one sub-chunk manifest entry.
	SubChunkInfoSize = 16

	// MaxSubChunks is the largest sub-chunk count the type nibble can hold.
	MaxSubChunks = 0x0F
)

// Kind is the storage kind of a chunk.
type Kind uint8

const (
	// KindNone is stored verbatim.
	KindNone Kind = iota
	// KindGzip is a gzip member.
	KindGzip
	// KindLink is a 4-byte marker followed by data aliased from another archive.
	KindLink
	// KindZstd is a single zstd frame.
	KindZstd
	// KindZstdChunked is a sequence of independently compressed zstd blocks
	// described by the archive's sub-chunk manifest.
	KindZstdChunked
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindGzip:
		return "gzip"
	case KindLink:
		return "link"
	case KindZstd:
		return "zstd"
	case KindZstdChunked:
		return "zstd-chunked"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Version is an archive's major.minor format version.
type Version struct {
	Major uint8
	Minor uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Chunk describes one entry of the chunk table. Chunks are immutable once
// parsed.
type Chunk struct {
	Hash             uint64
	DataOffset       int32
	CompressedSize   int32
	UncompressedSize int32
	Kind             Kind
	SubChunkCount    uint8
	Duplicated       bool
	FirstSubChunk    uint16
	Checksum         uint64 // zero for v1 archives
}

// SubChunkInfo describes one block of a chunked zstd entry.
type SubChunkInfo struct {
	CompressedSize   int32
	UncompressedSize int32
	Checksum         uint64
}

// Stored reports whether the block was written without compression.
func (s SubChunkInfo) Stored() bool {
	return s.CompressedSize == s.UncompressedSize
}

// headerBodySize returns the number of header bytes between the version and
// the chunk count for a major version.
func headerBodySize(major uint8) (int, error) {
	switch major {
	case 1:
		return 4, nil
	case 2:
		return 1 + 83 + 8 + 4, nil
	case 3:
		return 256 + 8, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, major)
	}
}

func chunkRecordSize(major uint8) int {
	if major >= 2 {
		return chunkRecordSizeV2
	}
	return chunkRecordSizeV1
}

func decodeChunk(buf []byte, major uint8) Chunk {
	typ := buf[20]
	c := Chunk{
		Hash:             binary.LittleEndian.Uint64(buf[0:8]),
		DataOffset:       int32(binary.LittleEndian.Uint32(buf[8:12])),
		CompressedSize:   int32(binary.LittleEndian.Uint32(buf[12:16])),
		UncompressedSize: int32(binary.LittleEndian.Uint32(buf[16:20])),
		Kind:             Kind(typ & 0x0F),
		SubChunkCount:    typ >> 4,
		Duplicated:       buf[21] != 0,
		FirstSubChunk:    binary.LittleEndian.Uint16(buf[22:24]),
	}
	if major >= 2 {
		c.Checksum = binary.LittleEndian.Uint64(buf[24:32])
	}
	return c
}

func encodeChunk(buf []byte, c Chunk, major uint8) {
	binary.LittleEndian.PutUint64(buf[0:8], c.Hash)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(c.DataOffset))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(c.CompressedSize))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(c.UncompressedSize))
	buf[20] = byte(c.Kind&0x0F) | c.SubChunkCount<<4
	buf[21] = 0
	if c.Duplicated {
		buf[21] = 1
	}
	binary.LittleEndian.PutUint16(buf[22:24], c.FirstSubChunk)
	if major >= 2 {
		binary.LittleEndian.PutUint64(buf[24:32], c.Checksum)
	}
}

func decodeSubChunks(data []byte) []SubChunkInfo {
	n := len(data) / SubChunkInfoSize
	infos := make([]SubChunkInfo, n)
	for i := range infos {
		rec := data[i*SubChunkInfoSize:]
		infos[i] = SubChunkInfo{
			CompressedSize:   int32(binary.LittleEndian.Uint32(rec[0:4])),
			UncompressedSize: int32(binary.LittleEndian.Uint32(rec[4:8])),
			Checksum:         binary.LittleEndian.Uint64(rec[8:16]),
		}
	}
	return infos
}

func encodeSubChunks(infos []SubChunkInfo) []byte {
	out := make([]byte, len(infos)*SubChunkInfoSize)
	for i, info := range infos {
		rec := out[i*SubChunkInfoSize:]
		binary.LittleEndian.PutUint32(rec[0:4], uint32(info.CompressedSize))
		binary.LittleEndian.PutUint32(rec[4:8], uint32(info.UncompressedSize))
		binary.LittleEndian.PutUint64(rec[8:16], info.Checksum)
	}
	return out
}
