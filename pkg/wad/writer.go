package wad

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/eunmann/wadkit/pkg/compress"
)

// DefaultManifestName names the sub-chunk manifest chunk when none is set.
const DefaultManifestName = "archive.wad.subchunktoc"

var (
	// ErrDuplicateHash indicates two entries added under the same hash.
	ErrDuplicateHash = errors.New("duplicate chunk hash")
	// ErrTooManySubChunks indicates a chunked entry that needs more blocks
	// than the type nibble can describe.
	ErrTooManySubChunks = errors.New("too many sub-chunks")
)

type builderEntry struct {
	chunk   Chunk
	payload []byte
	blocks  []SubChunkInfo
}

// Builder assembles a wad archive in memory and writes it out.
// Entries with byte-identical payloads share one copy on disk and are
// flagged as duplicated.
type Builder struct {
	major        uint8
	enc          *compress.Encoder
	entries      map[uint64]*builderEntry
	manifestHash uint64
}

// NewBuilder creates a builder for the given major version (1, 2 or 3).
// The encoder compresses gzip, zstd and chunked entries.
func NewBuilder(major uint8, enc *compress.Encoder) (*Builder, error) {
	if _, err := headerBodySize(major); err != nil {
		return nil, err
	}
	return &Builder{
		major:        major,
		enc:          enc,
		entries:      make(map[uint64]*builderEntry),
		manifestHash: HashPath(DefaultManifestName),
	}, nil
}

// HashPath returns the chunk hash for an asset path: xxhash64 of the
// lowercased path.
func HashPath(path string) uint64 {
	return xxhash.Sum64String(strings.ToLower(path))
}

// SetManifestName sets the path whose hash names the sub-chunk manifest.
func (b *Builder) SetManifestName(name string) {
	b.manifestHash = HashPath(name)
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Add stores data under hash using kind. KindZstdChunked entries must be
// added with AddChunked.
func (b *Builder) Add(hash uint64, data []byte, kind Kind) error {
	if _, ok := b.entries[hash]; ok {
		return fmt.Errorf("%w: %016x", ErrDuplicateHash, hash)
	}
	if len(data) > math.MaxInt32 {
		return fmt.Errorf("%w: entry of %d bytes", ErrInvalidFormat, len(data))
	}

	var payload []byte
	var err error
	switch kind {
	case KindNone:
		payload = data
	case KindGzip:
		payload, err = b.enc.Gzip(data)
	case KindZstd:
		payload = b.enc.Zstd(data)
	case KindLink:
		payload = make([]byte, 4+len(data))
		binary.LittleEndian.PutUint32(payload, uint32(len(data)))
		copy(payload[4:], data)
	default:
		return fmt.Errorf("%w: cannot add %s entry", ErrInvalidFormat, kind)
	}
	if err != nil {
		return fmt.Errorf("encode %016x: %w", hash, err)
	}

	b.entries[hash] = &builderEntry{
		chunk: Chunk{
			Hash:             hash,
			CompressedSize:   int32(len(payload)),
			UncompressedSize: int32(len(data)),
			Kind:             kind,
		},
		payload: payload,
	}
	return nil
}

// AddChunked stores data as independently compressed blocks of at most
// blockSize bytes. A block that zstd cannot shrink is stored verbatim. Empty
// data is rejected; store it with Add instead.
func (b *Builder) AddChunked(hash uint64, data []byte, blockSize int) error {
	if b.major < 3 {
		return fmt.Errorf("%w: chunked entries need version 3, builder is %d", ErrUnsupportedVersion, b.major)
	}
	if _, ok := b.entries[hash]; ok {
		return fmt.Errorf("%w: %016x", ErrDuplicateHash, hash)
	}
	if blockSize <= 0 {
		return fmt.Errorf("invalid block size %d", blockSize)
	}
	// A chunked entry with no blocks references no manifest range and would
	// be unreadable.
	if len(data) == 0 {
		return fmt.Errorf("%w: empty chunked entry %016x", ErrInvalidFormat, hash)
	}
	nblocks := (len(data) + blockSize - 1) / blockSize
	if nblocks > MaxSubChunks {
		return fmt.Errorf("%w: %d blocks of %d bytes", ErrTooManySubChunks, nblocks, blockSize)
	}

	var payload bytes.Buffer
	blocks := make([]SubChunkInfo, 0, nblocks)
	for off := 0; off < len(data); off += blockSize {
		block := data[off:min(off+blockSize, len(data))]
		packed := b.enc.Zstd(block)
		if len(packed) >= len(block) {
			packed = block
		}
		payload.Write(packed)
		blocks = append(blocks, SubChunkInfo{
			CompressedSize:   int32(len(packed)),
			UncompressedSize: int32(len(block)),
			Checksum:         xxhash.Sum64(packed),
		})
	}

	b.entries[hash] = &builderEntry{
		chunk: Chunk{
			Hash:             hash,
			CompressedSize:   int32(payload.Len()),
			UncompressedSize: int32(len(data)),
			Kind:             KindZstdChunked,
			SubChunkCount:    uint8(len(blocks)),
		},
		payload: payload.Bytes(),
		blocks:  blocks,
	}
	return nil
}

// WriteTo writes the archive to w.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	entries := make([]*builderEntry, 0, len(b.entries)+1)
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, byHash)

	// Sub-chunk ranges are assigned in hash order so the manifest is
	// deterministic.
	var manifest []SubChunkInfo
	for _, e := range entries {
		if e.chunk.Kind != KindZstdChunked {
			continue
		}
		if len(manifest) > math.MaxUint16 {
			return 0, fmt.Errorf("%w: manifest exceeds %d entries", ErrTooManySubChunks, math.MaxUint16)
		}
		e.chunk.FirstSubChunk = uint16(len(manifest))
		manifest = append(manifest, e.blocks...)
	}
	if len(manifest) > 0 {
		if _, ok := b.entries[b.manifestHash]; ok {
			return 0, fmt.Errorf("%w: manifest hash %016x", ErrDuplicateHash, b.manifestHash)
		}
		data := encodeSubChunks(manifest)
		// Readers find the manifest by size alone, so no other entry may share it.
		for _, e := range entries {
			if int(e.chunk.UncompressedSize) == len(data) {
				return 0, fmt.Errorf("%w: entry %016x has the manifest size %d", ErrInvalidFormat, e.chunk.Hash, len(data))
			}
		}
		entries = append(entries, &builderEntry{
			chunk: Chunk{
				Hash:             b.manifestHash,
				CompressedSize:   int32(len(data)),
				UncompressedSize: int32(len(data)),
				Kind:             KindNone,
			},
			payload: data,
		})
		slices.SortFunc(entries, byHash)
	}

	body, _ := headerBodySize(b.major)
	recSize := chunkRecordSize(b.major)
	tableStart := 4 + body + 4
	offset := int64(tableStart + recSize*len(entries))

	// Lay out payloads, sharing offsets between identical payloads.
	type stored struct {
		offset  int32
		payload []byte
	}
	seen := make(map[uint64][]stored)
	var unique [][]byte
	for _, e := range entries {
		sum := xxhash.Sum64(e.payload)
		e.chunk.Checksum = sum
		if b.major < 2 {
			e.chunk.Checksum = 0
		}

		e.chunk.Duplicated = false
		shared := false
		for _, s := range seen[sum] {
			if bytes.Equal(s.payload, e.payload) {
				e.chunk.DataOffset = s.offset
				e.chunk.Duplicated = true
				shared = true
				break
			}
		}
		if shared {
			continue
		}
		if offset+int64(len(e.payload)) > math.MaxInt32 {
			return 0, fmt.Errorf("%w: archive exceeds 2 GiB", ErrInvalidFormat)
		}
		e.chunk.DataOffset = int32(offset)
		seen[sum] = append(seen[sum], stored{offset: int32(offset), payload: e.payload})
		unique = append(unique, e.payload)
		offset += int64(len(e.payload))
	}

	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)

	header := make([]byte, 4+body+4)
	copy(header[0:2], Magic)
	header[2] = b.major
	header[3] = 0
	if b.major == 3 {
		header[3] = 1
	}
	b.fillHeaderBody(header[4:4+body], tableStart, recSize)
	binary.LittleEndian.PutUint32(header[4+body:], uint32(len(entries)))
	if _, err := bw.Write(header); err != nil {
		return cw.n, fmt.Errorf("write header: %w", err)
	}

	rec := make([]byte, recSize)
	for _, e := range entries {
		encodeChunk(rec, e.chunk, b.major)
		if _, err := bw.Write(rec); err != nil {
			return cw.n, fmt.Errorf("write chunk table: %w", err)
		}
	}

	for _, p := range unique {
		if _, err := bw.Write(p); err != nil {
			return cw.n, fmt.Errorf("write payload: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return cw.n, fmt.Errorf("flush: %w", err)
	}
	return cw.n, nil
}

// fillHeaderBody writes the version-specific header fields. Signatures and
// archive checksums are left zeroed.
func (b *Builder) fillHeaderBody(body []byte, tableStart, recSize int) {
	switch b.major {
	case 1:
		binary.LittleEndian.PutUint16(body[0:2], uint16(tableStart))
		binary.LittleEndian.PutUint16(body[2:4], uint16(recSize))
	case 2:
		body[0] = 83
		binary.LittleEndian.PutUint16(body[92:94], uint16(tableStart))
		binary.LittleEndian.PutUint16(body[94:96], uint16(recSize))
	}
}

func byHash(x, y *builderEntry) int {
	return cmp.Compare(x.chunk.Hash, y.chunk.Hash)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
