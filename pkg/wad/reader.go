package wad

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/eunmann/wadkit/pkg/compress"
	"github.com/eunmann/wadkit/pkg/logging"
)

// Archive provides read access to the chunks of a wad archive.
//
// Thread Safety: the chunk table and manifest are immutable after open and
// reads go through io.ReaderAt, so ReadData may be called concurrently when
// the underlying ReaderAt allows it (*os.File and *bytes.Reader do). Close
// must only be called once, after all reads have completed.
type Archive struct {
	r       io.ReaderAt
	closer  io.Closer
	size    int64 // -1 when r cannot report it
	version Version

	chunks    map[uint64]Chunk
	order     []uint64 // table order
	subChunks []SubChunkInfo
}

// Open opens the archive at path. The returned archive owns the file.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wad: %w", err)
	}

	a, err := newArchive(f, f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	logging.L().Debug().
		Str("path", path).
		Str("version", a.version.String()).
		Int("chunks", len(a.chunks)).
		Int("sub_chunks", len(a.subChunks)).
		Msg("opened wad archive")

	return a, nil
}

// NewReader parses an archive from r. The archive does not own r; Close is a
// no-op for the underlying reader.
func NewReader(r io.ReaderAt) (*Archive, error) {
	return newArchive(r, nil)
}

func newArchive(r io.ReaderAt, closer io.Closer) (*Archive, error) {
	a := &Archive{
		r:      r,
		closer: closer,
		size:   readerSize(r),
		chunks: make(map[uint64]Chunk),
	}
	if err := a.parse(); err != nil {
		return nil, err
	}
	return a, nil
}

func readerSize(r io.ReaderAt) int64 {
	switch r := r.(type) {
	case interface{ Size() int64 }:
		return r.Size()
	case *os.File:
		if info, err := r.Stat(); err == nil {
			return info.Size()
		}
	}
	return -1
}

func (a *Archive) parse() error {
	br := bufio.NewReader(io.NewSectionReader(a.r, 0, math.MaxInt64))

	var head [4]byte
	if err := readFull(br, head[:]); err != nil {
		if errors.Is(err, ErrTruncatedRead) {
			return fmt.Errorf("%w: file shorter than signature", ErrInvalidFormat)
		}
		return err
	}
	if string(head[0:2]) != Magic {
		return fmt.Errorf("%w: magic %q", ErrInvalidFormat, head[0:2])
	}
	a.version = Version{Major: head[2], Minor: head[3]}

	skip, err := headerBodySize(a.version.Major)
	if err != nil {
		return err
	}
	if _, err := br.Discard(skip); err != nil {
		return fmt.Errorf("%w: header: %w", ErrTruncatedRead, err)
	}

	var countBuf [4]byte
	if err := readFull(br, countBuf[:]); err != nil {
		return fmt.Errorf("read chunk count: %w", err)
	}
	count := int32(binary.LittleEndian.Uint32(countBuf[:]))
	if count < 0 {
		return fmt.Errorf("%w: negative chunk count %d", ErrInvalidFormat, count)
	}

	rec := make([]byte, chunkRecordSize(a.version.Major))
	a.order = make([]uint64, 0, min(int(count), 1<<16))
	for i := int32(0); i < count; i++ {
		if err := readFull(br, rec); err != nil {
			return fmt.Errorf("read chunk %d: %w", i, err)
		}
		c := decodeChunk(rec, a.version.Major)
		// A repeated hash replaces the earlier record.
		if _, dup := a.chunks[c.Hash]; !dup {
			a.order = append(a.order, c.Hash)
		}
		a.chunks[c.Hash] = c
	}

	if a.version.Major > 2 {
		if err := a.loadSubChunks(); err != nil {
			return fmt.Errorf("load sub-chunk manifest: %w", err)
		}
	}
	return nil
}

// loadSubChunks locates and decodes the sub-chunk manifest.
//
// The format has no marker for the manifest chunk. It is recognised by size:
// the first chunk (in table order) whose uncompressed size is exactly
// 16 bytes per sub-chunk referenced by the table. Any other chunk with that
// size would be picked up instead; there is no better signal available.
func (a *Archive) loadSubChunks() error {
	expected := 0
	for _, c := range a.chunks {
		expected = max(expected, int(c.FirstSubChunk)+int(c.SubChunkCount))
	}
	if expected == 0 {
		return nil
	}

	for _, hash := range a.order {
		c := a.chunks[hash]
		if c.UncompressedSize%SubChunkInfoSize != 0 || int(c.UncompressedSize/SubChunkInfoSize) != expected {
			continue
		}
		if c.Kind == KindZstdChunked {
			return fmt.Errorf("%w: manifest candidate %016x is itself chunked", ErrInvalidFormat, c.Hash)
		}
		data, err := a.ReadData(c, true)
		if err != nil {
			return err
		}
		a.subChunks = decodeSubChunks(data)
		return nil
	}
	return nil
}

// Close releases the underlying file when the archive owns it.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	if err != nil {
		return fmt.Errorf("close wad: %w", err)
	}
	return nil
}

// Version returns the archive format version.
func (a *Archive) Version() Version {
	return a.version
}

// Len returns the number of distinct chunks.
func (a *Archive) Len() int {
	return len(a.chunks)
}

// Chunk returns the chunk with the given hash.
func (a *Archive) Chunk(hash uint64) (Chunk, bool) {
	c, ok := a.chunks[hash]
	return c, ok
}

// Chunks returns all chunks sorted by hash.
func (a *Archive) Chunks() []Chunk {
	out := make([]Chunk, 0, len(a.chunks))
	for _, c := range a.chunks {
		out = append(out, c)
	}
	slices.SortFunc(out, func(x, y Chunk) int {
		return cmp.Compare(x.Hash, y.Hash)
	})
	return out
}

// SubChunks returns the archive's sub-chunk manifest, or nil when the archive
// has none.
func (a *Archive) SubChunks() []SubChunkInfo {
	return a.subChunks
}

// ReadHash reads the chunk with the given hash.
func (a *Archive) ReadHash(hash uint64, decompress bool) ([]byte, error) {
	c, ok := a.chunks[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %016x", ErrChunkNotFound, hash)
	}
	return a.ReadData(c, decompress)
}

// ReadData returns the payload of c. With decompress false, or for stored
// chunks, the on-disk bytes are returned verbatim.
func (a *Archive) ReadData(c Chunk, decompress bool) ([]byte, error) {
	raw, err := a.readRaw(c)
	if err != nil {
		return nil, fmt.Errorf("chunk %016x: %w", c.Hash, err)
	}
	if !decompress {
		return raw, nil
	}

	var out []byte
	switch c.Kind {
	case KindNone:
		return raw, nil
	case KindGzip:
		out, err = compress.Decompress(compress.Gzip, raw, int(c.UncompressedSize))
	case KindLink:
		if len(raw) < 4 {
			err = fmt.Errorf("%w: link payload of %d bytes", ErrTruncatedRead, len(raw))
			break
		}
		out = raw[4:]
	case KindZstd:
		out, err = compress.Decompress(compress.Zstd, raw, int(c.UncompressedSize))
	case KindZstdChunked:
		out, err = a.decodeChunked(c, raw)
	default:
		err = fmt.Errorf("%w: unknown chunk kind %d", ErrInvalidFormat, c.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("chunk %016x (%s): %w", c.Hash, c.Kind, err)
	}
	return out, nil
}

func (a *Archive) readRaw(c Chunk) ([]byte, error) {
	if c.DataOffset < 0 || c.CompressedSize < 0 {
		return nil, fmt.Errorf("%w: offset %d size %d", ErrInvalidFormat, c.DataOffset, c.CompressedSize)
	}
	if a.size >= 0 && int64(c.DataOffset)+int64(c.CompressedSize) > a.size {
		return nil, fmt.Errorf("%w: %d bytes at offset %d past end of %d-byte archive",
			ErrTruncatedRead, c.CompressedSize, c.DataOffset, a.size)
	}
	buf := make([]byte, c.CompressedSize)
	n, err := a.r.ReadAt(buf, int64(c.DataOffset))
	if n < len(buf) {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: got %d of %d bytes at offset %d", ErrTruncatedRead, n, len(buf), c.DataOffset)
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return buf, nil
}

func (a *Archive) decodeChunked(c Chunk, raw []byte) ([]byte, error) {
	if a.subChunks == nil {
		return nil, ErrMissingManifest
	}
	first := int(c.FirstSubChunk)
	end := first + int(c.SubChunkCount)
	if end > len(a.subChunks) {
		return nil, fmt.Errorf("%w: sub-chunks [%d,%d) outside manifest of %d", ErrInvalidFormat, first, end, len(a.subChunks))
	}

	if c.UncompressedSize < 0 {
		return nil, fmt.Errorf("%w: negative uncompressed size %d", ErrInvalidFormat, c.UncompressedSize)
	}

	out := make([]byte, 0, min(int(c.UncompressedSize), maxPrealloc))
	src := 0
	for i, info := range a.subChunks[first:end] {
		if info.UncompressedSize < 0 {
			return nil, fmt.Errorf("%w: sub-chunk %d has negative size %d", ErrInvalidFormat, first+i, info.UncompressedSize)
		}
		if info.CompressedSize < 0 || src+int(info.CompressedSize) > len(raw) {
			return nil, fmt.Errorf("%w: sub-chunk %d needs %d bytes at %d of %d", ErrTruncatedRead, first+i, info.CompressedSize, src, len(raw))
		}
		block, err := compress.DecompressSubChunk(raw[src:], int(info.CompressedSize), int(info.UncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("sub-chunk %d: %w", first+i, err)
		}
		out = append(out, block...)
		src += int(info.CompressedSize)
	}

	if src != int(c.CompressedSize) || len(out) != int(c.UncompressedSize) {
		return nil, fmt.Errorf("%w: sub-chunks cover %d/%d bytes, declared %d/%d",
			ErrCorruptChunk, src, len(out), c.CompressedSize, c.UncompressedSize)
	}
	return out, nil
}

// maxPrealloc caps the buffer allocated from a declared size before any
// sub-chunk has been decoded.
const maxPrealloc = 64 << 20

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %w", ErrTruncatedRead, err)
		}
		return err
	}
	return nil
}
