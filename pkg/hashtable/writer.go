package hashtable

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/eunmann/wadkit/pkg/fileutil"
	"github.com/eunmann/wadkit/pkg/logging"
)

// segment collects the entries whose records are addressed relative to start.
type segment struct {
	start   int64
	size    int64
	entries []packedEntry
}

type packedEntry struct {
	hash   uint64
	offset int64 // relative to segment start
}

type recordRef struct {
	segment int
	offset  int64
}

// WriteStats summarizes a Write call.
type WriteStats struct {
	Entries      int
	Segments     int
	RecordBytes  int64
	Deduplicated int
}

// Write serializes the table to w, which must be positioned at the start of
// an empty stream. Entries are written in ascending hash order; entries whose
// encoded records are identical share one copy on disk. Unresolved names are
// read from the table's backing stream, so w must not be that stream.
func (t *Table) Write(w io.WriteSeeker) (WriteStats, error) {
	var stats WriteStats

	cw := &posWriter{w: bufio.NewWriterSize(w, 1<<20)}

	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(Magic))
	if _, err := cw.Write(header[:]); err != nil {
		return stats, fmt.Errorf("write header: %w", err)
	}

	var segments []*segment
	seen := make(map[uint64]recordRef)
	var record []byte

	for _, e := range t.sortedEntries() {
		if err := t.resolve(e); err != nil {
			return stats, err
		}
		var err error
		record, err = encodeRecord(record[:0], e.name)
		if err != nil {
			return stats, fmt.Errorf("entry %x: %w", e.Hash, err)
		}

		// The checksum only groups identical records in memory; it is never
		// written, so the file does not depend on the hash function.
		sum := xxhash.Sum64(record)
		if ref, ok := seen[sum]; ok {
			seg := segments[ref.segment]
			seg.entries = append(seg.entries, packedEntry{hash: e.Hash, offset: ref.offset})
			stats.Deduplicated++
			continue
		}

		if len(segments) == 0 || segments[len(segments)-1].size+int64(len(record)) > MaxSegmentBytes {
			segments = append(segments, &segment{start: cw.pos})
		}
		seg := segments[len(segments)-1]

		ref := recordRef{segment: len(segments) - 1, offset: seg.size}
		if _, err := cw.Write(record); err != nil {
			return stats, fmt.Errorf("write record: %w", err)
		}
		seg.entries = append(seg.entries, packedEntry{hash: e.Hash, offset: ref.offset})
		seg.size += int64(len(record))
		seen[sum] = ref
		stats.RecordBytes += int64(len(record))
	}

	tableOffset := cw.pos
	if tableOffset > math.MaxInt32 {
		return stats, fmt.Errorf("%w: records end at %d, beyond int32 offsets", ErrInvalidFormat, tableOffset)
	}

	var buf [8]byte
	for _, seg := range segments {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(len(seg.entries)))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(seg.start))
		if _, err := cw.Write(buf[:]); err != nil {
			return stats, fmt.Errorf("write segment header: %w", err)
		}
		for _, pe := range seg.entries {
			binary.LittleEndian.PutUint64(buf[:], pe.hash|uint64(pe.offset)<<HashBits)
			if _, err := cw.Write(buf[:]); err != nil {
				return stats, fmt.Errorf("write segment entry: %w", err)
			}
		}
		stats.Entries += len(seg.entries)
	}

	if err := cw.w.Flush(); err != nil {
		return stats, fmt.Errorf("flush: %w", err)
	}

	// Patch the header now that the segment table location is known.
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(segments)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(tableOffset))
	if _, err := w.Seek(4, io.SeekStart); err != nil {
		return stats, fmt.Errorf("seek header: %w", err)
	}
	if _, err := w.Write(buf[:]); err != nil {
		return stats, fmt.Errorf("patch header: %w", err)
	}
	if _, err := w.Seek(0, io.SeekEnd); err != nil {
		return stats, fmt.Errorf("seek end: %w", err)
	}

	stats.Segments = len(segments)
	return stats, nil
}

// WriteFile atomically replaces path with the serialized table.
func (t *Table) WriteFile(path string) (WriteStats, error) {
	var stats WriteStats
	err := fileutil.WriteAtomic(path, func(f *os.File) error {
		var err error
		stats, err = t.Write(f)
		return err
	})
	if err != nil {
		return stats, fmt.Errorf("write hashtable %s: %w", path, err)
	}

	logging.L().Debug().
		Str("path", path).
		Int("entries", stats.Entries).
		Int("segments", stats.Segments).
		Int("deduplicated", stats.Deduplicated).
		Int64("record_bytes", stats.RecordBytes).
		Msg("wrote hashtable")
	return stats, nil
}

func encodeRecord(dst []byte, name string) ([]byte, error) {
	if len(name) > MaxNameLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(name)))
	return append(dst, name...), nil
}

type posWriter struct {
	w   *bufio.Writer
	pos int64
}

func (p *posWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.pos += int64(n)
	return n, err
}
