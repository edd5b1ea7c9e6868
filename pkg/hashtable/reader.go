package hashtable

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Read parses the segment table of a hashtable stream. Names are not read;
// the returned table reads them from r on first lookup and does not close r.
func Read(r io.ReadSeeker) (*Table, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek header: %w", err)
	}

	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrInvalidFormat, err)
	}
	if magic := int32(binary.LittleEndian.Uint32(header[0:4])); magic != Magic {
		return nil, fmt.Errorf("%w: magic %08x", ErrInvalidFormat, uint32(magic))
	}
	segCount := int32(binary.LittleEndian.Uint32(header[4:8]))
	tableOffset := int32(binary.LittleEndian.Uint32(header[8:12]))
	if segCount < 0 || (segCount > 0 && tableOffset < headerSize) {
		return nil, fmt.Errorf("%w: %d segments at offset %d", ErrInvalidFormat, segCount, tableOffset)
	}

	if _, err := r.Seek(int64(tableOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek segment table: %w", err)
	}
	br := bufio.NewReader(r)

	entries := make(map[uint64]*Entry)
	var segHeader [8]byte
	var packedBuf [8]byte
	for s := int32(0); s < segCount; s++ {
		if _, err := io.ReadFull(br, segHeader[:]); err != nil {
			return nil, fmt.Errorf("%w: segment %d header: %w", ErrTruncatedRead, s, err)
		}
		count := int32(binary.LittleEndian.Uint32(segHeader[0:4]))
		base := int32(binary.LittleEndian.Uint32(segHeader[4:8]))
		if count < 0 || base < 0 {
			return nil, fmt.Errorf("%w: segment %d has %d entries at %d", ErrInvalidFormat, s, count, base)
		}

		for i := int32(0); i < count; i++ {
			if _, err := io.ReadFull(br, packedBuf[:]); err != nil {
				return nil, fmt.Errorf("%w: segment %d entry %d: %w", ErrTruncatedRead, s, i, err)
			}
			packed := binary.LittleEndian.Uint64(packedBuf[:])
			key := packed & HashMask
			entries[key] = &Entry{
				Hash:       key,
				DataOffset: int64(base) + int64(packed>>HashBits),
			}
		}
	}

	return &Table{entries: entries, src: r}, nil
}

// readName reads the length-prefixed record at offset. A record cut short by
// the end of the stream is an error rather than a short name.
func readName(r io.ReadSeeker, offset int64) (string, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek name: %w", err)
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", fmt.Errorf("%w: name length at %d: %w", ErrTruncatedRead, offset, err)
	}
	n := int16(binary.LittleEndian.Uint16(lenBuf[:]))
	if n < 0 {
		return "", fmt.Errorf("%w: negative name length at %d", ErrInvalidFormat, offset)
	}

	buf := make([]byte, n)
	read := 0
	for read < len(buf) {
		m, err := r.Read(buf[read:])
		read += m
		if m == 0 || err != nil {
			if read == len(buf) {
				break
			}
			if err == nil || errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: name at %d has %d of %d bytes", ErrTruncatedRead, offset, read, n)
			}
			return "", fmt.Errorf("read name: %w", err)
		}
	}
	return string(buf), nil
}
