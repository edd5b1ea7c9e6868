// Package compcache stores a composition graph next to the identity set it
// was built from, so a loader can skip rebuilding the graph when nothing it
// depends on has changed.
//
// Container layout:
//
//	Offset:    4 bytes (int32, little-endian) absolute offset of segment 2
//	Segment 1: CBOR IdentitySet, starting at byte 4
//	Segment 2: CBOR composition graph
//
// Either segment can be read without touching the other.
package compcache

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

const headerSize = 4

// Writer emits containers.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write serializes ids and graph and writes the complete container.
// Both segments are encoded before anything reaches the stream, so an
// encoding failure leaves the stream untouched.
func (w *Writer) Write(ids IdentitySet, graph any) error {
	seg1, err := marshal(ids)
	if err != nil {
		return fmt.Errorf("encode identity set: %w", err)
	}
	seg2, err := marshal(graph)
	if err != nil {
		return fmt.Errorf("encode composition graph: %w", err)
	}
	if len(seg1) > math.MaxInt32-headerSize {
		return fmt.Errorf("%w: identity segment of %d bytes", ErrInvalidFormat, len(seg1))
	}

	bw := bufio.NewWriter(w.w)
	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(headerSize+len(seg1)))
	for _, b := range [][]byte{header[:], seg1, seg2} {
		if _, err := bw.Write(b); err != nil {
			return fmt.Errorf("write container: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush container: %w", err)
	}
	return nil
}

// Reader reads the segments of one container.
type Reader struct {
	r      io.ReadSeeker
	closer io.Closer
}

// NewReader returns a Reader over r. Unless leaveOpen is set, Close also
// closes r when r is an io.Closer.
func NewReader(r io.ReadSeeker, leaveOpen bool) *Reader {
	rd := &Reader{r: r}
	if c, ok := r.(io.Closer); ok && !leaveOpen {
		rd.closer = c
	}
	return rd
}

// OpenFile opens the container at path. The Reader owns the file.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open composition cache: %w", err)
	}
	return NewReader(f, false), nil
}

// ReadAssemblyCatalog decodes segment 1.
func (r *Reader) ReadAssemblyCatalog() (IdentitySet, error) {
	if _, err := r.r.Seek(headerSize, io.SeekStart); err != nil {
		return IdentitySet{}, fmt.Errorf("seek identity segment: %w", err)
	}
	var ids IdentitySet
	if err := decode(r.r, &ids); err != nil {
		return IdentitySet{}, fmt.Errorf("%w: identity segment: %w", ErrInvalidFormat, err)
	}
	return ids, nil
}

// ReadComposition decodes segment 2 into dst, which must be a pointer to
// the type the graph was written as.
func (r *Reader) ReadComposition(dst any) error {
	if _, err := r.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek header: %w", err)
	}
	var header [headerSize]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		return fmt.Errorf("%w: header: %w", ErrInvalidFormat, err)
	}
	offset := int32(binary.LittleEndian.Uint32(header[:]))
	if offset < headerSize {
		return fmt.Errorf("%w: segment offset %d", ErrInvalidFormat, offset)
	}

	if _, err := r.r.Seek(int64(offset), io.SeekStart); err != nil {
		return fmt.Errorf("seek composition segment: %w", err)
	}
	if err := decode(r.r, dst); err != nil {
		return fmt.Errorf("%w: composition segment: %w", ErrInvalidFormat, err)
	}
	return nil
}

// Close releases the stream if the Reader owns it.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
