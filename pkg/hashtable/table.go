// Package hashtable maps 39-bit truncated name hashes to names.
//
// File layout:
//
//	Magic:              4 bytes (int32, "HTB1")
//	SegmentCount:       4 bytes (int32)
//	SegmentTableOffset: 4 bytes (int32, absolute)
//	Name records:       Length (int16) + Length bytes of UTF-8, no terminator
//	Segment table:      per segment
//	                      EntryCount (int32), BasePosition (int32),
//	                      EntryCount packed uint64: hash | offset<<39
//
// A packed offset is relative to its segment's base position and has
// 64-39 = 25 bits, which is why a segment never holds more than
// MaxSegmentBytes of records. All integers are little-endian.
package hashtable

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
)

const (
	// Magic identifies hashtable files.
	Magic int32 = 0x31425448 // "HTB1"

	// HashBits is the number of hash bits kept as the key.
	HashBits = 39
	// HashMask truncates a full hash to a key.
	HashMask = 1<<HashBits - 1

	// MaxSegmentBytes caps the record bytes of one segment so relative
	// offsets fit the 25 bits left above the key.
	MaxSegmentBytes = 16 << 20

	// MaxNameLen is the longest encodable name in bytes.
	MaxNameLen = math.MaxInt16

	headerSize = 12
)

// Entry is one hash/name pair. Entries read from a file start unresolved:
// only DataOffset is known until the name is loaded.
type Entry struct {
	Hash       uint64
	DataOffset int64

	name     string
	resolved bool
}

// Name returns the cached name and whether it has been resolved.
func (e *Entry) Name() (string, bool) {
	return e.name, e.resolved
}

func (e *Entry) setName(name string) {
	e.name = name
	e.resolved = true
}

// Table is an in-memory hash to name mapping, optionally backed by a file
// from which unresolved names are read on demand.
//
// A Table is not safe for concurrent use: lookups may seek and read the
// backing stream and populate entries.
type Table struct {
	entries map[uint64]*Entry
	src     io.ReadSeeker
	closer  io.Closer
}

// New returns an empty table.
func New() *Table {
	return &Table{entries: make(map[uint64]*Entry)}
}

// Open reads the table stored at path. Names stay on disk until first
// looked up, so the table keeps the file open until Close.
func Open(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hashtable: %w", err)
	}

	t, err := Read(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	t.closer = f
	return t, nil
}

// Close releases the backing file when the table owns one. Unresolved
// entries can no longer be looked up afterwards.
func (t *Table) Close() error {
	t.src = nil
	if t.closer == nil {
		return nil
	}
	err := t.closer.Close()
	t.closer = nil
	if err != nil {
		return fmt.Errorf("close hashtable: %w", err)
	}
	return nil
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Key truncates a full hash to the table's key space.
func Key(hash uint64) uint64 {
	return hash & HashMask
}

// Insert sets the name for hash. Hashes that collide after truncation
// replace each other; the last insert wins.
func (t *Table) Insert(hash uint64, name string) {
	key := Key(hash)
	if e, ok := t.entries[key]; ok {
		e.setName(name)
		return
	}
	e := &Entry{Hash: key}
	e.setName(name)
	t.entries[key] = e
}

// Has reports whether hash is in the table.
func (t *Table) Has(hash uint64) bool {
	_, ok := t.entries[Key(hash)]
	return ok
}

// Name returns the name for hash, loading it from the backing stream if
// needed.
func (t *Table) Name(hash uint64) (string, error) {
	e, ok := t.entries[Key(hash)]
	if !ok {
		return "", fmt.Errorf("%w: %x", ErrNotFound, Key(hash))
	}
	if err := t.resolve(e); err != nil {
		return "", err
	}
	return e.name, nil
}

// TryGetName is Name without the error detail.
func (t *Table) TryGetName(hash uint64) (string, bool) {
	name, err := t.Name(hash)
	if err != nil {
		return "", false
	}
	return name, true
}

// NameOrHex returns the name for hash, or the truncated hash as 16 hex
// digits when the name is unknown or cannot be read.
func (t *Table) NameOrHex(hash uint64) string {
	if name, ok := t.TryGetName(hash); ok {
		return name
	}
	return fmt.Sprintf("%016x", Key(hash))
}

// Hashes returns every key in ascending order.
func (t *Table) Hashes() []uint64 {
	keys := make([]uint64, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ResolveAll loads every unresolved name from the backing stream. After it
// returns nil the table no longer needs the stream.
func (t *Table) ResolveAll() error {
	for _, key := range t.Hashes() {
		if err := t.resolve(t.entries[key]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) resolve(e *Entry) error {
	if e.resolved {
		return nil
	}
	if t.src == nil {
		return fmt.Errorf("%w: %x", ErrNoSource, e.Hash)
	}
	name, err := readName(t.src, e.DataOffset)
	if err != nil {
		return fmt.Errorf("entry %x: %w", e.Hash, err)
	}
	e.setName(name)
	return nil
}

func (t *Table) sortedEntries() []*Entry {
	out := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entry) int {
		return cmp.Compare(a.Hash, b.Hash)
	})
	return out
}
