//go:build unix

package wad

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapping is a read-only memory mapping of an archive file.
type mapping struct {
	data []byte
}

func (m *mapping) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// OpenMapped opens the archive at path through a read-only memory mapping.
// Chunk reads copy out of the mapping, so returned slices stay valid after
// Close.
func OpenMapped(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wad: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat wad: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("read %s: %w: empty file", path, ErrInvalidFormat)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	m := &mapping{data: data}

	a, err := newArchive(bytes.NewReader(data), m)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return a, nil
}
