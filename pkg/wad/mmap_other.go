//go:build !unix

package wad

// OpenMapped falls back to Open on platforms without mmap support.
func OpenMapped(path string) (*Archive, error) {
	return Open(path)
}
