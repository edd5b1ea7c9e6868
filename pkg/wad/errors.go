package wad

import "errors"

var (
	// ErrInvalidFormat indicates a bad magic or a structurally invalid archive.
	ErrInvalidFormat = errors.New("invalid wad format")
	// ErrUnsupportedVersion indicates a major version other than 1, 2 or 3.
	ErrUnsupportedVersion = errors.New("unsupported wad version")
	// ErrTruncatedRead indicates fewer bytes on disk than a declared length.
	ErrTruncatedRead = errors.New("truncated read")
	// ErrMissingManifest indicates a chunked zstd entry in an archive with no
	// sub-chunk manifest.
	ErrMissingManifest = errors.New("sub-chunk manifest not found")
	// ErrCorruptChunk indicates sub-chunk sizes that disagree with the chunk's
	// declared sizes.
	ErrCorruptChunk = errors.New("corrupt chunk")
	// ErrChunkNotFound indicates a lookup for a hash the archive does not contain.
	ErrChunkNotFound = errors.New("chunk not found")
)
