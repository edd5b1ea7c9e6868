package compcache

import "errors"

var (
	// ErrInvalidFormat indicates a container whose header does not point
	// inside the stream.
	ErrInvalidFormat = errors.New("invalid composition cache")
	// ErrStale indicates a cache built from a different identity set.
	ErrStale = errors.New("composition cache is stale")
)
