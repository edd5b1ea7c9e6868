package compress

import "errors"

var (
	// ErrDecompression indicates a corrupt or undecodable compressed payload.
	ErrDecompression = errors.New("decompression failed")
	// ErrSizeMismatch indicates the decoded payload length differs from the declared size.
	ErrSizeMismatch = errors.New("decompressed size mismatch")
	// ErrUnknownCodec indicates a codec value outside the known set.
	ErrUnknownCodec = errors.New("unknown compression codec")
)
