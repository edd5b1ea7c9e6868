// Package compress adapts the zstd and gzip primitives used by game archives
// to a single "decompress bytes to an exact size" contract.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec identifies a raw compression primitive.
type Codec uint8

const (
	// None means the payload is stored verbatim.
	None Codec = iota
	// Gzip is a single gzip member.
	Gzip
	// Zstd is a single zstd frame.
	Zstd
)

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// MaxDecodedSize bounds the output of a single decode. Chunk sizes are
// stored as int32, so no valid payload exceeds it.
const MaxDecodedSize = math.MaxInt32

// maxPrealloc caps the output buffer allocated up front from a declared
// size. Larger payloads grow as they decode.
const maxPrealloc = 64 << 20

// The shared decoder is only used through DecodeAll, which is safe for
// concurrent use.
var (
	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

func zstdDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(MaxDecodedSize))
	})
	return decoder, decoderErr
}

// Decompress decodes src with the given codec. The result is exactly
// uncompressedSize bytes long or an error is returned.
func Decompress(codec Codec, src []byte, uncompressedSize int) ([]byte, error) {
	if uncompressedSize < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrSizeMismatch, uncompressedSize)
	}

	switch codec {
	case None:
		if len(src) != uncompressedSize {
			return nil, fmt.Errorf("%w: stored %d bytes, want %d", ErrSizeMismatch, len(src), uncompressedSize)
		}
		return src, nil
	case Gzip:
		return gunzip(src, uncompressedSize)
	case Zstd:
		return unzstd(src, uncompressedSize)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, uint8(codec))
	}
}

// DecompressSubChunk decodes one block of a chunked zstd stream. A block
// whose compressed and uncompressed sizes are equal was stored verbatim and
// is copied instead of decoded.
func DecompressSubChunk(src []byte, compressedSize, uncompressedSize int) ([]byte, error) {
	if uncompressedSize < 0 {
		return nil, fmt.Errorf("%w: negative sub-chunk size %d", ErrSizeMismatch, uncompressedSize)
	}
	if compressedSize < 0 || compressedSize > len(src) {
		return nil, fmt.Errorf("%w: sub-chunk needs %d bytes, have %d", ErrSizeMismatch, compressedSize, len(src))
	}
	src = src[:compressedSize]

	if compressedSize == uncompressedSize {
		out := make([]byte, uncompressedSize)
		copy(out, src)
		return out, nil
	}
	return unzstd(src, uncompressedSize)
}

func gunzip(src []byte, size int) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip header: %w", ErrDecompression, err)
	}
	defer zr.Close()

	out := bytes.NewBuffer(make([]byte, 0, min(size, maxPrealloc)))
	n, err := io.Copy(out, io.LimitReader(zr, int64(size)))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %w", ErrDecompression, err)
	}
	if n != int64(size) {
		return nil, fmt.Errorf("%w: gzip: %w", ErrDecompression, io.ErrUnexpectedEOF)
	}
	return out.Bytes(), nil
}

func unzstd(src []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrSizeMismatch, size)
	}
	dec, err := zstdDecoder()
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	// Refuse a frame that announces more output than the caller expects
	// before decoding any of it.
	var h zstd.Header
	if h.Decode(src) == nil && h.HasFCS && h.FrameContentSize > uint64(size) {
		return nil, fmt.Errorf("%w: zstd frame declares %d bytes, want %d", ErrSizeMismatch, h.FrameContentSize, size)
	}

	out, err := dec.DecodeAll(src, make([]byte, 0, min(size, maxPrealloc)))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %w", ErrDecompression, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: zstd produced %d bytes, want %d", ErrSizeMismatch, len(out), size)
	}
	return out, nil
}
