package compress

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Level defines the compression effort level.
type Level int

const (
	// LevelFastest prioritizes speed over ratio.
	LevelFastest Level = 1
	// LevelDefault balances speed and ratio.
	LevelDefault Level = 3
	// LevelBetter prioritizes ratio over speed.
	LevelBetter Level = 6
)

// Encoder produces payloads that Decompress can read back.
// It is safe for concurrent use.
type Encoder struct {
	zenc  *zstd.Encoder
	level Level
}

// NewEncoder creates an encoder at the given level. A zero level selects
// LevelDefault.
func NewEncoder(level Level) (*Encoder, error) {
	if level == 0 {
		level = LevelDefault
	}

	zstdLevel := zstd.SpeedDefault
	switch level {
	case LevelFastest:
		zstdLevel = zstd.SpeedFastest
	case LevelDefault:
		zstdLevel = zstd.SpeedDefault
	case LevelBetter:
		zstdLevel = zstd.SpeedBetterCompression
	default:
		return nil, fmt.Errorf("unsupported compression level %d", level)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &Encoder{zenc: enc, level: level}, nil
}

// Zstd encodes src as a single zstd frame.
func (e *Encoder) Zstd(src []byte) []byte {
	return e.zenc.EncodeAll(src, make([]byte, 0, len(src)/2+64))
}

// Gzip encodes src as a single gzip member.
func (e *Encoder) Gzip(src []byte) ([]byte, error) {
	gzLevel := gzip.DefaultCompression
	switch e.level {
	case LevelFastest:
		gzLevel = gzip.BestSpeed
	case LevelBetter:
		gzLevel = gzip.BestCompression
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzLevel)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := zw.Write(src); err != nil {
		zw.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode compresses src with codec. None returns src unchanged.
func (e *Encoder) Encode(codec Codec, src []byte) ([]byte, error) {
	switch codec {
	case None:
		return src, nil
	case Gzip:
		return e.Gzip(src)
	case Zstd:
		return e.Zstd(src), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, uint8(codec))
	}
}

// Close releases the encoder's resources.
func (e *Encoder) Close() error {
	return e.zenc.Close()
}
