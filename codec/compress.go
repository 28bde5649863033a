package codec

import (
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Compressor compresses and decompresses encoded payloads.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

type s2c struct{}

// S2 returns a fast compressor using S2 (improved Snappy).
func S2() Compressor { return s2c{} }

func (s2c) Compress(data []byte) ([]byte, error)   { return s2.Encode(nil, data), nil }
func (s2c) Decompress(data []byte) ([]byte, error) { return s2.Decode(nil, data) }

type zstdc struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Zstd returns a compressor using Zstandard.
// Level: 1 (fastest) to 4 (best compression).
func Zstd(level int) (Compressor, error) {
	lvl := zstd.SpeedDefault
	if level <= 1 {
		lvl = zstd.SpeedFastest
	} else if level >= 4 {
		lvl = zstd.SpeedBestCompression
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdc{enc: enc, dec: dec}, nil
}

func (z *zstdc) Compress(data []byte) ([]byte, error)   { return z.enc.EncodeAll(data, nil), nil }
func (z *zstdc) Decompress(data []byte) ([]byte, error) { return z.dec.DecodeAll(data, nil) }

// Compressed wraps Inner and compresses its output. Snapshots of text-heavy
// rows (JSON especially) usually shrink several times over.
type Compressed[V any] struct {
	Inner Codec[V]
	With  Compressor
}

func (c Compressed[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return c.With.Compress(b)
}

func (c Compressed[V]) Decode(b []byte) (V, error) {
	raw, err := c.With.Decompress(b)
	if err != nil {
		var zero V
		return zero, fmt.Errorf("decompress: %w", err)
	}
	return c.Inner.Decode(raw)
}
