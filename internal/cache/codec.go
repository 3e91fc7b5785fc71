package cache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// Codec is a reversible transform applied to payloads above the compression threshold.
// Decompress must wrap ErrCorruptPayload when the input is malformed.
type Codec interface {
	Compress(p []byte) ([]byte, error)
	Decompress(p []byte) ([]byte, error)
}

// BrotliCodec compresses with brotli at the given quality (0-11).
type BrotliCodec struct {
	Quality int
}

// DefaultCodec is brotli at its default quality.
var DefaultCodec Codec = BrotliCodec{Quality: brotli.DefaultCompression}

func (c BrotliCodec) Compress(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, c.Quality)
	if _, err := w.Write(p); err != nil {
		return nil, fmt.Errorf("brotli write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli close: %w", err)
	}
	return buf.Bytes(), nil
}

func (c BrotliCodec) Decompress(p []byte) ([]byte, error) {
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(p)))
	if err != nil {
		return nil, fmt.Errorf("%w: brotli: %v", ErrCorruptPayload, err)
	}
	return out, nil
}

// NopCodec leaves payloads untouched.
type NopCodec struct{}

func (NopCodec) Compress(p []byte) ([]byte, error)   { return p, nil }
func (NopCodec) Decompress(p []byte) ([]byte, error) { return p, nil }
