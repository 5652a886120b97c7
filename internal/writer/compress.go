package writer

import (
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/dpblh/kite/internal/config"
)

// Compressor wraps partition file streams.
type Compressor interface {
	Name() string
	Extension() string
	Compress(w io.Writer) (io.WriteCloser, error)
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// CompressorFor returns the compressor registered under name.
func CompressorFor(name string) (Compressor, error) {
	switch name {
	case config.CompressionNone, "":
		return noopCompressor{}, nil
	case config.CompressionSnappy:
		return snappyCompressor{}, nil
	case config.CompressionZstd:
		return zstdCompressor{}, nil
	}
	return nil, fmt.Errorf("unknown compression %q", name)
}

// compressorForObject picks the compressor from an object's file extension.
func compressorForObject(objectPath string) Compressor {
	for _, c := range []Compressor{snappyCompressor{}, zstdCompressor{}} {
		if strings.HasSuffix(objectPath, c.Extension()) {
			return c
		}
	}
	return noopCompressor{}
}

// snappyCompressor uses the snappy framing format.
type snappyCompressor struct{}

func (snappyCompressor) Name() string      { return config.CompressionSnappy }
func (snappyCompressor) Extension() string { return ".sz" }

func (snappyCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

func (snappyCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

type zstdCompressor struct{}

func (zstdCompressor) Name() string      { return config.CompressionZstd }
func (zstdCompressor) Extension() string { return ".zst" }

func (zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (zstdCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}

type noopCompressor struct{}

func (noopCompressor) Name() string      { return config.CompressionNone }
func (noopCompressor) Extension() string { return "" }

func (noopCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (noopCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
