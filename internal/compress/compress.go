// Package compress decodes downloaded fileset members whose publisher
// applies content_encoding before serving them, per SPEC_FULL.md §4.13.
// Unlike the teacher's compress package, which also compresses backup
// archives on the write side (gzip/lz4/zstd/tar), a fileset member is
// only ever consumed already encoded, so only the reader side survives
// here, trimmed to the two algorithms validateFileset actually accepts.
package compress

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Algorithm names a content_encoding value recognized by config.Validate.
type Algorithm string

const (
	Gzip Algorithm = "gzip"
	Zstd Algorithm = "zstd"
	None Algorithm = ""
)

// NewReader wraps r with a decompressing reader for algo. An empty algo
// returns r unchanged, wrapped in a no-op Closer.
func NewReader(r io.Reader, algo Algorithm) (io.ReadCloser, error) {
	switch algo {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("compress: opening gzip stream: %w", err)
		}
		return gz, nil
	case Zstd:
		z, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("compress: opening zstd stream: %w", err)
		}
		return z.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("compress: unsupported content_encoding %q", algo)
	}
}
