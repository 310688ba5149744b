package compress

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReader_Gzip_RoundTrip(t *testing.T) {
	data := []byte("dns.2014.Y.mtbl fixture contents, repeated for compressibility. ")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	r, err := NewReader(&buf, Gzip)
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestNewReader_Zstd_RoundTrip(t *testing.T) {
	data := []byte("dns.201501.M.mtbl fixture contents, repeated for compressibility. ")

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(data, nil)
	require.NoError(t, enc.Close())

	r, err := NewReader(bytes.NewReader(compressed), Zstd)
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestNewReader_None_PassesThroughUnchanged(t *testing.T) {
	data := []byte("uncompressed fileset member")

	r, err := NewReader(bytes.NewReader(data), None)
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestNewReader_Gzip_MalformedStream(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("not actually gzip data")), Gzip)
	assert.Error(t, err)
}

func TestNewReader_UnsupportedAlgorithm(t *testing.T) {
	_, err := NewReader(bytes.NewReader(nil), Algorithm("lz4"))
	assert.Error(t, err)
}
