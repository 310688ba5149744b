package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/farsightsec/fileset-sync/internal/compress"
	"github.com/farsightsec/fileset-sync/internal/crypto"
	"github.com/farsightsec/fileset-sync/internal/digest"
	"github.com/farsightsec/fileset-sync/internal/storage"
)

// FileOptions configures a single file fetch, mirroring the worker
// protocol in SPEC_FULL.md §4.5.
type FileOptions struct {
	URI            string
	Directory      string
	Name           string // final basename, e.g. "dns.20150209.0100.X.mtbl"
	DigestRequired bool
	Validator      string // optional executable invoked on the tempfile before rename

	// ContentEncoding, if set ("gzip" or "zstd"), is decompressed from the
	// wire stream before digest verification runs against the plaintext.
	ContentEncoding string
	// EncryptionKeyFile, if set, decrypts the wire stream (AES-256-GCM,
	// per internal/crypto) before ContentEncoding is applied and before
	// digest verification runs.
	EncryptionKeyFile string

	// Progress, if non-nil, receives every byte written to the tempfile
	// as it streams; the download manager uses this to drive an mpb
	// progress bar without the fetcher knowing progress bars exist.
	Progress io.Writer
}

// Result reports what the fetch observed, for logging and sidecar
// bookkeeping.
type Result struct {
	BytesWritten int64
	Algorithm    digest.Algorithm
	HexDigest    string
	Verified     bool
}

// sourceResponse is the subset of an http.Response the rest of File cares
// about, so non-HTTP schemes (sftp, ftp, s3) can share the same pipeline.
// Non-HTTP sources carry no Content-Length or Digest header of their own;
// ContentLength is left at -1 and Header is empty, which the pipeline
// below already treats as "nothing to assert against".
type sourceResponse struct {
	Body          io.ReadCloser
	ContentLength int64
	Header        http.Header
}

func (c *Client) open(ctx context.Context, uri string) (sourceResponse, error) {
	scheme := ""
	if u, err := url.Parse(uri); err == nil {
		scheme = strings.ToLower(u.Scheme)
	}

	switch scheme {
	case "", "http", "https":
		resp, err := c.do(ctx, uri)
		if err != nil {
			return sourceResponse{}, err
		}
		return sourceResponse{Body: resp.Body, ContentLength: resp.ContentLength, Header: resp.Header}, nil
	default:
		src, err := storage.FromURI(uri)
		if err != nil {
			return sourceResponse{}, err
		}
		body, err := src.Open(ctx, "")
		if err != nil {
			src.Close()
			return sourceResponse{}, err
		}
		return sourceResponse{Body: &closeBoth{body, src}, ContentLength: -1, Header: http.Header{}}, nil
	}
}

// closeBoth closes a source-backed reader and the connection it came
// from (sftp/ftp client, etc.) together, so callers see a single Closer.
type closeBoth struct {
	io.ReadCloser
	conn interface{ Close() error }
}

func (c *closeBoth) Close() error {
	err := c.ReadCloser.Close()
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// File performs steps 1-10 of the worker protocol: open the remote URI,
// stream the body through the digest verifier into a sibling tempfile,
// assert Content-Length and Digest header agreement, set mtime from
// Last-Modified, run an optional validator, write a digest sidecar, and
// rename the tempfile over the final target. No partial file ever appears
// under the final name: the only path to it is the terminal rename.
func (c *Client) File(ctx context.Context, opts FileOptions) (Result, error) {
	target := filepath.Join(opts.Directory, opts.Name)

	resp, err := c.open(ctx, opts.URI)
	if err != nil {
		return Result{}, fmt.Errorf("fetch: opening %s: %w", opts.URI, err)
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(opts.Directory, "."+opts.Name+".*")
	if err != nil {
		return Result{}, fmt.Errorf("fetch: creating tempfile for %s: %w", opts.Name, err)
	}
	tmpPath := tmp.Name()
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tmpPath)
		}
	}()

	alg, algOK := algorithmFromHeader(resp.Header.Get("Digest"))
	expected := digestValueFromHeader(resp.Header.Get("Digest"))
	if opts.DigestRequired && !algOK {
		tmp.Close()
		return Result{}, fmt.Errorf("fetch: digest required but missing or unrecognized Digest header for %s", opts.Name)
	}

	verifier := digest.NewVerifier(alg, algOK, expected)

	// wire counts the raw, still-encrypted-and-encoded bytes off the
	// network, for the Content-Length assertion below; decryption and
	// decompression both change the byte count that ultimately reaches
	// disk, so that count can't be used for the wire-level check.
	wire := &countingReader{r: resp.Body}
	plain, err := decodeStream(wire, opts)
	if err != nil {
		tmp.Close()
		return Result{}, fmt.Errorf("fetch: %s: %w", opts.Name, err)
	}
	defer plain.Close()

	var dst io.Writer = tmp
	if opts.Progress != nil {
		dst = io.MultiWriter(tmp, opts.Progress)
	}
	n, err := digest.CopyThrough(dst, plain, verifier)
	if err != nil {
		tmp.Close()
		return Result{}, fmt.Errorf("fetch: streaming %s: %w", opts.Name, err)
	}

	if cl := resp.ContentLength; cl >= 0 && wire.n != cl {
		tmp.Close()
		return Result{}, fmt.Errorf("fetch: content-length mismatch for %s: advertised %d, got %d", opts.Name, cl, wire.n)
	}

	if err := verifier.Verify(); err != nil {
		tmp.Close()
		return Result{}, fmt.Errorf("fetch: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("fetch: closing tempfile for %s: %w", opts.Name, err)
	}

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			os.Chtimes(tmpPath, t, t)
		}
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		return Result{}, fmt.Errorf("fetch: chmod tempfile for %s: %w", opts.Name, err)
	}

	if opts.Validator != "" {
		if err := runValidator(ctx, opts.Validator, tmpPath); err != nil {
			return Result{}, fmt.Errorf("fetch: validator rejected %s: %w", opts.Name, err)
		}
	}

	result := Result{BytesWritten: n}
	var sidecarPath string
	if hexDigest, ok := verifier.HexDigest(); ok {
		result.Algorithm = alg
		result.HexDigest = hexDigest
		result.Verified = true
		sidecarPath, err = writeSidecar(opts.Directory, opts.Name, alg, hexDigest)
		if err != nil {
			return Result{}, fmt.Errorf("fetch: writing digest sidecar for %s: %w", opts.Name, err)
		}
	}

	if err := os.Rename(tmpPath, target); err != nil {
		if sidecarPath != "" {
			os.Remove(sidecarPath)
		}
		return Result{}, fmt.Errorf("fetch: renaming %s into place: %w", opts.Name, err)
	}
	succeeded = true

	return result, nil
}

// countingReader tracks bytes read off the underlying reader, independent
// of anything layered on top of it afterward.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// decodeStream layers decryption (if EncryptionKeyFile is set) and then
// decompression (if ContentEncoding is set) over the raw wire stream, in
// that order: a publisher that both encrypts and compresses applies
// compression first, so decoding must undo encryption before attempting
// decompression. Either, both, or neither may be configured.
func decodeStream(r io.Reader, opts FileOptions) (io.ReadCloser, error) {
	cur := io.Reader(r)
	var closers []io.Closer

	if opts.EncryptionKeyFile != "" {
		km, err := crypto.NewKeyManagerFromFile(opts.EncryptionKeyFile)
		if err != nil {
			return nil, err
		}
		cur = crypto.NewDecryptReader(cur, km)
	}

	if opts.ContentEncoding != "" {
		rc, err := compress.NewReader(cur, compress.Algorithm(opts.ContentEncoding))
		if err != nil {
			return nil, err
		}
		cur = rc
		closers = append(closers, rc)
	}

	return &chainedCloser{Reader: cur, closers: closers}, nil
}

// chainedCloser closes every decoding layer added in decodeStream, in
// reverse order, without the caller needing to track them individually.
type chainedCloser struct {
	io.Reader
	closers []io.Closer
}

func (c *chainedCloser) Close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if cerr := c.closers[i].Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func runValidator(ctx context.Context, validator, path string) error {
	cmd := exec.CommandContext(ctx, validator, path)
	if err := cmd.Run(); err != nil {
		return err
	}
	return nil
}

// writeSidecar writes "{hex}  {basename}\n" to {target}.{alg_ext} using the
// same tempfile+rename discipline as the manifest and data files.
func writeSidecar(dir, name string, alg digest.Algorithm, hexDigest string) (string, error) {
	sidecarName := name + "." + string(alg)
	sidecarPath := filepath.Join(dir, sidecarName)

	tmp, err := os.CreateTemp(dir, "."+sidecarName+".*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	if _, err := fmt.Fprintf(tmp, "%s  %s\n", hexDigest, name); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, sidecarPath); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return sidecarPath, nil
}

// algorithmFromHeader and digestValueFromHeader split a "Digest: <alg>=<b64>"
// header value. A missing or malformed header yields ok=false, which the
// caller treats as "skip verification" unless DigestRequired is set.
func algorithmFromHeader(header string) (digest.Algorithm, bool) {
	name, _, ok := cutDigestHeader(header)
	if !ok {
		return "", false
	}
	return digest.ParseAlgorithm(name)
}

func digestValueFromHeader(header string) string {
	_, value, ok := cutDigestHeader(header)
	if !ok {
		return ""
	}
	return value
}

func cutDigestHeader(header string) (alg, value string, ok bool) {
	for i := 0; i < len(header); i++ {
		if header[i] == '=' {
			return header[:i], header[i+1:], true
		}
	}
	return "", "", false
}
