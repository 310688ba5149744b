// Package digest implements the streaming integrity check used by the file
// fetcher: hash a byte stream as it passes through and compare the result
// against a publisher-advertised digest once the stream is exhausted.
package digest

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// Algorithm normalizes the handful of spellings a Digest header may use
// (e.g. "SHA-256" and "sha256") down to a canonical extension name.
type Algorithm string

const (
	SHA224 Algorithm = "sha224"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

// ParseAlgorithm normalizes a Digest-header algorithm token. ok is false
// for anything not in {sha-224, sha-256, sha-384, sha-512}; callers should
// treat an unrecognized algorithm as "skip verification", not an error.
func ParseAlgorithm(s string) (alg Algorithm, ok bool) {
	switch strings.ToLower(s) {
	case "sha-224", "sha224":
		return SHA224, true
	case "sha-256", "sha256":
		return SHA256, true
	case "sha-384", "sha384":
		return SHA384, true
	case "sha-512", "sha512":
		return SHA512, true
	default:
		return "", false
	}
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case SHA224:
		return sha256.New224()
	case SHA256:
		return sha256.New()
	case SHA384:
		return sha512.New384()
	case SHA512:
		return sha512.New()
	default:
		return nil
	}
}

// MismatchError reports that a computed digest did not match what the
// publisher advertised.
type MismatchError struct {
	Algorithm Algorithm
	Want      string
	Got       string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("digest mismatch (%s): want %s, got %s", e.Algorithm, e.Want, e.Got)
}

// Verifier wraps a writer, updating a running hash with every byte written
// through it. It is the streaming transform described in SPEC_FULL.md
// §4.6: the file fetcher writes the response body through it while
// streaming to the destination tempfile, then calls Verify once the body
// is exhausted.
type Verifier struct {
	alg         Algorithm
	h           hash.Hash
	expectedB64 string
	bypassed    bool
}

// NewVerifier constructs a Verifier for the given algorithm and expected
// base64 digest. An unrecognized algorithm (ok=false from ParseAlgorithm)
// or an empty expected digest bypasses verification: bytes are passed
// through Write unchanged and Verify always succeeds.
func NewVerifier(alg Algorithm, ok bool, expectedB64 string) *Verifier {
	if !ok || expectedB64 == "" {
		return &Verifier{bypassed: true}
	}
	return &Verifier{alg: alg, h: alg.newHash(), expectedB64: expectedB64}
}

func (v *Verifier) Write(p []byte) (int, error) {
	if !v.bypassed {
		v.h.Write(p) // hash.Hash.Write never errors
	}
	return len(p), nil
}

// Verify asserts the accumulated hash matches the expected digest. It is a
// no-op returning nil when verification was bypassed.
func (v *Verifier) Verify() error {
	if v.bypassed {
		return nil
	}
	sum := v.h.Sum(nil)
	got := base64.StdEncoding.EncodeToString(sum)
	if got != v.expectedB64 {
		return &MismatchError{Algorithm: v.alg, Want: v.expectedB64, Got: got}
	}
	return nil
}

// HexDigest returns the lowercase hex encoding of the accumulated hash,
// used to populate the digest sidecar file. Only meaningful after all
// bytes have been written and only when verification was not bypassed.
func (v *Verifier) HexDigest() (string, bool) {
	if v.bypassed {
		return "", false
	}
	return hex.EncodeToString(v.h.Sum(nil)), true
}

// CopyThrough streams src to dst while updating v, returning the byte
// count observed. This is the chunked-iterator equivalent used by callers
// that want a single call instead of wiring an io.MultiWriter themselves.
func CopyThrough(dst io.Writer, src io.Reader, v *Verifier) (int64, error) {
	return io.Copy(io.MultiWriter(dst, v), src)
}
