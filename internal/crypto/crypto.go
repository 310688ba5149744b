// Package crypto decrypts fileset members a publisher distributes
// encrypted-at-rest, per SPEC_FULL.md §4.13's encryption_key_file
// addition. It is the reader-side counterpart of the teacher's
// internal/crypto package: this domain never encrypts anything itself
// (fileset-sync only ever downloads), so EncryptWriter has no caller
// here and is dropped; DecryptReader and the AES-256-GCM chunk format
// it expects are carried over unchanged.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize   = 32 // AES-256
	SaltSize  = 32
	NonceSize = 12

	MagicBytes = "DBKP"
)

// KeyManager holds the raw key material read from encryption_key_file,
// hashed down to KeySize bytes if the file doesn't already hold exactly
// that many (mirroring the teacher's tolerance for human-supplied key
// files of arbitrary length).
type KeyManager struct {
	key []byte
}

func NewKeyManagerFromFile(path string) (*KeyManager, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: reading encryption_key_file: %w", err)
	}
	key := raw
	if len(key) != KeySize {
		h := sha256.Sum256(key)
		key = h[:]
	}
	return &KeyManager{key: key}, nil
}

func deriveKey(passphrase []byte, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, 4096, KeySize, sha256.New)
}

// DecryptReader decodes the teacher's AES-256-GCM chunk format: a
// "DBKP"+version+salt header followed by [nonce(12)][len(4)][ciphertext]
// chunks, each independently sealed.
type DecryptReader struct {
	r      io.Reader
	gcm    cipher.AEAD
	km     *KeyManager
	buf    []byte
	pos    int
	header bool
}

func NewDecryptReader(r io.Reader, km *KeyManager) *DecryptReader {
	return &DecryptReader{r: r, km: km}
}

func (dr *DecryptReader) Read(p []byte) (int, error) {
	if !dr.header {
		if err := dr.readHeader(); err != nil {
			return 0, err
		}
		dr.header = true
	}

	if dr.pos >= len(dr.buf) {
		if err := dr.nextChunk(); err != nil {
			return 0, err
		}
	}

	n := copy(p, dr.buf[dr.pos:])
	dr.pos += n
	return n, nil
}

func (dr *DecryptReader) readHeader() error {
	head := make([]byte, len(MagicBytes)+1+SaltSize)
	if _, err := io.ReadFull(dr.r, head); err != nil {
		return fmt.Errorf("crypto: reading encryption header: %w", err)
	}
	if string(head[:len(MagicBytes)]) != MagicBytes {
		return fmt.Errorf("crypto: not an encrypted fileset member (missing %q magic)", MagicBytes)
	}
	salt := head[len(MagicBytes)+1:]

	key := dr.km.key
	if len(key) != KeySize {
		key = deriveKey(key, salt)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	dr.gcm = gcm
	return nil
}

func (dr *DecryptReader) nextChunk() error {
	head := make([]byte, NonceSize+4)
	if _, err := io.ReadFull(dr.r, head); err != nil {
		return err // io.EOF at a chunk boundary propagates as-is
	}

	nonce := head[:NonceSize]
	length := binary.BigEndian.Uint32(head[NonceSize:])

	ciphertext := make([]byte, length)
	if _, err := io.ReadFull(dr.r, ciphertext); err != nil {
		return fmt.Errorf("crypto: reading chunk: %w", err)
	}

	plaintext, err := dr.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("crypto: decryption failed: invalid key or tampered data")
	}

	dr.buf = plaintext
	dr.pos = 0
	return nil
}
