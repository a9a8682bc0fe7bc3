// Package crypto provides hashing and key utilities for boxvault.
package crypto

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
)

// ErrUnsupportedAlgorithm indicates a checksum type with no known digest.
var ErrUnsupportedAlgorithm = errors.New("unsupported checksum algorithm")

// NewHash returns a digest for a checksum type name (md5, sha1, sha256, sha384, sha512).
// Names are case-insensitive.
func NewHash(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha384":
		return sha512.New384(), nil
	case "sha512":
		return sha512.New(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
}

// SupportedAlgorithm reports whether NewHash accepts the name.
func SupportedAlgorithm(algorithm string) bool {
	_, err := NewHash(algorithm)
	return err == nil
}

// HashReader wraps an io.Reader and computes a digest while reading.
// This lets an upload be checksummed in the same pass that writes it to disk.
type HashReader struct {
	reader   io.Reader
	digest   hash.Hash
	size     int64
	finished bool
}

// NewHashReader creates a HashReader for the given checksum type.
func NewHashReader(r io.Reader, algorithm string) (*HashReader, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return nil, err
	}
	return &HashReader{reader: r, digest: h}, nil
}

// Read implements io.Reader and updates the digest.
func (h *HashReader) Read(p []byte) (n int, err error) {
	n, err = h.reader.Read(p)
	if n > 0 {
		h.digest.Write(p[:n])
		h.size += int64(n)
	}
	if err == io.EOF {
		h.finished = true
	}
	return n, err
}

// Sum returns the hex-encoded digest.
// Should only be called after reading is complete.
func (h *HashReader) Sum() string {
	return hex.EncodeToString(h.digest.Sum(nil))
}

// Verify reports whether the digest matches a hex checksum, ignoring case.
func (h *HashReader) Verify(expected string) bool {
	return EqualHex(h.Sum(), expected)
}

// Size returns the total number of bytes read.
func (h *HashReader) Size() int64 {
	return h.size
}

// IsFinished returns true if EOF was reached.
func (h *HashReader) IsFinished() bool {
	return h.finished
}

// EqualHex compares two hex digests in constant time, ignoring case and surrounding space.
func EqualHex(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ComputeStream computes the hex digest of a reader's content.
func ComputeStream(r io.Reader, algorithm string) (string, int64, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to compute %s: %w", algorithm, err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// ComputeSHA256 computes the SHA-256 hash of a byte slice.
func ComputeSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
