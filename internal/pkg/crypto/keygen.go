package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the size in bytes of the token master secret and derived keys.
const KeySize = 32

// ErrInvalidHexKey indicates the hex key is malformed or wrong length.
var ErrInvalidHexKey = errors.New("invalid hex key: must be 64 hex characters (32 bytes)")

// GenerateMasterKey generates a random 32-byte token secret.
// Returns the key as a 64-character hex string.
func GenerateMasterKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate master key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// ParseHexKey parses a hex-encoded key string into bytes.
// Expects 64 hex characters (32 bytes).
func ParseHexKey(hexKey string) ([]byte, error) {
	hexKey = strings.TrimSpace(hexKey)

	if len(hexKey) != KeySize*2 {
		return nil, ErrInvalidHexKey
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHexKey, err)
	}

	return key, nil
}

// DeriveKey derives a purpose-bound subkey from the master secret with HKDF-SHA256.
// Different purposes yield independent keys, so a token signed for one use
// never verifies for another.
func DeriveKey(master []byte, purpose string) ([]byte, error) {
	if len(master) == 0 {
		return nil, ErrInvalidHexKey
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, master, nil, []byte("boxvault/"+purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", purpose, err)
	}
	return key, nil
}
