package auth

import (
	"fmt"

	"github.com/prn-tf/boxvault/internal/pkg/crypto"
)

// Key purposes for derivation from the master secret.
const (
	purposeDownload = "download-token"
	purposeSession  = "session-token"
)

// Keys holds the signing keys derived from the master token secret.
type Keys struct {
	Download []byte
	Session  []byte
}

// NewKeys derives download and session signing keys from the hex master secret.
func NewKeys(secretHex string) (*Keys, error) {
	master, err := crypto.ParseHexKey(secretHex)
	if err != nil {
		return nil, fmt.Errorf("invalid token secret: %w", err)
	}
	download, err := crypto.DeriveKey(master, purposeDownload)
	if err != nil {
		return nil, err
	}
	session, err := crypto.DeriveKey(master, purposeSession)
	if err != nil {
		return nil, err
	}
	return &Keys{Download: download, Session: session}, nil
}
