package domain

import (
	"strings"
	"time"
)

// ArtifactFileName is the fixed file name of every artifact slot.
const ArtifactFileName = "vagrant.box"

// DefaultChecksumType is reported when a file carries no checksum type.
const DefaultChecksumType = "sha256"

// File is the stored artifact of an Architecture.
type File struct {
	ID             int64  `json:"id"`
	ArchitectureID int64  `json:"architecture_id"`
	FileName       string `json:"file_name"`

	// Checksum and ChecksumType are nil when absent.
	Checksum     *string `json:"checksum,omitempty"`
	ChecksumType *string `json:"checksum_type,omitempty"`

	FileSize      int64     `json:"file_size"`
	DownloadCount int64     `json:"download_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewFile creates a File row for an architecture slot.
func NewFile(archID int64) *File {
	now := time.Now().UTC()
	return &File{
		ArchitectureID: archID,
		FileName:       ArtifactFileName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ChecksumValue returns the checksum or "" when absent.
func (f *File) ChecksumValue() string {
	if f.Checksum == nil {
		return ""
	}
	return *f.Checksum
}

// ChecksumTypeValue returns the lower-cased checksum type, or
// DefaultChecksumType when absent or "NULL".
func (f *File) ChecksumTypeValue() string {
	return SerializeChecksumType(f.ChecksumType)
}

// NormalizeChecksum collapses upload checksum fields. A checksum type equal
// to "NULL" in any case clears both values; empty strings become nil.
func NormalizeChecksum(checksum, checksumType string) (*string, *string) {
	checksum = strings.TrimSpace(checksum)
	checksumType = strings.TrimSpace(checksumType)

	if strings.EqualFold(checksumType, "NULL") {
		return nil, nil
	}

	var c, ct *string
	if checksum != "" {
		c = &checksum
	}
	if checksumType != "" {
		ct = &checksumType
	}
	return c, ct
}

// SerializeChecksumType renders a stored checksum type for clients.
func SerializeChecksumType(checksumType *string) string {
	if checksumType == nil || *checksumType == "" || strings.EqualFold(*checksumType, "NULL") {
		return DefaultChecksumType
	}
	return strings.ToLower(*checksumType)
}
