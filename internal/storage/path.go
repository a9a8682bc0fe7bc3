package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/prn-tf/boxvault/internal/domain"
)

// PathConfig holds configuration for storage path generation.
type PathConfig struct {
	// BasePath is the root of the artifact tree.
	BasePath string

	// FileName is the artifact file name inside every slot directory.
	FileName string
}

// DefaultPathConfig returns the default path configuration.
func DefaultPathConfig(basePath string) PathConfig {
	return PathConfig{
		BasePath: basePath,
		FileName: domain.ArtifactFileName,
	}
}

// validSegment rejects path segments that could escape the tree.
func validSegment(s string) error {
	switch {
	case s == "", s == ".", s == "..":
		return fmt.Errorf("%w: %q", ErrInvalidPath, s)
	case strings.ContainsAny(s, "/\\\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
	return nil
}

// SlotDir returns the directory of an architecture slot.
//
// Example:
//
//	addr: acme/debian12/1.0.0/virtualbox/amd64
//	basePath: "/data"
//	result: "/data/acme/debian12/1.0.0/virtualbox/amd64"
func SlotDir(config PathConfig, addr domain.Address) (string, error) {
	segments := addr.Segments()
	components := make([]string, 0, len(segments)+1)
	components = append(components, config.BasePath)

	for _, s := range segments {
		if err := validSegment(s); err != nil {
			return "", err
		}
		components = append(components, s)
	}
	return filepath.Join(components...), nil
}

// ComputePath returns the artifact file path of a slot.
func ComputePath(config PathConfig, addr domain.Address) (string, error) {
	dir, err := SlotDir(config, addr)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, config.FileName), nil
}
