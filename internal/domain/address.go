package domain

import (
	"fmt"
)

// Address is the five-part name chain of one artifact slot.
type Address struct {
	Organization string `json:"organization"`
	Box          string `json:"boxId"`
	Version      string `json:"versionNumber"`
	Provider     string `json:"providerName"`
	Architecture string `json:"architectureName"`
}

// String returns "org/box/version/provider/arch".
func (a Address) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", a.Organization, a.Box, a.Version, a.Provider, a.Architecture)
}

// Segments returns the address parts in hierarchy order.
func (a Address) Segments() []string {
	return []string{a.Organization, a.Box, a.Version, a.Provider, a.Architecture}
}

// Validate checks every segment's character set.
func (a Address) Validate() error {
	if a.Organization == "" {
		return NewDomainError(ErrInvalidName, "organization is required", "")
	}
	if err := ValidateBoxName(a.Box); err != nil {
		return err
	}
	if err := ValidateSegment("version number", a.Version); err != nil {
		return err
	}
	if err := ValidateSegment("provider name", a.Provider); err != nil {
		return err
	}
	return ValidateSegment("architecture name", a.Architecture)
}

// Merge returns a copy of a with every non-empty field of override applied.
func (a Address) Merge(override Address) Address {
	out := a
	if override.Organization != "" {
		out.Organization = override.Organization
	}
	if override.Box != "" {
		out.Box = override.Box
	}
	if override.Version != "" {
		out.Version = override.Version
	}
	if override.Provider != "" {
		out.Provider = override.Provider
	}
	if override.Architecture != "" {
		out.Architecture = override.Architecture
	}
	return out
}

// IsZero reports whether no field is set.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Bound is the resolved catalog chain of one address.
// File is nil when the slot holds no artifact yet.
type Bound struct {
	Address      Address
	Organization *Organization
	Box          *Box
	Version      *Version
	Provider     *Provider
	Architecture *Architecture
	File         *File
}

// BoxTree is a box with its full version, provider and architecture hierarchy.
type BoxTree struct {
	Organization *Organization
	Box          *Box
	Versions     []VersionTree
}

// VersionTree is one version of a BoxTree.
type VersionTree struct {
	Version   *Version
	Providers []ProviderTree
}

// ProviderTree is one provider of a VersionTree.
type ProviderTree struct {
	Provider      *Provider
	Architectures []ArchitectureTree
}

// ArchitectureTree is one architecture slot. File is nil for an empty slot.
type ArchitectureTree struct {
	Architecture *Architecture
	File         *File
}
