package gateway

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/domain"
)

// Fixed protocol values.
const (
	defaultDescription  = "Build"
	versionStatus       = "active"
	descriptionHTML     = "<p>Build</p>\n"
	descriptionMarkdown = "Build"
)

// Metadata is the box document the distribution client consumes.
type Metadata struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Versions    []MetadataVersion `json:"versions"`
}

// MetadataVersion is one version entry.
type MetadataVersion struct {
	Version             string             `json:"version"`
	Status              string             `json:"status"`
	DescriptionHTML     string             `json:"description_html"`
	DescriptionMarkdown string             `json:"description_markdown"`
	Providers           []MetadataProvider `json:"providers"`
}

// MetadataProvider is one provider and architecture pair.
type MetadataProvider struct {
	Name                string `json:"name"`
	URL                 string `json:"url"`
	Checksum            string `json:"checksum"`
	ChecksumType        string `json:"checksum_type"`
	Architecture        string `json:"architecture"`
	DefaultArchitecture bool   `json:"default_architecture"`
}

// Serializer renders box trees into client metadata.
type Serializer struct {
	logger zerolog.Logger
}

// NewSerializer creates a Serializer.
func NewSerializer(logger zerolog.Logger) *Serializer {
	return &Serializer{logger: logger.With().Str("component", "metadata").Logger()}
}

// Serialize builds the metadata document. requested is returned verbatim as
// the name; a mismatch with the canonical name is logged, never corrected.
func (s *Serializer) Serialize(tree *domain.BoxTree, requested, baseURL string) *Metadata {
	canonical := tree.Organization.Name + "/" + tree.Box.Name
	if requested != canonical {
		s.logger.Warn().
			Str("requested", requested).
			Str("canonical", canonical).
			Msg("protocol client requested non-canonical box name")
	}

	description := tree.Box.Description
	if description == "" {
		description = defaultDescription
	}

	md := &Metadata{
		Name:        requested,
		Description: description,
		Versions:    make([]MetadataVersion, 0, len(tree.Versions)),
	}

	base := strings.TrimRight(baseURL, "/")
	for _, vt := range tree.Versions {
		version := domain.StripVersionPrefix(vt.Version.VersionNumber)
		mv := MetadataVersion{
			Version:             version,
			Status:              versionStatus,
			DescriptionHTML:     descriptionHTML,
			DescriptionMarkdown: descriptionMarkdown,
			Providers:           []MetadataProvider{},
		}

		for _, pt := range vt.Providers {
			for _, at := range pt.Architectures {
				mp := MetadataProvider{
					Name:                pt.Provider.Name,
					URL:                 DownloadURL(base, tree.Organization.Name, tree.Box.Name, version, pt.Provider.Name, at.Architecture.Name),
					ChecksumType:        domain.DefaultChecksumType,
					Architecture:        at.Architecture.Name,
					DefaultArchitecture: at.Architecture.IsDefault(),
				}
				if at.File != nil {
					mp.Checksum = at.File.ChecksumValue()
					mp.ChecksumType = at.File.ChecksumTypeValue()
				}
				mv.Providers = append(mv.Providers, mp)
			}
		}
		md.Versions = append(md.Versions, mv)
	}
	return md
}

// DownloadURL returns the client-facing artifact URL.
func DownloadURL(baseURL, org, box, version, provider, arch string) string {
	return baseURL + "/" + url.PathEscape(org) +
		"/boxes/" + url.PathEscape(box) +
		"/versions/" + url.PathEscape(version) +
		"/providers/" + url.PathEscape(provider) +
		"/" + url.PathEscape(arch) +
		"/" + domain.ArtifactFileName
}
