package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/auth"
	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/gateway"
	"github.com/prn-tf/boxvault/internal/service"
)

// CanonicalNameHeader reports the stored organization/box name on protocol
// metadata responses.
const CanonicalNameHeader = "X-Canonical-Name"

// BoxHandler serves box lookups.
type BoxHandler struct {
	boxes      *service.BoxService
	serializer *gateway.Serializer
	baseURL    string
	logger     zerolog.Logger
}

// BoxHandlerConfig contains configuration for the box handler.
type BoxHandlerConfig struct {
	Boxes      *service.BoxService
	Serializer *gateway.Serializer
	BaseURL    string
	Logger     zerolog.Logger
}

// NewBoxHandler creates a new BoxHandler.
func NewBoxHandler(config BoxHandlerConfig) *BoxHandler {
	return &BoxHandler{
		boxes:      config.Boxes,
		serializer: config.Serializer,
		baseURL:    config.BaseURL,
		logger:     config.Logger.With().Str("handler", "box").Logger(),
	}
}

// boxView is the generic JSON projection of a box tree.
type boxView struct {
	Organization string        `json:"organization"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	IsPublic     bool          `json:"isPublic"`
	Versions     []versionView `json:"versions"`
}

type versionView struct {
	VersionNumber string         `json:"versionNumber"`
	Description   string         `json:"description"`
	Providers     []providerView `json:"providers"`
}

type providerView struct {
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Architectures []architectureView `json:"architectures"`
}

type architectureView struct {
	Name       string    `json:"name"`
	DefaultBox bool      `json:"defaultBox"`
	File       *fileView `json:"file"`
}

type fileView struct {
	FileName      string  `json:"fileName"`
	FileSize      int64   `json:"fileSize"`
	Checksum      *string `json:"checksum"`
	ChecksumType  *string `json:"checksumType"`
	DownloadCount int64   `json:"downloadCount"`
}

// Get handles GET /api/organization/{organization}/box/{boxId}. Requests
// rewritten by the protocol gateway get client metadata instead of the
// generic projection.
func (h *BoxHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pr, protocol := gateway.GetProtocolRequest(ctx)

	org := chi.URLParam(r, "organization")
	name := chi.URLParam(r, "boxId")

	tree, err := h.boxes.Tree(ctx, org, name, protocol, auth.GetIdentity(ctx))
	if err != nil {
		writeServiceError(w, h.logger, opBox, err)
		return
	}

	if protocol {
		md := h.serializer.Serialize(tree, pr.Requested(), resolveBaseURL(h.baseURL, r))
		w.Header().Set(CanonicalNameHeader, tree.Organization.Name+"/"+tree.Box.Name)
		writeJSON(w, http.StatusOK, md)
		return
	}

	writeJSON(w, http.StatusOK, projectBox(tree))
}

func projectBox(tree *domain.BoxTree) boxView {
	view := boxView{
		Organization: tree.Organization.Name,
		Name:         tree.Box.Name,
		Description:  tree.Box.Description,
		IsPublic:     tree.Box.IsPublic,
		Versions:     make([]versionView, 0, len(tree.Versions)),
	}
	for _, vt := range tree.Versions {
		vv := versionView{
			VersionNumber: vt.Version.VersionNumber,
			Description:   vt.Version.Description,
			Providers:     make([]providerView, 0, len(vt.Providers)),
		}
		for _, pt := range vt.Providers {
			pv := providerView{
				Name:          pt.Provider.Name,
				Description:   pt.Provider.Description,
				Architectures: make([]architectureView, 0, len(pt.Architectures)),
			}
			for _, at := range pt.Architectures {
				av := architectureView{Name: at.Architecture.Name, DefaultBox: at.Architecture.IsDefault()}
				if f := at.File; f != nil {
					av.File = &fileView{
						FileName:      f.FileName,
						FileSize:      f.FileSize,
						Checksum:      f.Checksum,
						ChecksumType:  f.ChecksumType,
						DownloadCount: f.DownloadCount,
					}
				}
				pv.Architectures = append(pv.Architectures, av)
			}
			vv.Providers = append(vv.Providers, pv)
		}
		view.Versions = append(view.Versions, vv)
	}
	return view
}
