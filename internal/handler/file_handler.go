package handler

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/auth"
	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/gateway"
	"github.com/prn-tf/boxvault/internal/service"
	"github.com/prn-tf/boxvault/internal/storage"
)

// maxFieldSize bounds a single multipart text field.
const maxFieldSize = 4 << 10

// filePartName is the multipart part carrying the payload.
const filePartName = "file"

// FileHandler serves artifact upload, download, info and deletion.
type FileHandler struct {
	files         *service.FileService
	detector      *gateway.Detector
	baseURL       string
	uploadTimeout time.Duration
	logger        zerolog.Logger
}

// FileHandlerConfig contains configuration for the file handler.
type FileHandlerConfig struct {
	Files    *service.FileService
	Detector *gateway.Detector

	// BaseURL is the public base URL. Empty derives it from each request.
	BaseURL string

	// UploadTimeout sets connection deadlines for upload requests.
	UploadTimeout time.Duration

	Logger zerolog.Logger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(config FileHandlerConfig) *FileHandler {
	return &FileHandler{
		files:         config.Files,
		detector:      config.Detector,
		baseURL:       config.BaseURL,
		uploadTimeout: config.UploadTimeout,
		logger:        config.Logger.With().Str("handler", "file").Logger(),
	}
}

// RegisterRoutes registers the file routes under an architecture prefix.
func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Put("/upload", h.Upload)
	r.Get("/download", h.Download)
	r.Get("/info", h.Info)
	r.Post("/get-download-link", h.DownloadLink)
	r.Delete("/delete", h.Delete)
}

func fileAddress(r *http.Request) domain.Address {
	return domain.Address{
		Organization: chi.URLParam(r, "organization"),
		Box:          chi.URLParam(r, "boxId"),
		Version:      chi.URLParam(r, "versionNumber"),
		Provider:     chi.URLParam(r, "providerName"),
		Architecture: chi.URLParam(r, "architectureName"),
	}
}

// =============================================================================
// Upload
// =============================================================================

type uploadResponse struct {
	Message          string         `json:"message"`
	FileName         string         `json:"fileName"`
	FileSize         int64          `json:"fileSize"`
	Checksum         *string        `json:"checksum"`
	ChecksumType     *string        `json:"checksumType"`
	DurationMs       int64          `json:"durationMs"`
	Relocated        bool           `json:"relocated"`
	Address          domain.Address `json:"address"`
	ChecksumVerified *bool          `json:"checksumVerified,omitempty"`
}

// Upload handles POST and PUT .../file/upload.
// Multipart bodies must send text fields before the file part; fields after
// it are not read because the payload is streamed straight to storage.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.uploadTimeout > 0 {
		rc := http.NewResponseController(w)
		deadline := time.Now().Add(h.uploadTimeout)
		if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			h.logger.Debug().Err(err).Msg("failed to set upload read deadline")
		}
		if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			h.logger.Debug().Err(err).Msg("failed to set upload write deadline")
		}
	}

	in := service.UploadInput{
		Address:  fileAddress(r),
		Identity: auth.GetIdentity(r.Context()),
		Size:     -1,
		Replace:  r.Method == http.MethodPut,
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		mr, err := r.MultipartReader()
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "Malformed multipart body", nil)
			return
		}
		part, err := readUploadFields(mr, &in)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "Malformed multipart body", nil)
			return
		}
		if part != nil {
			defer part.Close()
			in.Body = part
		}
	} else {
		q := r.URL.Query()
		applyUploadField(&in, "checksum", q.Get("checksum"))
		applyUploadField(&in, "checksumType", q.Get("checksumType"))
		for _, name := range relocationFields {
			applyUploadField(&in, name, q.Get(name))
		}
		if r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0 {
			in.Body = r.Body
			in.Size = r.ContentLength
		}
	}

	out, err := h.files.Upload(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, opUpload, err)
		return
	}

	message := "File uploaded successfully"
	if out.Relocated {
		message = "File replaced and relocated successfully"
	} else if in.Body == nil {
		message = "File updated successfully"
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:          message,
		FileName:         out.File.FileName,
		FileSize:         out.File.FileSize,
		Checksum:         out.File.Checksum,
		ChecksumType:     out.File.ChecksumType,
		DurationMs:       out.Duration.Milliseconds(),
		Relocated:        out.Relocated,
		Address:          out.Address,
		ChecksumVerified: out.ChecksumVerified,
	})
}

var relocationFields = []string{
	"newOrganization",
	"newBoxId",
	"newVersionNumber",
	"newProviderName",
	"newArchitectureName",
}

// readUploadFields consumes text parts until the file part, which it returns
// unread. A nil part means the body carried no payload.
func readUploadFields(mr *multipart.Reader, in *service.UploadInput) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		name := part.FormName()
		if name == filePartName {
			return part, nil
		}

		value, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
		part.Close()
		if err != nil {
			return nil, err
		}
		applyUploadField(in, name, string(value))
	}
}

func applyUploadField(in *service.UploadInput, name, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	switch name {
	case "checksum":
		in.Checksum = value
	case "checksumType":
		in.ChecksumType = value
	case "newOrganization":
		in.Target.Organization = value
	case "newBoxId":
		in.Target.Box = value
	case "newVersionNumber":
		in.Target.Version = value
	case "newProviderName":
		in.Target.Provider = value
	case "newArchitectureName":
		in.Target.Architecture = value
	}
}

// =============================================================================
// Download
// =============================================================================

// Download handles GET .../file/download.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.serveDownload(w, r, fileAddress(r), service.ResolveOptions{}, h.detector.IsClient(r))
}

// ProtocolDownload handles the client-facing .../vagrant.box route.
func (h *FileHandler) ProtocolDownload(w http.ResponseWriter, r *http.Request) {
	addr := domain.Address{
		Organization: chi.URLParam(r, "organization"),
		Box:          chi.URLParam(r, "boxId"),
		Version:      chi.URLParam(r, "versionNumber"),
		Provider:     chi.URLParam(r, "providerName"),
		Architecture: chi.URLParam(r, "architectureName"),
	}
	h.serveDownload(w, r, addr, service.ProtocolResolve, true)
}

func (h *FileHandler) serveDownload(w http.ResponseWriter, r *http.Request, addr domain.Address, opts service.ResolveOptions, protocol bool) {
	ctx := r.Context()

	d, err := h.files.OpenDownload(ctx, service.DownloadInput{
		Address:  addr,
		Identity: auth.GetIdentity(ctx),
		Token:    r.URL.Query().Get("token"),
		Client:   h.detector.IsClient(r),
		Options:  opts,
	})
	if err != nil {
		writeServiceError(w, h.logger, opDownload, err)
		return
	}
	defer d.Close()

	size := d.Artifact.Size()
	br, partial, err := parseRange(r.Header.Get("Range"), size)
	if err != nil {
		w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(size, 10))
		writeError(w, http.StatusRequestedRangeNotSatisfiable, CodeRangeNotSatisfiable, "Requested range not satisfiable", nil)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "application/octet-stream")
	header.Set("Accept-Ranges", "bytes")
	header.Set("Last-Modified", d.Artifact.ModTime().UTC().Format(http.TimeFormat))
	if protocol {
		header.Set("Content-Disposition", `attachment; filename="`+domain.ArtifactFileName+`"`)
	}

	status, start, length := http.StatusOK, int64(0), size
	if partial {
		status, start, length = http.StatusPartialContent, br.start, br.length()
		header.Set("Content-Range", br.contentRange(size))
	}
	header.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	body := storage.NewContextReader(ctx, io.NewSectionReader(d.Artifact, start, length))
	sent, err := io.Copy(w, body)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("address", d.Bound.Address.String()).
			Int64("sent", sent).
			Int64("length", length).
			Msg("download interrupted")
	}

	// Every completed stream counts, full or partial.
	h.files.RecordDownload(ctx, d, sent, err == nil)
}

// =============================================================================
// Info and download links
// =============================================================================

type infoResponse struct {
	FileName      string  `json:"fileName"`
	DownloadURL   string  `json:"downloadUrl"`
	DownloadCount int64   `json:"downloadCount"`
	Checksum      *string `json:"checksum"`
	ChecksumType  *string `json:"checksumType"`
	FileSize      int64   `json:"fileSize"`
}

// Info handles GET .../file/info.
func (h *FileHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.files.Info(r.Context(), h.linkInput(r))
	if err != nil {
		writeServiceError(w, h.logger, opInfo, err)
		return
	}
	writeJSON(w, http.StatusOK, infoResponse{
		FileName:      info.FileName,
		DownloadURL:   info.DownloadURL,
		DownloadCount: info.DownloadCount,
		Checksum:      info.Checksum,
		ChecksumType:  info.ChecksumType,
		FileSize:      info.FileSize,
	})
}

type linkResponse struct {
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// DownloadLink handles POST .../file/get-download-link.
func (h *FileHandler) DownloadLink(w http.ResponseWriter, r *http.Request) {
	link, expiresAt, err := h.files.DownloadLink(r.Context(), h.linkInput(r))
	if err != nil {
		writeServiceError(w, h.logger, opLink, err)
		return
	}
	writeJSON(w, http.StatusOK, linkResponse{DownloadURL: link, ExpiresAt: expiresAt.UTC()})
}

func (h *FileHandler) linkInput(r *http.Request) service.LinkInput {
	return service.LinkInput{
		Address:  fileAddress(r),
		Identity: auth.GetIdentity(r.Context()),
		BaseURL:  resolveBaseURL(h.baseURL, r),
	}
}

// =============================================================================
// Delete
// =============================================================================

type deleteResponse struct {
	Message          string `json:"message"`
	FileDeleted      bool   `json:"fileDeleted"`
	RecordDeleted    bool   `json:"recordDeleted"`
	DirectoryRemoved bool   `json:"directoryRemoved"`
	Partial          bool   `json:"partial"`
}

// Delete handles DELETE .../file/delete.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	res, err := h.files.Delete(r.Context(), fileAddress(r), auth.GetIdentity(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, opDelete, err)
		return
	}

	message := "File deleted successfully"
	if res.Partial {
		message = "File deletion attempted; cleanup was partial"
	}
	writeJSON(w, http.StatusOK, deleteResponse{
		Message:          message,
		FileDeleted:      res.FileDeleted,
		RecordDeleted:    res.RecordDeleted,
		DirectoryRemoved: res.DirectoryRemoved,
		Partial:          res.Partial,
	})
}

// resolveBaseURL returns the configured base URL, or one derived from the
// request scheme and host.
func resolveBaseURL(configured string, r *http.Request) string {
	if configured != "" {
		return strings.TrimRight(configured, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}
