// Package handler provides the HTTP surface of the BoxVault gateway.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/gateway"
	"github.com/prn-tf/boxvault/internal/metrics"
)

// healthTimeout bounds each health probe.
const healthTimeout = 5 * time.Second

// HealthChecker reports the health of a dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// Health implements HealthChecker.
func (f HealthCheckFunc) Health(ctx context.Context) error { return f(ctx) }

// Router handles HTTP routing for the artifact API and the client protocol.
type Router struct {
	fileHandler    *FileHandler
	boxHandler     *BoxHandler
	detector       *gateway.Detector
	authMiddleware func(http.Handler) http.Handler
	database       HealthChecker
	storage        HealthChecker
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	FileHandler    *FileHandler
	BoxHandler     *BoxHandler
	Detector       *gateway.Detector
	AuthMiddleware func(http.Handler) http.Handler
	Database       HealthChecker
	Storage        HealthChecker
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	return &Router{
		fileHandler:    config.FileHandler,
		boxHandler:     config.BoxHandler,
		detector:       config.Detector,
		authMiddleware: config.AuthMiddleware,
		database:       config.Database,
		storage:        config.Storage,
		metrics:        config.Metrics,
		logger:         config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(rt.logger, rt.metrics))
	// Client metadata requests are rewritten before routing.
	r.Use(rt.detector.Middleware)
	if rt.authMiddleware != nil {
		r.Use(rt.authMiddleware)
	}

	// Health check (no auth)
	r.Get("/health", rt.handleHealth)

	r.Route("/api/organization/{organization}/box/{boxId}", func(r chi.Router) {
		r.Get("/", rt.boxHandler.Get)
		r.Route("/version/{versionNumber}/provider/{providerName}/architecture/{architectureName}/file", rt.fileHandler.RegisterRoutes)
	})

	// Download URLs emitted in client metadata.
	r.Get("/{organization}/boxes/{boxId}/versions/{versionNumber}/providers/{providerName}/{architectureName}/vagrant.box",
		rt.fileHandler.ProtocolDownload)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy", Checks: map[string]string{}}
	status := http.StatusOK

	for name, checker := range map[string]HealthChecker{"database": rt.database, "storage": rt.storage} {
		if checker == nil {
			continue
		}
		if err := checker.Health(ctx); err != nil {
			rt.logger.Error().Err(err).Str("check", name).Msg("health check failed")
			resp.Checks[name] = "unhealthy"
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}
