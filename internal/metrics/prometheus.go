// Package metrics exports BoxVault telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "boxvault"

// Metrics holds every BoxVault collector. A nil *Metrics records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	uploadBytes     prometheus.Counter
	downloadBytes   prometheus.Counter
	operationErrors *prometheus.CounterVec
	tokensIssued    prometheus.Counter
	tokenRejections *prometheus.CounterVec
	sweptFiles      prometheus.Counter
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
// Collectors already registered on reg are reused.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{registry: reg}
	var err error

	if m.httpRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})); err != nil {
		return nil, err
	}
	if m.httpDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 30, 120, 600, 3600},
	}, []string{"route", "method"})); err != nil {
		return nil, err
	}
	if m.uploadBytes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_bytes_total",
		Help:      "Bytes durably written by completed uploads.",
	})); err != nil {
		return nil, err
	}
	if m.downloadBytes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "download_bytes_total",
		Help:      "Bytes streamed to download clients.",
	})); err != nil {
		return nil, err
	}
	if m.operationErrors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Failed artifact operations.",
	}, []string{"operation"})); err != nil {
		return nil, err
	}
	if m.tokensIssued, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Download capability tokens minted.",
	})); err != nil {
		return nil, err
	}
	if m.tokenRejections, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_rejections_total",
		Help:      "Download capability tokens rejected by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if m.sweptFiles, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swept_temp_files_total",
		Help:      "Orphaned temp uploads removed by the sweeper.",
	})); err != nil {
		return nil, err
	}

	return m, nil
}

// register registers c, returning the existing collector if one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

// Handler serves the Prometheus exposition format for the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, fmt.Sprint(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// AddUploadBytes records bytes stored by a completed upload.
func (m *Metrics) AddUploadBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.uploadBytes.Add(float64(n))
}

// AddDownloadBytes records bytes sent to a client.
func (m *Metrics) AddDownloadBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.downloadBytes.Add(float64(n))
}

// OperationError records a failed operation.
func (m *Metrics) OperationError(operation string) {
	if m == nil {
		return
	}
	m.operationErrors.WithLabelValues(operation).Inc()
}

// TokenIssued records a minted download token.
func (m *Metrics) TokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

// TokenRejected records a rejected download token.
func (m *Metrics) TokenRejected(reason string) {
	if m == nil {
		return
	}
	m.tokenRejections.WithLabelValues(reason).Inc()
}

// TempFilesSwept records removed temp uploads.
func (m *Metrics) TempFilesSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptFiles.Add(float64(n))
}
