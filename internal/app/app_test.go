package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/boxvault/internal/auth"
	"github.com/prn-tf/boxvault/internal/config"
	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            3000,
			ShutdownTimeout: time.Second,
			UploadTimeout:   time.Minute,
			BaseURL:         "http://boxes.test",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			Path:        filepath.Join(dir, "catalog", "boxvault.db"),
			AutoMigrate: true,
		},
		Storage: config.StorageConfig{
			RootDir:         filepath.Join(dir, "boxes"),
			MaxArtifactSize: 1 << 20,
			TempPrefix:      ".upload-",
			ArtifactLocks:   true,
		},
		Auth: config.AuthConfig{
			TokenSecret:      "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
			DownloadTokenTTL: time.Hour,
			SessionHeader:    auth.DefaultSessionHeader,
		},
		Gateway: config.GatewayConfig{ClientPrefix: "Vagrant/"},
		Cache:   config.CacheConfig{OrganizationTTL: time.Second},
		Metrics: config.MetricsConfig{Enabled: true, Port: 9091, Path: "/metrics"},
	}
}

func TestNew_SQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err = a.Catalog.EnsureChain(ctx, service.EnsureChainInput{
		Address: domain.Address{Organization: "acme", Box: "debian12", Version: "1.0.0", Provider: "virtualbox", Architecture: "amd64"},
		OwnerID: 1,
		Public:  true,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/acme/debian12", nil)
	req.Header.Set("User-Agent", "Vagrant/2.4.1")
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"name":"acme/debian12"`)
}

func TestNew_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis = config.RedisConfig{Enabled: true, Host: mr.Host(), Port: mustPort(t, mr.Port()), PoolSize: 2, DialTimeout: time.Second}

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestNew_WithoutArtifactLocks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.ArtifactLocks = false

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mysql"
	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 0
	cfg.Metrics.Enabled = false
	cfg.Sweeper = config.SweeperConfig{Enabled: true, Interval: time.Hour, GracePeriod: 2 * time.Minute}

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	assert.Equal(t, zerolog.InfoLevel, NewLogger(config.LoggingConfig{Level: "bogus"}, &buf).GetLevel())
}

func mustPort(t *testing.T, s string) int {
	t.Helper()
	port, err := strconv.Atoi(s)
	require.NoError(t, err)
	return port
}
