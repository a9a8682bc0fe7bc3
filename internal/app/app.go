// Package app wires configuration into a running BoxVault server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/prn-tf/boxvault/internal/auth"
	"github.com/prn-tf/boxvault/internal/cache/memory"
	rediscache "github.com/prn-tf/boxvault/internal/cache/redis"
	"github.com/prn-tf/boxvault/internal/config"
	"github.com/prn-tf/boxvault/internal/gateway"
	"github.com/prn-tf/boxvault/internal/handler"
	"github.com/prn-tf/boxvault/internal/lock"
	"github.com/prn-tf/boxvault/internal/metrics"
	"github.com/prn-tf/boxvault/internal/repository"
	"github.com/prn-tf/boxvault/internal/service"
	"github.com/prn-tf/boxvault/internal/storage"
)

// redisKeyPrefix namespaces BoxVault keys in a shared Redis.
const redisKeyPrefix = "boxvault:"

// App holds every long-lived component of the server.
type App struct {
	config *config.Config
	logger zerolog.Logger

	db       Database
	redis    goredis.UniversalClient
	memCache *memory.Cache
	metrics  *metrics.Metrics

	// Sessions issues and parses caller session tokens.
	Sessions *auth.SessionManager

	// Catalog creates catalog hierarchy, memberships and service accounts.
	Catalog *service.CatalogService

	server        *http.Server
	metricsServer *http.Server
	sweeper       *service.Sweeper
}

// New builds the application from configuration. Close releases what it opens.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{config: cfg, logger: logger}

	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	db, err := OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	repos := *db.Repositories()

	var (
		locker lock.Locker
		cache  repository.Cache
	)
	if cfg.Redis.Enabled {
		client := goredis.NewClient(&goredis.Options{
			Addr:        cfg.Redis.Addr(),
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		a.redis = client
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = lock.NewRedisLocker(client)
		cache = rediscache.NewCache(client, redisKeyPrefix+"cache:")
		logger.Info().Str("addr", cfg.Redis.Addr()).Msg("using redis for locks and lookup cache")
	} else {
		a.memCache = memory.NewCache(time.Minute)
		locker = lock.NewMemoryLocker()
		cache = a.memCache
	}
	if !cfg.Storage.ArtifactLocks {
		logger.Warn().Msg("artifact locks disabled; concurrent writes to one path are not serialized")
		locker = lock.NewNoOpLocker()
	}

	if cfg.Metrics.Enabled {
		m, err := metrics.New(prometheus.NewRegistry())
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		a.metrics = m
	}

	store, err := storage.NewFilesystemStore(storage.FilesystemConfig{
		RootDir:    cfg.Storage.RootDir,
		TempPrefix: cfg.Storage.TempPrefix,
	}, logger)
	if err != nil {
		return nil, err
	}

	keys, err := auth.NewKeys(cfg.Auth.TokenSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid auth.token_secret: %w", err)
	}
	a.Sessions = auth.NewSessionManager(keys.Session)
	tokens := auth.NewDownloadTokens(keys.Download, cfg.Auth.DownloadTokenTTL)

	resolver := service.NewResolver(repos, cache, cfg.Cache.OrganizationTTL, logger)
	authorizer := service.NewAuthorizer(repos.Membership, repos.ServiceAccount)
	files := service.NewFileService(resolver, authorizer, repos.File, store, locker, tokens, a.metrics, logger, service.FileServiceConfig{
		MaxArtifactSize: cfg.Storage.MaxArtifactSize,
		UploadTimeout:   cfg.Server.UploadTimeout,
		Lock:            lock.DefaultOptions,
	})
	boxes := service.NewBoxService(resolver, authorizer, repos, logger)
	a.Catalog = service.NewCatalogService(repos, logger)

	detector := gateway.NewDetector(cfg.Gateway.ClientPrefix, logger)
	authConfig := auth.DefaultConfig()
	authConfig.SessionHeader = cfg.Auth.SessionHeader

	router := handler.NewRouter(handler.RouterConfig{
		FileHandler: handler.NewFileHandler(handler.FileHandlerConfig{
			Files:         files,
			Detector:      detector,
			BaseURL:       cfg.Server.BaseURL,
			UploadTimeout: cfg.Server.UploadTimeout,
			Logger:        logger,
		}),
		BoxHandler: handler.NewBoxHandler(handler.BoxHandlerConfig{
			Boxes:      boxes,
			Serializer: gateway.NewSerializer(logger),
			BaseURL:    cfg.Server.BaseURL,
			Logger:     logger,
		}),
		Detector:       detector,
		AuthMiddleware: auth.Middleware(a.Sessions, authConfig, logger),
		Database:       db,
		Storage:        handler.HealthCheckFunc(store.HealthCheck),
		Metrics:        a.metrics,
		Logger:         logger,
	})

	a.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if a.metrics != nil {
		mr := chi.NewRouter()
		mr.Method(http.MethodGet, cfg.Metrics.Path, a.metrics.Handler())
		a.metricsServer = &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Metrics.Port)),
			Handler:           mr,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	if cfg.Sweeper.Enabled {
		a.sweeper = service.NewSweeper(store, locker, a.metrics, logger, service.SweeperConfig{
			Interval:    cfg.Sweeper.Interval,
			GracePeriod: cfg.Sweeper.GracePeriod,
			DryRun:      cfg.Sweeper.DryRun,
		})
	}

	ok = true
	return a, nil
}

// Handler returns the API handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves until ctx is done or a listener fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info().Str("addr", a.server.Addr).Msg("HTTP server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.metricsServer != nil {
		g.Go(func() error {
			a.logger.Info().Str("addr", a.metricsServer.Addr).Str("path", a.config.Metrics.Path).Msg("metrics server listening")
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if a.sweeper != nil {
		g.Go(func() error {
			return a.sweeper.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
		if a.metricsServer != nil {
			if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// Close releases the database, Redis client and cache.
func (a *App) Close() error {
	var errs []error
	if a.memCache != nil {
		a.memCache.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
