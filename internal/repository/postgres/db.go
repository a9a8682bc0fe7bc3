// Package postgres provides the PostgreSQL catalog store for server deployments.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/config"
	"github.com/prn-tf/boxvault/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a pgx connection pool with additional functionality.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB creates a new database connection pool.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Configure pool settings
	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	// Configure connection settings
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	// Add query tracer for debugging (optional)
	if logger.GetLevel() <= zerolog.DebugLevel {
		poolConfig.ConnConfig.Tracer = &queryTracer{logger: logger}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Int("max_conns", cfg.MaxOpenConns).
		Msg("connected to PostgreSQL")

	return &DB{
		Pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	db.Pool.Close()
	db.logger.Info().Msg("database connection pool closed")
	return nil
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Health checks the database connection health.
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// =============================================================================
// Migrations
// =============================================================================

func setupGoose() error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	return goose.SetDialect("pgx")
}

// Migrate applies every pending migration.
func (db *DB) Migrate(ctx context.Context) error {
	if err := setupGoose(); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	db.logger.Info().Msg("catalog schema up to date")
	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(ctx context.Context) error {
	if err := setupGoose(); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	if err := goose.DownContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied schema version.
func (db *DB) SchemaVersion(ctx context.Context) (int64, error) {
	if err := setupGoose(); err != nil {
		return 0, fmt.Errorf("failed to set goose dialect: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	return goose.GetDBVersionContext(ctx, sqlDB)
}

// Repositories builds every catalog repository on this pool.
func (db *DB) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Organization:   NewOrganizationRepository(db),
		Membership:     NewMembershipRepository(db),
		ServiceAccount: NewServiceAccountRepository(db),
		Box:            NewBoxRepository(db),
		Version:        NewVersionRepository(db),
		Provider:       NewProviderRepository(db),
		Architecture:   NewArchitectureRepository(db),
		File:           NewFileRepository(db),
	}
}

// =============================================================================
// Error helpers
// =============================================================================

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgCode(err) == uniqueViolation }

func isForeignKeyViolation(err error) bool { return pgCode(err) == foreignKeyViolation }

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// queryTracer implements pgx.QueryTracer for debug logging.
type queryTracer struct {
	logger zerolog.Logger
}

type traceQueryCtxKey struct{}

type traceQueryData struct {
	sql       string
	args      []any
	startTime time.Time
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceQueryCtxKey{}, &traceQueryData{
		sql:       data.SQL,
		args:      data.Args,
		startTime: time.Now(),
	})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	queryData, ok := ctx.Value(traceQueryCtxKey{}).(*traceQueryData)
	if !ok {
		return
	}

	duration := time.Since(queryData.startTime)

	event := t.logger.Debug().
		Str("sql", queryData.sql).
		Dur("duration", duration).
		Str("command_tag", data.CommandTag.String())

	if data.Err != nil {
		event.Err(data.Err)
	}

	event.Msg("query executed")
}

var _ repository.DatabaseHealth = (*DB)(nil)
