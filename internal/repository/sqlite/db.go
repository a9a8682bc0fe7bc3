// Package sqlite provides the SQLite catalog store for embedded deployments.
// This package uses modernc.org/sqlite, a pure Go SQLite implementation that
// doesn't require CGO, making it ideal for cross-platform single-binary deployments.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/prn-tf/boxvault/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Config holds SQLite connection settings.
type Config struct {
	// Path is the path to the SQLite database file.
	// Use ":memory:" for in-memory database.
	Path string

	// MaxOpenConns sets the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns sets the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime sets the maximum connection lifetime.
	ConnMaxLifetime time.Duration

	// JournalMode sets the SQLite journal mode (WAL recommended for concurrency).
	JournalMode string

	// BusyTimeout sets the busy timeout in milliseconds.
	BusyTimeout int

	// CacheSize sets the page cache size (negative = KB, positive = pages).
	CacheSize int

	// SynchronousMode sets the synchronous mode (NORMAL, FULL, OFF).
	SynchronousMode string
}

// DefaultConfig returns a default SQLite configuration.
func DefaultConfig(dbPath string) Config {
	return Config{
		Path:            dbPath,
		MaxOpenConns:    1, // SQLite works best with single writer
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		JournalMode:     "WAL",
		BusyTimeout:     5000,  // 5 seconds
		CacheSize:       -2000, // 2MB
		SynchronousMode: "NORMAL",
	}
}

// DB wraps a sql.DB connection for SQLite.
type DB struct {
	db     *sql.DB
	logger zerolog.Logger
	path   string
}

// dsn builds the modernc connection string with per-connection pragmas.
func (c Config) dsn() string {
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(%s)&_pragma=busy_timeout(%d)&_pragma=cache_size(%d)&_pragma=synchronous(%s)",
		c.Path,
		c.JournalMode,
		c.BusyTimeout,
		c.CacheSize,
		c.SynchronousMode,
	)
}

// NewDB creates a new SQLite database connection.
func NewDB(ctx context.Context, cfg Config, logger zerolog.Logger) (*DB, error) {
	if cfg.Path != MemoryPath {
		if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Configure connection pool
	if cfg.Path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	logger.Info().
		Str("path", cfg.Path).
		Str("journal_mode", cfg.JournalMode).
		Int("max_conns", cfg.MaxOpenConns).
		Msg("connected to SQLite database")

	return &DB{
		db:     db,
		logger: logger,
		path:   cfg.Path,
	}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.logger.Info().Msg("closing SQLite connection")
	return db.db.Close()
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Health checks the database connection health.
func (db *DB) Health(ctx context.Context) error {
	return db.Ping(ctx)
}

// DB returns the underlying sql.DB.
func (db *DB) DB() *sql.DB {
	return db.db
}

// WithTx executes a function within a transaction.
// If the function returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ExecContext executes a query without returning rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns a single row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// =============================================================================
// Migrations
// =============================================================================

func setupGoose() error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	return goose.SetDialect("sqlite3")
}

// Migrate applies every pending migration.
func (db *DB) Migrate(ctx context.Context) error {
	if err := setupGoose(); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db.db)
	if err == nil {
		db.logger.Info().Int64("version", version).Msg("catalog schema up to date")
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(ctx context.Context) error {
	if err := setupGoose(); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.DownContext(ctx, db.db, "migrations"); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied schema version.
func (db *DB) SchemaVersion(ctx context.Context) (int64, error) {
	if err := setupGoose(); err != nil {
		return 0, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, db.db)
}

// Repositories builds every catalog repository on this connection.
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

var _ repository.DatabaseHealth = (*DB)(nil)
