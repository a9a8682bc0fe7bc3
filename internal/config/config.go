// Package config provides configuration management for the BoxVault server.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
// It is loaded once at startup and passed by reference into every component;
// nothing in the process mutates it afterwards.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// UploadTimeout bounds a single artifact upload. Artifacts can be tens of
	// gigabytes, so the default is 24 hours.
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`

	// BaseURL is the public URL used when building download links and
	// protocol metadata. When empty it is derived from the request.
	BaseURL string `mapstructure:"base_url"`
}

// Addr returns the listen address in host:port format.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds catalog database connection settings.
// Supports both PostgreSQL and SQLite backends.
type DatabaseConfig struct {
	// Driver specifies the database driver: "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`

	// PostgreSQL settings (used when Driver is "postgres")
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// SQLite settings (used when Driver is "sqlite")
	Path            string `mapstructure:"path"`             // Path to SQLite database file
	JournalMode     string `mapstructure:"journal_mode"`     // WAL, DELETE, TRUNCATE, etc.
	BusyTimeout     int    `mapstructure:"busy_timeout"`     // Milliseconds to wait for locks
	CacheSize       int    `mapstructure:"cache_size"`       // Page cache size (negative = KB)
	SynchronousMode string `mapstructure:"synchronous_mode"` // NORMAL, FULL, OFF

	// AutoMigrate applies pending migrations when the server starts.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Only valid when Driver is "postgres".
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// IsEmbedded returns true if using an embedded database (SQLite).
func (c DatabaseConfig) IsEmbedded() bool {
	return c.Driver == "sqlite"
}

// RedisConfig holds Redis connection settings.
// Redis is only used for distributed per-artifact locks.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds artifact storage settings.
type StorageConfig struct {
	// RootDir is the root of the organization/box/version/provider/architecture tree.
	RootDir string `mapstructure:"root_dir"`

	// MaxArtifactSize is the upload ceiling in bytes.
	MaxArtifactSize int64 `mapstructure:"max_artifact_size"`

	// TempPrefix prefixes in-flight upload files inside the target directory.
	TempPrefix string `mapstructure:"temp_prefix"`

	// ArtifactLocks serializes upload, replace and delete per artifact path.
	// Disabling it reproduces unserialized mutation.
	ArtifactLocks bool `mapstructure:"artifact_locks"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	// TokenSecret is the hex-encoded 32-byte master secret. Download and
	// session signing keys are derived from it.
	TokenSecret string `mapstructure:"token_secret"`

	// DownloadTokenTTL is the lifetime of a download capability token.
	DownloadTokenTTL time.Duration `mapstructure:"download_token_ttl"`

	// SessionHeader is the header carrying the caller's session token.
	SessionHeader string `mapstructure:"session_header"`
}

// GatewayConfig holds distribution-tool protocol settings.
type GatewayConfig struct {
	// ClientPrefix is the User-Agent prefix identifying the protocol client.
	ClientPrefix string `mapstructure:"client_prefix"`
}

// CacheConfig holds lookup cache settings.
type CacheConfig struct {
	OrganizationTTL time.Duration `mapstructure:"organization_ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if metrics collection is active.
	Enabled bool `mapstructure:"enabled"`

	// Port is the port for the metrics HTTP server.
	Port int `mapstructure:"port"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// SweeperConfig holds settings for removing abandoned upload temp files.
type SweeperConfig struct {
	// Enabled determines if the sweeper runs. Off by default: abandoned
	// partial uploads are left on disk unless an operator opts in.
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often to scan the storage tree.
	Interval time.Duration `mapstructure:"interval"`

	// GracePeriod is the minimum age of a temp file before removal.
	// It must exceed server.upload_timeout so live uploads are never touched.
	GracePeriod time.Duration `mapstructure:"grace_period"`

	// DryRun logs what would be deleted without actually deleting.
	DryRun bool `mapstructure:"dry_run"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values.
// Environment variables are prefixed with BOXVAULT_ and use _ as separator.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("BOXVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/boxvault")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is acceptable - use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0*time.Second) // downloads are long-lived streams
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.upload_timeout", 24*time.Hour)
	v.SetDefault("server.base_url", "")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "boxvault")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "boxvault")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)
	v.SetDefault("database.path", "./data/boxvault.db")
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.busy_timeout", 5000)
	v.SetDefault("database.cache_size", -2000)
	v.SetDefault("database.synchronous_mode", "NORMAL")
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.enabled", false)

	// Storage defaults
	v.SetDefault("storage.root_dir", "./data/boxes")
	v.SetDefault("storage.max_artifact_size", int64(100)*1024*1024*1024) // 100GB
	v.SetDefault("storage.temp_prefix", ".upload-")
	v.SetDefault("storage.artifact_locks", true)

	// Auth defaults
	v.SetDefault("auth.token_secret", "") // Must be provided
	v.SetDefault("auth.download_token_ttl", time.Hour)
	v.SetDefault("auth.session_header", "x-access-token")

	// Gateway defaults
	v.SetDefault("gateway.client_prefix", "Vagrant/")

	// Cache defaults
	v.SetDefault("cache.organization_ttl", 30*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9091)
	v.SetDefault("metrics.path", "/metrics")

	// Sweeper defaults
	v.SetDefault("sweeper.enabled", false)
	v.SetDefault("sweeper.interval", time.Hour)
	v.SetDefault("sweeper.grace_period", 48*time.Hour)
	v.SetDefault("sweeper.dry_run", false)
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.UploadTimeout <= 0 {
		return fmt.Errorf("server.upload_timeout must be positive")
	}

	validDrivers := map[string]bool{"postgres": true, "sqlite": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be 'postgres' or 'sqlite'")
	}

	if c.Database.Driver == "postgres" {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required for postgres driver")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required for postgres driver")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database is required for postgres driver")
		}
	} else if c.Database.Driver == "sqlite" {
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite driver")
		}
	}

	if c.Storage.RootDir == "" {
		return fmt.Errorf("storage.root_dir is required")
	}
	if c.Storage.MaxArtifactSize <= 0 {
		return fmt.Errorf("storage.max_artifact_size must be positive")
	}
	if c.Storage.TempPrefix == "" || strings.ContainsAny(c.Storage.TempPrefix, `/\`) {
		return fmt.Errorf("storage.temp_prefix must be a non-empty file name prefix")
	}

	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret is required")
	}
	if len(c.Auth.TokenSecret) != 64 {
		return fmt.Errorf("auth.token_secret must be 64 hex characters")
	}
	if c.Auth.DownloadTokenTTL <= 0 {
		return fmt.Errorf("auth.download_token_ttl must be positive")
	}

	if c.Gateway.ClientPrefix == "" {
		return fmt.Errorf("gateway.client_prefix is required")
	}

	if c.Sweeper.Enabled && c.Sweeper.GracePeriod <= c.Server.UploadTimeout {
		return fmt.Errorf("sweeper.grace_period must exceed server.upload_timeout")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
