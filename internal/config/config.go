package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Storage backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendMinio = "minio"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// Blob storage for ciphertext
	Storage StorageConfig `mapstructure:"storage" json:"storage"`

	// Metadata and audit database
	Database DatabaseConfig `mapstructure:"database" json:"database"`

	// Upload policy
	Vault VaultConfig `mapstructure:"vault" json:"vault"`

	// Logging
	Log LogConfig `mapstructure:"log" json:"log"`
}

// StorageConfig selects and configures the blob store. It is handed to the
// store constructor; nothing reads storage paths from process state.
type StorageConfig struct {
	Backend     string        `mapstructure:"backend" json:"backend"`             // local, s3, minio
	MediaRoot   string        `mapstructure:"media_root" json:"media_root"`       // Base directory for local blobs
	URLPrefix   string        `mapstructure:"url_prefix" json:"url_prefix"`       // Prefix used when rendering refs
	MaxFileSize int64         `mapstructure:"max_file_size" json:"max_file_size"` // Max plaintext size in bytes
	MaxRetries  int           `mapstructure:"max_retries" json:"max_retries"`     // Retries for remote backends
	RetryDelay  time.Duration `mapstructure:"retry_delay" json:"retry_delay"`     // Initial backoff delay
	S3          S3Config      `mapstructure:"s3" json:"s3"`
	Minio       MinioConfig   `mapstructure:"minio" json:"minio"`
}

// S3Config for the AWS S3 backend. Credentials come from the default AWS chain.
type S3Config struct {
	Bucket   string `mapstructure:"bucket" json:"bucket"`
	Prefix   string `mapstructure:"prefix" json:"prefix"`
	Region   string `mapstructure:"region" json:"region"`
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
}

// MinioConfig for S3-compatible MinIO deployments.
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint" json:"endpoint"`
	AccessKey string `mapstructure:"access_key" json:"access_key"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" json:"use_ssl"`
	Bucket    string `mapstructure:"bucket" json:"bucket"`
	Region    string `mapstructure:"region" json:"region"`
}

// DatabaseConfig for the metadata store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" json:"driver"` // sqlite3, postgres
	DSN    string `mapstructure:"dsn" json:"dsn"`
}

// VaultConfig holds upload policy.
type VaultConfig struct {
	MinPasswordLength int `mapstructure:"min_password_length" json:"min_password_length"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level      string `mapstructure:"level" json:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" json:"format"`           // text, json
	File       string `mapstructure:"file" json:"file"`               // Log file path (empty = stderr)
	MaxSize    int    `mapstructure:"max_size" json:"max_size"`       // Max log file size in MB
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"` // Max number of old logs
	MaxAge     int    `mapstructure:"max_age" json:"max_age"`         // Max age in days
	Color      bool   `mapstructure:"color" json:"color"`             // Enable colored output
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".lockbox"

	return &Config{
		Storage: StorageConfig{
			Backend:     BackendLocal,
			MediaRoot:   filepath.Join(dataDir, "media"),
			URLPrefix:   "/media/",
			MaxFileSize: 100 * 1024 * 1024, // 100MB
			MaxRetries:  3,
			RetryDelay:  500 * time.Millisecond,
			S3: S3Config{
				Prefix: "vault",
			},
			Minio: MinioConfig{
				Bucket: "lockbox",
			},
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    filepath.Join(dataDir, "lockbox.db"),
		},
		Vault: VaultConfig{
			MinPasswordLength: 8,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
			Color:      true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.MediaRoot == "" {
			return errors.New("storage.media_root is required for the local backend")
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required for the s3 backend")
		}
	case BackendMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return errors.New("storage.minio.endpoint and storage.minio.bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	if c.Storage.MaxFileSize <= 0 {
		return errors.New("storage.max_file_size must be positive")
	}

	if c.Storage.MaxRetries < 0 {
		return errors.New("storage.max_retries cannot be negative")
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	if c.Vault.MinPasswordLength < 8 {
		return errors.New("vault.min_password_length must be at least 8")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	var dirs []string

	if c.Storage.Backend == BackendLocal {
		dirs = append(dirs, c.Storage.MediaRoot)
	}

	if c.Database.Driver == DriverSQLite {
		dirs = append(dirs, filepath.Dir(c.Database.DSN))
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
