package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LOCKBOX_LOG_LEVEL.
const EnvPrefix = "LOCKBOX"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty path searches the default
// locations.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		v:          viper.New(),
	}
}

// Load reads configuration from defaults, file and environment, in that
// order of precedence (last wins).
func (l *Loader) Load() (*Config, error) {
	v := l.v
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		v.SetConfigName("lockbox")
		for _, path := range l.defaultPaths() {
			v.AddConfigPath(path)
		}

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config file %s: %w", v.ConfigFileUsed(), err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ConfigFileUsed returns the file the last Load read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "lockbox"),
			filepath.Join(homeDir, ".lockbox"),
		)
	}

	return paths
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]any{
		"storage.backend":           cfg.Storage.Backend,
		"storage.media_root":        cfg.Storage.MediaRoot,
		"storage.url_prefix":        cfg.Storage.URLPrefix,
		"storage.max_file_size":     cfg.Storage.MaxFileSize,
		"storage.max_retries":       cfg.Storage.MaxRetries,
		"storage.retry_delay":       cfg.Storage.RetryDelay,
		"storage.s3.bucket":         cfg.Storage.S3.Bucket,
		"storage.s3.prefix":         cfg.Storage.S3.Prefix,
		"storage.s3.region":         cfg.Storage.S3.Region,
		"storage.s3.endpoint":       cfg.Storage.S3.Endpoint,
		"storage.minio.endpoint":    cfg.Storage.Minio.Endpoint,
		"storage.minio.access_key":  cfg.Storage.Minio.AccessKey,
		"storage.minio.secret_key":  cfg.Storage.Minio.SecretKey,
		"storage.minio.use_ssl":     cfg.Storage.Minio.UseSSL,
		"storage.minio.bucket":      cfg.Storage.Minio.Bucket,
		"storage.minio.region":      cfg.Storage.Minio.Region,
		"database.driver":           cfg.Database.Driver,
		"database.dsn":              cfg.Database.DSN,
		"vault.min_password_length": cfg.Vault.MinPasswordLength,
		"log.level":                 cfg.Log.Level,
		"log.format":                cfg.Log.Format,
		"log.file":                  cfg.Log.File,
		"log.max_size":              cfg.Log.MaxSize,
		"log.max_backups":           cfg.Log.MaxBackups,
		"log.max_age":               cfg.Log.MaxAge,
		"log.color":                 cfg.Log.Color,
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// SaveExample writes an example YAML config file.
func SaveExample(path string) error {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return os.Chmod(path, 0600)
}
