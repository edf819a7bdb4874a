// Package config provides unified configuration for the OptiView service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the OptiView service and CLI.
type Config struct {
	// DataDir is the base directory for all local data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Table parsing configuration
	Table TableConfig `json:"table" yaml:"table"`

	// Snapshots configuration
	Snapshots SnapshotConfig `json:"snapshots" yaml:"snapshots"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Limits guard against runaway inputs
	Limits LimitsConfig `json:"limits" yaml:"limits"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// MetricsEnabled controls the /metrics endpoint
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`
}

// TableConfig holds iteration-table parsing configuration.
type TableConfig struct {
	// Delimiter is the single-character field separator, default ","
	Delimiter string `json:"delimiter" yaml:"delimiter"`
}

// SnapshotConfig holds snapshot store configuration.
type SnapshotConfig struct {
	// Dir is the directory snapshot files are written to
	Dir string `json:"dir" yaml:"dir"`

	// CatalogPath is the snapshot catalog database path
	CatalogPath string `json:"catalog_path" yaml:"catalog_path"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage base path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// LimitsConfig bounds accepted inputs.
type LimitsConfig struct {
	// MaxRows caps the number of iteration rows per study; 0 = unlimited
	MaxRows int `json:"max_rows" yaml:"max_rows"`

	// MaxSessions caps concurrently open sessions
	MaxSessions int `json:"max_sessions" yaml:"max_sessions"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Verbose enables debug-level logging
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/optiview",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MetricsEnabled:  true,
		},
		Table: TableConfig{
			Delimiter: ",",
		},
		Snapshots: SnapshotConfig{
			Dir:         "",
			CatalogPath: "",
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
		Limits: LimitsConfig{
			MaxRows:     200_000,
			MaxSessions: 64,
		},
		Logging: LoggingConfig{
			Verbose: false,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/optiview"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}

	if c.Snapshots.Dir == "" {
		c.Snapshots.Dir = filepath.Join(c.DataDir, "snapshots")
	}
	if c.Snapshots.CatalogPath == "" {
		c.Snapshots.CatalogPath = filepath.Join(c.DataDir, "catalog.db")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if len([]rune(c.Table.Delimiter)) != 1 {
		return fmt.Errorf("table.delimiter must be a single character, got %q", c.Table.Delimiter)
	}

	if c.Limits.MaxRows < 0 {
		return fmt.Errorf("limits.max_rows must be >= 0, got %d", c.Limits.MaxRows)
	}
	if c.Limits.MaxSessions < 1 {
		return fmt.Errorf("limits.max_sessions must be >= 1, got %d", c.Limits.MaxSessions)
	}

	return nil
}

// DelimiterRune returns the table delimiter as a rune.
func (c *Config) DelimiterRune() rune {
	return []rune(c.Table.Delimiter)[0]
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the OPTIVIEW_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("OPTIVIEW_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Server configuration
	if v := os.Getenv("OPTIVIEW_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("OPTIVIEW_SERVER_METRICS_ENABLED"); v != "" {
		cfg.Server.MetricsEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("OPTIVIEW_SERVER_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Table configuration
	if v := os.Getenv("OPTIVIEW_TABLE_DELIMITER"); v != "" {
		cfg.Table.Delimiter = v
	}

	// Snapshot configuration
	if v := os.Getenv("OPTIVIEW_SNAPSHOTS_DIR"); v != "" {
		cfg.Snapshots.Dir = v
	}
	if v := os.Getenv("OPTIVIEW_SNAPSHOTS_CATALOG_PATH"); v != "" {
		cfg.Snapshots.CatalogPath = v
	}

	// Storage configuration
	if v := os.Getenv("OPTIVIEW_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("OPTIVIEW_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("OPTIVIEW_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("OPTIVIEW_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("OPTIVIEW_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("OPTIVIEW_S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}

	// Limits
	if v := os.Getenv("OPTIVIEW_LIMITS_MAX_ROWS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Limits.MaxRows)
	}
	if v := os.Getenv("OPTIVIEW_LIMITS_MAX_SESSIONS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Limits.MaxSessions)
	}

	// Logging
	if v := os.Getenv("OPTIVIEW_VERBOSE"); v != "" {
		cfg.Logging.Verbose = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Storage.Path,
		c.Snapshots.Dir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
