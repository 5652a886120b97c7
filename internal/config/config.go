// Package config provides dataset configuration for kite: the partition
// descriptor, storage, manifest and writer settings.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dpblh/kite/pkg/types"
)

// Compression codecs for written partition files.
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionZstd   = "zstd"
)

// Config holds the configuration of one dataset and its storage.
type Config struct {
	// DataDir is the base directory for local files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Dataset describes the dataset and its partitioning
	Dataset DatasetConfig `json:"dataset" yaml:"dataset"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Manifest configuration
	Manifest ManifestConfig `json:"manifest" yaml:"manifest"`

	// Writer configuration
	Writer WriterConfig `json:"writer" yaml:"writer"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// DatasetConfig describes a dataset.
type DatasetConfig struct {
	// Name identifies the dataset; it is the top-level storage prefix
	Name string `json:"name" yaml:"name"`

	// Format of the data files; only jsonl is supported
	Format string `json:"format" yaml:"format"`

	// Compression is one of none, snappy, zstd
	Compression string `json:"compression" yaml:"compression"`

	// Schema optionally describes the records; when set, input records are
	// decoded into schema-described records
	Schema *types.Schema `json:"schema,omitempty" yaml:"schema,omitempty"`

	// Partitioning lists the field transforms, outermost first. Empty means
	// the dataset is unpartitioned.
	Partitioning []FieldSpec `json:"partitioning" yaml:"partitioning"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
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

	// UsePathStyle enables path-style addressing (MinIO, LocalStack)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// ManifestConfig holds the partition catalog configuration.
type ManifestConfig struct {
	// Path is the SQLite catalog file
	Path string `json:"path" yaml:"path"`
}

// WriterConfig holds dataset writer configuration.
type WriterConfig struct {
	// Concurrency bounds the number of partitions written in parallel
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// TempDir holds files before they are uploaded
	TempDir string `json:"temp_dir" yaml:"temp_dir"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level"`

	// Development switches to human-readable console output
	Development bool `json:"development" yaml:"development"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/kite",
		Dataset: DatasetConfig{
			Format:      "jsonl",
			Compression: CompressionSnappy,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Writer: WriterConfig{
			Concurrency: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/kite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Manifest.Path == "" {
		c.Manifest.Path = filepath.Join(c.DataDir, "manifest.db")
	}
	if c.Writer.TempDir == "" {
		c.Writer.TempDir = filepath.Join(c.DataDir, "tmp")
	}
	if c.Dataset.Format == "" {
		c.Dataset.Format = "jsonl"
	}
	if c.Dataset.Compression == "" {
		c.Dataset.Compression = CompressionSnappy
	}
}

// Validate validates the configuration, including the partition descriptor.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Dataset.Name == "" {
		return fmt.Errorf("dataset.name is required")
	}
	if strings.ContainsAny(c.Dataset.Name, "/\\") {
		return fmt.Errorf("dataset.name must not contain path separators: %q", c.Dataset.Name)
	}
	if c.Dataset.Format != "jsonl" {
		return fmt.Errorf("invalid dataset.format: %s (must be jsonl)", c.Dataset.Format)
	}
	switch c.Dataset.Compression {
	case CompressionNone, CompressionSnappy, CompressionZstd:
	default:
		return fmt.Errorf("invalid dataset.compression: %s (must be none, snappy, or zstd)", c.Dataset.Compression)
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Writer.Concurrency < 1 {
		return fmt.Errorf("writer.concurrency must be >= 1, got %d", c.Writer.Concurrency)
	}

	if _, err := c.Strategy(); err != nil {
		return fmt.Errorf("dataset.partitioning: %w", err)
	}

	return nil
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
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the KITE_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("KITE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("KITE_DATASET"); v != "" {
		cfg.Dataset.Name = v
	}
	if v := os.Getenv("KITE_COMPRESSION"); v != "" {
		cfg.Dataset.Compression = v
	}

	// Storage configuration
	if v := os.Getenv("KITE_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("KITE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("KITE_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("KITE_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("KITE_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	if v := os.Getenv("KITE_MANIFEST_PATH"); v != "" {
		cfg.Manifest.Path = v
	}

	// Writer configuration
	if v := os.Getenv("KITE_WRITER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Writer.Concurrency = n
		}
	}

	if v := os.Getenv("KITE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// EnsureDirectories creates the local directories the configuration uses.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.Writer.TempDir, filepath.Dir(c.Manifest.Path)}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
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
