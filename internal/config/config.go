// Package config provides configuration for the tsdemo commands.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/tsdemo/tsdemo/internal/errors"
)

// Config holds the configuration shared by every tsdemo command.
type Config struct {
	// DataDir holds the ledger database and downloaded reports
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// AWS client configuration
	AWS AWSConfig `json:"aws" yaml:"aws"`

	// Timestream resource configuration
	Timestream TimestreamConfig `json:"timestream" yaml:"timestream"`

	// Query runner configuration
	Query QueryConfig `json:"query" yaml:"query"`

	// Sample data ingestion configuration
	Ingest IngestConfig `json:"ingest" yaml:"ingest"`

	// Output sink configuration
	Output OutputConfig `json:"output" yaml:"output"`

	// Logging configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// AWSConfig holds AWS client settings.
type AWSConfig struct {
	Region string `json:"region" yaml:"region"`

	// QueryEndpoint overrides the Timestream query endpoint
	QueryEndpoint string `json:"query_endpoint" yaml:"query_endpoint"`

	// WriteEndpoint overrides the Timestream write endpoint
	WriteEndpoint string `json:"write_endpoint" yaml:"write_endpoint"`

	// MaxAttempts is the SDK retry ceiling
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// RequestTimeout bounds the wait for response headers
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// TimestreamConfig names the database and table and their retention.
type TimestreamConfig struct {
	Database string `json:"database" yaml:"database"`

	Table string `json:"table" yaml:"table"`

	// MemoryRetentionHours is the memory store retention period
	MemoryRetentionHours int64 `json:"memory_retention_hours" yaml:"memory_retention_hours"`

	// MagneticRetentionDays is the magnetic store retention period
	MagneticRetentionDays int64 `json:"magnetic_retention_days" yaml:"magnetic_retention_days"`

	// RejectedBucket receives magnetic store rejected-record reports.
	// The bucket must already exist; tsdemo never creates or deletes buckets.
	RejectedBucket string `json:"rejected_bucket" yaml:"rejected_bucket"`

	// RejectedPrefix is the key prefix for rejected-record reports
	RejectedPrefix string `json:"rejected_prefix" yaml:"rejected_prefix"`
}

// QueryConfig holds query runner settings.
type QueryConfig struct {
	// MaxRows is the page size requested from the service (1-1000)
	MaxRows int32 `json:"max_rows" yaml:"max_rows"`

	// MaxDepth bounds the nesting depth the decoder accepts
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// Workers is the number of goroutines rendering a page
	Workers int `json:"workers" yaml:"workers"`

	// Host is the hostname the sample queries filter on
	Host string `json:"host" yaml:"host"`
}

// IngestConfig holds sample data settings.
type IngestConfig struct {
	// BatchSize is the number of records per WriteRecords call (1-100)
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Hosts is the number of simulated hosts
	Hosts int `json:"hosts" yaml:"hosts"`

	// PointsPerHost is the number of records generated per host
	PointsPerHost int `json:"points_per_host" yaml:"points_per_host"`

	// Interval is the spacing between a host's records
	Interval time.Duration `json:"interval" yaml:"interval"`

	// Seed makes generated data reproducible; zero picks a random seed
	Seed int64 `json:"seed" yaml:"seed"`
}

// OutputConfig selects where query output goes.
type OutputConfig struct {
	// File is the local output file; empty disables it
	File string `json:"file" yaml:"file"`

	// Stdout echoes output to standard output
	Stdout bool `json:"stdout" yaml:"stdout"`

	// Upload configuration
	Upload UploadConfig `json:"upload" yaml:"upload"`
}

// UploadConfig configures uploading query output to S3.
type UploadConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	Bucket string `json:"bucket" yaml:"bucket"`

	Prefix string `json:"prefix" yaml:"prefix"`

	// Compress snappy-encodes uploaded output
	Compress bool `json:"compress" yaml:"compress"`

	// Endpoint is an optional custom S3 endpoint (for MinIO, LocalStack, etc.)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`

	// Pretty enables human-readable console output
	Pretty bool `json:"pretty" yaml:"pretty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/tsdemo",
		AWS: AWSConfig{
			Region:         "us-east-1",
			MaxAttempts:    10,
			RequestTimeout: 20 * time.Second,
		},
		Timestream: TimestreamConfig{
			Database:              "devops_multi_sample_application",
			Table:                 "host_metrics_sample_application",
			MemoryRetentionHours:  24,
			MagneticRetentionDays: 7 * 365,
			RejectedPrefix:        "rejected/",
		},
		Query: QueryConfig{
			MaxRows:  200,
			MaxDepth: 32,
			Workers:  4,
			Host:     "host-24Gju",
		},
		Ingest: IngestConfig{
			BatchSize:     100,
			Hosts:         10,
			PointsPerHost: 120,
			Interval:      15 * time.Second,
		},
		Output: OutputConfig{
			File:   "query_results.log",
			Stdout: true,
			Upload: UploadConfig{
				Prefix: "query-results",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Resolve fills derived defaults.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/tsdemo"
	}
	if c.Output.Upload.Enabled && c.Output.Upload.Bucket == "" {
		c.Output.Upload.Bucket = c.Timestream.RejectedBucket
	}
}

// LedgerPath returns the path to the ledger database.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// ReportsDir returns the directory rejected-record reports are downloaded to.
func (c *Config) ReportsDir() string {
	return filepath.Join(c.DataDir, "reports")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return apperrors.NewValidationError(apperrors.CodeInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.DataDir == "" {
		return invalid("data_dir is required")
	}
	if c.AWS.Region == "" {
		return invalid("aws.region is required")
	}
	if c.AWS.MaxAttempts < 0 {
		return invalid("aws.max_attempts must not be negative, got %d", c.AWS.MaxAttempts)
	}
	if c.Timestream.Database == "" {
		return invalid("timestream.database is required")
	}
	if c.Timestream.Table == "" {
		return invalid("timestream.table is required")
	}
	if c.Timestream.MemoryRetentionHours < 1 {
		return invalid("timestream.memory_retention_hours must be positive, got %d", c.Timestream.MemoryRetentionHours)
	}
	if c.Timestream.MagneticRetentionDays < 1 {
		return invalid("timestream.magnetic_retention_days must be positive, got %d", c.Timestream.MagneticRetentionDays)
	}
	if c.Query.MaxRows < 1 || c.Query.MaxRows > 1000 {
		return invalid("query.max_rows must be between 1 and 1000, got %d", c.Query.MaxRows)
	}
	if c.Query.MaxDepth < 1 {
		return invalid("query.max_depth must be positive, got %d", c.Query.MaxDepth)
	}
	if c.Query.Workers < 1 {
		return invalid("query.workers must be positive, got %d", c.Query.Workers)
	}
	if c.Ingest.BatchSize < 1 || c.Ingest.BatchSize > 100 {
		return invalid("ingest.batch_size must be between 1 and 100, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.Hosts < 1 || c.Ingest.PointsPerHost < 1 {
		return invalid("ingest.hosts and ingest.points_per_host must be positive")
	}
	if c.Output.Upload.Enabled && c.Output.Upload.Bucket == "" {
		return invalid("output.upload.bucket is required when upload is enabled")
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return invalid("invalid log level: %s (must be trace, debug, info, warn, or error)", c.Log.Level)
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
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides configuration from TSDEMO_* environment variables.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("TSDEMO_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// AWS configuration
	if v := os.Getenv("TSDEMO_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("TSDEMO_QUERY_ENDPOINT"); v != "" {
		cfg.AWS.QueryEndpoint = v
	}
	if v := os.Getenv("TSDEMO_WRITE_ENDPOINT"); v != "" {
		cfg.AWS.WriteEndpoint = v
	}
	if v := os.Getenv("TSDEMO_MAX_ATTEMPTS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.AWS.MaxAttempts)
	}
	if v := os.Getenv("TSDEMO_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AWS.RequestTimeout = d
		}
	}

	// Timestream configuration
	if v := os.Getenv("TSDEMO_DATABASE"); v != "" {
		cfg.Timestream.Database = v
	}
	if v := os.Getenv("TSDEMO_TABLE"); v != "" {
		cfg.Timestream.Table = v
	}
	if v := os.Getenv("TSDEMO_REJECTED_BUCKET"); v != "" {
		cfg.Timestream.RejectedBucket = v
	}

	// Query configuration
	if v := os.Getenv("TSDEMO_QUERY_MAX_ROWS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Query.MaxRows)
	}
	if v := os.Getenv("TSDEMO_QUERY_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Query.Workers)
	}
	if v := os.Getenv("TSDEMO_QUERY_HOST"); v != "" {
		cfg.Query.Host = v
	}

	// Ingest configuration
	if v := os.Getenv("TSDEMO_INGEST_HOSTS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Ingest.Hosts)
	}
	if v := os.Getenv("TSDEMO_INGEST_SEED"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Ingest.Seed)
	}

	// Output configuration
	if v := os.Getenv("TSDEMO_OUTPUT_FILE"); v != "" {
		cfg.Output.File = v
	}
	if v := os.Getenv("TSDEMO_UPLOAD_BUCKET"); v != "" {
		cfg.Output.Upload.Bucket = v
		cfg.Output.Upload.Enabled = true
	}
	if v := os.Getenv("TSDEMO_UPLOAD_COMPRESS"); v != "" {
		cfg.Output.Upload.Compress = v == "true" || v == "1"
	}
	if v := os.Getenv("TSDEMO_S3_ENDPOINT"); v != "" {
		cfg.Output.Upload.Endpoint = v
	}

	// Logging configuration
	if v := os.Getenv("TSDEMO_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TSDEMO_LOG_PRETTY"); v != "" {
		cfg.Log.Pretty = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.ReportsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
