package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"catalogflow/models"
)

const (
	defaultChunkSize       = 10_000
	defaultPrefetchBatches = 2
	defaultReaderBatchSize = 8192
	defaultMetricsAddr     = "0.0.0.0:2112"
)

type Config struct {
	Catalogflow CatalogflowConfig `yaml:"catalogflow"`
	Session     SessionConfig     `yaml:"session"`
	Reader      ReaderConfig      `yaml:"reader"`
	Queries     []QueryConfig     `yaml:"queries"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type CatalogflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type SessionConfig struct {
	ChunkSize       int `yaml:"chunk_size"`
	PrefetchBatches int `yaml:"prefetch_batches"`
}

type ReaderConfig struct {
	BatchSize   int      `yaml:"batch_size"`
	Parallelism int64    `yaml:"parallelism"`
	S3          S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled           bool    `yaml:"enabled"`
	Region            string  `yaml:"region"`
	Endpoint          string  `yaml:"endpoint"`
	PathStyle         bool    `yaml:"path_style"`
	AccessKeyID       string  `yaml:"access_key_id"`
	SecretAccessKey   string  `yaml:"secret_access_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// QueryConfig declares one source to register with a session.
type QueryConfig struct {
	Name           string      `yaml:"name"`
	Path           string      `yaml:"path"`
	Kind           models.Kind `yaml:"kind"`
	InstrumentID   string      `yaml:"instrument_id"`
	BarType        string      `yaml:"bar_type"`
	PricePrecision *uint8      `yaml:"price_precision"`
	SizePrecision  *uint8      `yaml:"size_precision"`
}

type MetricsConfig struct {
	Enabled    bool             `yaml:"enabled"`
	ListenAddr string           `yaml:"listen_addr"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used when a file omits a section.
func Default() Config {
	return Config{
		Session: SessionConfig{
			ChunkSize:       defaultChunkSize,
			PrefetchBatches: defaultPrefetchBatches,
		},
		Reader: ReaderConfig{
			BatchSize:   defaultReaderBatchSize,
			Parallelism: 1,
		},
		Metrics: MetricsConfig{
			ListenAddr: defaultMetricsAddr,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadConfig reads path, resolving environment specific variants through
// APP_ENV, applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	path = configPathFor(path, AppEnvironment())

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document over the defaults.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("CATALOGFLOW_CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid CATALOGFLOW_CHUNK_SIZE %q: %w", v, err)
		}
		config.Session.ChunkSize = n
	}

	// Override S3 settings from environment variables if available
	if config.Reader.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Reader.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Reader.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Reader.S3.Region = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Catalogflow.Name == "" {
		return fmt.Errorf("catalogflow.name is required")
	}
	if cfg.Session.ChunkSize <= 0 {
		return fmt.Errorf("session.chunk_size must be greater than 0")
	}
	if cfg.Session.PrefetchBatches < 0 {
		return fmt.Errorf("session.prefetch_batches must not be negative")
	}
	if cfg.Reader.BatchSize <= 0 {
		return fmt.Errorf("reader.batch_size must be greater than 0")
	}

	if cfg.Reader.S3.Enabled {
		if cfg.Reader.S3.Region == "" {
			return fmt.Errorf("reader.s3.region is required when S3 is enabled")
		}
		if cfg.Reader.S3.RequestsPerSecond < 0 {
			return fmt.Errorf("reader.s3.requests_per_second must not be negative")
		}
	}

	names := make(map[string]struct{}, len(cfg.Queries))
	for i, q := range cfg.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d].name is required", i)
		}
		if _, dup := names[q.Name]; dup {
			return fmt.Errorf("queries[%d].name %q is duplicated", i, q.Name)
		}
		names[q.Name] = struct{}{}
		if q.Path == "" {
			return fmt.Errorf("queries[%d].path is required", i)
		}
		if q.Kind == models.KindUnknown {
			return fmt.Errorf("queries[%d].kind is required", i)
		}
		if strings.HasPrefix(q.Path, "s3://") {
			if !cfg.Reader.S3.Enabled {
				return fmt.Errorf("queries[%d].path %q requires reader.s3.enabled", i, q.Path)
			}
			bucket := strings.SplitN(strings.TrimPrefix(q.Path, "s3://"), "/", 2)[0]
			if !isValidS3Bucket(bucket) {
				return fmt.Errorf("queries[%d].path bucket '%s' is invalid", i, bucket)
			}
		}
	}

	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Namespace == "" {
		return fmt.Errorf("metrics.cloudwatch.namespace is required when CloudWatch is enabled")
	}
	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
