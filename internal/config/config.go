// Package config provides unified configuration for the Stratabench harness.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stratabench/stratabench/pkg/types"
)

// Config holds the configuration for a benchmark run.
type Config struct {
	// DataDir is the base directory for generated artifacts.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// ResultsDir is the directory holding the metrics log.
	ResultsDir string `json:"results_dir" yaml:"results_dir"`

	// Dataset configures the synthetic dataset generator.
	Dataset DatasetConfig `json:"dataset" yaml:"dataset"`

	// Benchmark configures the trial matrix and execution policy.
	Benchmark BenchmarkConfig `json:"benchmark" yaml:"benchmark"`

	// Storage configures optional artifact and log sync to object storage.
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// DatasetConfig holds generator parameters.
type DatasetConfig struct {
	// FactRows is the fact table row count.
	FactRows int `json:"fact_rows" yaml:"fact_rows"`

	// DimRows is the dimension table row count.
	DimRows int `json:"dim_rows" yaml:"dim_rows"`

	// Seed drives the deterministic generator.
	Seed int64 `json:"seed" yaml:"seed"`
}

// BenchmarkConfig holds trial matrix and execution policy settings.
type BenchmarkConfig struct {
	// Encodings to include in the matrix. Empty means all.
	Encodings []types.Encoding `json:"encodings" yaml:"encodings"`

	// Workloads to include by name. Empty means the default battery.
	Workloads []string `json:"workloads" yaml:"workloads"`

	// Configs names the optimizer bundles to include. Empty means all.
	Configs []string `json:"configs" yaml:"configs"`

	// TrialTimeout bounds a single trial. Zero disables the timeout.
	TrialTimeout time.Duration `json:"trial_timeout" yaml:"trial_timeout"`

	// Resume skips matrix cells already present in the metrics log.
	Resume bool `json:"resume" yaml:"resume"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: none, local, s3.
	Type string `json:"type" yaml:"type"`

	// Path is the local object store root (for local type).
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type).
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name.
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region.
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage).
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfig returns the default configuration for local runs.
func DefaultConfig() *Config {
	return &Config{
		DataDir:    "./data/stratabench",
		ResultsDir: "./results",
		Dataset: DatasetConfig{
			FactRows: 100_000,
			DimRows:  1_000,
			Seed:     42,
		},
		Benchmark: BenchmarkConfig{
			TrialTimeout: 5 * time.Minute,
			Resume:       true,
		},
		Storage: StorageConfig{
			Type: "none",
		},
	}
}

// Resolve fills in paths derived from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/stratabench"
	}
	if c.ResultsDir == "" {
		c.ResultsDir = filepath.Join(filepath.Dir(c.DataDir), "results")
	}
	if c.Storage.Type == "local" && c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "remote")
	}
}

// LogPath returns the path to the append-only metrics log.
func (c *Config) LogPath() string {
	return filepath.Join(c.ResultsDir, "benchmark_log.csv")
}

// Validate validates the configuration. Generator sizing is re-checked by
// the generator itself; validating here surfaces bad input before any
// artifacts are written.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Dataset.FactRows <= 0 {
		return fmt.Errorf("dataset.fact_rows must be positive, got %d", c.Dataset.FactRows)
	}
	if c.Dataset.DimRows <= 0 {
		return fmt.Errorf("dataset.dim_rows must be positive, got %d", c.Dataset.DimRows)
	}

	for _, e := range c.Benchmark.Encodings {
		if !e.Valid() {
			return fmt.Errorf("invalid encoding: %s (must be row, columnar, or versioned)", e)
		}
	}
	for _, name := range c.Benchmark.Workloads {
		if _, ok := types.WorkloadByName(name); !ok {
			return fmt.Errorf("unknown workload: %s", name)
		}
	}
	for _, name := range c.Benchmark.Configs {
		if _, ok := types.OptimizerConfigByName(name); !ok {
			return fmt.Errorf("unknown optimizer config: %s", name)
		}
	}

	if c.Benchmark.TrialTimeout < 0 {
		return fmt.Errorf("benchmark.trial_timeout must not be negative")
	}

	switch c.Storage.Type {
	case "none", "local", "s3":
		// Valid types
	default:
		return fmt.Errorf("invalid storage type: %s (must be none, local, or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	return nil
}

// MatrixEncodings returns the encodings to benchmark.
func (c *Config) MatrixEncodings() []types.Encoding {
	if len(c.Benchmark.Encodings) == 0 {
		return types.AllEncodings()
	}
	return c.Benchmark.Encodings
}

// MatrixWorkloads returns the workloads to benchmark.
func (c *Config) MatrixWorkloads() []types.Workload {
	if len(c.Benchmark.Workloads) == 0 {
		return types.DefaultWorkloads()
	}
	out := make([]types.Workload, 0, len(c.Benchmark.Workloads))
	for _, name := range c.Benchmark.Workloads {
		if w, ok := types.WorkloadByName(name); ok {
			out = append(out, w)
		}
	}
	return out
}

// MatrixConfigs returns the optimizer bundles to benchmark.
func (c *Config) MatrixConfigs() []types.OptimizerConfig {
	if len(c.Benchmark.Configs) == 0 {
		return types.AllOptimizerConfigs()
	}
	out := make([]types.OptimizerConfig, 0, len(c.Benchmark.Configs))
	for _, name := range c.Benchmark.Configs {
		if oc, ok := types.OptimizerConfigByName(name); ok {
			out = append(out, oc)
		}
	}
	return out
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

// LoadFromEnv overrides configuration from environment variables.
// Environment variables use the STRATABENCH_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("STRATABENCH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("STRATABENCH_RESULTS_DIR"); v != "" {
		cfg.ResultsDir = v
	}

	// Dataset configuration
	if v := os.Getenv("STRATABENCH_FACT_ROWS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Dataset.FactRows)
	}
	if v := os.Getenv("STRATABENCH_DIM_ROWS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Dataset.DimRows)
	}
	if v := os.Getenv("STRATABENCH_SEED"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Dataset.Seed)
	}

	// Benchmark configuration
	if v := os.Getenv("STRATABENCH_TRIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Benchmark.TrialTimeout = d
		}
	}
	if v := os.Getenv("STRATABENCH_RESUME"); v != "" {
		cfg.Benchmark.Resume = v == "true" || v == "1"
	}

	// Storage configuration
	if v := os.Getenv("STRATABENCH_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("STRATABENCH_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("STRATABENCH_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("STRATABENCH_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("STRATABENCH_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.ResultsDir,
	}
	for _, e := range types.AllEncodings() {
		dirs = append(dirs, filepath.Join(c.DataDir, string(e)))
	}
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
