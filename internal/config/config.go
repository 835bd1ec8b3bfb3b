// Package config loads and validates fainderqld's configuration: a root
// struct of nested sub-configs, YAML-tagged, loaded from a file and
// overlaid with environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete fainderqld configuration.
type Config struct {
	DataDir        string         `yaml:"data_dir" json:"data_dir"`
	CollectionName string         `yaml:"collection_name" json:"collection_name"`
	MetadataFile   string         `yaml:"metadata_file" json:"metadata_file"`
	LogLevel       string         `yaml:"log_level" json:"log_level"`

	FullText   FullTextConfig   `yaml:"fulltext" json:"fulltext"`
	Percentile PercentileConfig `yaml:"percentile" json:"percentile"`
	ColIndex   ColIndexConfig   `yaml:"column_index" json:"column_index"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Optimizer  OptimizerConfig  `yaml:"optimizer" json:"optimizer"`
}

// FullTextConfig configures the full-text connector (C4).
type FullTextConfig struct {
	Host           string `yaml:"host" json:"host"`
	Port           int    `yaml:"port" json:"port"`
	DialTimeoutMS  int    `yaml:"dial_timeout_ms" json:"dial_timeout_ms"`
	RequestTimeout int    `yaml:"request_timeout_ms" json:"request_timeout_ms"`

	// Circuit breaker tuning, grounded on the teacher's internal/errors/circuit.go.
	CircuitMaxFailures    int `yaml:"circuit_max_failures" json:"circuit_max_failures"`
	CircuitResetTimeoutMS int `yaml:"circuit_reset_timeout_ms" json:"circuit_reset_timeout_ms"`
}

// PercentileConfig configures the percentile index (C2) and its worker pool.
type PercentileConfig struct {
	RebinningIndexPath  string `yaml:"rebinning_index_path" json:"rebinning_index_path"`
	ConversionIndexPath string `yaml:"conversion_index_path" json:"conversion_index_path"`
	HistogramPath       string `yaml:"histogram_path" json:"histogram_path"`

	Workers                int  `yaml:"percentile_workers" json:"percentile_workers"`
	ContiguousPartitions   bool `yaml:"percentile_contiguous_partitions" json:"percentile_contiguous_partitions"`
	ParallelExactEnabled   bool `yaml:"percentile_parallel_exact" json:"percentile_parallel_exact"`
}

// ColIndexConfig configures the HNSW column-name index (C3).
type ColIndexConfig struct {
	IndexPath         string  `yaml:"index_path" json:"index_path"`
	EfSearch          int     `yaml:"ef_search" json:"ef_search"`
	EfConstruction    int     `yaml:"ef_construction" json:"ef_construction"`
	M                 int     `yaml:"m" json:"m"`
	MinUsabilityScore float64 `yaml:"min_usability_score" json:"min_usability_score"`
	UseUsabilityScore bool    `yaml:"use_usability_score" json:"use_usability_score"`
}

// CacheConfig configures the result cache (C9).
type CacheConfig struct {
	QueryCacheSize int `yaml:"query_cache_size" json:"query_cache_size"`
}

// OptimizerConfig configures the query-tree optimizer (C6).
type OptimizerConfig struct {
	MergeKeywords bool `yaml:"merge_keywords" json:"merge_keywords"`
	ReorderByCost bool `yaml:"reorder_by_cost" json:"reorder_by_cost"`
}

// NewConfig returns a Config populated with the defaults described in
// spec.md §6 and SPEC_FULL.md §2.2.
func NewConfig() Config {
	return Config{
		DataDir:        "./data",
		CollectionName: "default",
		MetadataFile:   "metadata.json",
		LogLevel:       "info",
		FullText: FullTextConfig{
			Host:                  "127.0.0.1",
			Port:                  8001,
			DialTimeoutMS:         2000,
			RequestTimeout:        5000,
			CircuitMaxFailures:    5,
			CircuitResetTimeoutMS: 30000,
		},
		Percentile: PercentileConfig{
			RebinningIndexPath:   "rebinning.zst",
			ConversionIndexPath:  "conversion.zst",
			HistogramPath:        "histograms",
			Workers:              0, // 0 means runtime.NumCPU()
			ContiguousPartitions: true,
			ParallelExactEnabled: true,
		},
		ColIndex: ColIndexConfig{
			IndexPath:         "colindex",
			EfSearch:          64,
			EfConstruction:    200,
			M:                 16,
			MinUsabilityScore: 0.0,
			UseUsabilityScore: false,
		},
		Cache: CacheConfig{
			QueryCacheSize: 128,
		},
		Optimizer: OptimizerConfig{
			MergeKeywords: true,
			ReorderByCost: true,
		},
	}
}

// Load reads a YAML config file, then overlays recognized environment
// variables (FAINDERQL_<UPPER_SNAKE_PATH>). Unrecognized environment keys
// are ignored, matching the permissive behavior of the Python original's
// pydantic BaseSettings.
func Load(path string) (Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks structural invariants that the DSL and executor rely on.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Cache.QueryCacheSize <= 0 {
		return fmt.Errorf("cache.query_cache_size must be positive, got %d", c.Cache.QueryCacheSize)
	}
	if c.FullText.Port <= 0 || c.FullText.Port > 65535 {
		return fmt.Errorf("fulltext.port out of range: %d", c.FullText.Port)
	}
	return nil
}

// RebinningIndexPath returns the path to the rebinning index artifact, joined onto DataDir.
func (c *Config) RebinningIndexPath() string {
	return filepath.Join(c.DataDir, c.Percentile.RebinningIndexPath)
}

// ConversionIndexPath returns the path to the conversion index artifact, joined onto DataDir.
func (c *Config) ConversionIndexPath() string {
	return filepath.Join(c.DataDir, c.Percentile.ConversionIndexPath)
}

// HistogramPath returns the path to the raw histogram payload file, joined onto DataDir.
func (c *Config) HistogramPath() string {
	return filepath.Join(c.DataDir, c.Percentile.HistogramPath)
}

// MetadataPath returns the path to the id-space metadata artifact, joined onto DataDir.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.DataDir, c.MetadataFile)
}

// ColIndexPath returns the path to the HNSW column-name index artifact, joined onto DataDir.
func (c *Config) ColIndexPath() string {
	return filepath.Join(c.DataDir, c.ColIndex.IndexPath)
}

// applyEnvOverrides walks a fixed set of recognized FAINDERQL_* variables.
// This mirrors the teacher's env-overlay convention without a reflection
// pass over arbitrary struct tags, since the recognized-key set is small
// and fixed by spec.md §6.
func applyEnvOverrides(cfg *Config) {
	if v, ok := lookupEnv("FAINDERQL_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := lookupEnv("FAINDERQL_COLLECTION_NAME"); ok {
		cfg.CollectionName = v
	}
	if v, ok := lookupEnv("FAINDERQL_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookupEnv("FAINDERQL_LUCENE_HOST"); ok {
		cfg.FullText.Host = v
	}
	if v, ok := lookupEnvInt("FAINDERQL_LUCENE_PORT"); ok {
		cfg.FullText.Port = v
	}
	if v, ok := lookupEnvInt("FAINDERQL_QUERY_CACHE_SIZE"); ok {
		cfg.Cache.QueryCacheSize = v
	}
	if v, ok := lookupEnvInt("FAINDERQL_PERCENTILE_WORKERS"); ok {
		cfg.Percentile.Workers = v
	}
	if v, ok := lookupEnvBool("FAINDERQL_USE_USABILITY_SCORE"); ok {
		cfg.ColIndex.UseUsabilityScore = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func lookupEnvInt(key string) (int, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupEnvBool(key string) (bool, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
