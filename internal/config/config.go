// Package config loads the pipeline configuration from YAML and
// NYCVDB_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/retry"
	"github.com/nyc-landmarks/vectordb/internal/tracing"
)

// Config is the full typed configuration tree.
type Config struct {
	Catalog      CatalogConfig      `mapstructure:"catalog"`
	Embedding    EmbeddingConfig    `mapstructure:"embedding"`
	VectorStore  VectorStoreConfig  `mapstructure:"vectorstore"`
	Chunking     ChunkingConfig     `mapstructure:"chunking"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Metadata     MetadataConfig     `mapstructure:"metadata"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	API          APIConfig          `mapstructure:"api"`
	Logging      logging.Config     `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Tracing      tracing.Config     `mapstructure:"tracing"`
	Retry        retry.Policy       `mapstructure:"retry"`
}

// CatalogConfig points at the landmark reporting REST API.
type CatalogConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PageSize     int           `mapstructure:"page_size"`
	RateLimitRPS float64       `mapstructure:"rate_limit_rps"`
}

// EmbeddingConfig points at the embedding service.
type EmbeddingConfig struct {
	BaseURL   string               `mapstructure:"base_url"`
	APIKey    string               `mapstructure:"api_key"`
	Model     string               `mapstructure:"model"`
	Dimension int                  `mapstructure:"dimension"`
	Timeout   time.Duration        `mapstructure:"timeout"`
	BatchSize int                  `mapstructure:"batch_size"`
	Cache     EmbeddingCacheConfig `mapstructure:"cache"`
}

// EmbeddingCacheConfig enables the optional Redis cache tier.
type EmbeddingCacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// VectorStoreConfig points at the vector index data plane.
type VectorStoreConfig struct {
	IndexHost        string        `mapstructure:"index_host"`
	APIKey           string        `mapstructure:"api_key"`
	IndexName        string        `mapstructure:"index_name"`
	Namespace        string        `mapstructure:"namespace"`
	Timeout          time.Duration `mapstructure:"timeout"`
	UpsertBatchSize  int           `mapstructure:"upsert_batch_size"`
	UpsertMaxRetries int           `mapstructure:"upsert_max_retries"`
	DeleteScanLimit  int           `mapstructure:"delete_scan_limit"`
}

// ChunkingConfig bounds the text chunker windows.
type ChunkingConfig struct {
	MaxTokens     int `mapstructure:"max_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens"`
}

// FetchConfig tunes the source fetchers.
type FetchConfig struct {
	PdfTimeout              time.Duration `mapstructure:"pdf_timeout"`
	PdfMaxBytes             int64         `mapstructure:"pdf_max_bytes"`
	WikipediaReadTimeout    time.Duration `mapstructure:"wikipedia_read_timeout"`
	WikipediaConnectTimeout time.Duration `mapstructure:"wikipedia_connect_timeout"`
	WikipediaRateLimitRPS   float64       `mapstructure:"wikipedia_rate_limit_rps"`
	QualityURL              string        `mapstructure:"quality_url"`
}

// MetadataConfig tunes the enhanced metadata collector.
type MetadataConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	MaxBuildings int           `mapstructure:"max_buildings"`
}

// OrchestratorConfig bounds batch ingestion runs.
type OrchestratorConfig struct {
	Parallelism        int           `mapstructure:"parallelism"`
	PerLandmarkTimeout time.Duration `mapstructure:"per_landmark_timeout"`
	GlobalTimeout      time.Duration `mapstructure:"global_timeout"`
	DeleteExisting     bool          `mapstructure:"delete_existing"`
	ReportDir          string        `mapstructure:"report_dir"`
}

// APIConfig configures the query API server.
type APIConfig struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`
	DefaultTopK int    `mapstructure:"default_top_k"`
	MaxTopK     int    `mapstructure:"max_top_k"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads CONFIG_PATH when set, otherwise searches for config.yaml
// in . and ./config, layers NYCVDB_ environment variables on top, and
// returns the typed tree. A missing config file is not an error; the
// defaults plus environment carry a full configuration.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NYCVDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.base_url", "https://api.coredatastore.com")
	v.SetDefault("catalog.timeout", "15s")
	v.SetDefault("catalog.page_size", 100)
	v.SetDefault("catalog.rate_limit_rps", 5.0)

	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.batch_size", 100)
	v.SetDefault("embedding.cache.redis_addr", "")
	v.SetDefault("embedding.cache.ttl", "24h")

	v.SetDefault("vectorstore.index_host", "")
	v.SetDefault("vectorstore.api_key", "")
	v.SetDefault("vectorstore.index_name", "nyc-landmarks")
	v.SetDefault("vectorstore.namespace", "")
	v.SetDefault("vectorstore.timeout", "20s")
	v.SetDefault("vectorstore.upsert_batch_size", 100)
	v.SetDefault("vectorstore.upsert_max_retries", 3)
	v.SetDefault("vectorstore.delete_scan_limit", 1000)

	v.SetDefault("chunking.max_tokens", 500)
	v.SetDefault("chunking.overlap_tokens", 50)

	v.SetDefault("fetch.pdf_timeout", "60s")
	v.SetDefault("fetch.pdf_max_bytes", 52428800)
	v.SetDefault("fetch.wikipedia_read_timeout", "27s")
	v.SetDefault("fetch.wikipedia_connect_timeout", "3050ms")
	v.SetDefault("fetch.wikipedia_rate_limit_rps", 2.0)
	v.SetDefault("fetch.quality_url", "")

	v.SetDefault("metadata.cache_ttl", "24h")
	v.SetDefault("metadata.max_buildings", 50)

	v.SetDefault("orchestrator.parallelism", 4)
	v.SetDefault("orchestrator.per_landmark_timeout", "300s")
	v.SetDefault("orchestrator.global_timeout", "6h")
	v.SetDefault("orchestrator.delete_existing", true)
	v.SetDefault("orchestrator.report_dir", "")

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.tls_cert_file", "")
	v.SetDefault("api.tls_key_file", "")
	v.SetDefault("api.default_top_k", 5)
	v.SetDefault("api.max_top_k", 25)

	v.SetDefault("logging.provider", "stdout")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.name_prefix", "")

	v.SetDefault("metrics.listen_addr", ":9090")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "nyc-landmarks-vectordb")
	v.SetDefault("tracing.otlp_endpoint", "")

	v.SetDefault("retry.initial_interval", "500ms")
	v.SetDefault("retry.max_interval", "30s")
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.multiplier", 2.0)
}

// Validate enforces cross-field rules. Failures here are operator
// errors and map to exit code 2 in the CLI.
func (c *Config) Validate() error {
	var errs []error

	if c.Chunking.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("chunking.max_tokens must be positive, got %d", c.Chunking.MaxTokens))
	}
	if c.Chunking.OverlapTokens < 0 {
		errs = append(errs, fmt.Errorf("chunking.overlap_tokens must not be negative, got %d", c.Chunking.OverlapTokens))
	}
	if c.Chunking.MaxTokens > 0 && c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		errs = append(errs, fmt.Errorf("chunking.overlap_tokens (%d) must be smaller than chunking.max_tokens (%d)",
			c.Chunking.OverlapTokens, c.Chunking.MaxTokens))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize))
	}
	if c.Orchestrator.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("orchestrator.parallelism must be at least 1, got %d", c.Orchestrator.Parallelism))
	}
	if c.VectorStore.UpsertBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("vectorstore.upsert_batch_size must be positive, got %d", c.VectorStore.UpsertBatchSize))
	}
	if c.API.DefaultTopK < 1 || c.API.MaxTopK < c.API.DefaultTopK {
		errs = append(errs, fmt.Errorf("api top_k bounds invalid: default %d, max %d", c.API.DefaultTopK, c.API.MaxTopK))
	}
	if p := strings.ToLower(c.Logging.Provider); p != "" && p != logging.ProviderStdout && p != logging.ProviderGoogle {
		errs = append(errs, fmt.Errorf("logging.provider must be stdout or google, got %q", c.Logging.Provider))
	}
	if (c.API.TLSCertFile == "") != (c.API.TLSKeyFile == "") {
		errs = append(errs, errors.New("api.tls_cert_file and api.tls_key_file must be set together"))
	}

	return errors.Join(errs...)
}

// ValidateIngest adds the requirements an ingestion run has beyond
// serving: the embedding service and vector index must be configured.
func (c *Config) ValidateIngest() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Embedding.BaseURL == "" {
		errs = append(errs, errors.New("embedding.base_url is required"))
	}
	if c.VectorStore.IndexHost == "" {
		errs = append(errs, errors.New("vectorstore.index_host is required"))
	}
	return errors.Join(errs...)
}
