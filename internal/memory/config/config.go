// Package config loads memorycore's configuration from a YAML file and
// MEMORYCORE_-prefixed environment variables via Viper, mirroring the
// layered-defaults-then-file-then-env loader the rest of the pack uses.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EmbeddingConfig configures the embedding client and the model host it
// talks to.
type EmbeddingConfig struct {
	Model              string        `mapstructure:"model"`
	Dims               int           `mapstructure:"dims"`
	Endpoint           string        `mapstructure:"endpoint"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout_ms"`
	BatchSize          int           `mapstructure:"batch_size"`
	ConcurrencyCeiling int           `mapstructure:"concurrency_ceiling"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay_ms"`
}

// CacheConfig configures the three cache tiers.
type CacheConfig struct {
	L1Size                 int     `mapstructure:"l1_size"`
	L2Size                 int     `mapstructure:"l2_size"`
	L3Size                 int     `mapstructure:"l3_size"`
	L3TTL                  time.Duration `mapstructure:"l3_ttl_ms"`
	SemanticCacheThreshold float64 `mapstructure:"semantic_cache_threshold"`
	Redis                  RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the optional shared L3 backend. With Enabled
// false the in-process L3 is used instead.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ANNConfig configures the HNSW index.
type ANNConfig struct {
	M              int `mapstructure:"m"`
	EfConstruction int `mapstructure:"ef_construction"`
	EfSearch       int `mapstructure:"ef_search"`
}

// PoolConfig configures the database connection pool and its resilience
// wrapper.
type PoolConfig struct {
	DSN                string        `mapstructure:"dsn"`
	MaxOpenConns       int           `mapstructure:"max_conns"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
	AcquireTimeout     time.Duration `mapstructure:"acquire_timeout_ms"`
	MaxRetries         int           `mapstructure:"max_retries"`
}

// RetrievalConfig configures the hybrid scoring/reranking pipeline.
type RetrievalConfig struct {
	NAnnThreshold      int     `mapstructure:"ann_threshold"`
	DefaultK           int     `mapstructure:"default_k"`
	RerankPoolSize     int     `mapstructure:"rerank_top_k"`
	RerankFinalK       int     `mapstructure:"rerank_final_k"`
	DiversityPenalty   float64 `mapstructure:"diversity_penalty"`
	EnableHybridFusion bool    `mapstructure:"enable_hybrid_fusion"`
	EnableMMR          bool    `mapstructure:"enable_mmr"`
	RelevanceThreshold float64 `mapstructure:"relevance_threshold"`
	HighImportanceBypass float64 `mapstructure:"high_importance_bypass"`
	MaxContextTokens   int     `mapstructure:"max_context_tokens"`
}

// DecayConfig configures the decay/retention/cluster-optimization
// sweeps.
type DecayConfig struct {
	HalfLifeDays               int           `mapstructure:"half_life_days"`
	SweepInterval              time.Duration `mapstructure:"sweep_interval_ms"`
	CleanupMinAgeDays          int           `mapstructure:"cleanup_min_age_days"`
	RetentionDays              int           `mapstructure:"retention_days"`
	RetentionImportanceCeiling float64       `mapstructure:"retention_importance_ceiling"`
	ClusterOptimizeInterval    time.Duration `mapstructure:"cluster_optimize_interval_ms"`
	SweepBatchSize             int           `mapstructure:"sweep_batch_size"`
}

// SecurityConfig configures encryption-at-rest and authentication
// secrets. JWTSecret is always required, and MasterEncryptionKey is
// required whenever EncryptionEnabled is set: Load fails closed if a
// required secret is empty.
type SecurityConfig struct {
	EncryptionEnabled   bool   `mapstructure:"encryption_enabled"`
	JWTSecret           string `mapstructure:"jwt_secret"`
	MasterEncryptionKey string `mapstructure:"master_encryption_key"`
	KeyDerivationIters  int    `mapstructure:"key_derivation_iterations"`
}

// ExportConfig configures the optional S3 destination for encrypted
// GDPR export snapshots written by the retention engine.
type ExportConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// MonitoringConfig configures the alert-threshold evaluation loop.
type MonitoringConfig struct {
	SampleInterval time.Duration `mapstructure:"sample_interval_ms"`
}

// Config holds the complete application configuration.
type Config struct {
	Environment string            `mapstructure:"environment"`
	DenyList    []string          `mapstructure:"deny_list"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Cache       CacheConfig       `mapstructure:"cache"`
	ANN         ANNConfig         `mapstructure:"ann"`
	Pool        PoolConfig        `mapstructure:"pool"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval"`
	Decay       DecayConfig       `mapstructure:"decay"`
	Security    SecurityConfig    `mapstructure:"security"`
	Export      ExportConfig      `mapstructure:"export"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// Load reads configuration from a YAML file (MEMORYCORE_CONFIG_FILE, or
// configs/config.yaml) layered under defaults and overridden by
// MEMORYCORE_-prefixed environment variables, then validates required
// secrets.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("MEMORYCORE_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("MEMORYCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails closed when a required secret is missing, rather than
// starting with an empty key that would make encryption or auth a
// silent no-op.
func (c *Config) Validate() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required")
	}
	if c.Security.EncryptionEnabled && c.Security.MasterEncryptionKey == "" {
		return fmt.Errorf("security.master_encryption_key is required when encryption is enabled")
	}
	if c.Embedding.Dims != 0 && c.Embedding.Dims != 768 {
		return fmt.Errorf("embedding.dims must be 768, got %d", c.Embedding.Dims)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.dims", 768)
	v.SetDefault("embedding.endpoint", "http://localhost:11434")
	v.SetDefault("embedding.request_timeout_ms", 30*time.Second)
	v.SetDefault("embedding.batch_size", 10)
	v.SetDefault("embedding.concurrency_ceiling", 5)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.retry_base_delay_ms", 200*time.Millisecond)

	v.SetDefault("cache.l1_size", 1000)
	v.SetDefault("cache.l2_size", 5000)
	v.SetDefault("cache.l3_size", 10000)
	v.SetDefault("cache.l3_ttl_ms", 5*time.Minute)
	v.SetDefault("cache.semantic_cache_threshold", 0.95)
	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "localhost:6379")

	v.SetDefault("ann.m", 16)
	v.SetDefault("ann.ef_construction", 200)
	v.SetDefault("ann.ef_search", 100)

	v.SetDefault("pool.max_conns", 15)
	v.SetDefault("pool.max_idle_conns", 5)
	v.SetDefault("pool.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("pool.acquire_timeout_ms", 30*time.Second)
	v.SetDefault("pool.max_retries", 3)

	v.SetDefault("retrieval.ann_threshold", 1000)
	v.SetDefault("retrieval.default_k", 10)
	v.SetDefault("retrieval.rerank_top_k", 100)
	v.SetDefault("retrieval.rerank_final_k", 10)
	v.SetDefault("retrieval.diversity_penalty", 0.1)
	v.SetDefault("retrieval.enable_hybrid_fusion", true)
	v.SetDefault("retrieval.enable_mmr", true)
	v.SetDefault("retrieval.relevance_threshold", 0.3)
	v.SetDefault("retrieval.high_importance_bypass", 0.8)
	v.SetDefault("retrieval.max_context_tokens", 2000)

	v.SetDefault("decay.half_life_days", 30)
	v.SetDefault("decay.sweep_interval_ms", time.Hour)
	v.SetDefault("decay.cleanup_min_age_days", 30)
	v.SetDefault("decay.retention_days", 90)
	v.SetDefault("decay.retention_importance_ceiling", 0.8)
	v.SetDefault("decay.cluster_optimize_interval_ms", 6*time.Hour)
	v.SetDefault("decay.sweep_batch_size", 500)

	v.SetDefault("security.encryption_enabled", true)
	v.SetDefault("security.key_derivation_iterations", 100000)

	v.SetDefault("export.enabled", false)
	v.SetDefault("export.prefix", "gdpr-exports")

	v.SetDefault("monitoring.sample_interval_ms", 10*time.Second)
}

// HalfLifeDuration converts the days-based config value to a duration for
// decay.Config.
func (c DecayConfig) HalfLifeDuration() time.Duration {
	return time.Duration(c.HalfLifeDays) * 24 * time.Hour
}

// CleanupMinAgeDuration converts the days-based config value to a duration.
func (c DecayConfig) CleanupMinAgeDuration() time.Duration {
	return time.Duration(c.CleanupMinAgeDays) * 24 * time.Hour
}

// RetentionHorizonDuration converts the days-based config value to a duration.
func (c DecayConfig) RetentionHorizonDuration() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
