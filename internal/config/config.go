// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for databases and the embedding cache (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	Database  DatabaseConfig
	Cache     CacheConfig
	Embedding EmbeddingConfig
	Engine    EngineConfig
	Monitor   MonitorConfig
	RateLimit RateLimitConfig
}

// DatabaseConfig holds persistence settings. PoolSize and MaxOverflow follow
// the classic pool model: up to PoolSize connections are kept warm, and up to
// PoolSize+MaxOverflow may be open at peak.
type DatabaseConfig struct {
	CatalogPath    string        // catalog.db - products, platforms, prices, history
	KVPath         string        // kv.db - external key/value cache backend
	PoolSize       int           // DB_POOL_SIZE
	MaxOverflow    int           // DB_MAX_OVERFLOW
	AcquireTimeout time.Duration // Connection acquisition timeout
	Recycle        time.Duration // Recycle connections after this lifetime
}

// CacheConfig holds cache layer settings
type CacheConfig struct {
	TTL           time.Duration // CACHE_TTL_SECONDS - default result TTL
	MaxEntries    int           // In-process LRU capacity
	MaxValueBytes int           // Reject serialised entries above this size
	KVEnabled     bool          // When false the layer degrades to in-process only
	SweepInterval time.Duration // Expired-entry sweep cadence for the K/V backend
}

// EmbeddingConfig holds embedding index settings
type EmbeddingConfig struct {
	Provider  string        // "hash" (built-in) or "http"
	APIKey    string        // Required when Provider == "http"
	Endpoint  string        // HTTP embedder endpoint
	Dimension int           // Vector dimension for the built-in embedder
	CacheDir  string        // Directory for the persisted embedding blob
	Staleness time.Duration // Rebuild embeddings older than this horizon
}

// EngineConfig holds price update engine settings
type EngineConfig struct {
	Enabled      bool
	Interval     time.Duration // Cycle cadence
	BatchSize    int           // Rows mutated per cycle
	Workers      int           // Bounded worker pool size
	MaxChangePct float64       // Baseline delta ceiling (fraction, e.g. 0.15)
	DiscountProb float64       // Probability a cycle row receives a discount
	SurgeProb    float64       // Probability a cycle row surges
	PriceFloor   float64       // Prices never drop below this
	MaxRetries   int           // Per-row conflict retry budget
}

// MonitorConfig holds monitoring settings
type MonitorConfig struct {
	SlowQueryThreshold time.Duration // Queries at or above this enter the slow buffer
	QueryBufferSize    int           // Ring buffer capacity for query metrics
	SlowBufferSize     int           // Ring buffer capacity for slow queries
	SampleInterval     time.Duration // System gauge sampling cadence
	HistorySize        int           // Retained system samples (1440 = 24h at 1/min)
}

// RateLimitConfig holds rate limiter settings
type RateLimitConfig struct {
	PerMinute int // RATE_LIMIT_PER_MINUTE - default bucket for unlisted routes
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PRICELENS_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Database: DatabaseConfig{
			CatalogPath:    getEnv("DATABASE_URL", filepath.Join(absDataDir, "catalog.db")),
			KVPath:         getEnv("KV_URL", filepath.Join(absDataDir, "kv.db")),
			PoolSize:       getEnvAsInt("DB_POOL_SIZE", 10),
			MaxOverflow:    getEnvAsInt("DB_MAX_OVERFLOW", 20),
			AcquireTimeout: 30 * time.Second,
			Recycle:        time.Hour,
		},
		Cache: CacheConfig{
			TTL:           time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,
			MaxEntries:    getEnvAsInt("CACHE_MAX_ENTRIES", 10000),
			MaxValueBytes: getEnvAsInt("CACHE_MAX_VALUE_BYTES", 10*1024*1024),
			KVEnabled:     getEnvAsBool("CACHE_KV_ENABLED", true),
			SweepInterval: time.Duration(getEnvAsInt("CACHE_SWEEP_SECONDS", 300)) * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", "hash"),
			APIKey:    getEnv("EMBEDDING_API_KEY", ""),
			Endpoint:  getEnv("EMBEDDING_ENDPOINT", ""),
			Dimension: getEnvAsInt("EMBEDDING_DIMENSION", 256),
			CacheDir:  getEnv("EMBEDDING_CACHE_DIR", filepath.Join(absDataDir, "embeddings")),
			Staleness: time.Duration(getEnvAsInt("EMBEDDING_STALENESS_HOURS", 24)) * time.Hour,
		},
		Engine: EngineConfig{
			Enabled:      getEnvAsBool("ENGINE_ENABLED", true),
			Interval:     time.Duration(getEnvAsInt("ENGINE_INTERVAL_SECONDS", 5)) * time.Second,
			BatchSize:    getEnvAsInt("ENGINE_BATCH_SIZE", 50),
			Workers:      getEnvAsInt("ENGINE_WORKERS", 5),
			MaxChangePct: getEnvAsFloat("ENGINE_MAX_CHANGE_PCT", 0.15),
			DiscountProb: getEnvAsFloat("ENGINE_DISCOUNT_PROB", 0.15),
			SurgeProb:    getEnvAsFloat("ENGINE_SURGE_PROB", 0.05),
			PriceFloor:   5.00,
			MaxRetries:   3,
		},
		Monitor: MonitorConfig{
			SlowQueryThreshold: time.Duration(getEnvAsInt("SLOW_QUERY_MS", 1000)) * time.Millisecond,
			QueryBufferSize:    getEnvAsInt("QUERY_BUFFER_SIZE", 10000),
			SlowBufferSize:     getEnvAsInt("SLOW_BUFFER_SIZE", 1000),
			SampleInterval:     time.Duration(getEnvAsInt("SYSTEM_SAMPLE_SECONDS", 60)) * time.Second,
			HistorySize:        getEnvAsInt("SYSTEM_HISTORY_SIZE", 1440),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present.
// A misconfigured service refuses to start rather than limping along.
func (c *Config) Validate() error {
	if c.Embedding.Provider == "http" {
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("EMBEDDING_API_KEY is required when EMBEDDING_PROVIDER=http")
		}
		if c.Embedding.Endpoint == "" {
			return fmt.Errorf("EMBEDDING_ENDPOINT is required when EMBEDDING_PROVIDER=http")
		}
	}
	if c.Database.PoolSize < 1 {
		return fmt.Errorf("DB_POOL_SIZE must be at least 1")
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("ENGINE_WORKERS must be at least 1")
	}
	if c.Engine.MaxChangePct <= 0 || c.Engine.MaxChangePct >= 1 {
		return fmt.Errorf("ENGINE_MAX_CHANGE_PCT must be in (0, 1)")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
