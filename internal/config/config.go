// Package config provides environment-variable configuration binding for
// the vector-storage subsystem: the enumerated variable set of §6, with
// the teacher's getXEnvWithDefault parsing idiom and validation discipline.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"lerian-vectorstore/internal/logging"
)

// BackendType is the closed set of backend tags VECTOR_STORE_TYPE accepts.
type BackendType string

const (
	BackendMemory     BackendType = "memory"
	BackendPersistent BackendType = "persistent"
	BackendQdrant     BackendType = "qdrant"
	BackendChroma     BackendType = "chroma"
	BackendPinecone   BackendType = "pinecone"
	BackendWeaviate   BackendType = "weaviate"
	BackendRedis      BackendType = "redis"
	BackendPgvector   BackendType = "pgvector"
	BackendSQLiteVec  BackendType = "sqlitevec"
)

var knownBackends = map[BackendType]bool{
	BackendMemory: true, BackendPersistent: true, BackendQdrant: true,
	BackendChroma: true, BackendPinecone: true, BackendWeaviate: true,
	BackendRedis: true, BackendPgvector: true, BackendSQLiteVec: true,
}

// Config is the validated, immutable-after-construction configuration for
// one store instance.
type Config struct {
	Type       BackendType
	Collection string
	Dimension  int
	MaxVectors int
	Host       string
	Port       int
	URL        string
	APIKey     string
	Distance   string
	OnDisk     bool

	// Backend-specific overrides.
	Namespace string // Pinecone-style namespace partitioning
	Region    string
	Provider  string
	BaseDir   string // persistent backend's on-disk journal directory

	// ReflectionCollection, when non-empty, enables the reflection child of
	// the dual-collection manager (C8).
	ReflectionCollection string
}

// DefaultConfig returns the spec's documented defaults (§6).
func DefaultConfig() *Config {
	return &Config{
		Type:       BackendMemory,
		Collection: "default",
		Dimension:  1536,
		MaxVectors: 10000,
		Distance:   "cosine",
		OnDisk:     false,
		BaseDir:    "./data/vectorstore",
	}
}

// LoadFromEnv builds a Config by layering environment variables over
// DefaultConfig, loading a .env file first if present (never failing if it
// is absent).
func LoadFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := DefaultConfig()

	cfg.Type = BackendType(getStringEnvWithDefault("VECTOR_STORE_TYPE", string(cfg.Type)))
	cfg.Collection = getStringEnvWithDefault("VECTOR_STORE_COLLECTION", cfg.Collection)
	cfg.Dimension = getPositiveIntEnvWithDefault("VECTOR_STORE_DIMENSION", cfg.Dimension)
	cfg.MaxVectors = getPositiveIntEnvWithDefault("VECTOR_STORE_MAX_VECTORS", cfg.MaxVectors)
	cfg.Host = getStringEnvWithDefault("VECTOR_STORE_HOST", cfg.Host)
	cfg.Port = getIntEnvWithDefault("VECTOR_STORE_PORT", cfg.Port)
	cfg.URL = getStringEnvWithDefault("VECTOR_STORE_URL", cfg.URL)
	cfg.APIKey = getStringEnvWithDefault("VECTOR_STORE_API_KEY", cfg.APIKey)
	cfg.Distance = getStringEnvWithDefault("VECTOR_STORE_DISTANCE", cfg.Distance)
	cfg.OnDisk = getBoolEnvWithDefault("VECTOR_STORE_ON_DISK", cfg.OnDisk)
	cfg.Namespace = getStringEnvWithDefault("VECTOR_STORE_NAMESPACE", cfg.Namespace)
	cfg.Region = getStringEnvWithDefault("VECTOR_STORE_REGION", cfg.Region)
	cfg.Provider = getStringEnvWithDefault("VECTOR_STORE_PROVIDER", cfg.Provider)
	cfg.BaseDir = getStringEnvWithDefault("VECTOR_STORE_BASE_DIR", cfg.BaseDir)
	cfg.ReflectionCollection = os.Getenv("REFLECTION_VECTOR_STORE_COLLECTION")

	if !knownBackends[cfg.Type] {
		// An unrecognized backend tag falls back to the baseline
		// deterministically rather than failing configuration outright.
		cfg.Type = BackendMemory
	}

	if cfg.IsRemote() {
		if err := cfg.Validate(); err != nil {
			// A remote backend selected without the host/url/key it needs
			// falls back to the baseline the same way an unknown tag does,
			// rather than letting CreateVectorStoreFromEnv fail outright.
			cfg.Type = BackendMemory
		}
	}

	return cfg, nil
}

// Validate checks the declared backend type against the closed set and
// the required fields per backend. It never performs network I/O.
func (c *Config) Validate() error {
	if !knownBackends[c.Type] {
		return fmt.Errorf("invalid backend type: %q", c.Type)
	}
	if c.Collection == "" {
		return fmt.Errorf("collection name must not be empty")
	}
	if c.Dimension < 1 {
		return fmt.Errorf("dimension must be >= 1, got %d", c.Dimension)
	}

	switch c.Type {
	case BackendQdrant, BackendChroma, BackendRedis:
		if c.Host == "" && c.URL == "" {
			return fmt.Errorf("%s requires VECTOR_STORE_HOST or VECTOR_STORE_URL", c.Type)
		}
	case BackendPinecone, BackendWeaviate:
		if c.URL == "" {
			return fmt.Errorf("%s requires VECTOR_STORE_URL", c.Type)
		}
		if c.APIKey == "" {
			return fmt.Errorf("%s requires VECTOR_STORE_API_KEY", c.Type)
		}
	case BackendPgvector:
		if c.URL == "" && c.Host == "" {
			return fmt.Errorf("pgvector requires VECTOR_STORE_URL or VECTOR_STORE_HOST")
		}
	}
	return nil
}

// IsRemote reports whether the backend type requires a network connection,
// as opposed to the in-process baseline or the local persistent engine.
func (c *Config) IsRemote() bool {
	switch c.Type {
	case BackendMemory, BackendPersistent, BackendSQLiteVec:
		return false
	default:
		return true
	}
}

func getStringEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getPositiveIntEnvWithDefault parses an integer env var, falling back to
// the default on a parse failure or a non-positive value (per §4.7,
// "invalid numeric values fall back to defaults with a warning").
func getPositiveIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
		logging.Warn("invalid numeric environment value, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
