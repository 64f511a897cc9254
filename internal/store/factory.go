package store

import (
	"context"
	"fmt"

	"lerian-vectorstore/internal/config"
	"lerian-vectorstore/internal/logging"
	"lerian-vectorstore/pkg/vectorstore"
)

var factoryLogger = logging.WithComponent("factory")

// New constructs the backend named by cfg.Type, disconnected, wrapped in
// retry and circuit-breaker decorators (both are always applied; no
// setting turns either off). It performs no
// network I/O; Validate has already run.
func New(cfg *config.Config) (vectorstore.VectorStore, error) {
	metric := vectorstore.ParseDistanceMetric(cfg.Distance)

	var backend vectorstore.VectorStore
	switch cfg.Type {
	case config.BackendMemory:
		backend = NewMemoryStore(cfg.Collection, cfg.Dimension, metric, cfg.MaxVectors)
	case config.BackendPersistent:
		backend = NewPersistentStore(cfg.BaseDir, cfg.Collection, cfg.Dimension, metric)
	case config.BackendQdrant:
		backend = NewQdrantStore(cfg, metric)
	case config.BackendChroma:
		backend = NewChromaStore(cfg, metric)
	case config.BackendPinecone:
		backend = NewPineconeStore(cfg, metric)
	case config.BackendWeaviate:
		backend = NewWeaviateStore(cfg, metric)
	case config.BackendRedis:
		backend = NewRedisStore(cfg, metric)
	case config.BackendPgvector:
		backend = NewPgvectorStore(cfg, metric)
	case config.BackendSQLiteVec:
		backend = NewSQLiteVecStore(cfg, metric)
	default:
		return nil, vectorstore.NewInvalidArgument("construct", string(cfg.Type), fmt.Errorf("unknown backend type %q", cfg.Type))
	}

	wrapped := vectorstore.VectorStore(NewRetryableVectorStore(backend, nil))
	wrapped = NewCircuitBreakerVectorStore(wrapped, nil)
	return wrapped, nil
}

// CreateVectorStore validates cfg, constructs the selected backend, and
// connects it with single-level fallback to the in-process baseline on
// Connection failure (§4.7). Configuration errors are never covered by
// fallback.
func CreateVectorStore(ctx context.Context, cfg *config.Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, vectorstore.NewInvalidArgument("configure", string(cfg.Type), err)
	}

	backend, err := New(cfg)
	if err != nil {
		return nil, err
	}

	if connErr := backend.Connect(ctx); connErr != nil {
		if cfg.Type == config.BackendMemory || !vectorstore.IsKind(connErr, vectorstore.KindConnectionFailure) {
			return nil, connErr
		}

		factoryLogger.Warn("remote backend connect failed, falling back to in-process baseline",
			"backend", cfg.Type, "collection", cfg.Collection, "error", connErr)

		fallback := NewMemoryStore(cfg.Collection, cfg.Dimension, vectorstore.ParseDistanceMetric(cfg.Distance), cfg.MaxVectors)
		if fbErr := fallback.Connect(ctx); fbErr != nil {
			return nil, connErr // propagate the original error, no second fallback
		}
		return NewManager(fallback, true), nil
	}

	return NewManager(backend, false), nil
}

// CreateDefaultVectorStore builds an in-process baseline with the given
// name and dimension, already connected.
func CreateDefaultVectorStore(ctx context.Context, name string, dimension int) (*Manager, error) {
	cfg := config.DefaultConfig()
	cfg.Type = config.BackendMemory
	cfg.Collection = name
	cfg.Dimension = dimension
	return CreateVectorStore(ctx, cfg)
}

// CreateVectorStoreFromEnv loads configuration from the environment and
// builds+connects the resulting store.
func CreateVectorStoreFromEnv(ctx context.Context) (*Manager, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	return CreateVectorStore(ctx, cfg)
}

// GetVectorStoreConfigFromEnv exposes the parsed environment configuration
// without constructing or connecting a store, for callers that need to
// inspect it first.
func GetVectorStoreConfigFromEnv() (*config.Config, error) {
	return config.LoadFromEnv()
}
