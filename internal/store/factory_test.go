package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lerian-vectorstore/internal/config"
)

func TestNewDispatchesOnBackendType(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Type = config.BackendMemory
	cfg.Collection = "dispatch-test"
	cfg.Dimension = 8

	backend, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "memory", backend.BackendType())
	assert.Equal(t, "dispatch-test", backend.CollectionName())
}

func TestNewRejectsUnknownBackendType(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Type = config.BackendType("made-up-backend")

	_, err := New(cfg)
	require.Error(t, err)
}

func TestCreateVectorStoreRejectsInvalidConfigurationWithoutFallback(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Collection = "" // fails Validate()

	_, err := CreateVectorStore(context.Background(), cfg)
	require.Error(t, err)
}

func TestCreateVectorStoreMemoryNeverFallsBack(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Type = config.BackendMemory
	cfg.Collection = "local"
	cfg.Dimension = 4

	mgr, err := CreateVectorStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, mgr.GetInfo().Fallback)
	assert.True(t, mgr.IsConnected())
}

func TestCreateVectorStoreFallsBackToMemoryOnUnreachableRemote(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Type = config.BackendChroma
	cfg.Collection = "remote-coll"
	cfg.Dimension = 4
	cfg.Host = "127.0.0.1"
	cfg.Port = 1 // closed port: connection refused, never a real network call

	mgr, err := CreateVectorStore(context.Background(), cfg)
	require.NoError(t, err)
	info := mgr.GetInfo()
	assert.True(t, info.Fallback)
	assert.Equal(t, "memory", info.BackendType)
	assert.Equal(t, "remote-coll", info.CollectionName)
}

func TestCreateDefaultVectorStoreBuildsConnectedMemoryStore(t *testing.T) {
	mgr, err := CreateDefaultVectorStore(context.Background(), "defaults", 16)
	require.NoError(t, err)
	assert.Equal(t, "memory", mgr.GetInfo().BackendType)
	assert.True(t, mgr.IsConnected())
}

func TestGetVectorStoreConfigFromEnvLoadsDefaultsWhenUnset(t *testing.T) {
	cfg, err := GetVectorStoreConfigFromEnv()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Collection)
}

func TestCreateVectorStoreFromEnvHonorsTypeOverride(t *testing.T) {
	t.Setenv("VECTOR_STORE_TYPE", "memory")
	t.Setenv("VECTOR_STORE_COLLECTION", "env-driven")
	t.Setenv("VECTOR_STORE_DIMENSION", "4")

	mgr, err := CreateVectorStoreFromEnv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-driven", mgr.GetInfo().CollectionName)
}
