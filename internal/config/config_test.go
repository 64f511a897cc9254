package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, BackendMemory, cfg.Type)
	assert.Equal(t, "default", cfg.Collection)
	assert.Equal(t, 1536, cfg.Dimension)
	assert.Equal(t, 10000, cfg.MaxVectors)
	assert.Equal(t, "cosine", cfg.Distance)
	assert.False(t, cfg.OnDisk)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("VECTOR_STORE_TYPE", "qdrant")
	t.Setenv("VECTOR_STORE_COLLECTION", "mycoll")
	t.Setenv("VECTOR_STORE_DIMENSION", "384")
	t.Setenv("VECTOR_STORE_HOST", "localhost")
	t.Setenv("VECTOR_STORE_PORT", "6334")
	t.Setenv("VECTOR_STORE_DISTANCE", "euclidean")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendQdrant, cfg.Type)
	assert.Equal(t, "mycoll", cfg.Collection)
	assert.Equal(t, 384, cfg.Dimension)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, "euclidean", cfg.Distance)
}

func TestLoadFromEnvInvalidNumericFallsBackToDefault(t *testing.T) {
	t.Setenv("VECTOR_STORE_DIMENSION", "not-a-number")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 1536, cfg.Dimension)
}

func TestLoadFromEnvUnknownBackendFallsBackToMemory(t *testing.T) {
	t.Setenv("VECTOR_STORE_TYPE", "not-a-real-backend")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Type)
}

func TestLoadFromEnvIncompleteRemoteConfigFallsBackToMemory(t *testing.T) {
	t.Setenv("VECTOR_STORE_TYPE", "qdrant")
	// No VECTOR_STORE_HOST/VECTOR_STORE_URL set: qdrant can never connect.

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Type)
}

func TestLoadFromEnvCompleteRemoteConfigIsKept(t *testing.T) {
	t.Setenv("VECTOR_STORE_TYPE", "qdrant")
	t.Setenv("VECTOR_STORE_HOST", "localhost")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendQdrant, cfg.Type)
}

func TestLoadFromEnvReflectionCollection(t *testing.T) {
	t.Setenv("REFLECTION_VECTOR_STORE_COLLECTION", "R")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "R", cfg.ReflectionCollection)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Type = "bogus"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyCollection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Collection = ""
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveDimension(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dimension = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresHostOrURLForQdrant(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Type = BackendQdrant
	require.Error(t, cfg.Validate())

	cfg.Host = "localhost"
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresURLAndAPIKeyForPinecone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Type = BackendPinecone
	require.Error(t, cfg.Validate())

	cfg.URL = "https://example.pinecone.io"
	require.Error(t, cfg.Validate())

	cfg.APIKey = "key"
	require.NoError(t, cfg.Validate())
}

func TestIsRemote(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.IsRemote())

	cfg.Type = BackendPersistent
	assert.False(t, cfg.IsRemote())

	cfg.Type = BackendQdrant
	assert.True(t, cfg.IsRemote())
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
