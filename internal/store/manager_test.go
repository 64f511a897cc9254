package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lerian-vectorstore/pkg/vectorstore"
)

func TestManagerGetInfoReflectsWrappedStoreAndFallbackFlag(t *testing.T) {
	underlying := NewMemoryStore("notes", 4, vectorstore.DistanceCosine, 10)
	m := NewManager(underlying, true)

	info := m.GetInfo()
	assert.Equal(t, "memory", info.BackendType)
	assert.Equal(t, "notes", info.CollectionName)
	assert.Equal(t, 4, info.Dimension)
	assert.True(t, info.Fallback)
}

func TestManagerConnectDisconnectDelegateToStore(t *testing.T) {
	underlying := NewMemoryStore("notes", 4, vectorstore.DistanceCosine, 10)
	m := NewManager(underlying, false)
	ctx := context.Background()

	assert.False(t, m.IsConnected())
	require.NoError(t, m.Connect(ctx))
	assert.True(t, m.IsConnected())
	assert.True(t, underlying.IsConnected())

	require.NoError(t, m.Disconnect(ctx))
	assert.False(t, m.IsConnected())
}

func TestManagerStoreReturnsUnderlyingVectorStore(t *testing.T) {
	underlying := NewMemoryStore("notes", 4, vectorstore.DistanceCosine, 10)
	m := NewManager(underlying, false)
	assert.Same(t, vectorstore.VectorStore(underlying), m.Store())
}
