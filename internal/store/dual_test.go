package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lerian-vectorstore/internal/config"
	"lerian-vectorstore/pkg/vectorstore"
)

func TestNewDualManagerWithoutReflectionConfigured(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Type = config.BackendMemory
	cfg.Collection = "knowledge"
	cfg.Dimension = 4

	dm, err := NewDualManager(cfg)
	require.NoError(t, err)

	_, err = dm.GetManager(RoleReflection)
	assert.True(t, vectorstore.IsKind(err, vectorstore.KindInvalidArgument))
}

func TestNewDualManagerWithReflectionConfigured(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Type = config.BackendMemory
	cfg.Collection = "knowledge"
	cfg.Dimension = 4
	cfg.ReflectionCollection = "reflection"

	dm, err := NewDualManager(cfg)
	require.NoError(t, err)

	reflectionMgr, err := dm.GetManager(RoleReflection)
	require.NoError(t, err)
	assert.Equal(t, "reflection", reflectionMgr.GetInfo().CollectionName)

	knowledgeMgr, err := dm.GetManager(RoleKnowledge)
	require.NoError(t, err)
	assert.Equal(t, "knowledge", knowledgeMgr.GetInfo().CollectionName)
}

func TestDualManagerConnectBringsUpBothRoles(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Type = config.BackendMemory
	cfg.Collection = "knowledge"
	cfg.Dimension = 4
	cfg.ReflectionCollection = "reflection"

	dm, err := NewDualManager(cfg)
	require.NoError(t, err)

	require.NoError(t, dm.Connect(context.Background()))
	assert.True(t, dm.IsConnected(RoleKnowledge))
	assert.True(t, dm.IsConnected(RoleReflection))
}

func TestDualManagerGetStoreReturnsUnderlyingVectorStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Type = config.BackendMemory
	cfg.Collection = "knowledge"
	cfg.Dimension = 4

	dm, err := NewDualManager(cfg)
	require.NoError(t, err)
	require.NoError(t, dm.Connect(context.Background()))

	s, err := dm.GetStore(RoleKnowledge)
	require.NoError(t, err)
	assert.Equal(t, "memory", s.BackendType())
}

func TestDualManagerRejectsUnknownRole(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Type = config.BackendMemory
	cfg.Collection = "knowledge"
	cfg.Dimension = 4

	dm, err := NewDualManager(cfg)
	require.NoError(t, err)

	_, err = dm.GetManager(Role("unknown"))
	assert.True(t, vectorstore.IsKind(err, vectorstore.KindInvalidArgument))
	assert.False(t, dm.IsConnected(Role("unknown")))
}

func TestDualManagerDisconnectIsBestEffortAcrossBothRoles(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Type = config.BackendMemory
	cfg.Collection = "knowledge"
	cfg.Dimension = 4
	cfg.ReflectionCollection = "reflection"

	dm, err := NewDualManager(cfg)
	require.NoError(t, err)
	require.NoError(t, dm.Connect(context.Background()))

	require.NoError(t, dm.Disconnect(context.Background()))
	assert.False(t, dm.IsConnected(RoleKnowledge))
	assert.False(t, dm.IsConnected(RoleReflection))
}

func TestNewDualManagerRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Collection = ""

	_, err := NewDualManager(cfg)
	require.Error(t, err)
}
