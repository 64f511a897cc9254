package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"lerian-vectorstore/internal/config"
	"lerian-vectorstore/pkg/vectorstore"
)

func TestNewRedisStoreBuildsAddrFromHostPort(t *testing.T) {
	cfg := &config.Config{Collection: "docs", Dimension: 4, Host: "cache.internal", Port: 6380}
	s := NewRedisStore(cfg, vectorstore.DistanceCosine)
	assert.Equal(t, "cache.internal:6380", s.client.Options().Addr)
}

func TestNewRedisStoreDefaultsAddrWhenUnset(t *testing.T) {
	cfg := &config.Config{Collection: "docs", Dimension: 4}
	s := NewRedisStore(cfg, vectorstore.DistanceCosine)
	assert.Equal(t, "localhost:6379", s.client.Options().Addr)
}

func TestNewRedisStoreFieldAssignment(t *testing.T) {
	cfg := &config.Config{Collection: "docs", Dimension: 4, Host: "localhost", Port: 6379}
	s := NewRedisStore(cfg, vectorstore.DistanceCosine)
	assert.Equal(t, "docs", s.CollectionName())
	assert.Equal(t, 4, s.Dimension())
	assert.Equal(t, backendRedis, s.BackendType())
	assert.False(t, s.IsConnected())
}

func TestRedisVectorKeyFormat(t *testing.T) {
	s := &RedisStore{collection: "docs"}
	assert.Equal(t, "docs:42", s.vectorKey(42))
}

func TestRedisIDSetKeyFormat(t *testing.T) {
	s := &RedisStore{collection: "docs"}
	assert.Equal(t, "docs:ids", s.idSetKey())
}

func TestRedisRecordJSONRoundTrip(t *testing.T) {
	rec := redisRecord{Vector: vectorstore.Vector{1, 2, 3}, Payload: vectorstore.Payload{"title": "doc"}}
	raw, err := json.Marshal(rec)
	assert.NoError(t, err)

	var back redisRecord
	assert.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, rec.Vector, back.Vector)
	assert.Equal(t, rec.Payload["title"], back.Payload["title"])
}

func TestRedisStoreOperationsBeforeConnectReturnNotConnected(t *testing.T) {
	cfg := &config.Config{Collection: "docs", Dimension: 4, Host: "localhost", Port: 6379}
	s := NewRedisStore(cfg, vectorstore.DistanceCosine)

	_, err := s.Get(context.Background(), 1)
	assert.True(t, vectorstore.IsNotConnected(err))

	_, _, err = s.List(context.Background(), nil, 0)
	assert.True(t, vectorstore.IsNotConnected(err))
}
