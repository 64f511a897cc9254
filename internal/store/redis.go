package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"lerian-vectorstore/internal/config"
	"lerian-vectorstore/internal/logging"
	"lerian-vectorstore/pkg/vectorstore"
)

const backendRedis = "redis"

// RedisStore adapts the VectorStore contract onto a plain Redis instance:
// each vector is a JSON string value (vector plus payload) keyed
// "<collection>:<id>", with a per-collection
// set "<collection>:ids" tracking membership for List/DeleteCollection.
// Redis has no native vector-similarity operator in this form, so scoring
// is brute-force client-side, reusing the baseline's score() helper.
type RedisStore struct {
	mu         sync.RWMutex
	client     *redis.Client
	cfg        *config.Config
	metric     vectorstore.DistanceMetric
	collection string
	connected  bool
	logger     logging.Logger
}

// NewRedisStore constructs a disconnected Redis-backed store from cfg.
func NewRedisStore(cfg *config.Config, metric vectorstore.DistanceMetric) *RedisStore {
	addr := cfg.Host
	if cfg.Port != 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}
	if addr == "" {
		addr = "localhost:6379"
	}

	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.APIKey,
		}),
		cfg:        cfg,
		metric:     metric,
		collection: cfg.Collection,
		logger:     logging.WithComponent(backendRedis),
	}
}

func (r *RedisStore) vectorKey(id int64) string {
	return fmt.Sprintf("%s:%d", r.collection, id)
}

func (r *RedisStore) idSetKey() string {
	return fmt.Sprintf("%s:ids", r.collection)
}

// Connect pings the Redis server.
func (r *RedisStore) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return vectorstore.NewConnectionFailure("connect", backendRedis, vectorstore.ConnReasonUnreachable, err)
	}
	if err := r.verifyDimension(ctx); err != nil {
		return err
	}
	r.connected = true
	r.logger.Info("redis store connected", "collection", r.collection)
	return nil
}

// verifyDimension samples one existing member of the collection's id set,
// since plain Redis carries no schema of its own — dimension is only
// observable from a record already written. An empty or missing collection
// has nothing to verify against.
func (r *RedisStore) verifyDimension(ctx context.Context) error {
	idStr, err := r.client.SRandMember(ctx, r.idSetKey()).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return vectorstore.NewConnectionFailure("connect", backendRedis, vectorstore.ConnReasonUnreachable, err)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil
	}

	raw, err := r.client.Get(ctx, r.vectorKey(id)).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return vectorstore.NewConnectionFailure("connect", backendRedis, vectorstore.ConnReasonUnreachable, err)
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return vectorstore.NewConnectionFailure("connect", backendRedis, vectorstore.ConnReasonUnreachable, err)
	}
	if existingDim := len(rec.Vector); existingDim != r.cfg.Dimension {
		return vectorstore.NewConnectionFailure("connect", backendRedis, vectorstore.ConnReasonSchemaMismatch,
			fmt.Errorf("existing collection %q has vector dimension %d, configured dimension is %d", r.collection, existingDim, r.cfg.Dimension))
	}
	return nil
}

func (r *RedisStore) Disconnect(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
	err := r.client.Close()
	r.logger.Info("redis store disconnected", "collection", r.collection)
	return err
}

func (r *RedisStore) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

func (r *RedisStore) requireConnected(op string) error {
	if !r.connected {
		return vectorstore.NewNotConnected(op, backendRedis)
	}
	return nil
}

type redisRecord struct {
	Vector  vectorstore.Vector    `json:"vector"`
	Payload vectorstore.Payload   `json:"payload"`
}

func (r *RedisStore) writeOne(ctx context.Context, id int64, vector vectorstore.Vector, payload vectorstore.Payload) error {
	rec := redisRecord{Vector: vector, Payload: payload}
	raw, err := json.Marshal(rec)
	if err != nil {
		return vectorstore.NewInvalidArgument("insert", backendRedis, err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.vectorKey(id), raw, 0)
	pipe.SAdd(ctx, r.idSetKey(), id)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return vectorstore.NewBackendFailure("insert", backendRedis, err)
	}
	return nil
}

// Insert writes one hash-equivalent JSON blob per vector plus a set
// membership entry, transactionally per vector.
func (r *RedisStore) Insert(ctx context.Context, vectors []vectorstore.Vector, ids []int64, payloads []vectorstore.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireConnected("insert"); err != nil {
		return err
	}
	if len(vectors) != len(ids) || len(ids) != len(payloads) {
		return vectorstore.NewInvalidArgument("insert", backendRedis, nil)
	}

	for i, v := range vectors {
		if len(v) != r.cfg.Dimension {
			return vectorstore.NewDimensionMismatch("insert", backendRedis, r.cfg.Dimension, len(v))
		}
		if err := r.writeOne(ctx, ids[i], v, payloads[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisStore) readOne(ctx context.Context, id int64) (*redisRecord, error) {
	raw, err := r.client.Get(ctx, r.vectorKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, vectorstore.NewBackendFailure("get", backendRedis, err)
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, vectorstore.NewBackendFailure("get", backendRedis, err)
	}
	return &rec, nil
}

// Search brute-force-scans every member of the collection's id set,
// scoring each with the configured metric, since plain Redis (without the
// search module) exposes no native vector index.
func (r *RedisStore) Search(ctx context.Context, query vectorstore.Vector, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.requireConnected("search"); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, vectorstore.NewInvalidArgument("search", backendRedis, nil)
	}
	if len(query) != r.cfg.Dimension {
		return nil, vectorstore.NewDimensionMismatch("search", backendRedis, r.cfg.Dimension, len(query))
	}

	ids, err := r.client.SMembers(ctx, r.idSetKey()).Result()
	if err != nil {
		return nil, vectorstore.NewBackendFailure("search", backendRedis, err)
	}

	results := make([]vectorstore.SearchResult, 0, len(ids))
	for _, idStr := range ids {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		rec, err := r.readOne(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		if filter != nil && !filter.Matches(rec.Payload) {
			continue
		}
		results = append(results, vectorstore.SearchResult{
			ID:      id,
			Score:   score(r.metric, query, rec.Vector),
			Payload: rec.Payload,
			Vector:  rec.Vector,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// Get fetches one vector/payload by id.
func (r *RedisStore) Get(ctx context.Context, id int64) (*vectorstore.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.requireConnected("get"); err != nil {
		return nil, err
	}
	rec, err := r.readOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return &vectorstore.SearchResult{ID: id, Score: 1.0, Payload: rec.Payload, Vector: rec.Vector}, nil
}

// Update overwrites a vector/payload in place.
func (r *RedisStore) Update(ctx context.Context, id int64, vector vectorstore.Vector, payload vectorstore.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireConnected("update"); err != nil {
		return err
	}
	if len(vector) != r.cfg.Dimension {
		return vectorstore.NewDimensionMismatch("update", backendRedis, r.cfg.Dimension, len(vector))
	}
	exists, err := r.client.Exists(ctx, r.vectorKey(id)).Result()
	if err != nil {
		return vectorstore.NewBackendFailure("update", backendRedis, err)
	}
	if exists == 0 {
		return vectorstore.NewInvalidArgument("update", backendRedis, fmt.Errorf("id %d not found", id))
	}
	return r.writeOne(ctx, id, vector, payload)
}

// Delete removes the record key and its set membership; a missing id is a
// silent no-op.
func (r *RedisStore) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireConnected("delete"); err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.vectorKey(id))
	pipe.SRem(ctx, r.idSetKey(), id)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return vectorstore.NewBackendFailure("delete", backendRedis, err)
	}
	return nil
}

// List scans every member of the collection's id set.
func (r *RedisStore) List(ctx context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.requireConnected("list"); err != nil {
		return nil, 0, err
	}

	ids, err := r.client.SMembers(ctx, r.idSetKey()).Result()
	if err != nil {
		return nil, 0, vectorstore.NewBackendFailure("list", backendRedis, err)
	}

	matched := make([]vectorstore.SearchResult, 0, len(ids))
	for _, idStr := range ids {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		rec, err := r.readOne(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if rec == nil {
			continue
		}
		if filter != nil && !filter.Matches(rec.Payload) {
			continue
		}
		matched = append(matched, vectorstore.SearchResult{ID: id, Score: 1.0, Payload: rec.Payload, Vector: rec.Vector})
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := len(matched)
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// DeleteCollection deletes every member key plus the id set itself.
func (r *RedisStore) DeleteCollection(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.client.SMembers(ctx, r.idSetKey()).Result()
	if err != nil {
		return vectorstore.NewBackendFailure("delete_collection", backendRedis, err)
	}

	pipe := r.client.TxPipeline()
	for _, idStr := range ids {
		pipe.Del(ctx, fmt.Sprintf("%s:%s", r.collection, idStr))
	}
	pipe.Del(ctx, r.idSetKey())
	_, err = pipe.Exec(ctx)
	if err != nil {
		return vectorstore.NewBackendFailure("delete_collection", backendRedis, err)
	}
	return nil
}

func (r *RedisStore) BackendType() string    { return backendRedis }
func (r *RedisStore) Dimension() int         { return r.cfg.Dimension }
func (r *RedisStore) CollectionName() string { return r.collection }
