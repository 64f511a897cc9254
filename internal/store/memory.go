// Package store provides the concrete VectorStore backends: the
// in-process baseline, the persistent exact-scan engine, and adapters onto
// several managed/remote vector engines.
package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"lerian-vectorstore/internal/logging"
	"lerian-vectorstore/pkg/vectorstore"
)

const backendMemory = "memory"

// entry is the baseline's internal per-ID record.
type entry struct {
	vector  vectorstore.Vector
	payload vectorstore.Payload
}

// MemoryStore is the exact brute-force, in-process baseline: a mapping
// from integer ID to (vector, payload), with a configured capacity bound.
// It is the correctness oracle every other backend is grounded against.
type MemoryStore struct {
	mu         sync.RWMutex
	collection string
	dimension  int
	metric     vectorstore.DistanceMetric
	capacity   int
	data       map[int64]entry
	connected  bool
	logger     logging.Logger
}

// NewMemoryStore constructs a disconnected in-process baseline for the
// given collection name, dimension, and capacity.
func NewMemoryStore(collection string, dimension int, metric vectorstore.DistanceMetric, capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryStore{
		collection: collection,
		dimension:  dimension,
		metric:     metric,
		capacity:   capacity,
		data:       make(map[int64]entry),
		logger:     logging.WithComponent(backendMemory),
	}
}

// Connect brings the baseline to ready state. It never fails: there is no
// remote handshake.
func (m *MemoryStore) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	m.logger.Info("memory store connected", "collection", m.collection)
	return nil
}

// Disconnect releases the in-memory map; in-memory variants drop data on
// disconnect per the lifecycle contract.
func (m *MemoryStore) Disconnect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.data = make(map[int64]entry)
	m.logger.Info("memory store disconnected", "collection", m.collection)
	return nil
}

// IsConnected reports current connection state.
func (m *MemoryStore) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *MemoryStore) requireConnected(op string) error {
	if !m.connected {
		return vectorstore.NewNotConnected(op, backendMemory)
	}
	return nil
}

// Insert rejects the batch if size+len(vectors) would exceed capacity,
// deep-copies every payload, and stores a clone of every vector. Either the
// whole batch succeeds or the store is left unchanged.
func (m *MemoryStore) Insert(_ context.Context, vectors []vectorstore.Vector, ids []int64, payloads []vectorstore.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireConnected("insert"); err != nil {
		return err
	}
	if len(vectors) != len(ids) || len(ids) != len(payloads) {
		return vectorstore.NewInvalidArgument("insert", backendMemory, nil)
	}
	for _, v := range vectors {
		if len(v) != m.dimension {
			return vectorstore.NewDimensionMismatch("insert", backendMemory, m.dimension, len(v))
		}
	}

	newCount := 0
	for _, id := range ids {
		if _, exists := m.data[id]; !exists {
			newCount++
		}
	}
	if len(m.data)+newCount > m.capacity {
		return vectorstore.NewInvalidArgument("insert", backendMemory, errCapacityExceeded)
	}

	for i, id := range ids {
		m.data[id] = entry{
			vector:  cloneVector(vectors[i]),
			payload: payloads[i].Clone(),
		}
	}
	return nil
}

// Search computes similarity against every stored vector satisfying the
// filter, takes the top-limit, tie-broken by lower ID, and returns deep
// clones.
func (m *MemoryStore) Search(_ context.Context, query vectorstore.Vector, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.requireConnected("search"); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, vectorstore.NewInvalidArgument("search", backendMemory, nil)
	}
	if len(query) != m.dimension {
		return nil, vectorstore.NewDimensionMismatch("search", backendMemory, m.dimension, len(query))
	}

	type scored struct {
		id    int64
		score float64
		e     entry
	}
	candidates := make([]scored, 0, len(m.data))
	for id, e := range m.data {
		if filter != nil && !filter.Matches(e.payload) {
			continue
		}
		candidates = append(candidates, scored{id: id, score: score(m.metric, query, e.vector), e: e})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	if limit < len(candidates) {
		candidates = candidates[:limit]
	}

	out := make([]vectorstore.SearchResult, len(candidates))
	for i, c := range candidates {
		out[i] = vectorstore.SearchResult{
			ID:      c.id,
			Score:   c.score,
			Payload: c.e.payload.Clone(),
			Vector:  cloneVector(c.e.vector),
		}
	}
	return out, nil
}

// Get returns a deep clone of the stored entry for id, or nil if absent.
func (m *MemoryStore) Get(_ context.Context, id int64) (*vectorstore.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.requireConnected("get"); err != nil {
		return nil, err
	}
	e, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	return &vectorstore.SearchResult{
		ID:      id,
		Score:   1.0,
		Payload: e.payload.Clone(),
		Vector:  cloneVector(e.vector),
	}, nil
}

// Update overwrites the vector and payload for id as an upsert.
func (m *MemoryStore) Update(_ context.Context, id int64, vector vectorstore.Vector, payload vectorstore.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireConnected("update"); err != nil {
		return err
	}
	if len(vector) != m.dimension {
		return vectorstore.NewDimensionMismatch("update", backendMemory, m.dimension, len(vector))
	}
	m.data[id] = entry{vector: cloneVector(vector), payload: payload.Clone()}
	return nil
}

// Delete removes id; a missing id is a no-op that returns no error
// (idempotent) and is only logged at debug level.
func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireConnected("delete"); err != nil {
		return err
	}
	if _, ok := m.data[id]; !ok {
		m.logger.Debug("delete on missing id, no-op", "id", id)
		return nil
	}
	delete(m.data, id)
	return nil
}

// List returns every entry matching filter (or all entries if filter is
// nil), capped at limit when limit > 0, plus the total matching count.
func (m *MemoryStore) List(_ context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.requireConnected("list"); err != nil {
		return nil, 0, err
	}

	ids := make([]int64, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	matched := make([]vectorstore.SearchResult, 0, len(ids))
	for _, id := range ids {
		e := m.data[id]
		if filter != nil && !filter.Matches(e.payload) {
			continue
		}
		matched = append(matched, vectorstore.SearchResult{
			ID:      id,
			Score:   1.0,
			Payload: e.payload.Clone(),
			Vector:  cloneVector(e.vector),
		})
	}

	total := len(matched)
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// DeleteCollection clears all in-memory state.
func (m *MemoryStore) DeleteCollection(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[int64]entry)
	return nil
}

func (m *MemoryStore) BackendType() string     { return backendMemory }
func (m *MemoryStore) Dimension() int          { return m.dimension }
func (m *MemoryStore) CollectionName() string  { return m.collection }

// Stats implements vectorstore.StatsProvider.
func (m *MemoryStore) Stats(_ context.Context) (*vectorstore.StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &vectorstore.StoreStats{
		BackendType:    backendMemory,
		CollectionName: m.collection,
		VectorCount:    int64(len(m.data)),
		Dimension:      m.dimension,
		Connected:      m.connected,
	}, nil
}

func cloneVector(v vectorstore.Vector) vectorstore.Vector {
	out := make(vectorstore.Vector, len(v))
	copy(out, v)
	return out
}

// score computes the similarity between a and b under metric, matching
// the scoring convention used by Search across backends: cosine against a
// zero-norm vector returns 0, never NaN.
func score(metric vectorstore.DistanceMetric, a, b vectorstore.Vector) float64 {
	switch metric {
	case vectorstore.DistanceEuclidean:
		var sumSq float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sumSq += d * d
		}
		dist := math.Sqrt(sumSq)
		return 1 / (1 + dist)
	case vectorstore.DistanceIP:
		return dot(a, b)
	default: // cosine
		na := norm(a)
		nb := norm(b)
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (na * nb)
	}
}

func dot(a, b vectorstore.Vector) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v vectorstore.Vector) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
