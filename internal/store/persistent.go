package store

import (
	"context"
	"sort"
	"sync"

	"lerian-vectorstore/internal/logging"
	"lerian-vectorstore/pkg/vectorstore"
)

const backendPersistent = "persistent"

// PersistentStore extends the in-process baseline with a single-file
// on-disk journal and an external ANN index object that supplies search
// candidates. It is the reference implementation of C4.
type PersistentStore struct {
	mu         sync.RWMutex
	collection string
	dimension  int
	metric     vectorstore.DistanceMetric
	baseDir    string

	journal   *journal
	data      map[int64]entry
	index     *annIndex
	connected bool
	logger    logging.Logger
}

// NewPersistentStore constructs a disconnected persistent backend rooted
// at baseDir.
func NewPersistentStore(baseDir, collection string, dimension int, metric vectorstore.DistanceMetric) *PersistentStore {
	return &PersistentStore{
		collection: collection,
		dimension:  dimension,
		metric:     metric,
		baseDir:    baseDir,
		journal:    newJournal(baseDir, collection),
		data:       make(map[int64]entry),
		index:      newANNIndex(metric),
		logger:     logging.WithComponent(backendPersistent),
	}
}

// Connect ensures the storage directory exists, reads the journal into the
// in-memory map, and re-adds every vector to the ANN index.
func (p *PersistentStore) Connect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := p.journal.load()
	if err != nil {
		return vectorstore.NewConnectionFailure("connect", backendPersistent, vectorstore.ConnReasonUnspecified, err)
	}

	p.data = make(map[int64]entry)
	p.index = newANNIndex(p.metric)
	for _, rec := range doc.Records {
		e := entry{vector: rec.Vector, payload: vectorstore.Payload(rec.Payload)}
		p.data[rec.ID] = e
		p.index.add(rec.ID, e.vector)
	}

	p.connected = true
	p.logger.Info("persistent store connected", "collection", p.collection, "records", len(doc.Records))
	return nil
}

// Disconnect releases in-memory state; the journal on disk survives.
func (p *PersistentStore) Disconnect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	p.logger.Info("persistent store disconnected", "collection", p.collection)
	return nil
}

func (p *PersistentStore) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *PersistentStore) requireConnected(op string) error {
	if !p.connected {
		return vectorstore.NewNotConnected(op, backendPersistent)
	}
	return nil
}

func (p *PersistentStore) snapshotDoc() *journalDocument {
	return p.snapshotDocFrom(p.data)
}

// snapshotDocFrom builds the journal document from an arbitrary data map
// rather than p.data directly, so a pending mutation can be journaled before
// it is ever applied to the live in-memory state.
func (p *PersistentStore) snapshotDocFrom(data map[int64]entry) *journalDocument {
	doc := &journalDocument{
		Collection: p.collection,
		Dimension:  p.dimension,
		Metric:     string(p.metric),
		Records:    make([]journalRecord, 0, len(data)),
	}
	ids := make([]int64, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		e := data[id]
		doc.Records = append(doc.Records, journalRecord{ID: id, Vector: []float32(e.vector), Payload: map[string]interface{}(e.payload)})
	}
	return doc
}

// Insert appends/upserts entries in the journal, in the in-memory map, and
// adds them to the ANN index; vectors are normalized on the cosine path by
// the index itself.
func (p *PersistentStore) Insert(_ context.Context, vectors []vectorstore.Vector, ids []int64, payloads []vectorstore.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireConnected("insert"); err != nil {
		return err
	}
	if len(vectors) != len(ids) || len(ids) != len(payloads) {
		return vectorstore.NewInvalidArgument("insert", backendPersistent, nil)
	}
	for _, v := range vectors {
		if len(v) != p.dimension {
			return vectorstore.NewDimensionMismatch("insert", backendPersistent, p.dimension, len(v))
		}
	}

	staged := make(map[int64]entry, len(p.data)+len(ids))
	for id, e := range p.data {
		staged[id] = e
	}
	for i, id := range ids {
		staged[id] = entry{vector: cloneVector(vectors[i]), payload: payloads[i].Clone()}
	}
	if err := p.journal.save(p.snapshotDocFrom(staged)); err != nil {
		return vectorstore.NewBackendFailure("insert", backendPersistent, err)
	}
	p.data = staged
	for i, id := range ids {
		p.index.add(id, vectors[i])
	}
	return nil
}

// Search queries the ANN index, capped at current population, and
// projects indices back to stored entries.
func (p *PersistentStore) Search(_ context.Context, query vectorstore.Vector, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.requireConnected("search"); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, vectorstore.NewInvalidArgument("search", backendPersistent, nil)
	}
	if len(query) != p.dimension {
		return nil, vectorstore.NewDimensionMismatch("search", backendPersistent, p.dimension, len(query))
	}

	population := p.index.population()
	if limit > population {
		limit = population
	}
	// Over-fetch when a filter is present since some candidates may be
	// rejected; fall back to the full population rather than paging.
	fetch := limit
	if filter != nil {
		fetch = population
	}

	hits := p.index.search(query, fetch)
	out := make([]vectorstore.SearchResult, 0, limit)
	for _, h := range hits {
		e, ok := p.data[h.id]
		if !ok {
			continue // tombstoned
		}
		if filter != nil && !filter.Matches(e.payload) {
			continue
		}
		out = append(out, vectorstore.SearchResult{ID: h.id, Score: h.score, Payload: e.payload.Clone(), Vector: cloneVector(e.vector)})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Get returns the stored entry for id, or nil if absent or tombstoned.
func (p *PersistentStore) Get(_ context.Context, id int64) (*vectorstore.SearchResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.requireConnected("get"); err != nil {
		return nil, err
	}
	e, ok := p.data[id]
	if !ok {
		return nil, nil
	}
	return &vectorstore.SearchResult{ID: id, Score: 1.0, Payload: e.payload.Clone(), Vector: cloneVector(e.vector)}, nil
}

// Update rewrites the single entry in the journal and the in-memory map;
// the ANN index is rebuilt for the mutated slot.
func (p *PersistentStore) Update(_ context.Context, id int64, vector vectorstore.Vector, payload vectorstore.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireConnected("update"); err != nil {
		return err
	}
	if len(vector) != p.dimension {
		return vectorstore.NewDimensionMismatch("update", backendPersistent, p.dimension, len(vector))
	}
	staged := make(map[int64]entry, len(p.data))
	for existingID, e := range p.data {
		staged[existingID] = e
	}
	staged[id] = entry{vector: cloneVector(vector), payload: payload.Clone()}
	if err := p.journal.save(p.snapshotDocFrom(staged)); err != nil {
		return vectorstore.NewBackendFailure("update", backendPersistent, err)
	}
	p.data = staged
	p.index.add(id, vector)
	return nil
}

// Delete removes the entry from the journal and in-memory map; the ANN
// index only tombstones, since get/list already consult p.data.
func (p *PersistentStore) Delete(_ context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireConnected("delete"); err != nil {
		return err
	}
	if _, ok := p.data[id]; !ok {
		p.logger.Debug("delete on missing id, no-op", "id", id)
		return nil
	}
	staged := make(map[int64]entry, len(p.data))
	for existingID, e := range p.data {
		if existingID == id {
			continue
		}
		staged[existingID] = e
	}
	if err := p.journal.save(p.snapshotDocFrom(staged)); err != nil {
		return vectorstore.NewBackendFailure("delete", backendPersistent, err)
	}
	p.data = staged
	p.index.tombstone(id)
	return nil
}

// List returns every entry matching filter, capped at limit (0 = no cap).
func (p *PersistentStore) List(_ context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.requireConnected("list"); err != nil {
		return nil, 0, err
	}

	ids := make([]int64, 0, len(p.data))
	for id := range p.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	matched := make([]vectorstore.SearchResult, 0, len(ids))
	for _, id := range ids {
		e := p.data[id]
		if filter != nil && !filter.Matches(e.payload) {
			continue
		}
		matched = append(matched, vectorstore.SearchResult{ID: id, Score: 1.0, Payload: e.payload.Clone(), Vector: cloneVector(e.vector)})
	}
	total := len(matched)
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// DeleteCollection drops the journal file and clears in-memory state.
func (p *PersistentStore) DeleteCollection(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.journal.remove(); err != nil {
		return vectorstore.NewBackendFailure("delete_collection", backendPersistent, err)
	}
	p.data = make(map[int64]entry)
	p.index = newANNIndex(p.metric)
	return nil
}

func (p *PersistentStore) BackendType() string    { return backendPersistent }
func (p *PersistentStore) Dimension() int         { return p.dimension }
func (p *PersistentStore) CollectionName() string { return p.collection }

// Stats implements vectorstore.StatsProvider.
func (p *PersistentStore) Stats(_ context.Context) (*vectorstore.StoreStats, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &vectorstore.StoreStats{
		BackendType:    backendPersistent,
		CollectionName: p.collection,
		VectorCount:    int64(len(p.data)),
		Dimension:      p.dimension,
		Connected:      p.connected,
	}, nil
}
