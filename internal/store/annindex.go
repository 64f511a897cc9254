package store

import (
	"math"
	"sort"
	"sync"

	"lerian-vectorstore/pkg/vectorstore"
)

// annIndex is the external approximate-nearest-neighbor index object the
// persistent backend consults for search candidates. Vectors are
// normalized on the cosine path at insertion time so that the underlying
// scoring can always be a raw inner product, per §4.4.
type annIndex struct {
	mu       sync.RWMutex
	metric   vectorstore.DistanceMetric
	vectors  map[int64]vectorstore.Vector // normalized for cosine, raw otherwise
	deleted  map[int64]bool
}

func newANNIndex(metric vectorstore.DistanceMetric) *annIndex {
	return &annIndex{
		metric:  metric,
		vectors: make(map[int64]vectorstore.Vector),
		deleted: make(map[int64]bool),
	}
}

// add inserts or replaces the indexed vector for id, normalizing it when
// the index is configured for cosine.
func (a *annIndex) add(id int64, v vectorstore.Vector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.vectors[id] = a.prepare(v)
	delete(a.deleted, id)
}

// tombstone marks id as deleted without necessarily compacting storage;
// get/list/search must never surface a tombstoned ID.
func (a *annIndex) tombstone(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.vectors, id)
	a.deleted[id] = true
}

func (a *annIndex) prepare(v vectorstore.Vector) vectorstore.Vector {
	if a.metric != vectorstore.DistanceCosine {
		return cloneVector(v)
	}
	n := norm(v)
	if n == 0 {
		return cloneVector(v)
	}
	out := make(vectorstore.Vector, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// population returns the current number of live (non-tombstoned) entries.
func (a *annIndex) population() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.vectors)
}

// candidate is one scored hit from the index.
type candidate struct {
	id    int64
	score float64
}

// search returns up to limit candidates ranked by score, capped at the
// index's current population.
func (a *annIndex) search(query vectorstore.Vector, limit int) []candidate {
	a.mu.RLock()
	defer a.mu.RUnlock()

	prepared := a.prepare(query)
	out := make([]candidate, 0, len(a.vectors))
	for id, v := range a.vectors {
		var s float64
		switch a.metric {
		case vectorstore.DistanceEuclidean:
			var sumSq float64
			for i := range prepared {
				d := float64(prepared[i]) - float64(v[i])
				sumSq += d * d
			}
			s = 1 / (1 + math.Sqrt(sumSq))
		default: // cosine (both normalized) and IP both score as raw inner product
			s = dot(prepared, v)
		}
		out = append(out, candidate{id: id, score: s})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id < out[j].id
	})

	if limit > len(out) {
		limit = len(out)
	}
	return out[:limit]
}
