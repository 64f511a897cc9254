package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lerian-vectorstore/pkg/vectorstore"
)

func TestANNIndexCosineNormalizesAtInsertion(t *testing.T) {
	idx := newANNIndex(vectorstore.DistanceCosine)
	idx.add(1, vectorstore.Vector{3, 4, 0}) // norm 5

	hits := idx.search(vectorstore.Vector{1, 0, 0}, 1)
	assert.Len(t, hits, 1)
	assert.InDelta(t, 0.6, hits[0].score, 1e-6) // cos = dot((0.6,0.8,0), (1,0,0))
}

func TestANNIndexEuclideanScoring(t *testing.T) {
	idx := newANNIndex(vectorstore.DistanceEuclidean)
	idx.add(1, vectorstore.Vector{0, 0})
	idx.add(2, vectorstore.Vector{3, 4}) // distance 5 from origin

	hits := idx.search(vectorstore.Vector{0, 0}, 2)
	assert.Equal(t, int64(1), hits[0].id)
	assert.InDelta(t, 1.0, hits[0].score, 1e-9)
	assert.InDelta(t, 1.0/6.0, hits[1].score, 1e-9)
}

func TestANNIndexTombstoneRemovesFromSearchAndPopulation(t *testing.T) {
	idx := newANNIndex(vectorstore.DistanceIP)
	idx.add(1, vectorstore.Vector{1, 0})
	idx.add(2, vectorstore.Vector{0, 1})
	assert.Equal(t, 2, idx.population())

	idx.tombstone(1)
	assert.Equal(t, 1, idx.population())

	hits := idx.search(vectorstore.Vector{1, 0}, 10)
	assert.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].id)
}

func TestANNIndexSearchCapsAtPopulation(t *testing.T) {
	idx := newANNIndex(vectorstore.DistanceIP)
	idx.add(1, vectorstore.Vector{1, 0})
	idx.add(2, vectorstore.Vector{0, 1})

	hits := idx.search(vectorstore.Vector{1, 0}, 10)
	assert.Len(t, hits, 2)
}

func TestANNIndexCosineZeroVectorNeverNormalizedToNaN(t *testing.T) {
	idx := newANNIndex(vectorstore.DistanceCosine)
	idx.add(1, vectorstore.Vector{0, 0})

	hits := idx.search(vectorstore.Vector{1, 0}, 1)
	assert.Len(t, hits, 1)
	assert.Equal(t, 0.0, hits[0].score)
}

func TestANNIndexReAddReplacesPreviousVector(t *testing.T) {
	idx := newANNIndex(vectorstore.DistanceIP)
	idx.add(1, vectorstore.Vector{1, 0})
	idx.add(1, vectorstore.Vector{0, 1})
	assert.Equal(t, 1, idx.population())

	hits := idx.search(vectorstore.Vector{0, 1}, 1)
	assert.InDelta(t, 1.0, hits[0].score, 1e-9)
}
