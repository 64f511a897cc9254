package store

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lerian-vectorstore/internal/config"
	"lerian-vectorstore/pkg/vectorstore"
)

func TestNewQdrantStoreFieldAssignment(t *testing.T) {
	cfg := &config.Config{Collection: "docs", Dimension: 64, Host: "localhost", Port: 6334}
	s := NewQdrantStore(cfg, vectorstore.DistanceCosine)

	assert.Equal(t, "docs", s.CollectionName())
	assert.Equal(t, 64, s.Dimension())
	assert.Equal(t, backendQdrant, s.BackendType())
	assert.False(t, s.IsConnected())
}

func TestQdrantDistanceMapping(t *testing.T) {
	assert.Equal(t, qdrant.Distance_Euclid, qdrantDistance(vectorstore.DistanceEuclidean))
	assert.Equal(t, qdrant.Distance_Dot, qdrantDistance(vectorstore.DistanceIP))
	assert.Equal(t, qdrant.Distance_Cosine, qdrantDistance(vectorstore.DistanceCosine))
}

func TestValueToQdrantAndBackRoundTrip(t *testing.T) {
	cases := []interface{}{"hello", true, 3, int64(7), 3.14, float32(2.5)}
	for _, c := range cases {
		qv := valueToQdrant(c)
		back := valueFromQdrant(qv)
		switch c.(type) {
		case int:
			assert.Equal(t, int64(c.(int)), back)
		case float32:
			assert.Equal(t, float64(c.(float32)), back)
		default:
			assert.Equal(t, c, back)
		}
	}
}

func TestPayloadToQdrantRoundTrip(t *testing.T) {
	p := vectorstore.Payload{"title": "doc", "year": 2024.0}
	qp := payloadToQdrant(p)
	back := qdrantToPayload(qp)
	assert.Equal(t, "doc", back["title"])
	assert.Equal(t, 2024.0, back["year"])
}

func TestQdrantPointIDUsesNumericVariant(t *testing.T) {
	id := qdrantPointID(42)
	require.NotNil(t, id.GetNum())
	assert.Equal(t, uint64(42), id.GetNum())
}

func TestQdrantVectorsWrapsRawData(t *testing.T) {
	v := qdrantVectors(vectorstore.Vector{1, 2, 3})
	assert.Equal(t, []float32{1, 2, 3}, v.GetVector().GetData())
}

func TestBuildQdrantFilterNilForEmptyFilter(t *testing.T) {
	assert.Nil(t, buildQdrantFilter(nil))
	assert.Nil(t, buildQdrantFilter(vectorstore.Filter{}))
}

func TestBuildQdrantFilterEqProducesKeywordMatch(t *testing.T) {
	f := vectorstore.Filter{"category": vectorstore.Eq("docs")}
	built := buildQdrantFilter(f)
	require.Len(t, built.Must, 1)
	cond := built.Must[0].GetField()
	assert.Equal(t, "category", cond.Key)
	assert.Equal(t, "docs", cond.GetMatch().GetKeyword())
}

func TestBuildQdrantFilterAnyOfProducesKeywordsMatch(t *testing.T) {
	f := vectorstore.Filter{"status": vectorstore.AnyOf("open", "pending")}
	built := buildQdrantFilter(f)
	require.Len(t, built.Must, 1)
	cond := built.Must[0].GetField()
	assert.ElementsMatch(t, []string{"open", "pending"}, cond.GetMatch().GetKeywords().GetStrings())
}

func TestBuildQdrantFilterRangeProducesBounds(t *testing.T) {
	gte := 2020.0
	f := vectorstore.Filter{"year": vectorstore.Range(vectorstore.RangePredicate{GTE: &gte})}
	built := buildQdrantFilter(f)
	require.Len(t, built.Must, 1)
	r := built.Must[0].GetField().GetRange()
	require.NotNil(t, r.Gte)
	assert.Equal(t, 2020.0, *r.Gte)
}

func TestBuildQdrantFilterAllOfOmittedFromNativeFilter(t *testing.T) {
	f := vectorstore.Filter{"tags": vectorstore.AllOf("go", "vector")}
	built := buildQdrantFilter(f)
	// AllOf has no native Qdrant translation, so it adds no condition;
	// hasAllOfOnly re-checks it client-side.
	assert.Nil(t, built)
}

func TestHasAllOfOnlyRejectsMissingValue(t *testing.T) {
	f := vectorstore.Filter{"tags": vectorstore.AllOf("go", "vector")}
	ok := vectorstore.Payload{"tags": []interface{}{"go"}}
	assert.False(t, hasAllOfOnly(f, ok))

	full := vectorstore.Payload{"tags": []interface{}{"go", "vector", "search"}}
	assert.True(t, hasAllOfOnly(f, full))
}

func TestHasAllOfOnlyIgnoresNonAllOfConditions(t *testing.T) {
	f := vectorstore.Filter{"category": vectorstore.Eq("docs")}
	assert.True(t, hasAllOfOnly(f, vectorstore.Payload{"category": "anything-else"}))
}

func TestVectorFromPointNilVectorsReturnsNil(t *testing.T) {
	assert.Nil(t, vectorFromPoint(nil))
}
