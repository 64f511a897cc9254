package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lerian-vectorstore/internal/config"
	"lerian-vectorstore/pkg/vectorstore"
)

func TestNewPineconeStoreFieldAssignment(t *testing.T) {
	cfg := &config.Config{Collection: "docs", Dimension: 16, URL: "https://idx.svc.pinecone.io", APIKey: "secret", Namespace: "tenant-a"}
	s := NewPineconeStore(cfg, vectorstore.DistanceCosine)

	assert.Equal(t, "docs", s.CollectionName())
	assert.Equal(t, 16, s.Dimension())
	assert.Equal(t, "tenant-a", s.namespace)
	assert.Equal(t, backendPinecone, s.BackendType())
}

func TestPineconeFilterEq(t *testing.T) {
	out := pineconeFilter(vectorstore.Filter{"category": vectorstore.Eq("docs")})
	sub := out["category"].(map[string]interface{})
	assert.Equal(t, "docs", sub["$eq"])
}

func TestPineconeFilterAllOfUsesDollarAll(t *testing.T) {
	out := pineconeFilter(vectorstore.Filter{"tags": vectorstore.AllOf("go", "vector")})
	sub := out["tags"].(map[string]interface{})
	assert.ElementsMatch(t, []interface{}{"go", "vector"}, sub["$all"])
}

func TestPineconeFilterAnyOfUsesDollarIn(t *testing.T) {
	out := pineconeFilter(vectorstore.Filter{"status": vectorstore.AnyOf("open", "pending")})
	sub := out["status"].(map[string]interface{})
	assert.ElementsMatch(t, []interface{}{"open", "pending"}, sub["$in"])
}

func TestPineconeFilterRangeProducesComparisonKeys(t *testing.T) {
	gt := 10.0
	lt := 20.0
	out := pineconeFilter(vectorstore.Filter{"score": vectorstore.Range(vectorstore.RangePredicate{GT: &gt, LT: &lt})})
	sub := out["score"].(map[string]interface{})
	assert.Equal(t, 10.0, sub["$gt"])
	assert.Equal(t, 20.0, sub["$lt"])
}

func TestPineconeFilterEmptyReturnsNil(t *testing.T) {
	assert.Nil(t, pineconeFilter(nil))
	assert.Nil(t, pineconeFilter(vectorstore.Filter{}))
}
