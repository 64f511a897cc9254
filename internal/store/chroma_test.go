package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lerian-vectorstore/internal/config"
	"lerian-vectorstore/pkg/vectorstore"
)

func TestNewChromaStoreUsesURLOverHostPort(t *testing.T) {
	cfg := &config.Config{Collection: "docs", Dimension: 32, URL: "http://chroma.internal:9000", Host: "ignored", Port: 1}
	s := NewChromaStore(cfg, vectorstore.DistanceCosine)
	assert.Equal(t, "http://chroma.internal:9000", s.client.BaseURL)
}

func TestNewChromaStoreBuildsURLFromHostPort(t *testing.T) {
	cfg := &config.Config{Collection: "docs", Dimension: 32, Host: "localhost", Port: 8000}
	s := NewChromaStore(cfg, vectorstore.DistanceCosine)
	assert.Equal(t, "http://localhost:8000", s.client.BaseURL)
}

func TestNewChromaStoreFieldAssignment(t *testing.T) {
	cfg := &config.Config{Collection: "docs", Dimension: 32, Host: "localhost", Port: 8000}
	s := NewChromaStore(cfg, vectorstore.DistanceCosine)
	assert.Equal(t, "docs", s.CollectionName())
	assert.Equal(t, 32, s.Dimension())
	assert.Equal(t, backendChroma, s.BackendType())
}

func TestChromaWhereEq(t *testing.T) {
	where := chromaWhere(vectorstore.Filter{"category": vectorstore.Eq("docs")})
	assert.Equal(t, "docs", where["category"])
}

func TestChromaWhereAnyOfUsesInOperator(t *testing.T) {
	where := chromaWhere(vectorstore.Filter{"status": vectorstore.AnyOf("open", "closed")})
	sub := where["status"].(map[string]interface{})
	assert.ElementsMatch(t, []interface{}{"open", "closed"}, sub["$in"])
}

func TestChromaWhereRangeProducesComparisonOperators(t *testing.T) {
	gte := 2020.0
	lte := 2024.0
	where := chromaWhere(vectorstore.Filter{"year": vectorstore.Range(vectorstore.RangePredicate{GTE: &gte, LTE: &lte})})
	sub := where["year"].(map[string]interface{})
	assert.Equal(t, 2020.0, sub["$gte"])
	assert.Equal(t, 2024.0, sub["$lte"])
}

func TestChromaWhereEmptyFilterReturnsNil(t *testing.T) {
	assert.Nil(t, chromaWhere(nil))
	assert.Nil(t, chromaWhere(vectorstore.Filter{}))
}

func TestChromaWhereAllOfHasNoTranslation(t *testing.T) {
	// AllOf produces no native Chroma clause at all; chromaWhere omits the
	// key entirely and relies on hasAllOfOnly for client-side re-validation.
	where := chromaWhere(vectorstore.Filter{"tags": vectorstore.AllOf("go", "vector")})
	assert.Nil(t, where)
}
