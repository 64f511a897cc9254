package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDistanceMetric(t *testing.T) {
	assert.Equal(t, DistanceCosine, ParseDistanceMetric(""))
	assert.Equal(t, DistanceCosine, ParseDistanceMetric("cosine"))
	assert.Equal(t, DistanceEuclidean, ParseDistanceMetric("euclidean"))
	assert.Equal(t, DistanceEuclidean, ParseDistanceMetric("L2"))
	assert.Equal(t, DistanceIP, ParseDistanceMetric("dot"))
	assert.Equal(t, DistanceIP, ParseDistanceMetric("inner_product"))
	assert.Equal(t, DistanceCosine, ParseDistanceMetric("unknown-metric"))
}

func TestPayloadCloneIsDeep(t *testing.T) {
	original := Payload{
		"tags":   []interface{}{"a", "b"},
		"nested": Payload{"inner": []interface{}{1.0, 2.0}},
	}
	clone := original.Clone()

	clone["tags"].([]interface{})[0] = "mutated"
	clone["nested"].(Payload)["inner"].([]interface{})[0] = 999.0

	assert.Equal(t, "a", original["tags"].([]interface{})[0])
	assert.Equal(t, 1.0, original["nested"].(Payload)["inner"].([]interface{})[0])
}

func TestPayloadCloneNil(t *testing.T) {
	var p Payload
	assert.Nil(t, p.Clone())
}

func TestRangePredicateMatches(t *testing.T) {
	gte := 10.0
	lte := 20.0
	r := RangePredicate{GTE: &gte, LTE: &lte}

	assert.True(t, r.Matches(10))
	assert.True(t, r.Matches(15))
	assert.True(t, r.Matches(20))
	assert.False(t, r.Matches(9.9))
	assert.False(t, r.Matches(20.1))
}

func TestRangePredicateExclusiveBounds(t *testing.T) {
	gt := 10.0
	lt := 20.0
	r := RangePredicate{GT: &gt, LT: &lt}

	assert.False(t, r.Matches(10))
	assert.True(t, r.Matches(10.1))
	assert.False(t, r.Matches(20))
}

func TestFilterMatchesConjunction(t *testing.T) {
	gte := 2020.0
	f := Filter{
		"category": Eq("docs"),
		"year":     Range(RangePredicate{GTE: &gte}),
		"tags":     AllOf("go", "vector"),
	}

	match := Payload{
		"category": "docs",
		"year":     2021.0,
		"tags":     []interface{}{"go", "vector", "search"},
	}
	assert.True(t, f.Matches(match))

	missingTag := Payload{
		"category": "docs",
		"year":     2021.0,
		"tags":     []interface{}{"go"},
	}
	assert.False(t, f.Matches(missingTag))

	wrongCategory := Payload{
		"category": "blog",
		"year":     2021.0,
		"tags":     []interface{}{"go", "vector"},
	}
	assert.False(t, f.Matches(wrongCategory))
}

func TestFilterMatchesAbsentKeyFails(t *testing.T) {
	f := Filter{"category": Eq("docs")}
	assert.False(t, f.Matches(Payload{"other": "value"}))
}

func TestFilterMatchesAnyOf(t *testing.T) {
	f := Filter{"status": AnyOf("open", "pending")}
	assert.True(t, f.Matches(Payload{"status": "pending"}))
	assert.False(t, f.Matches(Payload{"status": "closed"}))
}

func TestFilterMatchesEmptyFilterAlwaysTrue(t *testing.T) {
	f := Filter{}
	assert.True(t, f.Matches(Payload{}))
}

func TestFilterMatchesRangeAgainstNonNumericFails(t *testing.T) {
	f := Filter{"year": Range(RangePredicate{})}
	assert.False(t, f.Matches(Payload{"year": "not-a-number"}))
}

func TestValuesEqualCrossesNumericTypes(t *testing.T) {
	f := Filter{"count": Eq(3)}
	assert.True(t, f.Matches(Payload{"count": 3.0}))
	assert.True(t, f.Matches(Payload{"count": int64(3)}))
}
