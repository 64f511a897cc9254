// Package vectorstore defines the pluggable vector-storage contract: a
// single abstract interface for similarity search over embeddings, backed
// by an in-process baseline, a persistent exact-scan engine, and a handful
// of managed/remote adapters.
package vectorstore

import "context"

// DistanceMetric is the similarity function a collection is configured with.
type DistanceMetric string

const (
	DistanceCosine    DistanceMetric = "cosine"
	DistanceEuclidean DistanceMetric = "euclidean"
	DistanceIP        DistanceMetric = "ip"
)

// ParseDistanceMetric maps a free-form string (env var, config file) onto
// the canonical metric set. Unknown or empty values resolve to cosine.
func ParseDistanceMetric(s string) DistanceMetric {
	switch s {
	case "euclidean", "Euclidean", "l2", "L2":
		return DistanceEuclidean
	case "ip", "IP", "dot", "Dot", "inner_product":
		return DistanceIP
	default:
		return DistanceCosine
	}
}

// Vector is a finite ordered sequence of floating-point components. Its
// length must equal the owning collection's configured dimension.
type Vector []float32

// Payload is an unordered mapping from string keys to JSON-representable
// values: primitives, sequences, nested mappings, or nil. Stores own an
// independent deep copy of every payload they hold; callers never observe
// aliasing between what they pass in and what a store returns.
type Payload map[string]interface{}

// Clone returns a deep copy of the payload, recursing through nested maps
// and slices so that mutating the copy never affects the original.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Payload:
		return val.Clone()
	case map[string]interface{}:
		return Payload(val).Clone()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// RangePredicate expresses any subset of {>=, >, <=, <} over a numeric
// payload field. A nil bound is simply not checked.
type RangePredicate struct {
	GTE *float64
	GT  *float64
	LTE *float64
	LT  *float64
}

// Matches reports whether v (expected numeric) satisfies every configured
// bound of the predicate.
func (r RangePredicate) Matches(v float64) bool {
	if r.GTE != nil && v < *r.GTE {
		return false
	}
	if r.GT != nil && v <= *r.GT {
		return false
	}
	if r.LTE != nil && v > *r.LTE {
		return false
	}
	if r.LT != nil && v >= *r.LT {
		return false
	}
	return true
}

// FilterCondition is exactly one of: an exact value match, a range
// predicate, an any-of set membership test, or an all-of set containment
// test. Exactly one field should be non-nil; constructors enforce this.
type FilterCondition struct {
	Eq    interface{}
	Range *RangePredicate
	AnyOf []interface{}
	AllOf []interface{}
}

// Eq builds an exact-match filter condition.
func Eq(value interface{}) FilterCondition { return FilterCondition{Eq: value} }

// Range builds a range-predicate filter condition.
func Range(r RangePredicate) FilterCondition { return FilterCondition{Range: &r} }

// AnyOf builds a set-membership filter condition.
func AnyOf(values ...interface{}) FilterCondition { return FilterCondition{AnyOf: values} }

// AllOf builds an all-of (superset) filter condition.
func AllOf(values ...interface{}) FilterCondition { return FilterCondition{AllOf: values} }

// Filter is a conjunction of per-key predicates over a payload. Unknown or
// nil filter values are ignored by every backend; the conjunction ("AND"
// across keys) must be preserved by any backend-specific translator.
type Filter map[string]FilterCondition

// Matches evaluates the filter against a payload using the in-process
// reference semantics (§4.3): absent keys fail every predicate except a
// null predicate (which this filter grammar does not expose), range
// predicates against non-numeric values are false, any-of/all-of test
// membership by value equality.
func (f Filter) Matches(p Payload) bool {
	for key, cond := range f {
		if cond.Eq == nil && cond.Range == nil && cond.AnyOf == nil && cond.AllOf == nil {
			continue // a nil filter value is ignored
		}
		v, ok := p[key]
		if !ok {
			return false
		}
		if !matchCondition(cond, v) {
			return false
		}
	}
	return true
}

func matchCondition(cond FilterCondition, v interface{}) bool {
	switch {
	case cond.Range != nil:
		f, ok := toFloat(v)
		if !ok {
			return false
		}
		return cond.Range.Matches(f)
	case cond.AnyOf != nil:
		for _, want := range cond.AnyOf {
			if valuesEqual(want, v) {
				return true
			}
		}
		return false
	case cond.AllOf != nil:
		seq, ok := v.([]interface{})
		if !ok {
			return false
		}
		for _, want := range cond.AllOf {
			found := false
			for _, have := range seq {
				if valuesEqual(want, have) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return valuesEqual(cond.Eq, v)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func valuesEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

// SearchResult is one match returned by a search or get operation: the
// stored ID, its similarity score (higher = more similar; exact retrieval
// uses 1.0), a deep-copied payload, and optionally the stored vector.
type SearchResult struct {
	ID      int64
	Score   float64
	Payload Payload
	Vector  Vector
}

// CollectionConfig describes the fixed schema of a collection: its name,
// dimension, and distance metric. A collection's schema cannot change
// after creation.
type CollectionConfig struct {
	Name     string
	Dimension int
	Metric   DistanceMetric
}

// VectorStore is the polymorphic contract every backend satisfies. A store
// is usable only between a successful Connect and the next Disconnect;
// outside that window every operation returns a NotConnected error.
type VectorStore interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	Insert(ctx context.Context, vectors []Vector, ids []int64, payloads []Payload) error
	Search(ctx context.Context, query Vector, limit int, filter Filter) ([]SearchResult, error)
	Get(ctx context.Context, id int64) (*SearchResult, error)
	Update(ctx context.Context, id int64, vector Vector, payload Payload) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter Filter, limit int) ([]SearchResult, int, error)
	DeleteCollection(ctx context.Context) error

	BackendType() string
	Dimension() int
	CollectionName() string
}

// StatsProvider is an optional capability: backends that can report basic
// introspection implement it. It is deliberately outside the closed
// VectorStore contract (§4.2) and probed via type assertion.
type StatsProvider interface {
	Stats(ctx context.Context) (*StoreStats, error)
}

// StoreStats is the ambient health/introspection surface some backends
// expose. It is not part of the core contract.
type StoreStats struct {
	BackendType    string
	CollectionName string
	VectorCount    int64
	Dimension      int
	Connected      bool
}

// CollectionLister is an optional capability: some backends expose full
// collection enumeration. Per §9 it is never part of the core contract.
type CollectionLister interface {
	ListCollections(ctx context.Context) ([]string, error)
}
