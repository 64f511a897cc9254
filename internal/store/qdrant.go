package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"lerian-vectorstore/internal/config"
	"lerian-vectorstore/internal/logging"
	"lerian-vectorstore/pkg/vectorstore"
)

const backendQdrant = "qdrant"

// QdrantStore adapts the VectorStore contract onto a native Qdrant
// collection, using integer point IDs directly.
type QdrantStore struct {
	mu         sync.RWMutex
	cfg        *config.Config
	metric     vectorstore.DistanceMetric
	client     *qdrant.Client
	collection string
	connected  bool
	logger     logging.Logger
}

// NewQdrantStore constructs a disconnected Qdrant-backed store from cfg.
func NewQdrantStore(cfg *config.Config, metric vectorstore.DistanceMetric) *QdrantStore {
	return &QdrantStore{
		cfg:        cfg,
		metric:     metric,
		collection: cfg.Collection,
		logger:     logging.WithComponent(backendQdrant),
	}
}

func qdrantDistance(m vectorstore.DistanceMetric) qdrant.Distance {
	switch m {
	case vectorstore.DistanceEuclidean:
		return qdrant.Distance_Euclid
	case vectorstore.DistanceIP:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

// Connect opens the client and creates the collection if absent, matching
// the dimension and metric this store was configured with.
func (q *QdrantStore) Connect(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   q.cfg.Host,
		Port:                   q.cfg.Port,
		APIKey:                 q.cfg.APIKey,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return vectorstore.NewConnectionFailure("connect", backendQdrant, vectorstore.ConnReasonUnreachable, err)
	}
	q.client = client

	collections, err := client.ListCollections(ctx)
	if err != nil {
		return vectorstore.NewConnectionFailure("connect", backendQdrant, vectorstore.ConnReasonUnreachable, err)
	}

	exists := false
	for _, name := range collections {
		if name == q.collection {
			exists = true
			break
		}
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(q.cfg.Dimension),
				Distance: qdrantDistance(q.metric),
			}),
		})
		if err != nil {
			return vectorstore.NewConnectionFailure("connect", backendQdrant, vectorstore.ConnReasonSchemaMismatch, err)
		}
		q.logger.Info("created qdrant collection", "collection", q.collection)
	} else {
		info, err := client.GetCollectionInfo(ctx, q.collection)
		if err != nil {
			return vectorstore.NewConnectionFailure("connect", backendQdrant, vectorstore.ConnReasonUnreachable, err)
		}
		existingDim := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		if existingDim != q.cfg.Dimension {
			return vectorstore.NewConnectionFailure("connect", backendQdrant, vectorstore.ConnReasonSchemaMismatch,
				fmt.Errorf("existing collection %q has dimension %d, configured dimension is %d", q.collection, existingDim, q.cfg.Dimension))
		}
	}

	q.connected = true
	q.logger.Info("qdrant store connected", "collection", q.collection)
	return nil
}

// Disconnect drops the client handle; Qdrant has no persistent session to
// tear down beyond the gRPC connection itself.
func (q *QdrantStore) Disconnect(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.client != nil {
		q.client.Close()
	}
	q.connected = false
	q.logger.Info("qdrant store disconnected", "collection", q.collection)
	return nil
}

func (q *QdrantStore) IsConnected() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.connected
}

func (q *QdrantStore) requireConnected(op string) error {
	if !q.connected {
		return vectorstore.NewNotConnected(op, backendQdrant)
	}
	return nil
}

func valueToQdrant(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(val)}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func valueFromQdrant(v *qdrant.Value) interface{} {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}

func payloadToQdrant(p vectorstore.Payload) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(p))
	for k, v := range p {
		out[k] = valueToQdrant(v)
	}
	return out
}

func qdrantToPayload(m map[string]*qdrant.Value) vectorstore.Payload {
	out := make(vectorstore.Payload, len(m))
	for k, v := range m {
		out[k] = valueFromQdrant(v)
	}
	return out
}

func qdrantPointID(id int64) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: uint64(id)}}
}

func qdrantVectors(v vectorstore.Vector) *qdrant.Vectors {
	return &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: v}}}
}

func qdrantEnablePayload() *qdrant.WithPayloadSelector {
	return &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}}
}

func qdrantEnableVectors() *qdrant.WithVectorsSelector {
	return &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true}}
}

func vectorFromPoint(vectors *qdrant.Vectors) vectorstore.Vector {
	if vectors == nil {
		return nil
	}
	if v := vectors.GetVector(); v != nil {
		return v.GetData()
	}
	return nil
}

// Insert upserts every vector as a point keyed by its integer ID.
func (q *QdrantStore) Insert(ctx context.Context, vectors []vectorstore.Vector, ids []int64, payloads []vectorstore.Payload) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.requireConnected("insert"); err != nil {
		return err
	}
	if len(vectors) != len(ids) || len(ids) != len(payloads) {
		return vectorstore.NewInvalidArgument("insert", backendQdrant, nil)
	}

	points := make([]*qdrant.PointStruct, len(vectors))
	for i, v := range vectors {
		if len(v) != q.cfg.Dimension {
			return vectorstore.NewDimensionMismatch("insert", backendQdrant, q.cfg.Dimension, len(v))
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrantPointID(ids[i]),
			Vectors: qdrantVectors(v),
			Payload: payloadToQdrant(payloads[i]),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Points: points})
	if err != nil {
		return vectorstore.NewBackendFailure("insert", backendQdrant, err)
	}
	return nil
}

func buildQdrantFilter(f vectorstore.Filter) *qdrant.Filter {
	if f == nil {
		return nil
	}
	var must []*qdrant.Condition
	for key, cond := range f {
		switch {
		case cond.Range != nil:
			r := &qdrant.Range{}
			if cond.Range.GTE != nil {
				r.Gte = cond.Range.GTE
			}
			if cond.Range.GT != nil {
				r.Gt = cond.Range.GT
			}
			if cond.Range.LTE != nil {
				r.Lte = cond.Range.LTE
			}
			if cond.Range.LT != nil {
				r.Lt = cond.Range.LT
			}
			must = append(must, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{Key: key, Range: r},
				},
			})
		case cond.AnyOf != nil:
			must = append(must, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: key,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keywords{Keywords: &qdrant.RepeatedStrings{Strings: toStrings(cond.AnyOf)}},
						},
					},
				},
			})
		case cond.Eq != nil:
			must = append(must, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: key,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", cond.Eq)},
						},
					},
				},
			})
		}
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func toStrings(vals []interface{}) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = fmt.Sprintf("%v", v)
	}
	return out
}

// Search issues a Query request, applying any-of/eq/range conditions as a
// Qdrant filter; all-of conditions have no native Qdrant equivalent and are
// re-checked client-side after the query returns.
func (q *QdrantStore) Search(ctx context.Context, query vectorstore.Vector, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if err := q.requireConnected("search"); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, vectorstore.NewInvalidArgument("search", backendQdrant, nil)
	}
	if len(query) != q.cfg.Dimension {
		return nil, vectorstore.NewDimensionMismatch("search", backendQdrant, q.cfg.Dimension, len(query))
	}

	lim := uint64(limit)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &lim,
		WithPayload:    qdrantEnablePayload(),
		WithVectors:    qdrantEnableVectors(),
		Filter:         buildQdrantFilter(filter),
	})
	if err != nil {
		return nil, vectorstore.NewBackendFailure("search", backendQdrant, err)
	}

	out := make([]vectorstore.SearchResult, 0, len(points))
	for _, p := range points {
		payload := qdrantToPayload(p.GetPayload())
		if filter != nil && !hasAllOfOnly(filter, payload) {
			continue
		}
		out = append(out, vectorstore.SearchResult{
			ID:      int64(p.GetId().GetNum()),
			Score:   float64(p.GetScore()),
			Payload: payload,
			Vector:  vectorFromPoint(p.GetVectors()),
		})
	}
	return out, nil
}

// hasAllOfOnly re-validates only the AllOf conditions of filter, since
// those have no native Qdrant translation and were not applied server-side.
func hasAllOfOnly(filter vectorstore.Filter, payload vectorstore.Payload) bool {
	for key, cond := range filter {
		if cond.AllOf == nil {
			continue
		}
		single := vectorstore.Filter{key: cond}
		if !single.Matches(payload) {
			return false
		}
	}
	return true
}

// Get retrieves a single point by numeric ID.
func (q *QdrantStore) Get(ctx context.Context, id int64) (*vectorstore.SearchResult, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if err := q.requireConnected("get"); err != nil {
		return nil, err
	}

	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrantPointID(id)},
		WithPayload:    qdrantEnablePayload(),
		WithVectors:    qdrantEnableVectors(),
	})
	if err != nil {
		return nil, vectorstore.NewBackendFailure("get", backendQdrant, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	p := points[0]
	return &vectorstore.SearchResult{
		ID:      id,
		Score:   1.0,
		Payload: qdrantToPayload(p.GetPayload()),
		Vector:  vectorFromPoint(p.GetVectors()),
	}, nil
}

// Update is an upsert under the native collection's semantics, identical to
// Insert for a single point.
func (q *QdrantStore) Update(ctx context.Context, id int64, vector vectorstore.Vector, payload vectorstore.Payload) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.requireConnected("update"); err != nil {
		return err
	}
	if len(vector) != q.cfg.Dimension {
		return vectorstore.NewDimensionMismatch("update", backendQdrant, q.cfg.Dimension, len(vector))
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrantPointID(id),
			Vectors: qdrantVectors(vector),
			Payload: payloadToQdrant(payload),
		}},
	})
	if err != nil {
		return vectorstore.NewBackendFailure("update", backendQdrant, err)
	}
	return nil
}

// Delete removes a point by ID; Qdrant treats a missing ID as a no-op.
func (q *QdrantStore) Delete(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.requireConnected("delete"); err != nil {
		return err
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{qdrantPointID(id)}},
			},
		},
	})
	if err != nil {
		return vectorstore.NewBackendFailure("delete", backendQdrant, err)
	}
	return nil
}

// List scrolls through the collection applying filter client-side for AllOf
// conditions not representable in a Qdrant filter.
func (q *QdrantStore) List(ctx context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if err := q.requireConnected("list"); err != nil {
		return nil, 0, err
	}

	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         buildQdrantFilter(filter),
		WithPayload:    qdrantEnablePayload(),
		WithVectors:    qdrantEnableVectors(),
	})
	if err != nil {
		return nil, 0, vectorstore.NewBackendFailure("list", backendQdrant, err)
	}

	matched := make([]vectorstore.SearchResult, 0, len(points))
	for _, p := range points {
		payload := qdrantToPayload(p.GetPayload())
		if filter != nil && !hasAllOfOnly(filter, payload) {
			continue
		}
		matched = append(matched, vectorstore.SearchResult{
			ID:      int64(p.GetId().GetNum()),
			Score:   1.0,
			Payload: payload,
			Vector:  vectorFromPoint(p.GetVectors()),
		})
	}
	total := len(matched)
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// DeleteCollection drops and recreates an empty collection with the same
// schema.
func (q *QdrantStore) DeleteCollection(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
		return vectorstore.NewBackendFailure("delete_collection", backendQdrant, err)
	}
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.cfg.Dimension),
			Distance: qdrantDistance(q.metric),
		}),
	})
	if err != nil {
		return vectorstore.NewBackendFailure("delete_collection", backendQdrant, err)
	}
	return nil
}

func (q *QdrantStore) BackendType() string    { return backendQdrant }
func (q *QdrantStore) Dimension() int         { return q.cfg.Dimension }
func (q *QdrantStore) CollectionName() string { return q.collection }

// ListCollections implements vectorstore.CollectionLister.
func (q *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := q.client.ListCollections(ctx)
	if err != nil {
		return nil, vectorstore.NewBackendFailure("list_collections", backendQdrant, err)
	}
	return names, nil
}

// Stats implements vectorstore.StatsProvider.
func (q *QdrantStore) Stats(ctx context.Context) (*vectorstore.StoreStats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return nil, vectorstore.NewBackendFailure("stats", backendQdrant, err)
	}
	return &vectorstore.StoreStats{
		BackendType:    backendQdrant,
		CollectionName: q.collection,
		VectorCount:    int64(info.GetPointsCount()),
		Dimension:      q.cfg.Dimension,
		Connected:      q.connected,
	}, nil
}
