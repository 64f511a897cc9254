package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"lerian-vectorstore/internal/config"
	"lerian-vectorstore/internal/logging"
	"lerian-vectorstore/pkg/vectorstore"
)

const backendChroma = "chroma"

// chromaCollection mirrors Chroma's collection listing response. Dimension
// is nil until the collection has received its first embedding, since
// Chroma infers it rather than requiring it at creation time.
type chromaCollection struct {
	Name      string `json:"name"`
	Dimension *int   `json:"dimension"`
}

// chromaQueryResponse mirrors Chroma's /query response shape.
type chromaQueryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float64                `json:"distances"`
	Embeddings [][][]float32             `json:"embeddings"`
}

// chromaGetResponse mirrors Chroma's /get response shape.
type chromaGetResponse struct {
	IDs        []string                 `json:"ids"`
	Metadatas  []map[string]interface{} `json:"metadatas"`
	Embeddings [][]float32              `json:"embeddings"`
}

// ChromaStore adapts the VectorStore contract onto Chroma's REST API. Point
// IDs are coerced to strings (Chroma's native ID type) via strconv.
type ChromaStore struct {
	mu         sync.RWMutex
	client     *resty.Client
	cfg        *config.Config
	metric     vectorstore.DistanceMetric
	collection string
	connected  bool
	logger     logging.Logger
}

// NewChromaStore constructs a disconnected Chroma-backed store from cfg.
func NewChromaStore(cfg *config.Config, metric vectorstore.DistanceMetric) *ChromaStore {
	base := cfg.URL
	if base == "" {
		base = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(30 * time.Second).
		SetRetryCount(0)

	return &ChromaStore{
		client:     client,
		cfg:        cfg,
		metric:     metric,
		collection: cfg.Collection,
		logger:     logging.WithComponent(backendChroma),
	}
}

// Connect checks for the collection's existence and creates it if absent.
func (c *ChromaStore) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.client.R().SetContext(ctx).Get("/api/v1/collections")
	if err != nil {
		return vectorstore.NewConnectionFailure("connect", backendChroma, vectorstore.ConnReasonUnreachable, err)
	}
	if resp.IsError() {
		return vectorstore.NewConnectionFailure("connect", backendChroma, vectorstore.ConnReasonUnreachable,
			fmt.Errorf("list collections failed: status %d", resp.StatusCode()))
	}

	var collections []chromaCollection
	if err := json.Unmarshal(resp.Body(), &collections); err != nil {
		return vectorstore.NewConnectionFailure("connect", backendChroma, vectorstore.ConnReasonUnreachable, err)
	}

	for _, coll := range collections {
		if coll.Name == c.collection {
			if coll.Dimension != nil && *coll.Dimension != c.cfg.Dimension {
				return vectorstore.NewConnectionFailure("connect", backendChroma, vectorstore.ConnReasonSchemaMismatch,
					fmt.Errorf("existing collection %q has dimension %d, configured dimension is %d", c.collection, *coll.Dimension, c.cfg.Dimension))
			}
			c.connected = true
			c.logger.Info("chroma store connected", "collection", c.collection)
			return nil
		}
	}

	createReq := map[string]interface{}{
		"name":     c.collection,
		"metadata": map[string]interface{}{"distance": string(c.metric)},
	}
	resp, err = c.client.R().SetContext(ctx).SetBody(createReq).Post("/api/v1/collections")
	if err != nil {
		return vectorstore.NewConnectionFailure("connect", backendChroma, vectorstore.ConnReasonSchemaMismatch, err)
	}
	if resp.IsError() {
		return vectorstore.NewConnectionFailure("connect", backendChroma, vectorstore.ConnReasonSchemaMismatch,
			fmt.Errorf("create collection failed: status %d: %s", resp.StatusCode(), resp.Body()))
	}

	c.connected = true
	c.logger.Info("created chroma collection", "collection", c.collection)
	return nil
}

// Disconnect marks the store unconnected; Chroma's REST API has no session
// to tear down.
func (c *ChromaStore) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.logger.Info("chroma store disconnected", "collection", c.collection)
	return nil
}

func (c *ChromaStore) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *ChromaStore) requireConnected(op string) error {
	if !c.connected {
		return vectorstore.NewNotConnected(op, backendChroma)
	}
	return nil
}

// Insert adds every vector as a document keyed by its stringified ID.
func (c *ChromaStore) Insert(ctx context.Context, vectors []vectorstore.Vector, ids []int64, payloads []vectorstore.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireConnected("insert"); err != nil {
		return err
	}
	if len(vectors) != len(ids) || len(ids) != len(payloads) {
		return vectorstore.NewInvalidArgument("insert", backendChroma, nil)
	}

	strIDs := make([]string, len(ids))
	embeddings := make([][]float32, len(vectors))
	metas := make([]map[string]interface{}, len(payloads))
	for i, v := range vectors {
		if len(v) != c.cfg.Dimension {
			return vectorstore.NewDimensionMismatch("insert", backendChroma, c.cfg.Dimension, len(v))
		}
		strIDs[i] = strconv.FormatInt(ids[i], 10)
		embeddings[i] = v
		metas[i] = payloads[i]
	}

	addReq := map[string]interface{}{
		"ids":        strIDs,
		"embeddings": embeddings,
		"metadatas":  metas,
	}
	resp, err := c.client.R().SetContext(ctx).SetBody(addReq).
		Post(fmt.Sprintf("/api/v1/collections/%s/add", c.collection))
	if err != nil {
		return vectorstore.NewBackendFailure("insert", backendChroma, err)
	}
	if resp.IsError() {
		return vectorstore.NewBackendFailure("insert", backendChroma, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}
	return nil
}

func chromaWhere(f vectorstore.Filter) map[string]interface{} {
	if len(f) == 0 {
		return nil
	}
	where := make(map[string]interface{}, len(f))
	for key, cond := range f {
		switch {
		case cond.Eq != nil:
			where[key] = cond.Eq
		case cond.AnyOf != nil:
			where[key] = map[string]interface{}{"$in": cond.AnyOf}
		case cond.Range != nil:
			sub := map[string]interface{}{}
			if cond.Range.GTE != nil {
				sub["$gte"] = *cond.Range.GTE
			}
			if cond.Range.GT != nil {
				sub["$gt"] = *cond.Range.GT
			}
			if cond.Range.LTE != nil {
				sub["$lte"] = *cond.Range.LTE
			}
			if cond.Range.LT != nil {
				sub["$lt"] = *cond.Range.LT
			}
			where[key] = sub
		}
		// AllOf has no Chroma $and-of-membership equivalent; re-checked client-side.
	}
	if len(where) == 0 {
		return nil
	}
	return where
}

// Search issues a query request; AllOf conditions are re-validated
// client-side since Chroma's where-clause grammar has no set-containment
// operator.
func (c *ChromaStore) Search(ctx context.Context, query vectorstore.Vector, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.requireConnected("search"); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, vectorstore.NewInvalidArgument("search", backendChroma, nil)
	}
	if len(query) != c.cfg.Dimension {
		return nil, vectorstore.NewDimensionMismatch("search", backendChroma, c.cfg.Dimension, len(query))
	}

	searchReq := map[string]interface{}{
		"query_embeddings": [][]float32{query},
		"n_results":        limit,
		"include":          []string{"embeddings", "metadatas", "distances"},
	}
	if where := chromaWhere(filter); where != nil {
		searchReq["where"] = where
	}

	resp, err := c.client.R().SetContext(ctx).SetBody(searchReq).
		Post(fmt.Sprintf("/api/v1/collections/%s/query", c.collection))
	if err != nil {
		return nil, vectorstore.NewBackendFailure("search", backendChroma, err)
	}
	if resp.IsError() {
		return nil, vectorstore.NewBackendFailure("search", backendChroma, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	var qr chromaQueryResponse
	if err := json.Unmarshal(resp.Body(), &qr); err != nil {
		return nil, vectorstore.NewBackendFailure("search", backendChroma, err)
	}
	if len(qr.IDs) == 0 {
		return nil, nil
	}

	out := make([]vectorstore.SearchResult, 0, len(qr.IDs[0]))
	for i, idStr := range qr.IDs[0] {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		payload := vectorstore.Payload(qr.Metadatas[0][i])
		if filter != nil && !hasAllOfOnly(filter, payload) {
			continue
		}
		score := 1.0
		if len(qr.Distances) > 0 && i < len(qr.Distances[0]) {
			score = 1.0 - qr.Distances[0][i]
		}
		var vec vectorstore.Vector
		if len(qr.Embeddings) > 0 && i < len(qr.Embeddings[0]) {
			vec = qr.Embeddings[0][i]
		}
		out = append(out, vectorstore.SearchResult{ID: id, Score: score, Payload: payload, Vector: vec})
	}
	return out, nil
}

// Get fetches a single document by its stringified ID.
func (c *ChromaStore) Get(ctx context.Context, id int64) (*vectorstore.SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.requireConnected("get"); err != nil {
		return nil, err
	}

	getReq := map[string]interface{}{
		"ids":     []string{strconv.FormatInt(id, 10)},
		"include": []string{"embeddings", "metadatas"},
	}
	resp, err := c.client.R().SetContext(ctx).SetBody(getReq).
		Post(fmt.Sprintf("/api/v1/collections/%s/get", c.collection))
	if err != nil {
		return nil, vectorstore.NewBackendFailure("get", backendChroma, err)
	}
	if resp.IsError() {
		return nil, vectorstore.NewBackendFailure("get", backendChroma, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	var gr chromaGetResponse
	if err := json.Unmarshal(resp.Body(), &gr); err != nil {
		return nil, vectorstore.NewBackendFailure("get", backendChroma, err)
	}
	if len(gr.IDs) == 0 {
		return nil, nil
	}

	var vec vectorstore.Vector
	if len(gr.Embeddings) > 0 {
		vec = gr.Embeddings[0]
	}
	return &vectorstore.SearchResult{ID: id, Score: 1.0, Payload: gr.Metadatas[0], Vector: vec}, nil
}

// Update overwrites a document's embedding and metadata via /update.
func (c *ChromaStore) Update(ctx context.Context, id int64, vector vectorstore.Vector, payload vectorstore.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireConnected("update"); err != nil {
		return err
	}
	if len(vector) != c.cfg.Dimension {
		return vectorstore.NewDimensionMismatch("update", backendChroma, c.cfg.Dimension, len(vector))
	}

	updateReq := map[string]interface{}{
		"ids":        []string{strconv.FormatInt(id, 10)},
		"embeddings": [][]float32{vector},
		"metadatas":  []map[string]interface{}{payload},
	}
	resp, err := c.client.R().SetContext(ctx).SetBody(updateReq).
		Post(fmt.Sprintf("/api/v1/collections/%s/update", c.collection))
	if err != nil {
		return vectorstore.NewBackendFailure("update", backendChroma, err)
	}
	if resp.IsError() {
		return vectorstore.NewBackendFailure("update", backendChroma, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}
	return nil
}

// Delete removes a document by ID; Chroma treats a missing ID as a no-op.
func (c *ChromaStore) Delete(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireConnected("delete"); err != nil {
		return err
	}
	deleteReq := map[string]interface{}{"ids": []string{strconv.FormatInt(id, 10)}}
	resp, err := c.client.R().SetContext(ctx).SetBody(deleteReq).
		Post(fmt.Sprintf("/api/v1/collections/%s/delete", c.collection))
	if err != nil {
		return vectorstore.NewBackendFailure("delete", backendChroma, err)
	}
	if resp.IsError() {
		return vectorstore.NewBackendFailure("delete", backendChroma, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}
	return nil
}

// List fetches documents matching filter; AllOf conditions are re-validated
// client-side.
func (c *ChromaStore) List(ctx context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.requireConnected("list"); err != nil {
		return nil, 0, err
	}

	getReq := map[string]interface{}{"include": []string{"embeddings", "metadatas"}}
	if where := chromaWhere(filter); where != nil {
		getReq["where"] = where
	}
	resp, err := c.client.R().SetContext(ctx).SetBody(getReq).
		Post(fmt.Sprintf("/api/v1/collections/%s/get", c.collection))
	if err != nil {
		return nil, 0, vectorstore.NewBackendFailure("list", backendChroma, err)
	}
	if resp.IsError() {
		return nil, 0, vectorstore.NewBackendFailure("list", backendChroma, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	var gr chromaGetResponse
	if err := json.Unmarshal(resp.Body(), &gr); err != nil {
		return nil, 0, vectorstore.NewBackendFailure("list", backendChroma, err)
	}

	matched := make([]vectorstore.SearchResult, 0, len(gr.IDs))
	for i, idStr := range gr.IDs {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		payload := vectorstore.Payload(gr.Metadatas[i])
		if filter != nil && !hasAllOfOnly(filter, payload) {
			continue
		}
		var vec vectorstore.Vector
		if len(gr.Embeddings) > i {
			vec = gr.Embeddings[i]
		}
		matched = append(matched, vectorstore.SearchResult{ID: id, Score: 1.0, Payload: payload, Vector: vec})
	}
	total := len(matched)
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// DeleteCollection deletes and recreates the collection empty.
func (c *ChromaStore) DeleteCollection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.client.R().SetContext(ctx).Delete(fmt.Sprintf("/api/v1/collections/%s", c.collection))
	if err != nil {
		return vectorstore.NewBackendFailure("delete_collection", backendChroma, err)
	}
	if resp.IsError() {
		return vectorstore.NewBackendFailure("delete_collection", backendChroma, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	createReq := map[string]interface{}{"name": c.collection}
	resp, err = c.client.R().SetContext(ctx).SetBody(createReq).Post("/api/v1/collections")
	if err != nil {
		return vectorstore.NewBackendFailure("delete_collection", backendChroma, err)
	}
	if resp.IsError() {
		return vectorstore.NewBackendFailure("delete_collection", backendChroma, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}
	return nil
}

func (c *ChromaStore) BackendType() string    { return backendChroma }
func (c *ChromaStore) Dimension() int         { return c.cfg.Dimension }
func (c *ChromaStore) CollectionName() string { return c.collection }

// ListCollections implements vectorstore.CollectionLister.
func (c *ChromaStore) ListCollections(ctx context.Context) ([]string, error) {
	resp, err := c.client.R().SetContext(ctx).Get("/api/v1/collections")
	if err != nil {
		return nil, vectorstore.NewBackendFailure("list_collections", backendChroma, err)
	}
	var collections []chromaCollection
	if err := json.Unmarshal(resp.Body(), &collections); err != nil {
		return nil, vectorstore.NewBackendFailure("list_collections", backendChroma, err)
	}
	names := make([]string, len(collections))
	for i, coll := range collections {
		names[i] = coll.Name
	}
	return names, nil
}
