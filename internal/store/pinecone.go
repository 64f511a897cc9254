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

const backendPinecone = "pinecone"

type pineconeVector struct {
	ID       string                 `json:"id"`
	Values   []float32              `json:"values"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type pineconeMatch struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Values   []float32              `json:"values,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type pineconeQueryResponse struct {
	Matches []pineconeMatch `json:"matches"`
}

type pineconeFetchResponse struct {
	Vectors map[string]pineconeVector `json:"vectors"`
}

// PineconeStore adapts the VectorStore contract onto Pinecone's managed
// namespace-partitioned REST index. No dedicated Pinecone Go SDK appears in
// the retrieved corpus, so this follows the same resty-REST pattern as
// chroma.go and weaviate.go rather than a vendor client.
type PineconeStore struct {
	mu        sync.RWMutex
	client    *resty.Client
	cfg       *config.Config
	metric    vectorstore.DistanceMetric
	namespace string
	connected bool
	logger    logging.Logger
}

// NewPineconeStore constructs a disconnected Pinecone-backed store from cfg.
func NewPineconeStore(cfg *config.Config, metric vectorstore.DistanceMetric) *PineconeStore {
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetHeader("Api-Key", cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)

	return &PineconeStore{
		client:    client,
		cfg:       cfg,
		metric:    metric,
		namespace: cfg.Namespace,
		logger:    logging.WithComponent(backendPinecone),
	}
}

// Connect verifies reachability via the index's describe-stats endpoint.
// Pinecone indexes are provisioned out-of-band; this adapter never creates
// one, matching the managed-service model.
func (p *PineconeStore) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	resp, err := p.client.R().SetContext(ctx).SetBody(map[string]interface{}{}).Post("/describe_index_stats")
	if err != nil {
		return vectorstore.NewConnectionFailure("connect", backendPinecone, vectorstore.ConnReasonUnreachable, err)
	}
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		return vectorstore.NewConnectionFailure("connect", backendPinecone, vectorstore.ConnReasonAuth,
			fmt.Errorf("status %d", resp.StatusCode()))
	}
	if resp.IsError() {
		return vectorstore.NewConnectionFailure("connect", backendPinecone, vectorstore.ConnReasonUnreachable,
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	var stats struct {
		Dimension int `json:"dimension"`
	}
	if err := json.Unmarshal(resp.Body(), &stats); err != nil {
		return vectorstore.NewConnectionFailure("connect", backendPinecone, vectorstore.ConnReasonUnreachable, err)
	}
	if stats.Dimension != 0 && stats.Dimension != p.cfg.Dimension {
		return vectorstore.NewConnectionFailure("connect", backendPinecone, vectorstore.ConnReasonSchemaMismatch,
			fmt.Errorf("existing index has dimension %d, configured dimension is %d", stats.Dimension, p.cfg.Dimension))
	}

	p.connected = true
	p.logger.Info("pinecone store connected", "namespace", p.namespace)
	return nil
}

func (p *PineconeStore) Disconnect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	p.logger.Info("pinecone store disconnected", "namespace", p.namespace)
	return nil
}

func (p *PineconeStore) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *PineconeStore) requireConnected(op string) error {
	if !p.connected {
		return vectorstore.NewNotConnected(op, backendPinecone)
	}
	return nil
}

// Insert upserts every vector into the configured namespace.
func (p *PineconeStore) Insert(ctx context.Context, vectors []vectorstore.Vector, ids []int64, payloads []vectorstore.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireConnected("insert"); err != nil {
		return err
	}
	if len(vectors) != len(ids) || len(ids) != len(payloads) {
		return vectorstore.NewInvalidArgument("insert", backendPinecone, nil)
	}

	upserts := make([]pineconeVector, len(vectors))
	for i, v := range vectors {
		if len(v) != p.cfg.Dimension {
			return vectorstore.NewDimensionMismatch("insert", backendPinecone, p.cfg.Dimension, len(v))
		}
		upserts[i] = pineconeVector{ID: strconv.FormatInt(ids[i], 10), Values: v, Metadata: payloads[i]}
	}

	body := map[string]interface{}{"vectors": upserts}
	if p.namespace != "" {
		body["namespace"] = p.namespace
	}
	resp, err := p.client.R().SetContext(ctx).SetBody(body).Post("/vectors/upsert")
	if err != nil {
		return vectorstore.NewBackendFailure("insert", backendPinecone, err)
	}
	if resp.IsError() {
		return vectorstore.NewBackendFailure("insert", backendPinecone, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}
	return nil
}

func pineconeFilter(f vectorstore.Filter) map[string]interface{} {
	if len(f) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(f))
	for key, cond := range f {
		switch {
		case cond.Eq != nil:
			out[key] = map[string]interface{}{"$eq": cond.Eq}
		case cond.AnyOf != nil:
			out[key] = map[string]interface{}{"$in": cond.AnyOf}
		case cond.AllOf != nil:
			out[key] = map[string]interface{}{"$all": cond.AllOf}
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
			out[key] = sub
		}
	}
	return out
}

// Search queries the namespace for the nearest vectors to query.
func (p *PineconeStore) Search(ctx context.Context, query vectorstore.Vector, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.requireConnected("search"); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, vectorstore.NewInvalidArgument("search", backendPinecone, nil)
	}
	if len(query) != p.cfg.Dimension {
		return nil, vectorstore.NewDimensionMismatch("search", backendPinecone, p.cfg.Dimension, len(query))
	}

	body := map[string]interface{}{
		"vector":          query,
		"topK":            limit,
		"includeMetadata": true,
		"includeValues":   true,
	}
	if p.namespace != "" {
		body["namespace"] = p.namespace
	}
	if pf := pineconeFilter(filter); pf != nil {
		body["filter"] = pf
	}

	resp, err := p.client.R().SetContext(ctx).SetBody(body).Post("/query")
	if err != nil {
		return nil, vectorstore.NewBackendFailure("search", backendPinecone, err)
	}
	if resp.IsError() {
		return nil, vectorstore.NewBackendFailure("search", backendPinecone, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	var qr pineconeQueryResponse
	if err := json.Unmarshal(resp.Body(), &qr); err != nil {
		return nil, vectorstore.NewBackendFailure("search", backendPinecone, err)
	}

	out := make([]vectorstore.SearchResult, 0, len(qr.Matches))
	for _, m := range qr.Matches {
		id, err := strconv.ParseInt(m.ID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, vectorstore.SearchResult{ID: id, Score: m.Score, Payload: m.Metadata, Vector: m.Values})
	}
	return out, nil
}

// Get fetches a single vector by its stringified ID.
func (p *PineconeStore) Get(ctx context.Context, id int64) (*vectorstore.SearchResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.requireConnected("get"); err != nil {
		return nil, err
	}

	req := p.client.R().SetContext(ctx).SetQueryParam("ids", strconv.FormatInt(id, 10))
	if p.namespace != "" {
		req.SetQueryParam("namespace", p.namespace)
	}
	resp, err := req.Get("/vectors/fetch")
	if err != nil {
		return nil, vectorstore.NewBackendFailure("get", backendPinecone, err)
	}
	if resp.IsError() {
		return nil, vectorstore.NewBackendFailure("get", backendPinecone, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	var fr pineconeFetchResponse
	if err := json.Unmarshal(resp.Body(), &fr); err != nil {
		return nil, vectorstore.NewBackendFailure("get", backendPinecone, err)
	}
	v, ok := fr.Vectors[strconv.FormatInt(id, 10)]
	if !ok {
		return nil, nil
	}
	return &vectorstore.SearchResult{ID: id, Score: 1.0, Payload: v.Metadata, Vector: v.Values}, nil
}

// Update is an upsert, identical to Insert for a single vector.
func (p *PineconeStore) Update(ctx context.Context, id int64, vector vectorstore.Vector, payload vectorstore.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireConnected("update"); err != nil {
		return err
	}
	if len(vector) != p.cfg.Dimension {
		return vectorstore.NewDimensionMismatch("update", backendPinecone, p.cfg.Dimension, len(vector))
	}

	body := map[string]interface{}{"vectors": []pineconeVector{{ID: strconv.FormatInt(id, 10), Values: vector, Metadata: payload}}}
	if p.namespace != "" {
		body["namespace"] = p.namespace
	}
	resp, err := p.client.R().SetContext(ctx).SetBody(body).Post("/vectors/upsert")
	if err != nil {
		return vectorstore.NewBackendFailure("update", backendPinecone, err)
	}
	if resp.IsError() {
		return vectorstore.NewBackendFailure("update", backendPinecone, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}
	return nil
}

// Delete removes a vector by ID; Pinecone treats a missing ID as a no-op.
func (p *PineconeStore) Delete(ctx context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireConnected("delete"); err != nil {
		return err
	}
	body := map[string]interface{}{"ids": []string{strconv.FormatInt(id, 10)}}
	if p.namespace != "" {
		body["namespace"] = p.namespace
	}
	resp, err := p.client.R().SetContext(ctx).SetBody(body).Post("/vectors/delete")
	if err != nil {
		return vectorstore.NewBackendFailure("delete", backendPinecone, err)
	}
	if resp.IsError() {
		return vectorstore.NewBackendFailure("delete", backendPinecone, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}
	return nil
}

// List has no native Pinecone equivalent for arbitrary metadata scans; this
// adapter runs a zero-vector query with a large topK as the closest
// approximation, filtering client-side for AllOf conditions.
func (p *PineconeStore) List(ctx context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.requireConnected("list"); err != nil {
		return nil, 0, err
	}

	topK := limit
	if topK <= 0 {
		topK = 10000
	}
	body := map[string]interface{}{
		"vector":          make([]float32, p.cfg.Dimension),
		"topK":            topK,
		"includeMetadata": true,
		"includeValues":   true,
	}
	if p.namespace != "" {
		body["namespace"] = p.namespace
	}
	if pf := pineconeFilter(filter); pf != nil {
		body["filter"] = pf
	}

	resp, err := p.client.R().SetContext(ctx).SetBody(body).Post("/query")
	if err != nil {
		return nil, 0, vectorstore.NewBackendFailure("list", backendPinecone, err)
	}
	if resp.IsError() {
		return nil, 0, vectorstore.NewBackendFailure("list", backendPinecone, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	var qr pineconeQueryResponse
	if err := json.Unmarshal(resp.Body(), &qr); err != nil {
		return nil, 0, vectorstore.NewBackendFailure("list", backendPinecone, err)
	}

	matched := make([]vectorstore.SearchResult, 0, len(qr.Matches))
	for _, m := range qr.Matches {
		id, err := strconv.ParseInt(m.ID, 10, 64)
		if err != nil {
			continue
		}
		if filter != nil && !hasAllOfOnly(filter, m.Metadata) {
			continue
		}
		matched = append(matched, vectorstore.SearchResult{ID: id, Score: 1.0, Payload: m.Metadata, Vector: m.Values})
	}
	total := len(matched)
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// DeleteCollection deletes every vector in the configured namespace.
func (p *PineconeStore) DeleteCollection(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	body := map[string]interface{}{"deleteAll": true}
	if p.namespace != "" {
		body["namespace"] = p.namespace
	}
	resp, err := p.client.R().SetContext(ctx).SetBody(body).Post("/vectors/delete")
	if err != nil {
		return vectorstore.NewBackendFailure("delete_collection", backendPinecone, err)
	}
	if resp.IsError() {
		return vectorstore.NewBackendFailure("delete_collection", backendPinecone, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}
	return nil
}

func (p *PineconeStore) BackendType() string    { return backendPinecone }
func (p *PineconeStore) Dimension() int         { return p.cfg.Dimension }
func (p *PineconeStore) CollectionName() string { return p.cfg.Collection }
