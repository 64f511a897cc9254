package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"lerian-vectorstore/internal/config"
	"lerian-vectorstore/internal/logging"
	"lerian-vectorstore/pkg/vectorstore"
)

const backendWeaviate = "weaviate"

type weaviateObject struct {
	ID         string                 `json:"id"`
	Class      string                 `json:"class"`
	Vector     []float32              `json:"vector,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// WeaviateStore adapts the VectorStore contract onto Weaviate's object/
// GraphQL REST API. Weaviate requires UUID object IDs, so integer IDs are
// coerced deterministically via idToUUID and carried back out through the
// object's own "external_id" property.
type WeaviateStore struct {
	mu         sync.RWMutex
	client     *resty.Client
	cfg        *config.Config
	metric     vectorstore.DistanceMetric
	class      string
	connected  bool
	logger     logging.Logger
}

// NewWeaviateStore constructs a disconnected Weaviate-backed store from cfg.
// The collection name is used directly as the Weaviate "class" name.
func NewWeaviateStore(cfg *config.Config, metric vectorstore.DistanceMetric) *WeaviateStore {
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetTimeout(30 * time.Second)

	return &WeaviateStore{
		client: client,
		cfg:    cfg,
		metric: metric,
		class:  cfg.Collection,
		logger: logging.WithComponent(backendWeaviate),
	}
}

func weaviateDistance(m vectorstore.DistanceMetric) string {
	switch m {
	case vectorstore.DistanceEuclidean:
		return "l2-squared"
	case vectorstore.DistanceIP:
		return "dot"
	default:
		return "cosine"
	}
}

// Connect creates the schema class if absent.
func (w *WeaviateStore) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	resp, err := w.client.R().SetContext(ctx).Get(fmt.Sprintf("/v1/schema/%s", w.class))
	if err != nil {
		return vectorstore.NewConnectionFailure("connect", backendWeaviate, vectorstore.ConnReasonUnreachable, err)
	}
	if resp.StatusCode() == 200 {
		if err := w.verifyDimension(ctx); err != nil {
			return err
		}
		w.connected = true
		w.logger.Info("weaviate store connected", "class", w.class)
		return nil
	}
	if resp.StatusCode() != 404 {
		return vectorstore.NewConnectionFailure("connect", backendWeaviate, vectorstore.ConnReasonUnreachable,
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	schema := map[string]interface{}{
		"class":      w.class,
		"vectorizer": "none",
		"vectorIndexConfig": map[string]interface{}{
			"distance": weaviateDistance(w.metric),
		},
	}
	resp, err = w.client.R().SetContext(ctx).SetBody(schema).Post("/v1/schema")
	if err != nil {
		return vectorstore.NewConnectionFailure("connect", backendWeaviate, vectorstore.ConnReasonSchemaMismatch, err)
	}
	if resp.IsError() {
		return vectorstore.NewConnectionFailure("connect", backendWeaviate, vectorstore.ConnReasonSchemaMismatch,
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	w.connected = true
	w.logger.Info("created weaviate class", "class", w.class)
	return nil
}

// verifyDimension samples one existing object's vector length, since
// Weaviate's schema has no "vectorizer: none" dimension field of its own —
// dimension only becomes observable once an object has actually been
// written. A class with no objects yet has nothing to verify against.
func (w *WeaviateStore) verifyDimension(ctx context.Context) error {
	resp, err := w.client.R().SetContext(ctx).
		SetQueryParam("class", w.class).
		SetQueryParam("include", "vector").
		SetQueryParam("limit", "1").
		Get("/v1/objects")
	if err != nil {
		return vectorstore.NewConnectionFailure("connect", backendWeaviate, vectorstore.ConnReasonUnreachable, err)
	}
	if resp.IsError() {
		return vectorstore.NewConnectionFailure("connect", backendWeaviate, vectorstore.ConnReasonUnreachable,
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	var listResp struct {
		Objects []weaviateObject `json:"objects"`
	}
	if err := json.Unmarshal(resp.Body(), &listResp); err != nil {
		return vectorstore.NewConnectionFailure("connect", backendWeaviate, vectorstore.ConnReasonUnreachable, err)
	}
	if len(listResp.Objects) == 0 {
		return nil
	}
	if existingDim := len(listResp.Objects[0].Vector); existingDim != w.cfg.Dimension {
		return vectorstore.NewConnectionFailure("connect", backendWeaviate, vectorstore.ConnReasonSchemaMismatch,
			fmt.Errorf("existing class %q has vector dimension %d, configured dimension is %d", w.class, existingDim, w.cfg.Dimension))
	}
	return nil
}

func (w *WeaviateStore) Disconnect(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
	w.logger.Info("weaviate store disconnected", "class", w.class)
	return nil
}

func (w *WeaviateStore) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *WeaviateStore) requireConnected(op string) error {
	if !w.connected {
		return vectorstore.NewNotConnected(op, backendWeaviate)
	}
	return nil
}

func weaviateProperties(id int64, payload vectorstore.Payload) map[string]interface{} {
	props := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		props[k] = v
	}
	props["external_id"] = id
	return props
}

// Insert creates one object per vector, each addressed by idToUUID(id).
func (w *WeaviateStore) Insert(ctx context.Context, vectors []vectorstore.Vector, ids []int64, payloads []vectorstore.Payload) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireConnected("insert"); err != nil {
		return err
	}
	if len(vectors) != len(ids) || len(ids) != len(payloads) {
		return vectorstore.NewInvalidArgument("insert", backendWeaviate, nil)
	}

	for i, v := range vectors {
		if len(v) != w.cfg.Dimension {
			return vectorstore.NewDimensionMismatch("insert", backendWeaviate, w.cfg.Dimension, len(v))
		}
		obj := weaviateObject{
			ID:         idToUUID(ids[i]).String(),
			Class:      w.class,
			Vector:     v,
			Properties: weaviateProperties(ids[i], payloads[i]),
		}
		resp, err := w.client.R().SetContext(ctx).SetBody(obj).Post("/v1/objects")
		if err != nil {
			return vectorstore.NewBackendFailure("insert", backendWeaviate, err)
		}
		if resp.IsError() {
			return vectorstore.NewBackendFailure("insert", backendWeaviate, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
		}
	}
	return nil
}

func weaviateWhere(f vectorstore.Filter) map[string]interface{} {
	if len(f) == 0 {
		return nil
	}
	var operands []map[string]interface{}
	for key, cond := range f {
		if cond.Eq == nil {
			continue // Range/AnyOf/AllOf have no single-operator GraphQL-where translation used here
		}
		operands = append(operands, map[string]interface{}{
			"path":       []string{key},
			"operator":   "Equal",
			"valueText":  fmt.Sprintf("%v", cond.Eq),
		})
	}
	if len(operands) == 0 {
		return nil
	}
	if len(operands) == 1 {
		return operands[0]
	}
	return map[string]interface{}{"operator": "And", "operands": operands}
}

type weaviateGraphQLResponse struct {
	Data struct {
		Get map[string][]struct {
			Additional struct {
				ID       string    `json:"id"`
				Vector   []float32 `json:"vector"`
				Distance float64   `json:"distance"`
			} `json:"_additional"`
			Properties map[string]interface{} `json:"-"`
		} `json:"-"`
	} `json:"-"`
}

// Search issues a nearVector GraphQL query. Weaviate's GraphQL schema is
// per-class-dynamic (field names mirror the configured properties), so the
// response is decoded generically rather than through a fixed struct.
func (w *WeaviateStore) Search(ctx context.Context, query vectorstore.Vector, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.requireConnected("search"); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, vectorstore.NewInvalidArgument("search", backendWeaviate, nil)
	}
	if len(query) != w.cfg.Dimension {
		return nil, vectorstore.NewDimensionMismatch("search", backendWeaviate, w.cfg.Dimension, len(query))
	}

	whereClause := ""
	if where := weaviateWhere(filter); where != nil {
		wb, _ := json.Marshal(where)
		whereClause = fmt.Sprintf(`, where: %s`, graphqlizeJSON(string(wb)))
	}
	vecLiteral, _ := json.Marshal(query)
	gql := fmt.Sprintf(`{ Get { %s(nearVector: {vector: %s} limit: %d%s) { external_id _additional { id vector distance } } } }`,
		w.class, string(vecLiteral), limit, whereClause)

	resp, err := w.client.R().SetContext(ctx).SetBody(map[string]string{"query": gql}).Post("/v1/graphql")
	if err != nil {
		return nil, vectorstore.NewBackendFailure("search", backendWeaviate, err)
	}
	if resp.IsError() {
		return nil, vectorstore.NewBackendFailure("search", backendWeaviate, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, vectorstore.NewBackendFailure("search", backendWeaviate, err)
	}
	return parseWeaviateGet(raw, w.class, filter), nil
}

var (
	graphqlKeyQuotes      = regexp.MustCompile(`"([A-Za-z_][A-Za-z0-9_]*)":`)
	graphqlOperatorQuotes = regexp.MustCompile(`operator:"([A-Za-z]+)"`)
)

// graphqlizeJSON strips the outer quoting JSON adds around map keys, and
// around operator values (GraphQL enums), so a marshaled where-clause can
// be spliced into a GraphQL query literal.
func graphqlizeJSON(s string) string {
	s = graphqlKeyQuotes.ReplaceAllString(s, "$1:")
	return graphqlOperatorQuotes.ReplaceAllString(s, "operator:$1")
}

// parseWeaviateGet walks the untyped GraphQL response, since Weaviate's
// per-class field names can't be modeled with a single fixed struct.
func parseWeaviateGet(raw map[string]interface{}, class string, filter vectorstore.Filter) []vectorstore.SearchResult {
	data, _ := raw["data"].(map[string]interface{})
	get, _ := data["Get"].(map[string]interface{})
	items, _ := get[class].([]interface{})

	out := make([]vectorstore.SearchResult, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		additional, _ := item["_additional"].(map[string]interface{})
		payload := vectorstore.Payload{}
		for k, v := range item {
			if k == "_additional" || k == "external_id" {
				continue
			}
			payload[k] = v
		}
		extID, _ := item["external_id"].(float64)
		if filter != nil && !hasAllOfOnly(filter, payload) {
			continue
		}
		score := 1.0
		var vec vectorstore.Vector
		if additional != nil {
			if dist, ok := additional["distance"].(float64); ok {
				score = 1.0 - dist
			}
			if rawVec, ok := additional["vector"].([]interface{}); ok {
				vec = make(vectorstore.Vector, len(rawVec))
				for i, x := range rawVec {
					if f, ok := x.(float64); ok {
						vec[i] = float32(f)
					}
				}
			}
		}
		out = append(out, vectorstore.SearchResult{ID: int64(extID), Score: score, Payload: payload, Vector: vec})
	}
	return out
}

// Get retrieves a single object by its coerced UUID.
func (w *WeaviateStore) Get(ctx context.Context, id int64) (*vectorstore.SearchResult, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.requireConnected("get"); err != nil {
		return nil, err
	}

	resp, err := w.client.R().SetContext(ctx).
		SetQueryParam("include", "vector").
		Get(fmt.Sprintf("/v1/objects/%s/%s", w.class, idToUUID(id).String()))
	if err != nil {
		return nil, vectorstore.NewBackendFailure("get", backendWeaviate, err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, vectorstore.NewBackendFailure("get", backendWeaviate, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	var obj weaviateObject
	if err := json.Unmarshal(resp.Body(), &obj); err != nil {
		return nil, vectorstore.NewBackendFailure("get", backendWeaviate, err)
	}
	payload := vectorstore.Payload(obj.Properties)
	delete(payload, "external_id")
	return &vectorstore.SearchResult{ID: id, Score: 1.0, Payload: payload, Vector: obj.Vector}, nil
}

// Update replaces the object at its coerced UUID.
func (w *WeaviateStore) Update(ctx context.Context, id int64, vector vectorstore.Vector, payload vectorstore.Payload) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireConnected("update"); err != nil {
		return err
	}
	if len(vector) != w.cfg.Dimension {
		return vectorstore.NewDimensionMismatch("update", backendWeaviate, w.cfg.Dimension, len(vector))
	}

	obj := weaviateObject{ID: idToUUID(id).String(), Class: w.class, Vector: vector, Properties: weaviateProperties(id, payload)}
	resp, err := w.client.R().SetContext(ctx).SetBody(obj).Put(fmt.Sprintf("/v1/objects/%s/%s", w.class, obj.ID))
	if err != nil {
		return vectorstore.NewBackendFailure("update", backendWeaviate, err)
	}
	if resp.IsError() {
		return vectorstore.NewBackendFailure("update", backendWeaviate, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}
	return nil
}

// Delete removes the object at its coerced UUID; a missing object is a
// silent no-op.
func (w *WeaviateStore) Delete(ctx context.Context, id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireConnected("delete"); err != nil {
		return err
	}
	resp, err := w.client.R().SetContext(ctx).Delete(fmt.Sprintf("/v1/objects/%s/%s", w.class, idToUUID(id).String()))
	if err != nil {
		return vectorstore.NewBackendFailure("delete", backendWeaviate, err)
	}
	if resp.IsError() && resp.StatusCode() != 404 {
		return vectorstore.NewBackendFailure("delete", backendWeaviate, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}
	return nil
}

// List fetches every object of the class via the REST listing endpoint,
// filtering client-side (Weaviate's REST list endpoint has no where-clause
// support; only GraphQL does, and only for Search's nearVector context).
func (w *WeaviateStore) List(ctx context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.requireConnected("list"); err != nil {
		return nil, 0, err
	}

	resp, err := w.client.R().SetContext(ctx).
		SetQueryParam("class", w.class).
		SetQueryParam("include", "vector").
		Get("/v1/objects")
	if err != nil {
		return nil, 0, vectorstore.NewBackendFailure("list", backendWeaviate, err)
	}
	if resp.IsError() {
		return nil, 0, vectorstore.NewBackendFailure("list", backendWeaviate, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	var listResp struct {
		Objects []weaviateObject `json:"objects"`
	}
	if err := json.Unmarshal(resp.Body(), &listResp); err != nil {
		return nil, 0, vectorstore.NewBackendFailure("list", backendWeaviate, err)
	}

	matched := make([]vectorstore.SearchResult, 0, len(listResp.Objects))
	for _, obj := range listResp.Objects {
		extID, _ := obj.Properties["external_id"].(float64)
		payload := vectorstore.Payload(obj.Properties)
		delete(payload, "external_id")
		if filter != nil && !filter.Matches(payload) {
			continue
		}
		matched = append(matched, vectorstore.SearchResult{ID: int64(extID), Score: 1.0, Payload: payload, Vector: obj.Vector})
	}
	total := len(matched)
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// DeleteCollection deletes and recreates the class schema empty.
func (w *WeaviateStore) DeleteCollection(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	resp, err := w.client.R().SetContext(ctx).Delete(fmt.Sprintf("/v1/schema/%s", w.class))
	if err != nil {
		return vectorstore.NewBackendFailure("delete_collection", backendWeaviate, err)
	}
	if resp.IsError() && resp.StatusCode() != 404 {
		return vectorstore.NewBackendFailure("delete_collection", backendWeaviate, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}

	schema := map[string]interface{}{
		"class":             w.class,
		"vectorizer":        "none",
		"vectorIndexConfig": map[string]interface{}{"distance": weaviateDistance(w.metric)},
	}
	resp, err = w.client.R().SetContext(ctx).SetBody(schema).Post("/v1/schema")
	if err != nil {
		return vectorstore.NewBackendFailure("delete_collection", backendWeaviate, err)
	}
	if resp.IsError() {
		return vectorstore.NewBackendFailure("delete_collection", backendWeaviate, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body()))
	}
	return nil
}

func (w *WeaviateStore) BackendType() string    { return backendWeaviate }
func (w *WeaviateStore) Dimension() int         { return w.cfg.Dimension }
func (w *WeaviateStore) CollectionName() string { return w.class }
