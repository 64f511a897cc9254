package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/lib/pq"

	"lerian-vectorstore/internal/config"
	"lerian-vectorstore/internal/logging"
	"lerian-vectorstore/pkg/vectorstore"
)

const backendPgvector = "pgvector"

// PgvectorStore adapts the VectorStore contract onto PostgreSQL with the
// pgvector extension: one table per collection, the vector column typed
// VECTOR(dimension), and similarity search via pgvector's distance
// operators rather than client-side scoring.
type PgvectorStore struct {
	mu        sync.RWMutex
	db        *sql.DB
	cfg       *config.Config
	metric    vectorstore.DistanceMetric
	table     string
	connected bool
	logger    logging.Logger
}

// NewPgvectorStore constructs a disconnected pgvector-backed store from
// cfg. The collection name doubles as the table name.
func NewPgvectorStore(cfg *config.Config, metric vectorstore.DistanceMetric) *PgvectorStore {
	return &PgvectorStore{
		cfg:    cfg,
		metric: metric,
		table:  sanitizeIdentifier(cfg.Collection),
		logger: logging.WithComponent(backendPgvector),
	}
}

// sanitizeIdentifier restricts a collection name to characters safe for
// unquoted use as a SQL table identifier, since collection names flow in
// from configuration rather than from a trusted schema migration.
func sanitizeIdentifier(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "default"
	}
	return out
}

func (p *PgvectorStore) connString() string {
	if p.cfg.URL != "" {
		return p.cfg.URL
	}
	return fmt.Sprintf("host=%s port=%d sslmode=disable", p.cfg.Host, orDefaultPort(p.cfg.Port, 5432))
}

func orDefaultPort(port, fallback int) int {
	if port == 0 {
		return fallback
	}
	return port
}

func pgvectorOperator(m vectorstore.DistanceMetric) string {
	switch m {
	case vectorstore.DistanceEuclidean:
		return "<->"
	case vectorstore.DistanceIP:
		return "<#>"
	default:
		return "<=>"
	}
}

// Connect opens the pool, enables the extension, and creates the
// collection's table if absent.
func (p *PgvectorStore) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	db, err := sql.Open("postgres", p.connString())
	if err != nil {
		return vectorstore.NewConnectionFailure("connect", backendPgvector, vectorstore.ConnReasonUnreachable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return vectorstore.NewConnectionFailure("connect", backendPgvector, vectorstore.ConnReasonUnreachable, err)
	}

	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT PRIMARY KEY,
	embedding VECTOR(%d) NOT NULL,
	payload JSONB NOT NULL DEFAULT '{}'
);
`, p.table, p.cfg.Dimension)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return vectorstore.NewConnectionFailure("connect", backendPgvector, vectorstore.ConnReasonSchemaMismatch, err)
	}

	var existingDim sql.NullInt64
	checkDimensionSQL := `SELECT a.atttypmod FROM pg_attribute a JOIN pg_class c ON a.attrelid = c.oid WHERE c.relname = $1 AND a.attname = 'embedding'`
	if err := db.QueryRowContext(ctx, checkDimensionSQL, p.table).Scan(&existingDim); err != nil && err != sql.ErrNoRows {
		_ = db.Close()
		return vectorstore.NewConnectionFailure("connect", backendPgvector, vectorstore.ConnReasonUnreachable, err)
	}
	if existingDim.Valid && int(existingDim.Int64) != p.cfg.Dimension {
		_ = db.Close()
		return vectorstore.NewConnectionFailure("connect", backendPgvector, vectorstore.ConnReasonSchemaMismatch,
			fmt.Errorf("existing table %q has embedding dimension %d, configured dimension is %d", p.table, existingDim.Int64, p.cfg.Dimension))
	}

	p.db = db
	p.connected = true
	p.logger.Info("pgvector store connected", "table", p.table)
	return nil
}

func (p *PgvectorStore) Disconnect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.logger.Info("pgvector store disconnected", "table", p.table)
	return err
}

func (p *PgvectorStore) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *PgvectorStore) requireConnected(op string) error {
	if !p.connected {
		return vectorstore.NewNotConnected(op, backendPgvector)
	}
	return nil
}

// vectorLiteral renders a vector in pgvector's text input format, e.g.
// "[0.1,0.2,0.3]".
func vectorLiteral(v vectorstore.Vector) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(float64(x), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Insert upserts each vector/payload row, inserting BIGINT ids directly.
func (p *PgvectorStore) Insert(ctx context.Context, vectors []vectorstore.Vector, ids []int64, payloads []vectorstore.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireConnected("insert"); err != nil {
		return err
	}
	if len(vectors) != len(ids) || len(ids) != len(payloads) {
		return vectorstore.NewInvalidArgument("insert", backendPgvector, nil)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return vectorstore.NewBackendFailure("insert", backendPgvector, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := fmt.Sprintf(
		"INSERT INTO %s (id, embedding, payload) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload",
		p.table)

	for i, v := range vectors {
		if len(v) != p.cfg.Dimension {
			return vectorstore.NewDimensionMismatch("insert", backendPgvector, p.cfg.Dimension, len(v))
		}
		payloadJSON, err := json.Marshal(payloads[i])
		if err != nil {
			return vectorstore.NewInvalidArgument("insert", backendPgvector, err)
		}
		if _, err := tx.ExecContext(ctx, stmt, ids[i], vectorLiteral(v), payloadJSON); err != nil {
			return vectorstore.NewBackendFailure("insert", backendPgvector, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return vectorstore.NewBackendFailure("insert", backendPgvector, err)
	}
	return nil
}

func pgvectorWhere(f vectorstore.Filter, args *[]interface{}) string {
	if len(f) == 0 {
		return ""
	}
	var clauses []string
	for key, cond := range f {
		switch {
		case cond.Eq != nil:
			*args = append(*args, fmt.Sprintf("%v", cond.Eq))
			clauses = append(clauses, fmt.Sprintf("payload->>'%s' = $%d", key, len(*args)))
		case cond.AnyOf != nil:
			placeholders := make([]string, len(cond.AnyOf))
			for i, v := range cond.AnyOf {
				*args = append(*args, fmt.Sprintf("%v", v))
				placeholders[i] = fmt.Sprintf("$%d", len(*args))
			}
			clauses = append(clauses, fmt.Sprintf("payload->>'%s' IN (%s)", key, strings.Join(placeholders, ",")))
		case cond.Range != nil:
			if cond.Range.GTE != nil {
				*args = append(*args, *cond.Range.GTE)
				clauses = append(clauses, fmt.Sprintf("(payload->>'%s')::float8 >= $%d", key, len(*args)))
			}
			if cond.Range.GT != nil {
				*args = append(*args, *cond.Range.GT)
				clauses = append(clauses, fmt.Sprintf("(payload->>'%s')::float8 > $%d", key, len(*args)))
			}
			if cond.Range.LTE != nil {
				*args = append(*args, *cond.Range.LTE)
				clauses = append(clauses, fmt.Sprintf("(payload->>'%s')::float8 <= $%d", key, len(*args)))
			}
			if cond.Range.LT != nil {
				*args = append(*args, *cond.Range.LT)
				clauses = append(clauses, fmt.Sprintf("(payload->>'%s')::float8 < $%d", key, len(*args)))
			}
		default:
			// AllOf has no direct SQL translation here; re-checked client-side.
		}
	}
	if len(clauses) == 0 {
		return ""
	}
	return " AND " + strings.Join(clauses, " AND ")
}

// Search runs an ORDER BY <operator> LIMIT query, letting pgvector's index
// do the nearest-neighbor work rather than scanning client-side.
func (p *PgvectorStore) Search(ctx context.Context, query vectorstore.Vector, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.requireConnected("search"); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, vectorstore.NewInvalidArgument("search", backendPgvector, nil)
	}
	if len(query) != p.cfg.Dimension {
		return nil, vectorstore.NewDimensionMismatch("search", backendPgvector, p.cfg.Dimension, len(query))
	}

	op := pgvectorOperator(p.metric)
	args := []interface{}{vectorLiteral(query)}
	where := pgvectorWhere(filter, &args)
	fetchLimit := limit
	if hasAllOf(filter) {
		fetchLimit = limit * 4
		if fetchLimit < 100 {
			fetchLimit = 100
		}
	}
	args = append(args, fetchLimit)

	query2 := fmt.Sprintf(
		"SELECT id, payload, embedding, embedding %s $1 AS distance FROM %s WHERE true%s ORDER BY distance ASC LIMIT $%d",
		op, p.table, where, len(args))

	rows, err := p.db.QueryContext(ctx, query2, args...)
	if err != nil {
		return nil, vectorstore.NewBackendFailure("search", backendPgvector, err)
	}
	defer rows.Close()

	results := make([]vectorstore.SearchResult, 0, limit)
	for rows.Next() {
		var (
			id       int64
			rawJSON  []byte
			rawVec   string
			distance float64
		)
		if err := rows.Scan(&id, &rawJSON, &rawVec, &distance); err != nil {
			return nil, vectorstore.NewBackendFailure("search", backendPgvector, err)
		}
		var payload vectorstore.Payload
		_ = json.Unmarshal(rawJSON, &payload)
		if filter != nil && !hasAllOfOnly(filter, payload) {
			continue
		}
		score := distanceToScore(p.metric, distance)
		results = append(results, vectorstore.SearchResult{ID: id, Score: score, Payload: payload, Vector: parseVectorLiteral(rawVec)})
		if len(results) >= limit {
			break
		}
	}
	return results, rows.Err()
}

// distanceToScore converts a pgvector distance into the package's
// higher-is-better score convention.
func distanceToScore(m vectorstore.DistanceMetric, distance float64) float64 {
	switch m {
	case vectorstore.DistanceIP:
		return -distance // <#> returns negative inner product
	case vectorstore.DistanceCosine:
		return 1 - distance // <=> returns cosine distance
	default:
		return 1 / (1 + distance) // <-> returns Euclidean distance
	}
}

func hasAllOf(f vectorstore.Filter) bool {
	for _, cond := range f {
		if cond.AllOf != nil {
			return true
		}
	}
	return false
}

// parseVectorLiteral parses pgvector's "[0.1,0.2]" text representation.
func parseVectorLiteral(s string) vectorstore.Vector {
	s = strings.TrimPrefix(strings.TrimSuffix(s, "]"), "[")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make(vectorstore.Vector, len(parts))
	for i, p := range parts {
		f, _ := strconv.ParseFloat(strings.TrimSpace(p), 32)
		out[i] = float32(f)
	}
	return out
}

// Get fetches a single row by id.
func (p *PgvectorStore) Get(ctx context.Context, id int64) (*vectorstore.SearchResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.requireConnected("get"); err != nil {
		return nil, err
	}

	row := p.db.QueryRowContext(ctx, fmt.Sprintf("SELECT payload, embedding FROM %s WHERE id = $1", p.table), id)
	var rawJSON []byte
	var rawVec string
	if err := row.Scan(&rawJSON, &rawVec); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, vectorstore.NewBackendFailure("get", backendPgvector, err)
	}
	var payload vectorstore.Payload
	_ = json.Unmarshal(rawJSON, &payload)
	return &vectorstore.SearchResult{ID: id, Score: 1.0, Payload: payload, Vector: parseVectorLiteral(rawVec)}, nil
}

// Update overwrites the row via the same upsert statement Insert uses.
func (p *PgvectorStore) Update(ctx context.Context, id int64, vector vectorstore.Vector, payload vectorstore.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireConnected("update"); err != nil {
		return err
	}
	if len(vector) != p.cfg.Dimension {
		return vectorstore.NewDimensionMismatch("update", backendPgvector, p.cfg.Dimension, len(vector))
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return vectorstore.NewInvalidArgument("update", backendPgvector, err)
	}
	stmt := fmt.Sprintf(
		"INSERT INTO %s (id, embedding, payload) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload",
		p.table)
	if _, err := p.db.ExecContext(ctx, stmt, id, vectorLiteral(vector), payloadJSON); err != nil {
		return vectorstore.NewBackendFailure("update", backendPgvector, err)
	}
	return nil
}

// Delete removes a row by id; a missing row is a silent no-op.
func (p *PgvectorStore) Delete(ctx context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireConnected("delete"); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", p.table), id); err != nil {
		return vectorstore.NewBackendFailure("delete", backendPgvector, err)
	}
	return nil
}

// List scans the table, filtering the AllOf-only remainder client-side and
// any simpler conditions via pgvectorWhere in the SQL itself.
func (p *PgvectorStore) List(ctx context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.requireConnected("list"); err != nil {
		return nil, 0, err
	}

	var args []interface{}
	where := pgvectorWhere(filter, &args)
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf("SELECT id, payload, embedding FROM %s WHERE true%s ORDER BY id ASC", p.table, where), args...)
	if err != nil {
		return nil, 0, vectorstore.NewBackendFailure("list", backendPgvector, err)
	}
	defer rows.Close()

	matched := make([]vectorstore.SearchResult, 0)
	for rows.Next() {
		var id int64
		var rawJSON []byte
		var rawVec string
		if err := rows.Scan(&id, &rawJSON, &rawVec); err != nil {
			return nil, 0, vectorstore.NewBackendFailure("list", backendPgvector, err)
		}
		var payload vectorstore.Payload
		_ = json.Unmarshal(rawJSON, &payload)
		if filter != nil && !hasAllOfOnly(filter, payload) {
			continue
		}
		matched = append(matched, vectorstore.SearchResult{ID: id, Score: 1.0, Payload: payload, Vector: parseVectorLiteral(rawVec)})
	}
	total := len(matched)
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, rows.Err()
}

// DeleteCollection truncates the table, keeping its schema intact.
func (p *PgvectorStore) DeleteCollection(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", p.table)); err != nil {
		return vectorstore.NewBackendFailure("delete_collection", backendPgvector, err)
	}
	return nil
}

func (p *PgvectorStore) BackendType() string    { return backendPgvector }
func (p *PgvectorStore) Dimension() int         { return p.cfg.Dimension }
func (p *PgvectorStore) CollectionName() string { return p.table }
