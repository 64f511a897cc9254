package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-sqlite3"

	"lerian-vectorstore/internal/config"
	"lerian-vectorstore/internal/logging"
	"lerian-vectorstore/pkg/vectorstore"
)

const backendSQLiteVec = "sqlitevec"

var sqliteVecDriverOnce sync.Once

// registerSQLiteVecDriver registers a sqlite3 driver variant that loads the
// sqlite-vec extension on every new connection, following the same
// ConnectHook pattern used to load vector extensions at connect time.
func registerSQLiteVecDriver() {
	sqliteVecDriverOnce.Do(func() {
		sql.Register("sqlite3_vec", &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				extPath := os.Getenv("SQLITE_VEC_EXT_PATH")
				if extPath == "" {
					extPath = "vec0"
				}
				return conn.LoadExtension(extPath, "sqlite3_vec_init")
			},
		})
	})
}

func init() {
	registerSQLiteVecDriver()
}

// SQLiteVecStore adapts the VectorStore contract onto a local SQLite file
// extended with sqlite-vec: a vec0 virtual table holds the vector column,
// a companion table carries the JSON payload for each rowid.
type SQLiteVecStore struct {
	mu        sync.RWMutex
	db        *sql.DB
	cfg       *config.Config
	metric    vectorstore.DistanceMetric
	table     string
	payloadTable string
	connected bool
	logger    logging.Logger
}

// NewSQLiteVecStore constructs a disconnected sqlite-vec-backed store from
// cfg. The collection name doubles as the virtual table name.
func NewSQLiteVecStore(cfg *config.Config, metric vectorstore.DistanceMetric) *SQLiteVecStore {
	table := sanitizeIdentifier(cfg.Collection)
	return &SQLiteVecStore{
		cfg:          cfg,
		metric:       metric,
		table:        table,
		payloadTable: table + "_payload",
		logger:       logging.WithComponent(backendSQLiteVec),
	}
}

func (s *SQLiteVecStore) dbPath() string {
	if s.cfg.URL != "" {
		return s.cfg.URL
	}
	if s.cfg.BaseDir != "" {
		return s.cfg.BaseDir + "/" + s.cfg.Collection + ".db"
	}
	return s.cfg.Collection + ".db"
}

func sqliteVecDistanceFunc(m vectorstore.DistanceMetric) string {
	switch m {
	case vectorstore.DistanceEuclidean:
		return "vec_distance_L2"
	default:
		return "vec_distance_cosine"
	}
}

// Connect opens the database file and creates the vec0 virtual table and
// its companion payload table if absent.
func (s *SQLiteVecStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := sql.Open("sqlite3_vec", s.dbPath())
	if err != nil {
		return vectorstore.NewConnectionFailure("connect", backendSQLiteVec, vectorstore.ConnReasonUnreachable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return vectorstore.NewConnectionFailure("connect", backendSQLiteVec, vectorstore.ConnReasonUnreachable, err)
	}

	ddl := fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d]);
CREATE TABLE IF NOT EXISTS %s (
	rowid INTEGER PRIMARY KEY,
	payload TEXT NOT NULL DEFAULT '{}'
);
`, s.table, s.cfg.Dimension, s.payloadTable)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return vectorstore.NewConnectionFailure("connect", backendSQLiteVec, vectorstore.ConnReasonSchemaMismatch, err)
	}

	var existingDim sql.NullInt64
	checkDimensionSQL := fmt.Sprintf("SELECT vec_length(embedding) FROM %s LIMIT 1", s.table)
	if err := db.QueryRowContext(ctx, checkDimensionSQL).Scan(&existingDim); err != nil && err != sql.ErrNoRows {
		_ = db.Close()
		return vectorstore.NewConnectionFailure("connect", backendSQLiteVec, vectorstore.ConnReasonUnreachable, err)
	}
	if existingDim.Valid && int(existingDim.Int64) != s.cfg.Dimension {
		_ = db.Close()
		return vectorstore.NewConnectionFailure("connect", backendSQLiteVec, vectorstore.ConnReasonSchemaMismatch,
			fmt.Errorf("existing table %q has embedding dimension %d, configured dimension is %d", s.table, existingDim.Int64, s.cfg.Dimension))
	}

	s.db = db
	s.connected = true
	s.logger.Info("sqlite-vec store connected", "table", s.table, "path", s.dbPath())
	return nil
}

func (s *SQLiteVecStore) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.logger.Info("sqlite-vec store disconnected", "table", s.table)
	return err
}

func (s *SQLiteVecStore) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *SQLiteVecStore) requireConnected(op string) error {
	if !s.connected {
		return vectorstore.NewNotConnected(op, backendSQLiteVec)
	}
	return nil
}

// Insert upserts rowid-keyed vec0 rows plus their JSON payload companion
// rows, replacing any existing row sharing the same id.
func (s *SQLiteVecStore) Insert(ctx context.Context, vectors []vectorstore.Vector, ids []int64, payloads []vectorstore.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnected("insert"); err != nil {
		return err
	}
	if len(vectors) != len(ids) || len(ids) != len(payloads) {
		return vectorstore.NewInvalidArgument("insert", backendSQLiteVec, nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vectorstore.NewBackendFailure("insert", backendSQLiteVec, err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, v := range vectors {
		if len(v) != s.cfg.Dimension {
			return vectorstore.NewDimensionMismatch("insert", backendSQLiteVec, s.cfg.Dimension, len(v))
		}
		vecJSON, err := json.Marshal(v)
		if err != nil {
			return vectorstore.NewInvalidArgument("insert", backendSQLiteVec, err)
		}
		payloadJSON, err := json.Marshal(payloads[i])
		if err != nil {
			return vectorstore.NewInvalidArgument("insert", backendSQLiteVec, err)
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", s.table), ids[i]); err != nil {
			return vectorstore.NewBackendFailure("insert", backendSQLiteVec, err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (rowid, embedding) VALUES (?, vec_f32(?))", s.table),
			ids[i], string(vecJSON)); err != nil {
			return vectorstore.NewBackendFailure("insert", backendSQLiteVec, err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (rowid, payload) VALUES (?, ?) ON CONFLICT(rowid) DO UPDATE SET payload = excluded.payload", s.payloadTable),
			ids[i], string(payloadJSON)); err != nil {
			return vectorstore.NewBackendFailure("insert", backendSQLiteVec, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return vectorstore.NewBackendFailure("insert", backendSQLiteVec, err)
	}
	return nil
}

// Search runs a KNN query through the vec0 virtual table's distance
// function, joining in the payload companion table.
func (s *SQLiteVecStore) Search(ctx context.Context, query vectorstore.Vector, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireConnected("search"); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, vectorstore.NewInvalidArgument("search", backendSQLiteVec, nil)
	}
	if len(query) != s.cfg.Dimension {
		return nil, vectorstore.NewDimensionMismatch("search", backendSQLiteVec, s.cfg.Dimension, len(query))
	}

	vecJSON, err := json.Marshal(query)
	if err != nil {
		return nil, vectorstore.NewInvalidArgument("search", backendSQLiteVec, err)
	}

	fetchLimit := limit
	if filter != nil {
		fetchLimit = limit * 4
		if fetchLimit < 100 {
			fetchLimit = 100
		}
	}

	distFn := sqliteVecDistanceFunc(s.metric)
	q := fmt.Sprintf(`
SELECT v.rowid, p.payload, %s(v.embedding, vec_f32(?)) AS distance
FROM %s v
LEFT JOIN %s p ON p.rowid = v.rowid
ORDER BY distance ASC
LIMIT ?
`, distFn, s.table, s.payloadTable)

	rows, err := s.db.QueryContext(ctx, q, string(vecJSON), fetchLimit)
	if err != nil {
		return nil, vectorstore.NewBackendFailure("search", backendSQLiteVec, err)
	}
	defer rows.Close()

	results := make([]vectorstore.SearchResult, 0, limit)
	for rows.Next() {
		var id int64
		var payloadStr sql.NullString
		var distance float64
		if err := rows.Scan(&id, &payloadStr, &distance); err != nil {
			return nil, vectorstore.NewBackendFailure("search", backendSQLiteVec, err)
		}
		payload := vectorstore.Payload{}
		if payloadStr.Valid {
			_ = json.Unmarshal([]byte(payloadStr.String), &payload)
		}
		if filter != nil && !filter.Matches(payload) {
			continue
		}
		results = append(results, vectorstore.SearchResult{ID: id, Score: sqliteVecScore(s.metric, distance), Payload: payload})
		if len(results) >= limit {
			break
		}
	}
	return results, rows.Err()
}

func sqliteVecScore(m vectorstore.DistanceMetric, distance float64) float64 {
	if m == vectorstore.DistanceEuclidean {
		return 1 / (1 + distance)
	}
	return 1 - distance // vec_distance_cosine returns a cosine distance in [0,2]
}

// Get fetches the vec0 row's embedding and the companion payload.
func (s *SQLiteVecStore) Get(ctx context.Context, id int64) (*vectorstore.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireConnected("get"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT v.embedding, p.payload FROM %s v LEFT JOIN %s p ON p.rowid = v.rowid WHERE v.rowid = ?", s.table, s.payloadTable), id)

	var embeddingJSON string
	var payloadStr sql.NullString
	if err := row.Scan(&embeddingJSON, &payloadStr); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, vectorstore.NewBackendFailure("get", backendSQLiteVec, err)
	}

	var vec vectorstore.Vector
	_ = json.Unmarshal([]byte(embeddingJSON), &vec)
	payload := vectorstore.Payload{}
	if payloadStr.Valid {
		_ = json.Unmarshal([]byte(payloadStr.String), &payload)
	}
	return &vectorstore.SearchResult{ID: id, Score: 1.0, Payload: payload, Vector: vec}, nil
}

// Update replaces both the vec0 row and its companion payload row.
func (s *SQLiteVecStore) Update(ctx context.Context, id int64, vector vectorstore.Vector, payload vectorstore.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnected("update"); err != nil {
		return err
	}
	if len(vector) != s.cfg.Dimension {
		return vectorstore.NewDimensionMismatch("update", backendSQLiteVec, s.cfg.Dimension, len(vector))
	}

	vecJSON, err := json.Marshal(vector)
	if err != nil {
		return vectorstore.NewInvalidArgument("update", backendSQLiteVec, err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return vectorstore.NewInvalidArgument("update", backendSQLiteVec, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vectorstore.NewBackendFailure("update", backendSQLiteVec, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", s.table), id); err != nil {
		return vectorstore.NewBackendFailure("update", backendSQLiteVec, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (rowid, embedding) VALUES (?, vec_f32(?))", s.table), id, string(vecJSON)); err != nil {
		return vectorstore.NewBackendFailure("update", backendSQLiteVec, err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (rowid, payload) VALUES (?, ?) ON CONFLICT(rowid) DO UPDATE SET payload = excluded.payload", s.payloadTable),
		id, string(payloadJSON)); err != nil {
		return vectorstore.NewBackendFailure("update", backendSQLiteVec, err)
	}
	return tx.Commit()
}

// Delete removes both the vec0 row and its companion payload row; a
// missing id is a silent no-op.
func (s *SQLiteVecStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnected("delete"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vectorstore.NewBackendFailure("delete", backendSQLiteVec, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", s.table), id); err != nil {
		return vectorstore.NewBackendFailure("delete", backendSQLiteVec, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", s.payloadTable), id); err != nil {
		return vectorstore.NewBackendFailure("delete", backendSQLiteVec, err)
	}
	return tx.Commit()
}

// List scans the payload companion table, joining back to vec0 for the
// embedding.
func (s *SQLiteVecStore) List(ctx context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireConnected("list"); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT p.rowid, p.payload, v.embedding FROM %s p LEFT JOIN %s v ON v.rowid = p.rowid ORDER BY p.rowid ASC", s.payloadTable, s.table))
	if err != nil {
		return nil, 0, vectorstore.NewBackendFailure("list", backendSQLiteVec, err)
	}
	defer rows.Close()

	matched := make([]vectorstore.SearchResult, 0)
	for rows.Next() {
		var id int64
		var payloadStr sql.NullString
		var embeddingStr sql.NullString
		if err := rows.Scan(&id, &payloadStr, &embeddingStr); err != nil {
			return nil, 0, vectorstore.NewBackendFailure("list", backendSQLiteVec, err)
		}
		payload := vectorstore.Payload{}
		if payloadStr.Valid {
			_ = json.Unmarshal([]byte(payloadStr.String), &payload)
		}
		if filter != nil && !filter.Matches(payload) {
			continue
		}
		var vec vectorstore.Vector
		if embeddingStr.Valid {
			_ = json.Unmarshal([]byte(embeddingStr.String), &vec)
		}
		matched = append(matched, vectorstore.SearchResult{ID: id, Score: 1.0, Payload: payload, Vector: vec})
	}
	total := len(matched)
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, rows.Err()
}

// DeleteCollection truncates both the vec0 table and its payload
// companion.
func (s *SQLiteVecStore) DeleteCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return vectorstore.NewBackendFailure("delete_collection", backendSQLiteVec, err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.payloadTable)); err != nil {
		return vectorstore.NewBackendFailure("delete_collection", backendSQLiteVec, err)
	}
	return nil
}

func (s *SQLiteVecStore) BackendType() string    { return backendSQLiteVec }
func (s *SQLiteVecStore) Dimension() int         { return s.cfg.Dimension }
func (s *SQLiteVecStore) CollectionName() string { return s.table }
