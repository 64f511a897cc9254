package store

import (
	"context"
	"errors"
	"time"

	"lerian-vectorstore/internal/circuitbreaker"
	"lerian-vectorstore/internal/logging"
	"lerian-vectorstore/pkg/vectorstore"
)

// CircuitBreakerVectorStore wraps a VectorStore with circuit-breaker
// protection, same open/half-open/closed state machine the teacher uses
// around its storage layer. Search, List and Stats degrade to empty
// results when the breaker rejects the call (open circuit, or half-open
// concurrency limit reached); errors from the wrapped store are returned
// as-is, and every other operation fails with the breaker's error.
type CircuitBreakerVectorStore struct {
	store  vectorstore.VectorStore
	cb     *circuitbreaker.CircuitBreaker
	logger logging.Logger
}

// NewCircuitBreakerVectorStore wraps store with a circuit breaker using
// config (or a default if nil).
func NewCircuitBreakerVectorStore(store vectorstore.VectorStore, config *circuitbreaker.Config) *CircuitBreakerVectorStore {
	logger := logging.WithComponent("circuit-breaker")
	if config == nil {
		config = &circuitbreaker.Config{
			FailureThreshold:      5,
			SuccessThreshold:      2,
			Timeout:               30 * time.Second,
			MaxConcurrentRequests: 3,
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("vector store circuit breaker state change", "from", from, "to", to)
			},
		}
	}
	return &CircuitBreakerVectorStore{store: store, cb: circuitbreaker.New(config), logger: logger}
}

func (s *CircuitBreakerVectorStore) Connect(ctx context.Context) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Connect(ctx)
	})
}

// Disconnect bypasses the circuit breaker: shutdown must not be blocked by
// an open circuit.
func (s *CircuitBreakerVectorStore) Disconnect(ctx context.Context) error {
	return s.store.Disconnect(ctx)
}

func (s *CircuitBreakerVectorStore) IsConnected() bool { return s.store.IsConnected() }

func (s *CircuitBreakerVectorStore) Insert(ctx context.Context, vectors []vectorstore.Vector, ids []int64, payloads []vectorstore.Payload) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Insert(ctx, vectors, ids, payloads)
	})
}

func (s *CircuitBreakerVectorStore) Search(ctx context.Context, query vectorstore.Vector, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	var result []vectorstore.SearchResult
	err := s.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			result, err = s.store.Search(ctx, query, limit, filter)
			return err
		},
		func(ctx context.Context, cbErr error) error {
			if !isBreakerRejection(cbErr) {
				return cbErr
			}
			result = []vectorstore.SearchResult{}
			return nil
		},
	)
	return result, err
}

func (s *CircuitBreakerVectorStore) Get(ctx context.Context, id int64) (*vectorstore.SearchResult, error) {
	var result *vectorstore.SearchResult
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.store.Get(ctx, id)
		return err
	})
	return result, err
}

func (s *CircuitBreakerVectorStore) Update(ctx context.Context, id int64, vector vectorstore.Vector, payload vectorstore.Payload) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Update(ctx, id, vector, payload)
	})
}

func (s *CircuitBreakerVectorStore) Delete(ctx context.Context, id int64) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Delete(ctx, id)
	})
}

func (s *CircuitBreakerVectorStore) List(ctx context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, int, error) {
	var result []vectorstore.SearchResult
	var total int
	err := s.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			result, total, err = s.store.List(ctx, filter, limit)
			return err
		},
		func(ctx context.Context, cbErr error) error {
			if !isBreakerRejection(cbErr) {
				return cbErr
			}
			result, total = []vectorstore.SearchResult{}, 0
			return nil
		},
	)
	return result, total, err
}

func (s *CircuitBreakerVectorStore) DeleteCollection(ctx context.Context) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.DeleteCollection(ctx)
	})
}

func (s *CircuitBreakerVectorStore) BackendType() string    { return s.store.BackendType() }
func (s *CircuitBreakerVectorStore) Dimension() int         { return s.store.Dimension() }
func (s *CircuitBreakerVectorStore) CollectionName() string { return s.store.CollectionName() }

// Stats degrades to a zeroed snapshot when the breaker rejects the call
// rather than erroring, mirroring the teacher's GetStats fallback.
func (s *CircuitBreakerVectorStore) Stats(ctx context.Context) (*vectorstore.StoreStats, error) {
	sp, ok := s.store.(vectorstore.StatsProvider)
	if !ok {
		return nil, vectorstore.NewInvalidArgument("stats", s.store.BackendType(), nil)
	}
	var result *vectorstore.StoreStats
	err := s.cb.ExecuteWithFallback(ctx,
		func(ctx context.Context) error {
			var err error
			result, err = sp.Stats(ctx)
			return err
		},
		func(ctx context.Context, cbErr error) error {
			if !isBreakerRejection(cbErr) {
				return cbErr
			}
			result = &vectorstore.StoreStats{BackendType: s.store.BackendType(), CollectionName: s.store.CollectionName()}
			return nil
		},
	)
	return result, err
}

// isBreakerRejection reports whether err is the breaker refusing the call,
// as opposed to an error returned by the wrapped store.
func isBreakerRejection(err error) bool {
	return errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyConcurrentRequests)
}

// GetCircuitBreakerStats exposes the underlying breaker's counters for
// monitoring.
func (s *CircuitBreakerVectorStore) GetCircuitBreakerStats() circuitbreaker.Stats {
	return s.cb.GetStats()
}
