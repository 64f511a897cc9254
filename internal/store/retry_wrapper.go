package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lerian-vectorstore/internal/retry"
	"lerian-vectorstore/pkg/vectorstore"
)

// RetryableVectorStore wraps a VectorStore with retry logic, grounded on
// the same transient-error heuristic and backoff shape as the teacher's
// storage retry decorator.
type RetryableVectorStore struct {
	store   vectorstore.VectorStore
	retrier *retry.Retrier
}

// NewRetryableVectorStore wraps store with retry logic using config (or a
// default if nil).
func NewRetryableVectorStore(store vectorstore.VectorStore, config *retry.Config) vectorstore.VectorStore {
	if config == nil {
		config = defaultRetryConfig()
	}
	return &RetryableVectorStore{store: store, retrier: retry.New(config)}
}

func defaultRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts:     3,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         isRetryableStorageError,
	}
}

func isRetryableStorageError(err error) bool {
	if err == nil {
		return false
	}

	// Dimension mismatch and invalid argument are never retryable: retrying
	// a malformed call just wastes attempts on a deterministic failure.
	if vectorstore.IsDimensionMismatch(err) || vectorstore.IsKind(err, vectorstore.KindInvalidArgument) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"too many requests",
		"rate limit",
		"service unavailable",
		"internal server error",
		"bad gateway",
		"gateway timeout",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	type temporary interface{ Temporary() bool }
	if te, ok := err.(temporary); ok {
		return te.Temporary()
	}

	return false
}

func (r *RetryableVectorStore) Connect(ctx context.Context) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.Connect(ctx)
	})
	if result.Err != nil {
		return fmt.Errorf("connect failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

// Disconnect never retries: shutdown paths must not throw or stall.
func (r *RetryableVectorStore) Disconnect(ctx context.Context) error {
	return r.store.Disconnect(ctx)
}

func (r *RetryableVectorStore) IsConnected() bool { return r.store.IsConnected() }

func (r *RetryableVectorStore) Insert(ctx context.Context, vectors []vectorstore.Vector, ids []int64, payloads []vectorstore.Payload) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.Insert(ctx, vectors, ids, payloads)
	})
	if result.Err != nil {
		return fmt.Errorf("insert failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

func (r *RetryableVectorStore) Search(ctx context.Context, query vectorstore.Vector, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	var results []vectorstore.SearchResult
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		results, err = r.store.Search(ctx, query, limit, filter)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("search failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return results, nil
}

func (r *RetryableVectorStore) Get(ctx context.Context, id int64) (*vectorstore.SearchResult, error) {
	var res *vectorstore.SearchResult
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = r.store.Get(ctx, id)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("get failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return res, nil
}

func (r *RetryableVectorStore) Update(ctx context.Context, id int64, vector vectorstore.Vector, payload vectorstore.Payload) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.Update(ctx, id, vector, payload)
	})
	if result.Err != nil {
		return fmt.Errorf("update failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

func (r *RetryableVectorStore) Delete(ctx context.Context, id int64) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.Delete(ctx, id)
	})
	if result.Err != nil {
		return fmt.Errorf("delete failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

func (r *RetryableVectorStore) List(ctx context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, int, error) {
	var res []vectorstore.SearchResult
	var total int
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		res, total, err = r.store.List(ctx, filter, limit)
		return err
	})
	if result.Err != nil {
		return nil, 0, fmt.Errorf("list failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return res, total, nil
}

func (r *RetryableVectorStore) DeleteCollection(ctx context.Context) error {
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.store.DeleteCollection(ctx)
	})
	if result.Err != nil {
		return fmt.Errorf("delete collection failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return nil
}

func (r *RetryableVectorStore) BackendType() string    { return r.store.BackendType() }
func (r *RetryableVectorStore) Dimension() int         { return r.store.Dimension() }
func (r *RetryableVectorStore) CollectionName() string { return r.store.CollectionName() }

// Stats passes through to the wrapped store when it implements
// vectorstore.StatsProvider, with the same retry treatment as other reads.
func (r *RetryableVectorStore) Stats(ctx context.Context) (*vectorstore.StoreStats, error) {
	sp, ok := r.store.(vectorstore.StatsProvider)
	if !ok {
		return nil, vectorstore.NewInvalidArgument("stats", r.store.BackendType(), nil)
	}
	var stats *vectorstore.StoreStats
	result := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		stats, err = sp.Stats(ctx)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("stats failed after %d attempts: %w", result.Attempts, result.Err)
	}
	return stats, nil
}
