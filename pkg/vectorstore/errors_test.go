package vectorstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageFormatsKindAndBackend(t *testing.T) {
	err := NewNotConnected("search", "qdrant")
	assert.Contains(t, err.Error(), "search")
	assert.Contains(t, err.Error(), "not_connected")
	assert.Contains(t, err.Error(), "qdrant")
}

func TestErrorMessageIncludesDimensions(t *testing.T) {
	err := NewDimensionMismatch("insert", "memory", 1536, 128)
	assert.Contains(t, err.Error(), "expected 1536")
	assert.Contains(t, err.Error(), "got 128")
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewConnectionFailure("connect", "redis", ConnReasonUnreachable, cause)
	assert.Same(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestErrorIsMatchesOnKindOnly(t *testing.T) {
	err := NewBackendFailure("list", "chroma", errors.New("boom"))
	assert.True(t, errors.Is(err, &Error{Kind: KindBackendFailure}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotConnected}))
}

func TestErrorAsRecoversFields(t *testing.T) {
	wrapped := fmt.Errorf("wrapping: %w", NewInvalidArgument("update", "pgvector", nil))
	var ve *Error
	require.True(t, errors.As(wrapped, &ve))
	assert.Equal(t, KindInvalidArgument, ve.Kind)
	assert.Equal(t, "pgvector", ve.Backend)
}

func TestIsKindHelpers(t *testing.T) {
	assert.True(t, IsNotConnected(NewNotConnected("get", "memory")))
	assert.False(t, IsNotConnected(NewBackendFailure("get", "memory", nil)))

	assert.True(t, IsDimensionMismatch(NewDimensionMismatch("insert", "memory", 3, 4)))
	assert.False(t, IsDimensionMismatch(errors.New("plain error")))
}

func TestKindStringCoversEveryVariant(t *testing.T) {
	cases := map[Kind]string{
		KindNotConnected:       "not_connected",
		KindConnectionFailure:  "connection_failure",
		KindDimensionMismatch:  "dimension_mismatch",
		KindCollectionNotFound: "collection_not_found",
		KindInvalidArgument:    "invalid_argument",
		KindBackendFailure:     "backend_failure",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
	assert.Equal(t, "unknown", Kind(999).String())
}
