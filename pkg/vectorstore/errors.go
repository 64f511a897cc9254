package vectorstore

import (
	"errors"
	"fmt"
)

// Kind is the vector-store error taxonomy. Callers discriminate on kind,
// never on message text.
type Kind int

const (
	// KindNotConnected: operation requested before connect or after disconnect.
	KindNotConnected Kind = iota
	// KindConnectionFailure: cannot reach backend, auth rejected, rate-limited,
	// or schema mismatch on bind.
	KindConnectionFailure
	// KindDimensionMismatch: vector length differs from collection dimension.
	KindDimensionMismatch
	// KindCollectionNotFound: named collection absent and auto-create not permitted.
	KindCollectionNotFound
	// KindInvalidArgument: sequence-length mismatch, bad ID, empty collection
	// name, unsupported operation.
	KindInvalidArgument
	// KindBackendFailure: wrapped underlying error from the remote engine.
	KindBackendFailure
)

func (k Kind) String() string {
	switch k {
	case KindNotConnected:
		return "not_connected"
	case KindConnectionFailure:
		return "connection_failure"
	case KindDimensionMismatch:
		return "dimension_mismatch"
	case KindCollectionNotFound:
		return "collection_not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindBackendFailure:
		return "backend_failure"
	default:
		return "unknown"
	}
}

// ConnFailureReason further classifies a KindConnectionFailure so callers
// can decide whether retrying makes sense.
type ConnFailureReason int

const (
	ConnReasonUnspecified ConnFailureReason = iota
	ConnReasonAuth
	ConnReasonNotFound
	ConnReasonRateLimited
	ConnReasonSchemaMismatch
	ConnReasonUnreachable
)

// Error is the sum-variant error type every vector-store operation
// returns. It carries the taxonomy kind, the operation tag it occurred
// during, the backend that raised it, and the wrapped cause so the
// original remote error survives for diagnostics.
type Error struct {
	Kind     Kind
	Op       string
	Backend  string
	Reason   ConnFailureReason
	Expected int // dimension mismatch: expected dimension
	Actual   int // dimension mismatch: actual length
	Cause    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("vectorstore: %s: %s", e.Op, e.Kind)
	if e.Backend != "" {
		msg += fmt.Sprintf(" [%s]", e.Backend)
	}
	if e.Kind == KindDimensionMismatch {
		msg += fmt.Sprintf(" (expected %d, got %d)", e.Expected, e.Actual)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on Kind alone when compared against a *Error
// whose only populated field is Kind (the conventional sentinel-style use:
// errors.Is(err, &vectorstore.Error{Kind: vectorstore.KindNotConnected})).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewNotConnected builds a NotConnected error for the given operation.
func NewNotConnected(op, backend string) *Error {
	return &Error{Kind: KindNotConnected, Op: op, Backend: backend}
}

// NewConnectionFailure builds a Connection failure error, optionally
// classified with a reason, wrapping cause.
func NewConnectionFailure(op, backend string, reason ConnFailureReason, cause error) *Error {
	return &Error{Kind: KindConnectionFailure, Op: op, Backend: backend, Reason: reason, Cause: cause}
}

// NewDimensionMismatch builds a Dimension mismatch error.
func NewDimensionMismatch(op, backend string, expected, actual int) *Error {
	return &Error{Kind: KindDimensionMismatch, Op: op, Backend: backend, Expected: expected, Actual: actual}
}

// NewCollectionNotFound builds a CollectionNotFound error.
func NewCollectionNotFound(op, backend string) *Error {
	return &Error{Kind: KindCollectionNotFound, Op: op, Backend: backend}
}

// NewInvalidArgument builds an Invalid argument error, wrapping cause for
// additional detail (may be nil).
func NewInvalidArgument(op, backend string, cause error) *Error {
	return &Error{Kind: KindInvalidArgument, Op: op, Backend: backend, Cause: cause}
}

// NewBackendFailure builds a Backend failure error wrapping the remote
// engine's error.
func NewBackendFailure(op, backend string, cause error) *Error {
	return &Error{Kind: KindBackendFailure, Op: op, Backend: backend, Cause: cause}
}

// IsKind reports whether err (or anything in its chain) is a *Error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind == kind
	}
	return false
}

// IsNotConnected reports whether err is a NotConnected error.
func IsNotConnected(err error) bool { return IsKind(err, KindNotConnected) }

// IsDimensionMismatch reports whether err is a Dimension mismatch error.
func IsDimensionMismatch(err error) bool { return IsKind(err, KindDimensionMismatch) }
