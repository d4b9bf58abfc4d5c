package graph

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Storage implementations wrap these so callers can
// classify failures with errors.Is regardless of backend.
var (
	// ErrCancelled marks cooperative cancellation. It is not a hard
	// failure: the operation stopped cleanly with nothing committed.
	ErrCancelled = errors.New("operation cancelled")

	// ErrConnection marks an unreachable or unopenable store.
	ErrConnection = errors.New("storage unreachable")

	// ErrMissingField marks a stored row missing an expected value,
	// indicating store corruption. Never silently defaulted.
	ErrMissingField = errors.New("stored row is missing a required field")

	// ErrMetaUpdate marks a failed companion bookkeeping update. Graph
	// facts committed before the bookkeeping write are not rolled back.
	ErrMetaUpdate = errors.New("meta bookkeeping update failed")

	// ErrUnsupported marks an operation a backend does not implement.
	// Backends fail closed rather than silently no-op. The SQLite backend
	// implements the full Store surface; this kind is reserved for partial
	// backends (an in-memory test store, a read-only mirror) substituted
	// through the same interfaces.
	ErrUnsupported = errors.New("operation not supported by this backend")
)

// Error tags an underlying failure with one of the sentinel kinds and the
// operation that produced it. errors.Is matches both the kind and the cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// E wraps err as kind. A nil err yields an error carrying just the kind.
func E(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
