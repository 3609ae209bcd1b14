package dbctx

import (
	"errors"

	"github.com/dbctx/dbctx/driver"
	"github.com/dbctx/dbctx/internal/pool"
)

// Sentinel errors. Pool sentinels are shared with the pool package so
// errors.Is works on either.
var (
	// ErrPoolClosed is returned when an operation needs a connection after
	// the engine has been closed.
	ErrPoolClosed = pool.ErrClosed

	// ErrPoolTimeout is returned when no pool connection became available
	// within the configured acquire timeout.
	ErrPoolTimeout = pool.ErrTimeout

	// ErrNotFound is returned when an entity is absent from the universe.
	ErrNotFound = errors.New("entity not found")

	// ErrCacheCorrupt marks a persisted cache that failed to deserialize.
	// It is recovered internally by rebuilding, never surfaced to callers.
	ErrCacheCorrupt = errors.New("persisted schema cache could not be deserialized")
)

// PermissionError is returned when a statement violates the read-only policy
// or is rejected by the classifier. Never retried.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string {
	return "permission denied: " + e.Reason
}

// ConnectionError wraps a connection-establishment failure with a known
// authentication or protocol-incompatibility signature. Hint carries
// actionable remediation guidance.
type ConnectionError struct {
	Hint  string
	Cause error
}

func (e *ConnectionError) Error() string {
	return "connection failed: " + e.Cause.Error() + "\n" + e.Hint
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// StoreError is an opaque passthrough for errors reported by the backing
// store.
type StoreError struct {
	Cause error
}

func (e *StoreError) Error() string { return "store error: " + e.Cause.Error() }

func (e *StoreError) Unwrap() error { return e.Cause }

// connectHinter is an optional driver capability: drivers that can recognize
// authentication/protocol failure signatures return remediation guidance.
type connectHinter interface {
	ConnectHint(err error) string
}

// wrapConnectError classifies connection-establishment errors: known
// authentication/protocol signatures become ConnectionError with guidance,
// everything else propagates as StoreError.
func wrapConnectError(drv driver.Driver) func(error) error {
	return func(err error) error {
		if h, ok := drv.(connectHinter); ok {
			if hint := h.ConnectHint(err); hint != "" {
				return &ConnectionError{Hint: hint, Cause: err}
			}
		}
		return &StoreError{Cause: err}
	}
}
