package types

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed input at submission time. These
// never enter the event store and are not retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrStorageUnavailable classifies durable read/write failures. The
// triggering operation may be retried by the caller; the periodic
// sweep logs and retries on its next tick.
var ErrStorageUnavailable = errors.New("storage unavailable")
