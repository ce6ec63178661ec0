package ledger

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a sequence number has never been assigned.
var ErrNotFound = errors.New("ledger: entry not found")

// ErrConcurrencyConflict is returned when an append lost the sequence race
// more times than the bounded retry budget allows. Individual races are
// retried internally and are invisible to callers.
var ErrConcurrencyConflict = errors.New("ledger: append conflict retries exhausted")

// ValidationError rejects malformed input before it touches the store.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}
