package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports input rejected at a component boundary before
// any storage or network call was made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// TransientServiceError wraps a failure of an external collaborator
// (embedding provider, judge model, vector index). Callers catch it at
// the boundary that issued the call and degrade; it never propagates to
// a user-facing path.
type TransientServiceError struct {
	Service string
	Err     error
}

func (e *TransientServiceError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Service, e.Err)
}

func (e *TransientServiceError) Unwrap() error { return e.Err }

// SchemaError reports an external payload that failed shape validation:
// a score out of range, a wrong-length vector, a malformed result row.
// The offending record is dropped (or the evaluation abandoned); other
// interactions are unaffected.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: %s: %s", e.Field, e.Reason)
}

// StorageError wraps a persistence-layer failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
