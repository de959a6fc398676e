package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthenticated     = errors.New("user is not authenticated")
	ErrItemNotFound        = errors.New("cart item not found")
	ErrNonPositiveQuantity = errors.New("quantity must be positive")
	ErrMissingProductID    = errors.New("missing productId")
	ErrDraftDirty          = errors.New("cart has unsaved changes")
)

// ValidationError reports which LineItem fields failed validation. It never
// leaves the process; callers surface Fields to the user.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid cart item: fields [%s]", strings.Join(e.Fields, ", "))
}

// CartError marks an operation attempted in an invalid context. The caller
// recovers by correcting input or redirecting to login.
type CartError struct {
	Op  string
	Err error
}

func (e *CartError) Error() string {
	return fmt.Sprintf("cart operation %s failed with error=%s", e.Op, e.Err)
}

func (e *CartError) Unwrap() error { return e.Err }

// CartMergeError aborts the whole login-time merge; neither store was
// mutated when this is returned.
type CartMergeError struct {
	Err error
}

func (e *CartMergeError) Error() string {
	return fmt.Sprintf("cart merge aborted with error=%s", e.Err)
}

func (e *CartMergeError) Unwrap() error { return e.Err }

// PersistenceError is a failed call against a backing store. Retryable is a
// hint for the caller; the services never retry on their own.
type PersistenceError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf(
			"persistence operation %s failed with status=%d error=%s",
			e.Op,
			e.StatusCode,
			e.Err,
		)
	}
	return fmt.Sprintf("persistence operation %s failed with error=%s", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
