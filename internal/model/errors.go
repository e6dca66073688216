package model

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrRequestNotFound is returned when a request id does not resolve to a row.
	ErrRequestNotFound = errors.New("service request not found")

	// ErrUnauthenticated is returned when an entry point needs a caller and has none.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrForbidden is returned when the caller lacks the role an entry point needs.
	ErrForbidden = errors.New("forbidden")

	// ErrIllegalTransition is matched by every IllegalTransitionError.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrConcurrentUpdate is returned when a conditional update lost a race
	// against another writer that moved the request first.
	ErrConcurrentUpdate = errors.New("request was modified concurrently")

	// ErrRateLimited is returned when a caller exceeds a per-action limit.
	ErrRateLimited = errors.New("too many requests")
)

// IllegalTransitionError describes a rejected edge of the lifecycle.
type IllegalTransitionError struct {
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot move request from %s to %s", e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// ValidationError is a rejected input, caught before any store call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StoreError wraps a persistence or remote procedure failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Message is the driver's own message, relayed to callers verbatim.
func (e *StoreError) Message() string {
	var pqErr *pq.Error
	if errors.As(e.Err, &pqErr) {
		return pqErr.Message
	}
	return e.Err.Error()
}

// NewStoreError wraps err unless it is nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
