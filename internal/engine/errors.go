package engine

import (
	"fmt"

	"dealflow/internal/domain"
)

// ValidationError is a rejected transition or mutation. The message is safe
// to show to end users.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// MissingReasonError is returned when a deal is moved into a terminal stage
// without a close reason.
type MissingReasonError struct {
	Role domain.StageRole
}

func (e *MissingReasonError) Error() string {
	return fmt.Sprintf("a reason is required when closing a deal as %s", e.Role)
}

// ReorderError is a rejected stage reorder request.
type ReorderError struct {
	Reason string
}

func (e *ReorderError) Error() string { return e.Reason }

// PersistenceError wraps a store failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }
