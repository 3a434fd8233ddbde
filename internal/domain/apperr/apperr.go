// Package apperr defines the error taxonomy shared by the cart, checkout and
// order lifecycle services. Callers classify errors with errors.Is against the
// sentinels below; anything that matches none of them is an internal failure.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is matched by errors reporting an absent entity.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is matched by precondition violations: empty cart,
	// non-positive quantity, illegal status transition.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInsufficientStock is matched by *InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict is returned when a unique value is already taken.
	ErrConflict = errors.New("conflict")
	// ErrUnauthenticated is returned when no verified identity is present.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the identity lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// NotFoundError names the missing resource and its identifier.
type NotFoundError struct {
	Resource string
	ID       any
}

// NotFound returns a *NotFoundError for the given resource.
func NotFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InsufficientStockError carries enough detail to tell the user which product
// is short and by how much.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// Is reports whether target is ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Invalid wraps ErrInvalidArgument with a caller-facing message.
func Invalid(msg string) error {
	return &invalidError{msg: msg}
}

// Invalidf is like Invalid but formats the message.
func Invalidf(format string, args ...any) error {
	return &invalidError{msg: fmt.Sprintf(format, args...)}
}

type invalidError struct {
	msg string
}

func (e *invalidError) Error() string { return e.msg }

func (e *invalidError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// Cause returns the innermost error in err's chain that belongs to this
// package's taxonomy, or err itself. Its message is safe to show callers.
func Cause(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch e.(type) {
		case *NotFoundError, *InsufficientStockError, *invalidError:
			return e
		}
		switch e {
		case ErrNotFound, ErrInvalidArgument, ErrInsufficientStock, ErrConflict, ErrUnauthenticated, ErrForbidden:
			return e
		}
	}
	return err
}
