package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("resource not found")
	ErrOutOfStock         = errors.New("out of stock")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrDuplicateRequest   = errors.New("duplicate request")
	ErrConflict           = errors.New("concurrent modification")
)

// NotFound wraps ErrNotFound with the missing resource.
func NotFound(resource, id string) error {
	return fmt.Errorf("%s %s: %w", resource, id, ErrNotFound)
}

// LineError reports which order line failed and why.
type LineError struct {
	Line      int // zero-based index in the request
	ProductID string
	Err       error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (product %s): %v", e.Line+1, e.ProductID, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }
