package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrDimensionMismatch  = errors.New("dimension mismatch")
	ErrSchema             = errors.New("schema conflict")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrQuotaExceeded      = errors.New("provider quota exceeded")
	ErrProvider           = errors.New("provider request failed")
)

// ValidationError reports caller input that can never succeed as given.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// DimensionMismatchError reports a vector whose width differs from the collection's.
type DimensionMismatchError struct {
	Collection string
	Expected   int
	Got        int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch [collection=%s]: expected %d, got %d", e.Collection, e.Expected, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// SchemaError reports a collection that exists with an incompatible shape,
// or that does not exist at all.
type SchemaError struct {
	Collection string
	Reason     string
	Err        error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema [collection=%s]: %s", e.Collection, e.Reason)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// CollectionNotFound builds the SchemaError returned for unknown collections.
func CollectionNotFound(collection string) *SchemaError {
	return &SchemaError{Collection: collection, Reason: "collection does not exist", Err: ErrCollectionNotFound}
}

// QuotaExceededError is the transient failure class: rate limits and
// exhausted quotas. Callers may skip the item or retry later.
type QuotaExceededError struct {
	Provider string
	Err      error
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: quota exceeded: %v", e.Provider, e.Err)
}

func (e *QuotaExceededError) Unwrap() error { return e.Err }

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// ProviderError is any non-quota failure from an external provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// IsTransient reports whether err belongs to the quota class.
func IsTransient(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// Class names the error category, used for metric labels and logs.
func Class(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrProvider):
		return "provider"
	default:
		return "internal"
	}
}

type OpError struct {
	Op         string
	Collection string
	Err        error
	Context    map[string]any
}

func (e *OpError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("%s [collection=%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewOpError(op, collection string, err error) *OpError {
	return &OpError{Op: op, Collection: collection, Err: err}
}

func WithContext(err *OpError, key string, val any) *OpError {
	if err.Context == nil {
		err.Context = make(map[string]any)
	}
	err.Context[key] = val
	return err
}
