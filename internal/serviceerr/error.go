// Package serviceerr carries operation-scoped error codes shared by the domain services.
package serviceerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound classifies failures caused by an absent exhibition, tag, session, run, version or content row.
	ErrNotFound = errors.New("not found")
	// ErrValidation classifies failures caused by malformed or rule-violating input.
	ErrValidation = errors.New("validation failed")
	// ErrIntegrity classifies persisted state that contradicts the storage invariants.
	ErrIntegrity = errors.New("integrity violation")
)

// ServiceError reports a failed operation with a machine-readable code of the form operation.reason.
type ServiceError struct {
	code string
	kind error
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Is matches the error kind so callers can branch with errors.Is(err, ErrNotFound).
func (e *ServiceError) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

func (e *ServiceError) Code() string {
	return e.code
}

// New builds a ServiceError without a kind; used for storage and infrastructure failures.
func New(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, err: cause}
}

func NotFound(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, kind: ErrNotFound, err: cause}
}

func Validation(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, kind: ErrValidation, err: cause}
}

func Integrity(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, kind: ErrIntegrity, err: cause}
}

// CodeOf extracts the code from a ServiceError anywhere in the chain.
func CodeOf(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}
