package content

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds surfaced to callers. ServiceError wraps one of them.
var (
	ErrValidation   = errors.New("content: validation failed")
	ErrForbidden    = errors.New("content: author mismatch")
	ErrNotFound     = errors.New("content: not found")
	ErrThreadLocked = errors.New("content: thread is locked")
	ErrRateLimited  = errors.New("content: posting too fast")
	ErrStorage      = errors.New("content: storage failure")
)

// RateLimitError reports an unexpired posting cooldown.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v: retry after %s", ErrRateLimited, e.RetryAfter)
}

// Is matches ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// ServiceError carries a stable "<operation>.<reason>" code.
type ServiceError struct {
	code string
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

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func storageError(cause error) error {
	if errors.Is(cause, ErrStorage) {
		return cause
	}
	return fmt.Errorf("%w: %v", ErrStorage, cause)
}
