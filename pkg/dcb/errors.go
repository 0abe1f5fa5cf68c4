package dcb

import (
	"errors"
	"fmt"
)

// dcbError is the base wrapper every taxonomy error embeds. It carries the
// operation that failed and the underlying cause, and supports errors.As
// unwrapping back to that cause.
type dcbError struct {
	Op  string
	Err error
}

func (e *dcbError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *dcbError) Unwrap() error { return e.Err }

// ValidationError reports a failure to construct a valid value: a malformed
// identifier, a reserved identifier name, or an internally inconsistent
// event schema. Validation errors never escape past initialization.
type ValidationError struct {
	*dcbError
}

// NewValidationError wraps err as a ValidationError raised by op.
func NewValidationError(op string, err error) *ValidationError {
	return &ValidationError{&dcbError{Op: op, Err: err}}
}

// ConcurrencyError is returned by EventStore.Append when the validation
// query matched an event written after expectedVersion.
type ConcurrencyError struct {
	*dcbError
	ExpectedVersion int64
}

// NewConcurrencyError builds a ConcurrencyError for the given expected version.
func NewConcurrencyError(op string, expectedVersion int64) *ConcurrencyError {
	return &ConcurrencyError{
		dcbError:        &dcbError{Op: op, Err: errors.New("validation query matched a newer event")},
		ExpectedVersion: expectedVersion,
	}
}

// BackendError reports an infrastructure failure talking to the store.
// Transient errors (pool exhaustion, socket reset, connection reset) are
// distinguished from permanent ones (syntax errors, constraint violations)
// so listeners can swallow the former and propagate the latter.
type BackendError struct {
	*dcbError
	Transient bool
}

// NewBackendError wraps err as a BackendError, marking it transient or not.
func NewBackendError(op string, err error, transient bool) *BackendError {
	return &BackendError{dcbError: &dcbError{Op: op, Err: err}, Transient: transient}
}

// DeserializationError reports a payload that failed to decode back into
// its event type. It terminates only the stream that produced it.
type DeserializationError struct {
	*dcbError
}

// NewDeserializationError wraps err as a DeserializationError raised by op.
func NewDeserializationError(op string, err error) *DeserializationError {
	return &DeserializationError{&dcbError{Op: op, Err: err}}
}

// DomainError carries a decision's business-rule rejection, kept distinct
// from infrastructure failures so callers can branch on it explicitly.
type DomainError struct {
	*dcbError
}

// NewDomainError wraps err as a DomainError raised by op.
func NewDomainError(op string, err error) *DomainError {
	return &DomainError{&dcbError{Op: op, Err: err}}
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsConcurrencyError reports whether err is, or wraps, a ConcurrencyError.
func IsConcurrencyError(err error) bool {
	var target *ConcurrencyError
	return errors.As(err, &target)
}

// IsBackendError reports whether err is, or wraps, a BackendError.
func IsBackendError(err error) bool {
	var target *BackendError
	return errors.As(err, &target)
}

// IsTransientBackendError reports whether err is a BackendError marked transient.
func IsTransientBackendError(err error) bool {
	var target *BackendError
	return errors.As(err, &target) && target.Transient
}

// IsDeserializationError reports whether err is, or wraps, a DeserializationError.
func IsDeserializationError(err error) bool {
	var target *DeserializationError
	return errors.As(err, &target)
}

// IsDomainError reports whether err is, or wraps, a DomainError.
func IsDomainError(err error) bool {
	var target *DomainError
	return errors.As(err, &target)
}

// GetConcurrencyError extracts the *ConcurrencyError from err, if any.
func GetConcurrencyError(err error) (*ConcurrencyError, bool) {
	var target *ConcurrencyError
	ok := errors.As(err, &target)
	return target, ok
}

// GetDomainError extracts the *DomainError from err, if any.
func GetDomainError(err error) (*DomainError, bool) {
	var target *DomainError
	ok := errors.As(err, &target)
	return target, ok
}

// GetBackendError extracts the *BackendError from err, if any.
func GetBackendError(err error) (*BackendError, bool) {
	var target *BackendError
	ok := errors.As(err, &target)
	return target, ok
}
