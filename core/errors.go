package core

import "github.com/pkg/errors"

// ErrPermissionDenied is returned when an Actor lacks the capability for an
// operation. Authorization is enforced at the operation boundary, not only in
// the routing layer.
var ErrPermissionDenied = errors.New("permission denied")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError reports malformed or missing input to an operation.
// No partial state is committed when one is returned.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// PreconditionError reports an operation invoked against an entity whose
// current state does not permit it (eg. approving a non-pending application
// or paying an already-paid record). Callers should re-fetch and re-evaluate.
type PreconditionError struct {
	Err error
}

func NewPreconditionError(err error) error {
	return &PreconditionError{Err: err}
}

func (err PreconditionError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// ConflictError reports that a status-guarded update matched no row: the
// entity changed between read and write. Retryable after a re-fetch.
type ConflictError struct {
	Err error
}

func NewConflictError(err error) error {
	return &ConflictError{Err: err}
}

func (err ConflictError) Error() string {
	if err.Err == nil {
		return "conflicting concurrent update"
	}
	return err.Err.Error()
}

// DependencyError reports a failed or timed-out external collaborator call
// (file storage, payment gateway). Always raised before any domain state is
// committed, so the caller can retry the whole operation.
type DependencyError struct {
	Dependency string
	Err        error
}

func NewDependencyError(dependency string, err error) error {
	return &DependencyError{Dependency: dependency, Err: err}
}

func (err DependencyError) Error() string {
	msg := err.Dependency + " unavailable"
	if err.Err != nil {
		msg += ": " + err.Err.Error()
	}
	return msg
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
