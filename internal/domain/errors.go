package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels let callers branch with errors.Is without caring about the
// concrete error type.
var (
	ErrConfiguration = errors.New("invalid configuration")
	ErrValidation    = errors.New("invalid input")
	ErrConflict      = errors.New("window not available")
	ErrNotFound      = errors.New("not found")
	ErrBackend       = errors.New("backend failure")
)

// ConfigurationError lists every problem found while validating settings.
// It is fatal at startup.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ValidationError reports a malformed value extracted from a message.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError is returned when the requested window cannot be booked.
// Reason is user-facing text.
type ConflictError struct {
	Reason   string
	Conflict *Window
}

func (e *ConflictError) Error() string {
	if e.Reason == "" {
		return ErrConflict.Error()
	}
	return e.Reason
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing reservation or court.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// BackendError wraps a failed call to the calendar or LLM collaborator.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + ErrBackend.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *BackendError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBackend}
	}
	return []error{ErrBackend, e.Err}
}

// Backend wraps err as a BackendError unless it already carries a domain
// classification.
func Backend(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBackend) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}
