package apperrors

import (
	"errors"
	"fmt"
)

// ValidationError means an entity is not fit to act on (missing recipient,
// empty subject or body). Never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Helper constructor
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TemplateRenderError means rendering left unresolved {{placeholders}}.
type TemplateRenderError struct {
	Unresolved []string
}

func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("template has unresolved placeholders: %v", e.Unresolved)
}

// TransientError wraps a provider failure that was retried and may succeed on
// a later cycle (rate limit, timeout, 5xx).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthError means the provider rejected our credentials. It short-circuits
// every provider-dependent step for the rest of the run.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConsistencyError means linked records disagree (e.g. an undo flag with no
// game behind it). Logged, the flag is cleared, nothing else is touched.
type ConsistencyError struct {
	EntityID string
	Reason   string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("inconsistent record %s: %s", e.EntityID, e.Reason)
}

// ErrNotFound is the sentinel for a missing record.
var ErrNotFound = errors.New("record not found")

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsValidation reports whether err is a ValidationError or TemplateRenderError.
func IsValidation(err error) bool {
	var ve *ValidationError
	var te *TemplateRenderError
	return errors.As(err, &ve) || errors.As(err, &te)
}
