package wizard

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariant marks a state or payload that can only come from a bug or a
	// tampered session: a disallowed field, a missing required ancestor field, or
	// a variant that fails its own validation.
	ErrInvariant = errors.New("wizard: invariant violation")

	// ErrBackNotAllowed is returned when the current step has no way back.
	ErrBackNotAllowed = errors.New("wizard: back navigation not allowed")

	// ErrInvalidValue marks user-supplied values that fail validation.
	ErrInvalidValue = errors.New("wizard: invalid value")
)

// InvariantError carries the step and field that broke an invariant.
type InvariantError struct {
	Step   Step
	Field  Field
	Reason string
}

func (e *InvariantError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("wizard: invariant violation at step %s, field %s: %s", e.Step, e.Field, e.Reason)
	}
	return fmt.Sprintf("wizard: invariant violation at step %s: %s", e.Step, e.Reason)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

func invariant(step Step, field Field, format string, args ...any) error {
	return &InvariantError{Step: step, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// BackNotAllowedError names the step back navigation was attempted from.
type BackNotAllowedError struct {
	Step Step
}

func (e *BackNotAllowedError) Error() string {
	return fmt.Sprintf("back navigation not allowed from step %s", e.Step)
}

func (e *BackNotAllowedError) Unwrap() error { return ErrBackNotAllowed }

// ValueError describes a rejected user-supplied value.
type ValueError struct {
	Field  string
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValueError) Unwrap() error { return ErrInvalidValue }

func invalid(field, reason string) error {
	return &ValueError{Field: field, Reason: reason}
}
