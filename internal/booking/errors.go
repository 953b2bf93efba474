package booking

import (
	"errors"
	"fmt"

	"github.com/wolfman30/praxis-booking/internal/appointments"
	"github.com/wolfman30/praxis-booking/internal/refdata"
	"github.com/wolfman30/praxis-booking/internal/sessions"
	"github.com/wolfman30/praxis-booking/internal/steprecords"
	"github.com/wolfman30/praxis-booking/internal/wizard"
)

var (
	ErrSessionNotFound = errors.New("booking: session not found")
	ErrAccessDenied    = errors.New("booking: access denied")
	ErrSessionExpired  = errors.New("booking: session expired")
	ErrInvalidStep     = errors.New("booking: invalid step")
	// ErrInvariantViolation marks a state or payload that only a client or
	// engine bug can produce. Nothing is written when it is returned.
	ErrInvariantViolation = errors.New("booking: invariant violation")
	ErrValidation         = errors.New("booking: validation failed")
	ErrNotFound           = errors.New("booking: referenced entity not found")
	ErrSlotUnavailable    = errors.New("booking: slot unavailable")
	ErrBackNotAllowed     = errors.New("booking: back navigation not allowed")
	ErrUnauthenticated    = errors.New("booking: unauthenticated")
)

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StepError is returned when a transition is attempted from the wrong step.
type StepError struct {
	Expected []wizard.Step
	Actual   wizard.Step
}

func (e *StepError) Error() string {
	if len(e.Expected) == 1 {
		return fmt.Sprintf("invalid step: expected %s, session is at %s", e.Expected[0], e.Actual)
	}
	return fmt.Sprintf("invalid step: expected one of %v, session is at %s", e.Expected, e.Actual)
}

func (e *StepError) Unwrap() error { return ErrInvalidStep }

// kindError tags err with one of the sentinels above. Its message is err's.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string   { return e.err.Error() }
func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }

// classify maps errors from the wizard package onto the engine's kinds while
// keeping the original detail in the chain.
func classify(err error) error {
	var kind error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wizard.ErrBackNotAllowed):
		kind = ErrBackNotAllowed
	case errors.Is(err, wizard.ErrInvariant):
		kind = ErrInvariantViolation
	case errors.Is(err, wizard.ErrInvalidValue):
		kind = ErrValidation
	case errors.Is(err, steprecords.ErrInvalidOwnership):
		kind = ErrInvariantViolation
	case errors.Is(err, refdata.ErrNotFound):
		kind = ErrNotFound
	case errors.Is(err, appointments.ErrSlotTaken):
		kind = ErrSlotUnavailable
	case errors.Is(err, sessions.ErrNotFound):
		kind = ErrSessionNotFound
	default:
		return err
	}
	return &kindError{kind: kind, err: err}
}
