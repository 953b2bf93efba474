// Package steprecords persists the payload submitted at each wizard step, one
// table per record step, keyed by session id.
package steprecords

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/praxis-booking/internal/wizard"
)

var (
	// ErrNotFound is returned when a step has no record for the session.
	ErrNotFound = errors.New("steprecords: not found")

	// ErrInvalidOwnership is returned when a record's ownership does not match
	// the session it is written for.
	ErrInvalidOwnership = errors.New("invalid ownership for step data")
)

// Owner is the ownership stamped on every record. It must equal the session's.
type Owner struct {
	SessionID  uuid.UUID
	UserID     string
	PracticeID uuid.UUID
	RuleSetID  uuid.UUID
}

// Record is one step's persisted payload for one session.
type Record struct {
	Step wizard.Step
	Owner
	Payload      wizard.Fields
	CreatedAt    time.Time
	LastModified time.Time
}

// Clone returns a copy with its own payload map.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Payload = r.Payload.Clone()
	return &cp
}

// CheckOwnership verifies rec may be written on behalf of session owner.
func CheckOwnership(owner Owner, rec Record) error {
	if owner.SessionID == uuid.Nil || rec.Owner != owner {
		return ErrInvalidOwnership
	}
	return nil
}

// Validate runs the ownership and payload allow-list checks shared by every
// store implementation.
func Validate(owner Owner, rec Record) error {
	if err := CheckOwnership(owner, rec); err != nil {
		return err
	}
	if err := wizard.CheckRecord(rec.Step, rec.Payload); err != nil {
		return err
	}
	return nil
}

const tablePrefix = "booking_step_"

// TableName returns the table holding records for step. Only steps that own a
// record have a table.
func TableName(step wizard.Step) (string, error) {
	owner, ok := wizard.RecordStepFor(step)
	if !ok || owner != step {
		return "", fmt.Errorf("steprecords: step %s owns no record table", step)
	}
	return tablePrefix + strings.ReplaceAll(string(step), "-", "_"), nil
}

// Tables lists every record table in wizard order.
func Tables() []string {
	steps := wizard.RecordSteps()
	out := make([]string, 0, len(steps))
	for _, step := range steps {
		name, _ := TableName(step)
		out = append(out, name)
	}
	return out
}
