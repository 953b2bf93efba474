package sessions

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/praxis-booking/internal/wizard"
)

// ErrNotFound is returned when no session row matches.
var ErrNotFound = errors.New("sessions: not found")

// Scope identifies the (user, practice, rule set) triple a session belongs to.
// A user has at most one live session per scope.
type Scope struct {
	UserID     string
	PracticeID uuid.UUID
	RuleSetID  uuid.UUID
}

// Session is one patient's walk through the booking wizard.
type Session struct {
	ID           uuid.UUID
	PracticeID   uuid.UUID
	RuleSetID    uuid.UUID
	UserID       string
	State        wizard.State
	CreatedAt    time.Time
	LastModified time.Time
	ExpiresAt    time.Time
}

// Scope returns the ownership scope of the session.
func (s *Session) Scope() Scope {
	return Scope{UserID: s.UserID, PracticeID: s.PracticeID, RuleSetID: s.RuleSetID}
}

// Step returns the current wizard step.
func (s *Session) Step() wizard.Step {
	if s.State == nil {
		return ""
	}
	return s.State.Step()
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// OwnedBy reports whether userID created the session.
func (s *Session) OwnedBy(userID string) bool {
	return userID != "" && s.UserID == userID
}

// Clone returns a copy. States are immutable values and are shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
