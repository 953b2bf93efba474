// Package storage groups the booking repositories behind a unit of work so a
// wizard transition commits its session, step record, appointment and outbox
// writes together or not at all.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/praxis-booking/internal/appointments"
	"github.com/wolfman30/praxis-booking/internal/events"
	"github.com/wolfman30/praxis-booking/internal/sessions"
	"github.com/wolfman30/praxis-booking/internal/steprecords"
	"github.com/wolfman30/praxis-booking/internal/wizard"
)

// SessionRepo is implemented by *sessions.Store.
type SessionRepo interface {
	Insert(ctx context.Context, sess *sessions.Session) error
	Get(ctx context.Context, id uuid.UUID) (*sessions.Session, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*sessions.Session, error)
	FindActive(ctx context.Context, scope sessions.Scope, now time.Time) (*sessions.Session, error)
	UpdateState(ctx context.Context, id uuid.UUID, state wizard.State, now, expiresAt time.Time) error
	Touch(ctx context.Context, id uuid.UUID, now, expiresAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteExpiredForScope(ctx context.Context, scope sessions.Scope, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// StepRecordRepo is implemented by *steprecords.Store.
type StepRecordRepo interface {
	Upsert(ctx context.Context, owner steprecords.Owner, rec steprecords.Record, now time.Time) (*steprecords.Record, error)
	Get(ctx context.Context, step wizard.Step, sessionID uuid.UUID) (*steprecords.Record, error)
	PurgeOrphans(ctx context.Context) (int64, error)
}

// AppointmentRepo is implemented by *appointments.Repository.
type AppointmentRepo interface {
	Insert(ctx context.Context, a *appointments.Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
}

// OutboxRepo is implemented by *events.OutboxStore.
type OutboxRepo interface {
	Append(ctx context.Context, aggregate, correlationID string, evt events.CanonicalEvent, opts ...events.EnvelopeOption) (events.Envelope, error)
}

// Repos is the set of repositories bound to one unit of work.
type Repos struct {
	Sessions     SessionRepo
	Steps        StepRecordRepo
	Appointments AppointmentRepo
	Outbox       OutboxRepo
}

// Transactor runs fn inside a unit of work. If fn returns an error nothing it
// wrote is kept.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}
