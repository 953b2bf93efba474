// Package appointments stores the appointments created by completed booking
// sessions.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("appointments: not found")
	// ErrSlotTaken is returned when the practitioner already has an appointment
	// starting at the same time.
	ErrSlotTaken = errors.New("appointments: slot already booked")
)

const StatusBooked = "booked"

// Appointment is a booked slot with the patient data captured by the wizard.
type Appointment struct {
	ID                uuid.UUID
	SessionID         uuid.UUID
	PracticeID        uuid.UUID
	RuleSetID         uuid.UUID
	UserID            string
	LocationID        uuid.UUID
	AppointmentTypeID uuid.UUID
	PractitionerID    uuid.UUID
	PatientStatus     string
	InsuranceType     string
	FirstName         string
	LastName          string
	DateOfBirth       string
	Phone             string
	Email             string
	StartsAt          time.Time
	EndsAt            time.Time
	Status            string
	CreatedAt         time.Time
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides persistence helpers for appointments.
type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a booked appointment. The id and status are filled in when
// empty.
func (r *Repository) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusBooked
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointments (id, session_id, practice_id, rule_set_id, user_id, location_id,
			appointment_type_id, practitioner_id, patient_status, insurance_type,
			first_name, last_name, date_of_birth, phone, email, starts_at, ends_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13, $14, NULLIF($15, ''), $16, $17, $18, $19)`,
		a.ID, a.SessionID, a.PracticeID, a.RuleSetID, a.UserID, a.LocationID,
		a.AppointmentTypeID, a.PractitionerID, a.PatientStatus, a.InsuranceType,
		a.FirstName, a.LastName, a.DateOfBirth, a.Phone, a.Email, a.StartsAt, a.EndsAt, a.Status, a.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("appointments: insert: %w", ErrSlotTaken)
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// Get loads an appointment by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var a Appointment
	err := r.db.QueryRow(ctx, `
		SELECT id, session_id, practice_id, rule_set_id, user_id, location_id,
			appointment_type_id, practitioner_id, patient_status, COALESCE(insurance_type, ''),
			first_name, last_name, date_of_birth, phone, COALESCE(email, ''), starts_at, ends_at, status, created_at
		FROM appointments WHERE id = $1`, id,
	).Scan(&a.ID, &a.SessionID, &a.PracticeID, &a.RuleSetID, &a.UserID, &a.LocationID,
		&a.AppointmentTypeID, &a.PractitionerID, &a.PatientStatus, &a.InsuranceType,
		&a.FirstName, &a.LastName, &a.DateOfBirth, &a.Phone, &a.Email, &a.StartsAt, &a.EndsAt, &a.Status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return &a, nil
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
