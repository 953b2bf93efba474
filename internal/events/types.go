package events

import "time"

const TypeAppointmentBooked = "appointment.booked.v1"

// AppointmentBookedV1 is emitted when a session's terminal slot selection
// creates an appointment.
type AppointmentBookedV1 struct {
	AppointmentID     string    `json:"appointment_id"`
	SessionID         string    `json:"session_id"`
	PracticeID        string    `json:"practice_id"`
	RuleSetID         string    `json:"rule_set_id"`
	UserID            string    `json:"user_id"`
	LocationID        string    `json:"location_id"`
	AppointmentTypeID string    `json:"appointment_type_id"`
	PractitionerID    string    `json:"practitioner_id"`
	PatientStatus     string    `json:"patient_status"`
	InsuranceType     string    `json:"insurance_type,omitempty"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
	BookedAt          time.Time `json:"booked_at"`
}

func (AppointmentBookedV1) EventType() string { return TypeAppointmentBooked }
