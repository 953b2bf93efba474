package slots

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

const StatusAvailable = "available"

// PatientContext is what the slot engine's rules may branch on.
type PatientContext struct {
	PatientStatus    string     `json:"patientStatus"`
	InsuranceType    string     `json:"insuranceType,omitempty"`
	IsOver40         *bool      `json:"isOver40,omitempty"`
	HzvStatus        string     `json:"hzvStatus,omitempty"`
	PkvInsuranceType string     `json:"pkvInsuranceType,omitempty"`
	BeihilfeStatus   string     `json:"beihilfeStatus,omitempty"`
	DateOfBirth      string     `json:"dateOfBirth,omitempty"`
	PractitionerID   *uuid.UUID `json:"practitionerId,omitempty"`
}

// Query asks for candidate slots of one appointment type in [From, To).
type Query struct {
	PracticeID        uuid.UUID      `json:"practiceId"`
	RuleSetID         uuid.UUID      `json:"ruleSetId"`
	LocationID        uuid.UUID      `json:"locationId"`
	AppointmentTypeID uuid.UUID      `json:"appointmentTypeId"`
	From              time.Time      `json:"from"`
	To                time.Time      `json:"to"`
	Patient           PatientContext `json:"patient"`
}

// Candidate is one slot as reported by the engine.
type Candidate struct {
	PractitionerID uuid.UUID `json:"practitionerId"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Status         string    `json:"status"`
}

// Finder is the slot-availability engine.
type Finder interface {
	Find(ctx context.Context, q Query) ([]Candidate, error)
}

// Available keeps the available candidates, ordered by start then practitioner.
func Available(cands []Candidate) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Status == StatusAvailable {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].PractitionerID.String() < out[j].PractitionerID.String()
	})
	return out
}

// Offers reports whether cands holds an available slot matching exactly.
func Offers(cands []Candidate, practitionerID uuid.UUID, start, end time.Time) bool {
	for _, c := range cands {
		if c.Status == StatusAvailable && c.PractitionerID == practitionerID && c.Start.Equal(start) && c.End.Equal(end) {
			return true
		}
	}
	return false
}

// Static serves a fixed candidate list. Used by local runs without a slot
// engine.
type Static struct {
	Candidates []Candidate
}

func (s *Static) Find(ctx context.Context, q Query) ([]Candidate, error) {
	var out []Candidate
	for _, c := range s.Candidates {
		if c.Start.Before(q.From) || !c.Start.Before(q.To) {
			continue
		}
		if q.Patient.PractitionerID != nil && c.PractitionerID != *q.Patient.PractitionerID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
