// Package wizard defines the booking wizard's steps, the typed state carried at
// each step, the field allow-lists per step and the backward navigation graph.
//
// Everything in this package is pure: persistence and orchestration live in
// internal/booking and the store packages.
package wizard

import "fmt"

// Step names a stage of the booking wizard. It tags both the session state
// variant and the per-step record table.
type Step string

const (
	StepPrivacy       Step = "privacy"
	StepLocation      Step = "location"
	StepPatientStatus Step = "patient-status"

	StepNewAgeCheck           Step = "new-age-check"
	StepNewInsuranceType      Step = "new-insurance-type"
	StepNewGKVDetails         Step = "new-gkv-details"
	StepNewGKVDetailsComplete Step = "new-gkv-details-complete"
	StepNewPVSConsent         Step = "new-pvs-consent"
	StepNewPKVDetails         Step = "new-pkv-details"
	StepNewPKVDetailsComplete Step = "new-pkv-details-complete"
	StepNewAppointmentType    Step = "new-appointment-type"
	StepNewDataInput          Step = "new-data-input"
	StepNewDataInputComplete  Step = "new-data-input-complete"
	StepNewCalendarSelection  Step = "new-calendar-selection"
	StepNewConfirmation       Step = "new-confirmation"

	StepExistingDoctorSelection   Step = "existing-doctor-selection"
	StepExistingAppointmentType   Step = "existing-appointment-type"
	StepExistingDataInput         Step = "existing-data-input"
	StepExistingDataInputComplete Step = "existing-data-input-complete"
	StepExistingCalendarSelection Step = "existing-calendar-selection"
	StepExistingConfirmation      Step = "existing-confirmation"
)

// allSteps lists every step in wizard order. The registry, the navigation graph
// and the state decoders are checked against it at init.
var allSteps = []Step{
	StepPrivacy,
	StepLocation,
	StepPatientStatus,
	StepNewAgeCheck,
	StepNewInsuranceType,
	StepNewGKVDetails,
	StepNewGKVDetailsComplete,
	StepNewPVSConsent,
	StepNewPKVDetails,
	StepNewPKVDetailsComplete,
	StepNewAppointmentType,
	StepNewDataInput,
	StepNewDataInputComplete,
	StepNewCalendarSelection,
	StepNewConfirmation,
	StepExistingDoctorSelection,
	StepExistingAppointmentType,
	StepExistingDataInput,
	StepExistingDataInputComplete,
	StepExistingCalendarSelection,
	StepExistingConfirmation,
}

// Steps returns every step name in wizard order.
func Steps() []Step {
	out := make([]Step, len(allSteps))
	copy(out, allSteps)
	return out
}

// Valid reports whether s is one of the fixed step names.
func (s Step) Valid() bool {
	_, ok := registry[s]
	return ok
}

func (s Step) String() string { return string(s) }

// ParseStep converts a raw step name into a Step.
func ParseStep(raw string) (Step, error) {
	s := Step(raw)
	if !s.Valid() {
		return "", fmt.Errorf("wizard: unknown step %q", raw)
	}
	return s, nil
}

// InsuranceType is the statutory (gkv) or private (pkv) health insurance kind.
type InsuranceType string

const (
	InsuranceGKV InsuranceType = "gkv"
	InsurancePKV InsuranceType = "pkv"
)

func (t InsuranceType) Valid() bool {
	return t == InsuranceGKV || t == InsurancePKV
}

// PatientStatus selects the new-patient or existing-patient branch.
type PatientStatus string

const (
	PatientNew      PatientStatus = "new"
	PatientExisting PatientStatus = "existing"
)

func (p PatientStatus) Valid() bool {
	return p == PatientNew || p == PatientExisting
}
