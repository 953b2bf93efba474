package wizard

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// State is the session state at one step. Each step has exactly one variant and
// each variant's JSON fields are exactly the registry's state allow-list for its
// step. The interface is sealed by the unexported check method.
type State interface {
	Step() Step
	check() error
}

// Insured is carried from the insurance-type selection onwards.
type Insured struct {
	LocationID    uuid.UUID     `json:"locationId"`
	IsOver40      bool          `json:"isOver40"`
	InsuranceType InsuranceType `json:"insuranceType"`
}

func (i Insured) check(step Step, want InsuranceType) error {
	if i.LocationID == uuid.Nil {
		return invariant(step, FieldLocationID, "empty id")
	}
	if !i.InsuranceType.Valid() {
		return invariant(step, FieldInsuranceType, "unknown insurance type %q", i.InsuranceType)
	}
	if want != "" && i.InsuranceType != want {
		return invariant(step, FieldInsuranceType, "step requires %s, state has %s", want, i.InsuranceType)
	}
	return nil
}

// PKVDetails are the optional private insurance details.
type PKVDetails struct {
	PkvTariff        *string           `json:"pkvTariff,omitempty"`
	PkvInsuranceType *PKVInsuranceType `json:"pkvInsuranceType,omitempty"`
	BeihilfeStatus   *BeihilfeStatus   `json:"beihilfeStatus,omitempty"`
}

func (p PKVDetails) empty() bool {
	return p.PkvTariff == nil && p.PkvInsuranceType == nil && p.BeihilfeStatus == nil
}

func (p PKVDetails) check(step Step) error {
	if p.PkvInsuranceType != nil && !p.PkvInsuranceType.Valid() {
		return invariant(step, FieldPkvInsuranceType, "unknown value %q", *p.PkvInsuranceType)
	}
	if p.BeihilfeStatus != nil && !p.BeihilfeStatus.Valid() {
		return invariant(step, FieldBeihilfeStatus, "unknown value %q", *p.BeihilfeStatus)
	}
	return nil
}

// Coverage is the insurance data carried from the appointment-type step on. The
// GKV branch carries hzvStatus, the PKV branch pvsConsent and PKV details.
type Coverage struct {
	Insured
	HzvStatus  *HzvStatus `json:"hzvStatus,omitempty"`
	PvsConsent *bool      `json:"pvsConsent,omitempty"`
	PKVDetails
}

func (c Coverage) check(step Step) error {
	if err := c.Insured.check(step, ""); err != nil {
		return err
	}
	switch c.InsuranceType {
	case InsuranceGKV:
		if c.HzvStatus == nil || !c.HzvStatus.Valid() {
			return invariant(step, FieldHzvStatus, "required on the gkv branch")
		}
		if c.PvsConsent != nil {
			return invariant(step, FieldPvsConsent, "not allowed on the gkv branch")
		}
		if !c.PKVDetails.empty() {
			return invariant(step, FieldPkvTariff, "pkv details not allowed on the gkv branch")
		}
	case InsurancePKV:
		if c.HzvStatus != nil {
			return invariant(step, FieldHzvStatus, "not allowed on the pkv branch")
		}
		if c.PvsConsent == nil || !*c.PvsConsent {
			return invariant(step, FieldPvsConsent, "required on the pkv branch")
		}
		return c.PKVDetails.check(step)
	}
	return nil
}

// PatientDetails is what the patient entered at a data-input step.
type PatientDetails struct {
	PersonalData     PersonalData      `json:"personalData"`
	MedicalHistory   *string           `json:"medicalHistory,omitempty"`
	EmergencyContact *EmergencyContact `json:"emergencyContact,omitempty"`
}

func (p PatientDetails) check(step Step) error {
	return checkPersonal(step, p.PersonalData)
}

func checkPersonal(step Step, p PersonalData) error {
	if p.FirstName == "" || p.LastName == "" || p.DateOfBirth == "" {
		return invariant(step, FieldPersonalData, "incomplete personal data")
	}
	return nil
}

// Booking is carried by the confirmation steps.
type Booking struct {
	SelectedSlot  Slot      `json:"selectedSlot"`
	AppointmentID uuid.UUID `json:"appointmentId"`
}

func (b Booking) check(step Step) error {
	if b.SelectedSlot.Validate() != nil {
		return invariant(step, FieldSelectedSlot, "incomplete slot")
	}
	if b.AppointmentID == uuid.Nil {
		return invariant(step, FieldAppointmentID, "empty id")
	}
	return nil
}

func checkID(step Step, field Field, id uuid.UUID) error {
	if id == uuid.Nil {
		return invariant(step, field, "empty id")
	}
	return nil
}

type PrivacyState struct{}

func (PrivacyState) Step() Step   { return StepPrivacy }
func (PrivacyState) check() error { return nil }

type LocationState struct{}

func (LocationState) Step() Step   { return StepLocation }
func (LocationState) check() error { return nil }

type PatientStatusState struct {
	LocationID uuid.UUID `json:"locationId"`
}

func (PatientStatusState) Step() Step { return StepPatientStatus }
func (s PatientStatusState) check() error {
	return checkID(s.Step(), FieldLocationID, s.LocationID)
}

type NewAgeCheckState struct {
	LocationID uuid.UUID `json:"locationId"`
}

func (NewAgeCheckState) Step() Step { return StepNewAgeCheck }
func (s NewAgeCheckState) check() error {
	return checkID(s.Step(), FieldLocationID, s.LocationID)
}

type NewInsuranceTypeState struct {
	LocationID uuid.UUID `json:"locationId"`
	IsOver40   bool      `json:"isOver40"`
}

func (NewInsuranceTypeState) Step() Step { return StepNewInsuranceType }
func (s NewInsuranceTypeState) check() error {
	return checkID(s.Step(), FieldLocationID, s.LocationID)
}

type NewGKVDetailsState struct {
	Insured
}

func (NewGKVDetailsState) Step() Step { return StepNewGKVDetails }
func (s NewGKVDetailsState) check() error {
	return s.Insured.check(s.Step(), InsuranceGKV)
}

type NewGKVDetailsCompleteState struct {
	Insured
	HzvStatus HzvStatus `json:"hzvStatus"`
}

func (NewGKVDetailsCompleteState) Step() Step { return StepNewGKVDetailsComplete }
func (s NewGKVDetailsCompleteState) check() error {
	if err := s.Insured.check(s.Step(), InsuranceGKV); err != nil {
		return err
	}
	if !s.HzvStatus.Valid() {
		return invariant(s.Step(), FieldHzvStatus, "unknown value %q", s.HzvStatus)
	}
	return nil
}

type NewPVSConsentState struct {
	Insured
}

func (NewPVSConsentState) Step() Step { return StepNewPVSConsent }
func (s NewPVSConsentState) check() error {
	return s.Insured.check(s.Step(), InsurancePKV)
}

type NewPKVDetailsState struct {
	Insured
	PvsConsent bool `json:"pvsConsent"`
}

func (NewPKVDetailsState) Step() Step { return StepNewPKVDetails }
func (s NewPKVDetailsState) check() error {
	if err := s.Insured.check(s.Step(), InsurancePKV); err != nil {
		return err
	}
	if !s.PvsConsent {
		return invariant(s.Step(), FieldPvsConsent, "consent not given")
	}
	return nil
}

type NewPKVDetailsCompleteState struct {
	Insured
	PvsConsent bool `json:"pvsConsent"`
	PKVDetails
}

func (NewPKVDetailsCompleteState) Step() Step { return StepNewPKVDetailsComplete }
func (s NewPKVDetailsCompleteState) check() error {
	if err := s.Insured.check(s.Step(), InsurancePKV); err != nil {
		return err
	}
	if !s.PvsConsent {
		return invariant(s.Step(), FieldPvsConsent, "consent not given")
	}
	return s.PKVDetails.check(s.Step())
}

type NewAppointmentTypeState struct {
	Coverage
}

func (NewAppointmentTypeState) Step() Step { return StepNewAppointmentType }
func (s NewAppointmentTypeState) check() error {
	return s.Coverage.check(s.Step())
}

type NewDataInputState struct {
	Coverage
	AppointmentTypeID uuid.UUID `json:"appointmentTypeId"`
}

func (NewDataInputState) Step() Step { return StepNewDataInput }
func (s NewDataInputState) check() error {
	if err := s.Coverage.check(s.Step()); err != nil {
		return err
	}
	return checkID(s.Step(), FieldAppointmentTypeID, s.AppointmentTypeID)
}

type NewDataInputCompleteState struct {
	Coverage
	AppointmentTypeID uuid.UUID `json:"appointmentTypeId"`
	PatientDetails
}

func (NewDataInputCompleteState) Step() Step { return StepNewDataInputComplete }
func (s NewDataInputCompleteState) check() error {
	return checkNewDetailed(s.Step(), s.Coverage, s.AppointmentTypeID, s.PatientDetails)
}

type NewCalendarSelectionState struct {
	Coverage
	AppointmentTypeID uuid.UUID `json:"appointmentTypeId"`
	PatientDetails
}

func (NewCalendarSelectionState) Step() Step { return StepNewCalendarSelection }
func (s NewCalendarSelectionState) check() error {
	return checkNewDetailed(s.Step(), s.Coverage, s.AppointmentTypeID, s.PatientDetails)
}

type NewConfirmationState struct {
	Coverage
	AppointmentTypeID uuid.UUID `json:"appointmentTypeId"`
	PatientDetails
	Booking
}

func (NewConfirmationState) Step() Step { return StepNewConfirmation }
func (s NewConfirmationState) check() error {
	if err := checkNewDetailed(s.Step(), s.Coverage, s.AppointmentTypeID, s.PatientDetails); err != nil {
		return err
	}
	return s.Booking.check(s.Step())
}

func checkNewDetailed(step Step, c Coverage, appointmentTypeID uuid.UUID, d PatientDetails) error {
	if err := c.check(step); err != nil {
		return err
	}
	if err := checkID(step, FieldAppointmentTypeID, appointmentTypeID); err != nil {
		return err
	}
	return d.check(step)
}

type ExistingDoctorSelectionState struct {
	LocationID uuid.UUID `json:"locationId"`
}

func (ExistingDoctorSelectionState) Step() Step { return StepExistingDoctorSelection }
func (s ExistingDoctorSelectionState) check() error {
	return checkID(s.Step(), FieldLocationID, s.LocationID)
}

// ExistingPatient is carried on the existing-patient branch once a doctor is chosen.
type ExistingPatient struct {
	LocationID     uuid.UUID `json:"locationId"`
	PractitionerID uuid.UUID `json:"practitionerId"`
}

func (e ExistingPatient) check(step Step) error {
	if err := checkID(step, FieldLocationID, e.LocationID); err != nil {
		return err
	}
	return checkID(step, FieldPractitionerID, e.PractitionerID)
}

type ExistingAppointmentTypeState struct {
	ExistingPatient
}

func (ExistingAppointmentTypeState) Step() Step { return StepExistingAppointmentType }
func (s ExistingAppointmentTypeState) check() error {
	return s.ExistingPatient.check(s.Step())
}

type ExistingDataInputState struct {
	ExistingPatient
	AppointmentTypeID uuid.UUID `json:"appointmentTypeId"`
}

func (ExistingDataInputState) Step() Step { return StepExistingDataInput }
func (s ExistingDataInputState) check() error {
	if err := s.ExistingPatient.check(s.Step()); err != nil {
		return err
	}
	return checkID(s.Step(), FieldAppointmentTypeID, s.AppointmentTypeID)
}

type ExistingDataInputCompleteState struct {
	ExistingPatient
	AppointmentTypeID uuid.UUID    `json:"appointmentTypeId"`
	PersonalData      PersonalData `json:"personalData"`
}

func (ExistingDataInputCompleteState) Step() Step { return StepExistingDataInputComplete }
func (s ExistingDataInputCompleteState) check() error {
	return checkExistingDetailed(s.Step(), s.ExistingPatient, s.AppointmentTypeID, s.PersonalData)
}

type ExistingCalendarSelectionState struct {
	ExistingPatient
	AppointmentTypeID uuid.UUID    `json:"appointmentTypeId"`
	PersonalData      PersonalData `json:"personalData"`
}

func (ExistingCalendarSelectionState) Step() Step { return StepExistingCalendarSelection }
func (s ExistingCalendarSelectionState) check() error {
	return checkExistingDetailed(s.Step(), s.ExistingPatient, s.AppointmentTypeID, s.PersonalData)
}

type ExistingConfirmationState struct {
	ExistingPatient
	AppointmentTypeID uuid.UUID    `json:"appointmentTypeId"`
	PersonalData      PersonalData `json:"personalData"`
	Booking
}

func (ExistingConfirmationState) Step() Step { return StepExistingConfirmation }
func (s ExistingConfirmationState) check() error {
	if err := checkExistingDetailed(s.Step(), s.ExistingPatient, s.AppointmentTypeID, s.PersonalData); err != nil {
		return err
	}
	return s.Booking.check(s.Step())
}

func checkExistingDetailed(step Step, e ExistingPatient, appointmentTypeID uuid.UUID, p PersonalData) error {
	if err := e.check(step); err != nil {
		return err
	}
	if err := checkID(step, FieldAppointmentTypeID, appointmentTypeID); err != nil {
		return err
	}
	return checkPersonal(step, p)
}

type decoder func(raw []byte) (State, error)

func decodeAs[T State](raw []byte) (State, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

var decoders = map[Step]decoder{
	StepPrivacy:                   decodeAs[PrivacyState],
	StepLocation:                  decodeAs[LocationState],
	StepPatientStatus:             decodeAs[PatientStatusState],
	StepNewAgeCheck:               decodeAs[NewAgeCheckState],
	StepNewInsuranceType:          decodeAs[NewInsuranceTypeState],
	StepNewGKVDetails:             decodeAs[NewGKVDetailsState],
	StepNewGKVDetailsComplete:     decodeAs[NewGKVDetailsCompleteState],
	StepNewPVSConsent:             decodeAs[NewPVSConsentState],
	StepNewPKVDetails:             decodeAs[NewPKVDetailsState],
	StepNewPKVDetailsComplete:     decodeAs[NewPKVDetailsCompleteState],
	StepNewAppointmentType:        decodeAs[NewAppointmentTypeState],
	StepNewDataInput:              decodeAs[NewDataInputState],
	StepNewDataInputComplete:      decodeAs[NewDataInputCompleteState],
	StepNewCalendarSelection:      decodeAs[NewCalendarSelectionState],
	StepNewConfirmation:           decodeAs[NewConfirmationState],
	StepExistingDoctorSelection:   decodeAs[ExistingDoctorSelectionState],
	StepExistingAppointmentType:   decodeAs[ExistingAppointmentTypeState],
	StepExistingDataInput:         decodeAs[ExistingDataInputState],
	StepExistingDataInputComplete: decodeAs[ExistingDataInputCompleteState],
	StepExistingCalendarSelection: decodeAs[ExistingCalendarSelectionState],
	StepExistingConfirmation:      decodeAs[ExistingConfirmationState],
}

// Encode returns the untyped fields of s, asserting they match the allow-list.
func Encode(s State) (Fields, error) {
	if s == nil {
		return nil, invariant("", "", "nil state")
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("wizard: encode %s: %w", s.Step(), err)
	}
	fields := Fields{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("wizard: encode %s: %w", s.Step(), err)
	}
	if err := CheckState(s.Step(), fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Decode builds the typed state for step from fields. Any mismatch with the
// allow-list or the variant's own rules is an invariant violation.
func Decode(step Step, fields Fields) (State, error) {
	if err := CheckState(step, fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = Fields{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("wizard: decode %s: %w", step, err)
	}
	s, err := decoders[step](raw)
	if err != nil {
		return nil, invariant(step, "", "malformed state: %v", err)
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate runs the allow-list and variant checks on s.
func Validate(s State) error {
	_, err := Encode(s)
	return err
}

// Envelope is the JSON form of a state: its fields plus the "step" tag.
type Envelope struct {
	State State
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	fields, err := Encode(e.State)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(fields)+1)
	for k, v := range fields {
		out[string(k)] = v
	}
	tag, _ := json.Marshal(e.State.Step())
	out[stepKey] = tag
	return json.Marshal(out)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("wizard: decode envelope: %w", err)
	}
	var name string
	if err := json.Unmarshal(raw[stepKey], &name); err != nil {
		return invariant("", "", "state has no step tag")
	}
	step, err := ParseStep(name)
	if err != nil {
		return invariant(Step(name), "", "unknown step")
	}
	delete(raw, stepKey)
	fields := make(Fields, len(raw))
	for k, v := range raw {
		fields[Field(k)] = v
	}
	s, err := Decode(step, fields)
	if err != nil {
		return err
	}
	e.State = s
	return nil
}

// MarshalState encodes s with its step tag.
func MarshalState(s State) ([]byte, error) {
	return json.Marshal(Envelope{State: s})
}

// UnmarshalState decodes a tagged state.
func UnmarshalState(data []byte) (State, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e.State, nil
}

func init() {
	for _, step := range allSteps {
		if _, ok := decoders[step]; !ok {
			panic(fmt.Sprintf("wizard: step %s has no state decoder", step))
		}
	}
}
