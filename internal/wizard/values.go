package wizard

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// HzvStatus records whether a statutory patient is enrolled in GP-centred care.
type HzvStatus string

const (
	HzvEnrolled    HzvStatus = "enrolled"
	HzvNotEnrolled HzvStatus = "not-enrolled"
	HzvUnknown     HzvStatus = "unknown"
)

func (h HzvStatus) Valid() bool {
	switch h {
	case HzvEnrolled, HzvNotEnrolled, HzvUnknown:
		return true
	}
	return false
}

// PKVInsuranceType distinguishes full private cover from supplementary cover.
type PKVInsuranceType string

const (
	PKVFull          PKVInsuranceType = "full"
	PKVSupplementary PKVInsuranceType = "supplementary"
)

func (p PKVInsuranceType) Valid() bool {
	return p == PKVFull || p == PKVSupplementary
}

// BeihilfeStatus records civil-servant allowance eligibility.
type BeihilfeStatus string

const (
	BeihilfeEligible    BeihilfeStatus = "eligible"
	BeihilfeNotEligible BeihilfeStatus = "not-eligible"
)

func (b BeihilfeStatus) Valid() bool {
	return b == BeihilfeEligible || b == BeihilfeNotEligible
}

const (
	maxNameLen    = 100
	maxTariffLen  = 100
	maxHistoryLen = 4000
	dateLayout    = "2006-01-02"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()/-]{4,30}$`)

// PersonalData is the patient's contact details entered at the data-input step.
type PersonalData struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	Phone       string `json:"phone"`
	Email       string `json:"email,omitempty"`
}

// Validate checks the values a patient typed. asOf bounds the date of birth.
func (p PersonalData) Validate(asOf time.Time) error {
	if err := validateName("personalData.firstName", p.FirstName); err != nil {
		return err
	}
	if err := validateName("personalData.lastName", p.LastName); err != nil {
		return err
	}
	dob, err := time.Parse(dateLayout, p.DateOfBirth)
	if err != nil {
		return invalid("personalData.dateOfBirth", "expected YYYY-MM-DD")
	}
	if dob.After(asOf) {
		return invalid("personalData.dateOfBirth", "must not be in the future")
	}
	if !phonePattern.MatchString(strings.TrimSpace(p.Phone)) {
		return invalid("personalData.phone", "not a phone number")
	}
	if p.Email != "" && !strings.Contains(p.Email, "@") {
		return invalid("personalData.email", "not an email address")
	}
	return nil
}

func validateName(field, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return invalid(field, "required")
	}
	if utf8.RuneCountInString(v) > maxNameLen {
		return invalid(field, "too long")
	}
	return nil
}

// EmergencyContact is optional data entered alongside personal data.
type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
}

func (e EmergencyContact) Validate() error {
	if err := validateName("emergencyContact.name", e.Name); err != nil {
		return err
	}
	if !phonePattern.MatchString(strings.TrimSpace(e.Phone)) {
		return invalid("emergencyContact.phone", "not a phone number")
	}
	return nil
}

// ValidateMedicalHistory bounds the free-text medical history.
func ValidateMedicalHistory(v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid("medicalHistory", "must not be blank when given")
	}
	if utf8.RuneCountInString(v) > maxHistoryLen {
		return invalid("medicalHistory", "too long")
	}
	return nil
}

// ValidatePKVTariff bounds the free-text private tariff name.
func ValidatePKVTariff(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return invalid("pkvTariff", "must not be blank when given")
	}
	if utf8.RuneCountInString(v) > maxTariffLen {
		return invalid("pkvTariff", "too long")
	}
	return nil
}

// Slot is a calendar slot chosen from the slot engine's candidates.
type Slot struct {
	PractitionerID uuid.UUID `json:"practitionerId"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

func (s Slot) Validate() error {
	if s.PractitionerID == uuid.Nil {
		return invalid("selectedSlot.practitionerId", "required")
	}
	if s.Start.IsZero() || s.End.IsZero() {
		return invalid("selectedSlot", "start and end are required")
	}
	if !s.End.After(s.Start) {
		return invalid("selectedSlot", "end must be after start")
	}
	return nil
}
