package wizard

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPersonalDataValidate(t *testing.T) {
	asOf := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		mutate  func(p *PersonalData)
		wantErr string
	}{
		{name: "valid", mutate: func(p *PersonalData) {}},
		{name: "no email", mutate: func(p *PersonalData) { p.Email = "" }},
		{name: "blank first name", mutate: func(p *PersonalData) { p.FirstName = "  " }, wantErr: "personalData.firstName"},
		{name: "long last name", mutate: func(p *PersonalData) { p.LastName = strings.Repeat("x", 101) }, wantErr: "personalData.lastName"},
		{name: "bad date", mutate: func(p *PersonalData) { p.DateOfBirth = "12.04.1979" }, wantErr: "personalData.dateOfBirth"},
		{name: "future date", mutate: func(p *PersonalData) { p.DateOfBirth = "2027-01-01" }, wantErr: "personalData.dateOfBirth"},
		{name: "bad phone", mutate: func(p *PersonalData) { p.Phone = "call me" }, wantErr: "personalData.phone"},
		{name: "bad email", mutate: func(p *PersonalData) { p.Email = "erika.example.org" }, wantErr: "personalData.email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPersonal()
			tt.mutate(&p)
			err := p.Validate(asOf)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidValue)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSlotValidate(t *testing.T) {
	s := testSlot()
	assert.NoError(t, s.Validate())

	backwards := s
	backwards.End = s.Start.Add(-time.Minute)
	assert.ErrorIs(t, backwards.Validate(), ErrInvalidValue)

	noDoctor := s
	noDoctor.PractitionerID = uuid.Nil
	assert.ErrorIs(t, noDoctor.Validate(), ErrInvalidValue)
}

func TestFreeTextBounds(t *testing.T) {
	assert.NoError(t, ValidatePKVTariff("standard"))
	assert.ErrorIs(t, ValidatePKVTariff(" "), ErrInvalidValue)
	assert.NoError(t, ValidateMedicalHistory("none"))
	assert.ErrorIs(t, ValidateMedicalHistory(strings.Repeat("a", 4001)), ErrInvalidValue)
	assert.ErrorIs(t, EmergencyContact{Name: "Max"}.Validate(), ErrInvalidValue)
}
