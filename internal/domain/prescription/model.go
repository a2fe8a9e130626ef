package prescription

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/ref"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFilled  = "filled"
	StatusExpired = "expired"
)

// DefaultValidity is how long a prescription stays valid when the doctor
// does not set valid_until.
const DefaultValidity = 30 * 24 * time.Hour

// transitions lists the statuses reachable from each status.
var transitions = map[string][]string{
	StatusPending: {StatusSent, StatusFilled, StatusExpired},
	StatusSent:    {StatusFilled, StatusExpired},
	StatusFilled:  {},
	StatusExpired: {},
}

type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions,omitempty"`
}

type Prescription struct {
	ID              uuid.UUID           `json:"id"`
	DoctorID        uuid.UUID           `json:"doctor_id"`
	PatientID       uuid.UUID           `json:"patient_id"`
	Patient         *ref.PatientSummary `json:"patient,omitempty"`
	Number          string              `json:"prescription_number"`
	Medications     []Medication        `json:"medications"`
	Status          string              `json:"status"`
	ValidUntil      time.Time           `json:"valid_until"`
	FilledDate      *time.Time          `json:"filled_date,omitempty"`
	Pharmacy        string              `json:"pharmacy,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	PharmacistNotes string              `json:"pharmacist_notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// IsExpired reports whether the validity window ended before now.
func (p *Prescription) IsExpired(now time.Time) bool {
	return p.ValidUntil.Before(now)
}

// CheckExpiration moves a lapsed prescription that was neither filled nor
// already expired to expired. It reports whether the status changed.
func (p *Prescription) CheckExpiration(now time.Time) bool {
	if !p.IsExpired(now) || p.Status == StatusFilled || p.Status == StatusExpired {
		return false
	}
	p.Status = StatusExpired
	p.UpdatedAt = now
	return true
}

// Transition moves p to status, stamping filled_date on the first fill.
// Writing the current status is a no-op.
func (p *Prescription) Transition(status string, now time.Time) error {
	if err := validateStatus(status); err != nil {
		return err
	}
	if status == p.Status {
		return nil
	}
	if !canTransition(p.Status, status) {
		return apperr.InvalidState("cannot change prescription status from %s to %s", p.Status, status)
	}
	p.Status = status
	if status == StatusFilled && p.FilledDate == nil {
		filled := now
		p.FilledDate = &filled
	}
	return nil
}

func canTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func validateStatus(s string) error {
	if _, ok := transitions[s]; !ok {
		return apperr.Validation("valid status required")
	}
	return nil
}

// normalizeMedications trims every field and requires at least one fully
// described medication.
func normalizeMedications(meds []Medication) ([]Medication, error) {
	if len(meds) == 0 {
		return nil, apperr.Validation("at least one medication is required")
	}
	out := make([]Medication, len(meds))
	for i, m := range meds {
		m = Medication{
			Name:         strings.TrimSpace(m.Name),
			Dosage:       strings.TrimSpace(m.Dosage),
			Frequency:    strings.TrimSpace(m.Frequency),
			Duration:     strings.TrimSpace(m.Duration),
			Instructions: strings.TrimSpace(m.Instructions),
		}
		switch {
		case m.Name == "":
			return nil, apperr.Validation("medication %d: name is required", i+1)
		case m.Dosage == "":
			return nil, apperr.Validation("medication %d: dosage is required", i+1)
		case m.Frequency == "":
			return nil, apperr.Validation("medication %d: frequency is required", i+1)
		case m.Duration == "":
			return nil, apperr.Validation("medication %d: duration is required", i+1)
		}
		out[i] = m
	}
	return out, nil
}

type IssueInput struct {
	PatientID   uuid.UUID    `json:"patient_id"`
	Medications []Medication `json:"medications"`
	Pharmacy    string       `json:"pharmacy"`
	Notes       string       `json:"notes"`
	ValidUntil  *time.Time   `json:"valid_until"`
}

// UpdateInput is a partial edit. Nil fields are left unchanged.
type UpdateInput struct {
	Medications     *[]Medication `json:"medications"`
	Status          *string       `json:"status"`
	Pharmacy        *string       `json:"pharmacy"`
	Notes           *string       `json:"notes"`
	PharmacistNotes *string       `json:"pharmacist_notes"`
	ValidUntil      *time.Time    `json:"valid_until"`
}

type ListFilter struct {
	Status    string
	PatientID *uuid.UUID
	// Search matches the patient name or any medication name.
	Search string
}

type CountByKey struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type Stats struct {
	TotalPrescriptions     int          `json:"total_prescriptions"`
	ThisMonthPrescriptions int          `json:"this_month_prescriptions"`
	ActivePrescriptions    int          `json:"active_prescriptions"`
	ExpiredPrescriptions   int          `json:"expired_prescriptions"`
	ByStatus               []CountByKey `json:"by_status"`
}
