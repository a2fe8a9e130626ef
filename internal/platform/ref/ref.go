// Package ref holds the summaries that domains embed when they populate a
// reference to a patient or a doctor.
package ref

import "github.com/google/uuid"

type PatientSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone string    `json:"phone,omitempty"`
	Age   int       `json:"age,omitempty"`
}

type DoctorSummary struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email,omitempty"`
	Specialty string    `json:"specialty,omitempty"`
	License   string    `json:"license_number,omitempty"`
}
