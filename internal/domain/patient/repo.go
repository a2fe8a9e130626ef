package patient

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/ref"
)

// Repository stores patients. Every method is scoped to a doctor; reads only
// see active patients. Create and Update report a duplicate active email as
// apperr.ErrUniqueness.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, doctorID, id uuid.UUID) (*Patient, error)
	FindActiveByEmail(ctx context.Context, doctorID uuid.UUID, email string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	SetNextAppointment(ctx context.Context, doctorID, id uuid.UUID, at time.Time) error
	Deactivate(ctx context.Context, doctorID, id uuid.UUID) error
	List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Patient, int, error)
	Stats(ctx context.Context, doctorID uuid.UUID) (*Stats, error)
	Summaries(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ref.PatientSummary, error)
}

type VitalRepository interface {
	Append(ctx context.Context, v *VitalReading) error
	ListByPatient(ctx context.Context, doctorID, patientID uuid.UUID, limit int) ([]*VitalReading, error)
}

func summaryOf(p *Patient) ref.PatientSummary {
	return ref.PatientSummary{ID: p.ID, Name: p.Name, Email: p.Email, Phone: p.Phone, Age: p.Age}
}
