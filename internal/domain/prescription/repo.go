package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository stores prescriptions scoped by doctor. Create reports a taken
// prescription number as apperr.ErrUniqueness.
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, doctorID, id uuid.UUID) (*Prescription, error)
	// Update writes p only while its stored status is still fromStatus and
	// returns apperr.ErrInvalidState otherwise.
	Update(ctx context.Context, p *Prescription, fromStatus string) error
	// MarkExpired sets status expired on a pending or sent prescription.
	MarkExpired(ctx context.Context, doctorID, id uuid.UUID, at time.Time) error
	// DeletePending removes the prescription only while it is pending and
	// returns apperr.ErrNotFound when no pending row matched.
	DeletePending(ctx context.Context, doctorID, id uuid.UUID) error
	List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Prescription, int, error)
	Stats(ctx context.Context, doctorID uuid.UUID, monthStart time.Time) (*Stats, error)
}
