package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository stores appointments scoped by doctor. Create and Update report
// a second scheduled appointment in the same slot as apperr.ErrSlotConflict.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error)
	// FindScheduledAt returns the scheduled appointment occupying a slot,
	// ignoring excludeID, or apperr.ErrNotFound.
	FindScheduledAt(ctx context.Context, doctorID uuid.UUID, date time.Time, hhmm string, excludeID uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, doctorID, id uuid.UUID) error
	List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Appointment, int, error)
	ListBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error)
	Stats(ctx context.Context, doctorID uuid.UUID, today time.Time) (*Stats, error)
}
