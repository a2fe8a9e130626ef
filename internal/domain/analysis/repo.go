package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository stores analyses scoped by doctor.
type Repository interface {
	Create(ctx context.Context, a *Analysis) error
	GetByID(ctx context.Context, doctorID, id uuid.UUID) (*Analysis, error)
	// Update writes a only while its stored status is still fromStatus and
	// returns apperr.ErrInvalidState otherwise.
	Update(ctx context.Context, a *Analysis, fromStatus string) error
	Delete(ctx context.Context, doctorID, id uuid.UUID) error
	List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Analysis, int, error)
	Stats(ctx context.Context, doctorID uuid.UUID, monthStart time.Time) (*Stats, error)
	// ListStalePending returns pending analyses of every doctor uploaded
	// before the cutoff, oldest first.
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*Analysis, error)
}
