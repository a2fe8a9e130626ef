package account

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create returns apperr.ErrUniqueness when the email is taken.
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByEmail(ctx context.Context, email string) (*Doctor, error)
}
