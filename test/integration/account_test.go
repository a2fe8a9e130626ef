//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roudayn-kouka/App4Doctors/internal/domain/account"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
)

func TestDoctorRepo_EmailIsUniqueIgnoringCase(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := account.NewRepoPG(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	d := &account.Doctor{
		ID: uuid.New(), Email: "amina@example.com", PasswordHash: "hash", FullName: "Dr. Amina Benali",
		Role: "doctor", CreatedAt: now, UpdatedAt: now,
	}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := *d
	dup.ID = uuid.New()
	dup.Email = "AMINA@example.com"
	if err := repo.Create(ctx, &dup); !errors.Is(err, apperr.ErrUniqueness) {
		t.Fatalf("expected uniqueness error, got %v", err)
	}

	got, err := repo.GetByEmail(ctx, "Amina@Example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.ID != d.ID || got.PasswordHash != "hash" || !got.CreatedAt.Equal(now) {
		t.Errorf("unexpected doctor %+v", got)
	}

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
