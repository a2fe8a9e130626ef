package account

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/db"
)

const emailIndex = "doctors_email"

const doctorCols = `id, email, password_hash, full_name, specialty, license_number, phone, role, created_at, updated_at`

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &doctorRepoPG{pool: pool} }

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Email, &d.PasswordHash, &d.FullName, &d.Specialty, &d.License,
		&d.Phone, &d.Role, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("doctor not found")
		}
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO doctors (`+doctorCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		d.ID, d.Email, d.PasswordHash, d.FullName, d.Specialty, d.License, d.Phone, d.Role,
		d.CreatedAt, d.UpdatedAt)
	if db.IsUniqueViolation(err, emailIndex) {
		return apperr.Uniqueness("an account with this email already exists")
	}
	return err
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
}

func (r *doctorRepoPG) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	return scanDoctor(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM doctors WHERE lower(email) = lower($1)`, email))
}
