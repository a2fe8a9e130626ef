package prescription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/db"
)

const numberConstraint = "prescriptions_number"

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &prescriptionRepoPG{pool: pool} }

const rxCols = `rx.id, rx.doctor_id, rx.patient_id, rx.prescription_number, rx.medications, rx.status,
	rx.valid_until, rx.filled_date, rx.pharmacy, rx.notes, rx.pharmacist_notes, rx.created_at, rx.updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.DoctorID, &p.PatientID, &p.Number, &p.Medications, &p.Status,
		&p.ValidUntil, &p.FilledDate, &p.Pharmacy, &p.Notes, &p.PharmacistNotes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("prescription not found")
		}
		return nil, err
	}
	if p.Medications == nil {
		p.Medications = []Medication{}
	}
	return &p, nil
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO prescriptions (id, doctor_id, patient_id, prescription_number, medications, status,
			valid_until, filled_date, pharmacy, notes, pharmacist_notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.DoctorID, p.PatientID, p.Number, p.Medications, p.Status,
		p.ValidUntil, p.FilledDate, p.Pharmacy, p.Notes, p.PharmacistNotes, p.CreatedAt, p.UpdatedAt)
	if db.IsUniqueViolation(err, numberConstraint) {
		return apperr.Wrap(apperr.ErrUniqueness, err, "prescription number already exists")
	}
	return err
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, doctorID, id uuid.UUID) (*Prescription, error) {
	return scanPrescription(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+rxCols+` FROM prescriptions rx WHERE rx.id = $1 AND rx.doctor_id = $2`, id, doctorID))
}

// Update never rewrites prescription_number.
func (r *prescriptionRepoPG) Update(ctx context.Context, p *Prescription, fromStatus string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE prescriptions SET medications=$4, status=$5, valid_until=$6, filled_date=$7,
			pharmacy=$8, notes=$9, pharmacist_notes=$10, updated_at=$11
		WHERE id = $1 AND doctor_id = $2 AND status = $3`,
		p.ID, p.DoctorID, fromStatus, p.Medications, p.Status, p.ValidUntil, p.FilledDate,
		p.Pharmacy, p.Notes, p.PharmacistNotes, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.InvalidState("prescription changed concurrently")
	}
	return nil
}

func (r *prescriptionRepoPG) MarkExpired(ctx context.Context, doctorID, id uuid.UUID, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE prescriptions SET status = 'expired', updated_at = $3
		WHERE id = $1 AND doctor_id = $2 AND status IN ('pending', 'sent')`, id, doctorID, at)
	return err
}

func (r *prescriptionRepoPG) DeletePending(ctx context.Context, doctorID, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM prescriptions WHERE id = $1 AND doctor_id = $2 AND status = 'pending'`, id, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("prescription not found")
	}
	return nil
}

func (r *prescriptionRepoPG) List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Prescription, int, error) {
	from := ` FROM prescriptions rx LEFT JOIN patients pt ON pt.id = rx.patient_id`
	where := ` WHERE rx.doctor_id = $1`
	args := []interface{}{doctorID}
	idx := 2

	if filter.Status != "" {
		where += fmt.Sprintf(` AND rx.status = $%d`, idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.PatientID != nil {
		where += fmt.Sprintf(` AND rx.patient_id = $%d`, idx)
		args = append(args, *filter.PatientID)
		idx++
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where += fmt.Sprintf(` AND (pt.name ILIKE $%d OR EXISTS (
			SELECT 1 FROM jsonb_array_elements(rx.medications) m WHERE m->>'name' ILIKE $%d))`, idx, idx)
		args = append(args, db.ContainsPattern(s))
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + rxCols + from + where +
		fmt.Sprintf(` ORDER BY rx.created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *prescriptionRepoPG) Stats(ctx context.Context, doctorID uuid.UUID, monthStart time.Time) (*Stats, error) {
	conn := db.Conn(ctx, r.pool)
	s := Stats{ByStatus: []CountByKey{}}

	err := conn.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= $2),
			COUNT(*) FILTER (WHERE status IN ('pending', 'sent')),
			COUNT(*) FILTER (WHERE status = 'expired')
		FROM prescriptions WHERE doctor_id = $1`, doctorID, monthStart).
		Scan(&s.TotalPrescriptions, &s.ThisMonthPrescriptions, &s.ActivePrescriptions, &s.ExpiredPrescriptions)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx,
		`SELECT status, COUNT(*) FROM prescriptions WHERE doctor_id = $1 GROUP BY status ORDER BY status`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c CountByKey
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, err
		}
		s.ByStatus = append(s.ByStatus, c)
	}
	return &s, rows.Err()
}
