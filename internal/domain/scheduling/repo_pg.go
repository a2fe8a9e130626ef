package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/db"
)

const slotIndex = "appointments_scheduled_slot"

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &appointmentRepoPG{pool: pool} }

const apptCols = `id, doctor_id, patient_id, date, time, duration, type, status, meet_link,
	notes, symptoms, diagnosis, treatment, follow_up_required, follow_up_date, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Date, &a.Time, &a.Duration, &a.Type, &a.Status,
		&a.MeetLink, &a.Notes, &a.Symptoms, &a.Diagnosis, &a.Treatment, &a.FollowUpRequired,
		&a.FollowUpDate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("appointment not found")
		}
		return nil, err
	}
	a.Date = DayOf(a.Date)
	return &a, nil
}

func slotErr(err error) error {
	if db.IsUniqueViolation(err, slotIndex) {
		return apperr.Wrap(apperr.ErrSlotConflict, err, "time slot already booked")
	}
	return err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, date, time, duration, type, status,
			meet_link, notes, symptoms, diagnosis, treatment, follow_up_required, follow_up_date,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		a.ID, a.DoctorID, a.PatientID, a.Date, a.Time, a.Duration, a.Type, a.Status,
		a.MeetLink, a.Notes, a.Symptoms, a.Diagnosis, a.Treatment, a.FollowUpRequired, a.FollowUpDate,
		a.CreatedAt, a.UpdatedAt)
	return slotErr(err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1 AND doctor_id = $2`, id, doctorID))
}

func (r *appointmentRepoPG) FindScheduledAt(ctx context.Context, doctorID uuid.UUID, date time.Time, hhmm string, excludeID uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1 AND date = $2 AND time = $3 AND status = 'scheduled' AND id <> $4
		LIMIT 1`, doctorID, date, hhmm, excludeID))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE appointments SET date=$3, time=$4, duration=$5, type=$6, status=$7, meet_link=$8,
			notes=$9, symptoms=$10, diagnosis=$11, treatment=$12, follow_up_required=$13,
			follow_up_date=$14, updated_at=$15
		WHERE id = $1 AND doctor_id = $2`,
		a.ID, a.DoctorID, a.Date, a.Time, a.Duration, a.Type, a.Status, a.MeetLink,
		a.Notes, a.Symptoms, a.Diagnosis, a.Treatment, a.FollowUpRequired, a.FollowUpDate, a.UpdatedAt)
	if err != nil {
		return slotErr(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment not found")
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM appointments WHERE id = $1 AND doctor_id = $2`, id, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment not found")
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE doctor_id = $1`
	args := []interface{}{doctorID}
	idx := 2

	if filter.Date != nil {
		where += fmt.Sprintf(` AND date = $%d`, idx)
		args = append(args, *filter.Date)
		idx++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.Type != "" {
		where += fmt.Sprintf(` AND type = $%d`, idx)
		args = append(args, filter.Type)
		idx++
	}
	if filter.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *filter.PatientID)
		idx++
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + ` FROM appointments` + where +
		fmt.Sprintf(` ORDER BY date ASC, time ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *appointmentRepoPG) ListBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	return r.query(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC, time ASC`, doctorID, from, to)
}

func (r *appointmentRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Stats(ctx context.Context, doctorID uuid.UUID, today time.Time) (*Stats, error) {
	conn := db.Conn(ctx, r.pool)
	s := Stats{ByStatus: []CountByKey{}, ByType: []CountByKey{}}

	err := conn.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE date = $2),
			COUNT(*),
			COUNT(*) FILTER (WHERE date >= $2 AND status = 'scheduled')
		FROM appointments WHERE doctor_id = $1`, doctorID, today).
		Scan(&s.TodayAppointments, &s.TotalAppointments, &s.UpcomingAppointments)
	if err != nil {
		return nil, err
	}

	for _, g := range []struct {
		col string
		dst *[]CountByKey
	}{{"status", &s.ByStatus}, {"type", &s.ByType}} {
		rows, err := conn.Query(ctx,
			`SELECT `+g.col+`, COUNT(*) FROM appointments WHERE doctor_id = $1 GROUP BY 1 ORDER BY 1`, doctorID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var c CountByKey
			if err := rows.Scan(&c.Key, &c.Count); err != nil {
				rows.Close()
				return nil, err
			}
			*g.dst = append(*g.dst, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return &s, nil
}
