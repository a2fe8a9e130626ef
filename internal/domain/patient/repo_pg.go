package patient

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
	"github.com/roudayn-kouka/App4Doctors/internal/platform/ref"
)

const patientEmailIndex = "patients_doctor_email_active"

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &patientRepoPG{pool: pool} }

const patientCols = `id, doctor_id, name, email, phone, age, gender, blood_type,
	conditions, allergies, blood_pressure, heart_rate, temperature, oxygen_saturation,
	vitals_updated_at, risk_score, last_visit, next_appointment, notes, is_active,
	created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.DoctorID, &p.Name, &p.Email, &p.Phone, &p.Age, &p.Gender, &p.BloodType,
		&p.Conditions, &p.Allergies, &p.Vitals.BloodPressure, &p.Vitals.HeartRate, &p.Vitals.Temperature,
		&p.Vitals.OxygenSaturation, &p.Vitals.LastUpdated, &p.RiskScore, &p.LastVisit, &p.NextAppointment,
		&p.Notes, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("patient not found")
		}
		return nil, err
	}
	return &p, nil
}

func translateWriteErr(err error) error {
	if db.IsUniqueViolation(err, patientEmailIndex) {
		return apperr.Uniqueness("patient with this email already exists")
	}
	return err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patients (id, doctor_id, name, email, phone, age, gender, blood_type,
			conditions, allergies, blood_pressure, heart_rate, temperature, oxygen_saturation,
			vitals_updated_at, risk_score, last_visit, next_appointment, notes, is_active,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		p.ID, p.DoctorID, p.Name, p.Email, p.Phone, p.Age, p.Gender, p.BloodType,
		p.Conditions, p.Allergies, p.Vitals.BloodPressure, p.Vitals.HeartRate, p.Vitals.Temperature,
		p.Vitals.OxygenSaturation, p.Vitals.LastUpdated, p.RiskScore, p.LastVisit, p.NextAppointment,
		p.Notes, p.IsActive, p.CreatedAt, p.UpdatedAt)
	return translateWriteErr(err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, doctorID, id uuid.UUID) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1 AND doctor_id = $2 AND is_active`, id, doctorID))
}

func (r *patientRepoPG) FindActiveByEmail(ctx context.Context, doctorID uuid.UUID, email string) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE doctor_id = $1 AND lower(email) = lower($2) AND is_active`, doctorID, email))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE patients SET name=$3, email=$4, phone=$5, age=$6, gender=$7, blood_type=$8,
			conditions=$9, allergies=$10, blood_pressure=$11, heart_rate=$12, temperature=$13,
			oxygen_saturation=$14, vitals_updated_at=$15, risk_score=$16, last_visit=$17,
			next_appointment=$18, notes=$19, updated_at=$20
		WHERE id = $1 AND doctor_id = $2 AND is_active`,
		p.ID, p.DoctorID, p.Name, p.Email, p.Phone, p.Age, p.Gender, p.BloodType,
		p.Conditions, p.Allergies, p.Vitals.BloodPressure, p.Vitals.HeartRate, p.Vitals.Temperature,
		p.Vitals.OxygenSaturation, p.Vitals.LastUpdated, p.RiskScore, p.LastVisit,
		p.NextAppointment, p.Notes, p.UpdatedAt)
	if err != nil {
		return translateWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func (r *patientRepoPG) SetNextAppointment(ctx context.Context, doctorID, id uuid.UUID, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE patients SET next_appointment = $3, updated_at = NOW() WHERE id = $1 AND doctor_id = $2 AND is_active`,
		id, doctorID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func (r *patientRepoPG) Deactivate(ctx context.Context, doctorID, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE patients SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND doctor_id = $2 AND is_active`,
		id, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE doctor_id = $1 AND is_active`
	args := []interface{}{doctorID}
	idx := 2

	if s := strings.TrimSpace(filter.Search); s != "" {
		where += fmt.Sprintf(` AND (name ILIKE $%d OR email ILIKE $%d)`, idx, idx)
		args = append(args, db.ContainsPattern(s))
		idx++
	}
	if lo, hi, ok := RiskBounds(filter.RiskLevel); ok {
		where += fmt.Sprintf(` AND risk_score BETWEEN $%d AND $%d`, idx, idx+1)
		args = append(args, lo, hi)
		idx += 2
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + patientCols + ` FROM patients` + where +
		fmt.Sprintf(` ORDER BY last_visit DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) Stats(ctx context.Context, doctorID uuid.UUID) (*Stats, error) {
	var s Stats
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(AVG(age), 0),
			COALESCE(AVG(risk_score), 0),
			COUNT(*) FILTER (WHERE risk_score > $2),
			COUNT(*) FILTER (WHERE risk_score BETWEEN $3 AND $2),
			COUNT(*) FILTER (WHERE risk_score < $3)
		FROM patients WHERE doctor_id = $1 AND is_active`,
		doctorID, HighRiskThreshold, MediumRiskThreshold).
		Scan(&s.TotalPatients, &s.AverageAge, &s.AverageRiskScore,
			&s.HighRiskPatients, &s.MediumRiskPatients, &s.LowRiskPatients)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Summaries includes inactive patients so historical records still resolve.
func (r *patientRepoPG) Summaries(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ref.PatientSummary, error) {
	out := make(map[uuid.UUID]ref.PatientSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT id, name, email, phone, age FROM patients WHERE doctor_id = $1 AND id = ANY($2)`, doctorID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var s ref.PatientSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Phone, &s.Age); err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

type vitalRepoPG struct{ pool *pgxpool.Pool }

func NewVitalRepoPG(pool *pgxpool.Pool) VitalRepository { return &vitalRepoPG{pool: pool} }

func (r *vitalRepoPG) Append(ctx context.Context, v *VitalReading) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO vital_readings (id, doctor_id, patient_id, blood_pressure, heart_rate,
			temperature, oxygen_saturation, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		v.ID, v.DoctorID, v.PatientID, v.BloodPressure, v.HeartRate,
		v.Temperature, v.OxygenSaturation, v.RecordedAt)
	return err
}

func (r *vitalRepoPG) ListByPatient(ctx context.Context, doctorID, patientID uuid.UUID, limit int) ([]*VitalReading, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, doctor_id, patient_id, blood_pressure, heart_rate, temperature, oxygen_saturation, recorded_at
		FROM vital_readings WHERE doctor_id = $1 AND patient_id = $2
		ORDER BY recorded_at DESC LIMIT $3`, doctorID, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*VitalReading
	for rows.Next() {
		var v VitalReading
		if err := rows.Scan(&v.ID, &v.DoctorID, &v.PatientID, &v.BloodPressure, &v.HeartRate,
			&v.Temperature, &v.OxygenSaturation, &v.RecordedAt); err != nil {
			return nil, err
		}
		items = append(items, &v)
	}
	return items, rows.Err()
}
