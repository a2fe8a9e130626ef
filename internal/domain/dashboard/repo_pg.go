package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/db"
)

type dashboardRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &dashboardRepoPG{pool: pool} }

func (r *dashboardRepoPG) Stats(ctx context.Context, doctorID uuid.UUID, today, monthStart time.Time, highRiskAbove int) (*Stats, error) {
	var s Stats
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM patients WHERE doctor_id = $1 AND is_active),
			(SELECT COUNT(*) FROM appointments WHERE doctor_id = $1 AND date = $2 AND status = 'scheduled'),
			(SELECT COUNT(*) FROM patients WHERE doctor_id = $1 AND is_active AND risk_score > $4),
			(SELECT COUNT(*) FROM appointments WHERE doctor_id = $1 AND created_at >= $3 AND status = 'completed'),
			(SELECT COUNT(*) FROM analyses WHERE doctor_id = $1 AND status = 'pending'),
			(SELECT COUNT(*) FROM prescriptions WHERE doctor_id = $1 AND status IN ('pending', 'sent'))`,
		doctorID, today, monthStart, highRiskAbove).
		Scan(&s.TotalPatients, &s.TodayAppointments, &s.HighRiskPatients,
			&s.ThisMonthConsultations, &s.PendingAnalyses, &s.ActivePrescriptions)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

const apptRowSelect = `SELECT a.id, p.id, p.name, p.email, p.phone, p.risk_score,
	a.date, a.time, a.duration, a.type, a.status, a.meet_link, a.created_at
	FROM appointments a JOIN patients p ON p.id = a.patient_id`

func (r *dashboardRepoPG) appointments(ctx context.Context, sql string, args ...interface{}) ([]AppointmentRow, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AppointmentRow, error) {
		var a AppointmentRow
		err := row.Scan(&a.ID, &a.Patient.ID, &a.Patient.Name, &a.Patient.Email, &a.Patient.Phone,
			&a.Patient.RiskScore, &a.Date, &a.Time, &a.Duration, &a.Type, &a.Status, &a.MeetLink, &a.CreatedAt)
		a.Date = dayOf(a.Date)
		return a, err
	})
}

func (r *dashboardRepoPG) RecentAppointments(ctx context.Context, doctorID uuid.UUID, limit int) ([]AppointmentRow, error) {
	return r.appointments(ctx, apptRowSelect+`
		WHERE a.doctor_id = $1 ORDER BY a.created_at DESC LIMIT $2`, doctorID, limit)
}

func (r *dashboardRepoPG) UpcomingAppointments(ctx context.Context, doctorID uuid.UUID, now time.Time, limit int) ([]AppointmentRow, error) {
	today, hhmm := slotOf(now)
	return r.appointments(ctx, apptRowSelect+`
		WHERE a.doctor_id = $1 AND a.status = 'scheduled'
			AND (a.date > $2 OR (a.date = $2 AND a.time >= $3))
		ORDER BY a.date ASC, a.time ASC LIMIT $4`, doctorID, today, hhmm, limit)
}

func (r *dashboardRepoPG) OverdueAppointments(ctx context.Context, doctorID uuid.UUID, now time.Time, limit int) ([]AppointmentRow, error) {
	today, hhmm := slotOf(now)
	return r.appointments(ctx, apptRowSelect+`
		WHERE a.doctor_id = $1 AND a.status = 'scheduled'
			AND (a.date < $2 OR (a.date = $2 AND a.time < $3))
		ORDER BY a.date DESC, a.time DESC LIMIT $4`, doctorID, today, hhmm, limit)
}

func (r *dashboardRepoPG) analyses(ctx context.Context, sql string, args ...interface{}) ([]AnalysisRow, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AnalysisRow, error) {
		var a AnalysisRow
		err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.Type, &a.Status, &a.CreatedAt)
		return a, err
	})
}

func (r *dashboardRepoPG) RecentAnalyses(ctx context.Context, doctorID uuid.UUID, limit int) ([]AnalysisRow, error) {
	return r.analyses(ctx, `
		SELECT a.id, a.patient_id, p.name, a.type, a.status, a.created_at
		FROM analyses a JOIN patients p ON p.id = a.patient_id
		WHERE a.doctor_id = $1 ORDER BY a.created_at DESC LIMIT $2`, doctorID, limit)
}

func (r *dashboardRepoPG) PendingAnalysesBefore(ctx context.Context, doctorID uuid.UUID, before time.Time, limit int) ([]AnalysisRow, error) {
	return r.analyses(ctx, `
		SELECT a.id, a.patient_id, p.name, a.type, a.status, a.created_at
		FROM analyses a JOIN patients p ON p.id = a.patient_id
		WHERE a.doctor_id = $1 AND a.status = 'pending' AND a.created_at < $2
		ORDER BY a.created_at ASC LIMIT $3`, doctorID, before, limit)
}

func (r *dashboardRepoPG) prescriptions(ctx context.Context, sql string, args ...interface{}) ([]PrescriptionRow, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PrescriptionRow, error) {
		var p PrescriptionRow
		err := row.Scan(&p.ID, &p.PatientID, &p.PatientName, &p.Medications, &p.Status, &p.ValidUntil, &p.CreatedAt)
		return p, err
	})
}

const rxRowSelect = `SELECT r.id, r.patient_id, p.name, jsonb_array_length(r.medications), r.status,
	r.valid_until, r.created_at
	FROM prescriptions r JOIN patients p ON p.id = r.patient_id`

func (r *dashboardRepoPG) RecentPrescriptions(ctx context.Context, doctorID uuid.UUID, limit int) ([]PrescriptionRow, error) {
	return r.prescriptions(ctx, rxRowSelect+`
		WHERE r.doctor_id = $1 ORDER BY r.created_at DESC LIMIT $2`, doctorID, limit)
}

func (r *dashboardRepoPG) ExpiredPrescriptions(ctx context.Context, doctorID uuid.UUID, now time.Time, limit int) ([]PrescriptionRow, error) {
	return r.prescriptions(ctx, rxRowSelect+`
		WHERE r.doctor_id = $1 AND r.valid_until < $2 AND r.status NOT IN ('expired', 'filled')
		ORDER BY r.valid_until DESC LIMIT $3`, doctorID, now, limit)
}

func (r *dashboardRepoPG) HighRiskPatients(ctx context.Context, doctorID uuid.UUID, above, limit int) ([]PatientRow, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, name, risk_score, updated_at FROM patients
		WHERE doctor_id = $1 AND is_active AND risk_score > $2
		ORDER BY risk_score DESC, updated_at DESC LIMIT $3`, doctorID, above, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PatientRow, error) {
		var p PatientRow
		err := row.Scan(&p.ID, &p.Name, &p.RiskScore, &p.UpdatedAt)
		return p, err
	})
}

func (r *dashboardRepoPG) AppointmentCounts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (map[time.Time]int, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT date, COUNT(*) FROM appointments
		WHERE doctor_id = $1 AND date >= $2 AND date <= $3
		GROUP BY date`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[time.Time]int)
	for rows.Next() {
		var d time.Time
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		out[dayOf(d)] = n
	}
	return out, rows.Err()
}

func (r *dashboardRepoPG) VitalSamples(ctx context.Context, doctorID uuid.UUID, patientID *uuid.UUID, since time.Time) ([]VitalSample, error) {
	sql := `SELECT recorded_at, blood_pressure, heart_rate, temperature, oxygen_saturation
		FROM vital_readings WHERE doctor_id = $1 AND recorded_at >= $2`
	args := []interface{}{doctorID, since}
	if patientID != nil {
		sql += ` AND patient_id = $3`
		args = append(args, *patientID)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql+` ORDER BY recorded_at ASC`, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (VitalSample, error) {
		var v VitalSample
		err := row.Scan(&v.RecordedAt, &v.BloodPressure, &v.HeartRate, &v.Temperature, &v.OxygenSaturation)
		return v, err
	})
}
