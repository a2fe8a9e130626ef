package analysis

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

type analysisRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &analysisRepoPG{pool: pool} }

const analysisCols = `an.id, an.doctor_id, an.patient_id, an.type, an.file_name, an.file_size, an.file_path,
	an.content_type, an.status, an.results, an.processing_log, an.reviewed_by, an.reviewed_at, an.review_notes,
	an.priority, an.tags, an.upload_date, an.created_at, an.updated_at`

func scanAnalysis(row pgx.Row) (*Analysis, error) {
	var a Analysis
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Type, &a.FileName, &a.FileSize, &a.FilePath,
		&a.ContentType, &a.Status, &a.Results, &a.ProcessingLog, &a.ReviewedBy, &a.ReviewedAt, &a.ReviewNotes,
		&a.Priority, &a.Tags, &a.UploadDate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("analysis not found")
		}
		return nil, err
	}
	if a.ProcessingLog == nil {
		a.ProcessingLog = []LogEntry{}
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	return &a, nil
}

func (r *analysisRepoPG) Create(ctx context.Context, a *Analysis) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO analyses (id, doctor_id, patient_id, type, file_name, file_size, file_path, content_type,
			status, results, processing_log, reviewed_by, reviewed_at, review_notes, priority, tags,
			upload_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		a.ID, a.DoctorID, a.PatientID, a.Type, a.FileName, a.FileSize, a.FilePath, a.ContentType,
		a.Status, a.Results, a.ProcessingLog, a.ReviewedBy, a.ReviewedAt, a.ReviewNotes, a.Priority, a.Tags,
		a.UploadDate, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *analysisRepoPG) GetByID(ctx context.Context, doctorID, id uuid.UUID) (*Analysis, error) {
	return scanAnalysis(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+analysisCols+` FROM analyses an WHERE an.id = $1 AND an.doctor_id = $2`, id, doctorID))
}

func (r *analysisRepoPG) Update(ctx context.Context, a *Analysis, fromStatus string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE analyses SET type=$4, status=$5, results=$6, processing_log=$7, reviewed_by=$8,
			reviewed_at=$9, review_notes=$10, priority=$11, tags=$12, updated_at=$13
		WHERE id = $1 AND doctor_id = $2 AND status = $3`,
		a.ID, a.DoctorID, fromStatus, a.Type, a.Status, a.Results, a.ProcessingLog, a.ReviewedBy,
		a.ReviewedAt, a.ReviewNotes, a.Priority, a.Tags, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.InvalidState("analysis changed concurrently")
	}
	return nil
}

func (r *analysisRepoPG) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM analyses WHERE id = $1 AND doctor_id = $2`, id, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("analysis not found")
	}
	return nil
}

func (r *analysisRepoPG) List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Analysis, int, error) {
	from := ` FROM analyses an LEFT JOIN patients pt ON pt.id = an.patient_id`
	where := ` WHERE an.doctor_id = $1`
	args := []interface{}{doctorID}
	idx := 2

	if filter.Status != "" {
		where += fmt.Sprintf(` AND an.status = $%d`, idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.Type != "" {
		where += fmt.Sprintf(` AND an.type = $%d`, idx)
		args = append(args, filter.Type)
		idx++
	}
	if filter.PatientID != nil {
		where += fmt.Sprintf(` AND an.patient_id = $%d`, idx)
		args = append(args, *filter.PatientID)
		idx++
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where += fmt.Sprintf(` AND (pt.name ILIKE $%d OR an.type ILIKE $%d OR an.file_name ILIKE $%d)`, idx, idx, idx)
		args = append(args, db.ContainsPattern(s))
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + analysisCols + from + where +
		fmt.Sprintf(` ORDER BY an.upload_date DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *analysisRepoPG) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*Analysis, error) {
	return r.query(ctx, `SELECT `+analysisCols+` FROM analyses an
		WHERE an.status = 'pending' AND an.upload_date < $1
		ORDER BY an.upload_date ASC LIMIT $2`, before, limit)
}

func (r *analysisRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Analysis, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *analysisRepoPG) Stats(ctx context.Context, doctorID uuid.UUID, monthStart time.Time) (*Stats, error) {
	conn := db.Conn(ctx, r.pool)
	s := Stats{ByStatus: []CountByKey{}, ByType: []CountByKey{}}

	err := conn.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= $2),
			COUNT(*) FILTER (WHERE status = 'pending')
		FROM analyses WHERE doctor_id = $1`, doctorID, monthStart).
		Scan(&s.TotalAnalyses, &s.ThisMonthAnalyses, &s.PendingAnalyses)
	if err != nil {
		return nil, err
	}

	for _, g := range []struct {
		col string
		dst *[]CountByKey
	}{{"status", &s.ByStatus}, {"type", &s.ByType}} {
		rows, err := conn.Query(ctx,
			`SELECT `+g.col+`, COUNT(*) FROM analyses WHERE doctor_id = $1 GROUP BY 1 ORDER BY 1`, doctorID)
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
