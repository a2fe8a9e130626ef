package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteQueue persists jobs in a local SQLite file so they survive restarts.
type SQLiteQueue struct {
	db *sql.DB
}

func NewSQLiteQueue(path string) (*SQLiteQueue, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create job queue dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", path))
	if err != nil {
		return nil, fmt.Errorf("open job queue: %w", err)
	}
	// SQLite allows one writer; serialising here keeps Reserve atomic.
	db.SetMaxOpenConns(1)

	q := &SQLiteQueue{db: db}
	if err := q.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	const schema = `
    CREATE TABLE IF NOT EXISTS jobs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        kind TEXT NOT NULL,
        dedupe_key TEXT,
        payload BLOB,
        status TEXT NOT NULL,
        attempts INTEGER NOT NULL DEFAULT 0,
        max_attempts INTEGER NOT NULL,
        run_at INTEGER NOT NULL,
        lease_until INTEGER,
        last_error TEXT,
        created_at INTEGER NOT NULL,
        updated_at INTEGER NOT NULL
    );
    CREATE UNIQUE INDEX IF NOT EXISTS jobs_active_dedupe
        ON jobs (dedupe_key) WHERE dedupe_key IS NOT NULL AND status IN ('queued', 'running');
    CREATE INDEX IF NOT EXISTS jobs_due ON jobs (status, run_at);`
	if _, err := q.db.Exec(schema); err != nil {
		return fmt.Errorf("init job queue schema: %w", err)
	}
	return nil
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, job Job) (bool, error) {
	now := time.Now().UTC().UnixMilli()
	var dedupe interface{}
	if job.DedupeKey != "" {
		dedupe = job.DedupeKey
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO jobs (kind, dedupe_key, payload, status, attempts, max_attempts, run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		job.Kind, dedupe, []byte(job.Payload), StatusQueued, job.MaxAttempts, job.RunAt.UTC().UnixMilli(), now, now)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", job.Kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", job.Kind, err)
	}
	return n == 1, nil
}

func (q *SQLiteQueue) Reserve(ctx context.Context, now time.Time, lease time.Duration) (*Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback()

	nowMs := now.UTC().UnixMilli()
	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM jobs
		 WHERE (status = ? AND run_at <= ?) OR (status = ? AND lease_until < ?)
		 ORDER BY run_at, id LIMIT 1`,
		StatusQueued, nowMs, StatusRunning, nowMs).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select due job: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = attempts + 1, lease_until = ?, updated_at = ? WHERE id = ?`,
		StatusRunning, now.Add(lease).UTC().UnixMilli(), nowMs, id); err != nil {
		return nil, fmt.Errorf("lease job %d: %w", id, err)
	}

	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("load job %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}
	return job, nil
}

func (q *SQLiteQueue) Complete(ctx context.Context, id int64) error {
	return q.setStatus(ctx, id, StatusDone, "", nil)
}

func (q *SQLiteQueue) Retry(ctx context.Context, id int64, runAt time.Time, lastErr string) error {
	return q.setStatus(ctx, id, StatusQueued, lastErr, &runAt)
}

func (q *SQLiteQueue) Bury(ctx context.Context, id int64, lastErr string) error {
	return q.setStatus(ctx, id, StatusDead, lastErr, nil)
}

func (q *SQLiteQueue) setStatus(ctx context.Context, id int64, status, lastErr string, runAt *time.Time) error {
	now := time.Now().UTC().UnixMilli()
	var err error
	if runAt != nil {
		_, err = q.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, last_error = ?, run_at = ?, lease_until = NULL, updated_at = ? WHERE id = ?`,
			status, lastErr, runAt.UTC().UnixMilli(), now, id)
	} else {
		_, err = q.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, last_error = NULLIF(?, ''), lease_until = NULL, updated_at = ? WHERE id = ?`,
			status, lastErr, now, id)
	}
	if err != nil {
		return fmt.Errorf("mark job %d %s: %w", id, status, err)
	}
	return nil
}

// Counts returns the number of jobs per status.
func (q *SQLiteQueue) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// Purge removes finished jobs last updated before cutoff.
func (q *SQLiteQueue) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?) AND updated_at < ?`,
		StatusDone, StatusDead, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	return res.RowsAffected()
}

func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

const jobCols = `id, kind, COALESCE(dedupe_key, ''), payload, status, attempts, max_attempts, run_at, lease_until, COALESCE(last_error, ''), created_at, updated_at`

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var payload []byte
	var runAt, createdAt, updatedAt int64
	var lease sql.NullInt64
	if err := row.Scan(&j.ID, &j.Kind, &j.DedupeKey, &payload, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAt, &lease, &j.LastError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.Payload = payload
	j.RunAt = time.UnixMilli(runAt).UTC()
	j.CreatedAt = time.UnixMilli(createdAt).UTC()
	j.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if lease.Valid {
		t := time.UnixMilli(lease.Int64).UTC()
		j.LeaseUntil = &t
	}
	return &j, nil
}
