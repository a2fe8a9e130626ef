// Package jobqueue is a small durable job queue with delayed execution,
// per-key deduplication, leases and bounded retries.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusDead    = "dead"
)

// ErrPermanent marks a handler failure that must not be retried.
var ErrPermanent = errors.New("permanent job failure")

// Permanent wraps err so the worker buries the job instead of retrying it.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

type Job struct {
	ID          int64           `json:"id"`
	Kind        string          `json:"kind"`
	DedupeKey   string          `json:"dedupe_key,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	RunAt       time.Time       `json:"run_at"`
	LeaseUntil  *time.Time      `json:"lease_until,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewJob builds a job for kind with a JSON encoded payload.
func NewJob(kind, dedupeKey string, payload interface{}, runAt time.Time, maxAttempts int) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Job{Kind: kind, DedupeKey: dedupeKey, Payload: raw, RunAt: runAt, MaxAttempts: maxAttempts}, nil
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", j.Kind, err))
	}
	return nil
}

// Queue is the storage contract used by Worker.
type Queue interface {
	// Enqueue stores job. It returns false without error when a queued or
	// running job with the same dedupe key already exists.
	Enqueue(ctx context.Context, job Job) (bool, error)
	// Reserve leases the next due job, or returns nil when none is due.
	// Running jobs whose lease expired are due again.
	Reserve(ctx context.Context, now time.Time, lease time.Duration) (*Job, error)
	Complete(ctx context.Context, id int64) error
	Retry(ctx context.Context, id int64, runAt time.Time, lastErr string) error
	Bury(ctx context.Context, id int64, lastErr string) error
	Close() error
}
