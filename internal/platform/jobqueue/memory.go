package jobqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryQueue implements Queue in process memory.
type MemoryQueue struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: make(map[int64]*Job)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.DedupeKey != "" {
		for _, existing := range q.jobs {
			if existing.DedupeKey == job.DedupeKey &&
				(existing.Status == StatusQueued || existing.Status == StatusRunning) {
				return false, nil
			}
		}
	}

	q.nextID++
	now := time.Now().UTC()
	job.ID = q.nextID
	job.Status = StatusQueued
	job.Attempts = 0
	job.CreatedAt = now
	job.UpdatedAt = now
	q.jobs[job.ID] = &job
	return true, nil
}

func (q *MemoryQueue) Reserve(_ context.Context, now time.Time, lease time.Duration) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*Job
	for _, j := range q.jobs {
		switch {
		case j.Status == StatusQueued && !j.RunAt.After(now):
			due = append(due, j)
		case j.Status == StatusRunning && j.LeaseUntil != nil && j.LeaseUntil.Before(now):
			due = append(due, j)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.Slice(due, func(a, b int) bool {
		if due[a].RunAt.Equal(due[b].RunAt) {
			return due[a].ID < due[b].ID
		}
		return due[a].RunAt.Before(due[b].RunAt)
	})

	j := due[0]
	until := now.Add(lease)
	j.Status = StatusRunning
	j.Attempts++
	j.LeaseUntil = &until
	j.UpdatedAt = now

	out := *j
	return &out, nil
}

func (q *MemoryQueue) Complete(_ context.Context, id int64) error {
	return q.update(id, func(j *Job) { j.Status = StatusDone })
}

func (q *MemoryQueue) Retry(_ context.Context, id int64, runAt time.Time, lastErr string) error {
	return q.update(id, func(j *Job) {
		j.Status = StatusQueued
		j.RunAt = runAt
		j.LastError = lastErr
	})
}

func (q *MemoryQueue) Bury(_ context.Context, id int64, lastErr string) error {
	return q.update(id, func(j *Job) {
		j.Status = StatusDead
		j.LastError = lastErr
	})
}

func (q *MemoryQueue) update(id int64, fn func(j *Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("job %d not found", id)
	}
	fn(j)
	j.LeaseUntil = nil
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Get returns a copy of job id.
func (q *MemoryQueue) Get(id int64) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Jobs returns copies of all jobs ordered by id.
func (q *MemoryQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (q *MemoryQueue) Close() error { return nil }
