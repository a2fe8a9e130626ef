package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestWorker(q Queue, now *time.Time) *Worker {
	w := NewWorker(q, WorkerConfig{BackoffBase: 2 * time.Second, BackoffMax: time.Minute}, zerolog.Nop())
	w.now = func() time.Time { return *now }
	return w
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{6, time.Minute},
		{40, time.Minute},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt, 2*time.Second, time.Minute); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestWorker_CompletesJob(t *testing.T) {
	q := NewMemoryQueue()
	now := time.Now()
	w := newTestWorker(q, &now)

	var calls int32
	w.Handle("analysis.process", func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	q.Enqueue(context.Background(), mustJob(t, "analysis.process", "a1", now))
	worked, err := w.ProcessNext(context.Background())
	if err != nil || !worked {
		t.Fatalf("ProcessNext() = %v, %v", worked, err)
	}
	if calls != 1 {
		t.Errorf("expected handler called once, got %d", calls)
	}
	if j, _ := q.Get(1); j.Status != StatusDone {
		t.Errorf("expected done, got %s", j.Status)
	}
}

func TestWorker_RetriesWithBackoffThenBuries(t *testing.T) {
	q := NewMemoryQueue()
	now := time.Now()
	w := newTestWorker(q, &now)
	w.Handle("analysis.process", func(ctx context.Context, job *Job) error {
		return errors.New("store unavailable")
	})

	q.Enqueue(context.Background(), mustJob(t, "analysis.process", "a1", now))

	w.ProcessNext(context.Background())
	j, _ := q.Get(1)
	if j.Status != StatusQueued || !j.RunAt.Equal(now.Add(2*time.Second)) {
		t.Fatalf("expected retry in 2s, got %+v", j)
	}

	now = now.Add(2 * time.Second)
	w.ProcessNext(context.Background())
	j, _ = q.Get(1)
	if !j.RunAt.Equal(now.Add(4 * time.Second)) {
		t.Fatalf("expected retry in 4s, got %s", j.RunAt.Sub(now))
	}

	now = now.Add(4 * time.Second)
	w.ProcessNext(context.Background())
	j, _ = q.Get(1)
	if j.Status != StatusDead || j.Attempts != 3 {
		t.Fatalf("expected dead after 3 attempts, got %+v", j)
	}
}

func TestWorker_PermanentErrorBuriesImmediately(t *testing.T) {
	q := NewMemoryQueue()
	now := time.Now()
	w := newTestWorker(q, &now)
	w.Handle("analysis.process", func(ctx context.Context, job *Job) error {
		return Permanent(errors.New("analysis not found"))
	})

	q.Enqueue(context.Background(), mustJob(t, "analysis.process", "a1", now))
	w.ProcessNext(context.Background())

	if j, _ := q.Get(1); j.Status != StatusDead || j.Attempts != 1 {
		t.Errorf("expected dead after first attempt, got %+v", j)
	}
}

func TestWorker_UnknownKindIsBuried(t *testing.T) {
	q := NewMemoryQueue()
	now := time.Now()
	w := newTestWorker(q, &now)

	q.Enqueue(context.Background(), mustJob(t, "mystery", "", now))
	w.ProcessNext(context.Background())

	if j, _ := q.Get(1); j.Status != StatusDead {
		t.Errorf("expected dead, got %s", j.Status)
	}
}

func TestWorker_RecoversPanic(t *testing.T) {
	q := NewMemoryQueue()
	now := time.Now()
	w := newTestWorker(q, &now)
	w.Handle("analysis.process", func(ctx context.Context, job *Job) error {
		panic("nil map")
	})

	q.Enqueue(context.Background(), mustJob(t, "analysis.process", "a1", now))
	if _, err := w.ProcessNext(context.Background()); err != nil {
		t.Fatalf("ProcessNext() error: %v", err)
	}
	if j, _ := q.Get(1); j.Status != StatusQueued || j.LastError == "" {
		t.Errorf("expected panic to schedule a retry, got %+v", j)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	q := NewMemoryQueue()
	w := NewWorker(q, WorkerConfig{Concurrency: 1, PollInterval: 10 * time.Millisecond}, zerolog.Nop())

	done := make(chan struct{})
	var calls int32
	w.Handle("analysis.process", func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	q.Enqueue(context.Background(), mustJob(t, "analysis.process", "a1", time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("job was not processed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
