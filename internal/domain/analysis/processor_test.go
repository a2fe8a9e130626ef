package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/jobqueue"
)

func reservedJob(t *testing.T, q *jobqueue.MemoryQueue, now time.Time) *jobqueue.Job {
	t.Helper()
	job, err := q.Reserve(context.Background(), now, time.Minute)
	if err != nil || job == nil {
		t.Fatalf("Reserve: job=%v err=%v", job, err)
	}
	return job
}

func TestProcessor_HandleProcessesPending(t *testing.T) {
	f := newFixture()
	a := f.upload(t)
	p := NewProcessor(f.svc, zerolog.Nop())

	job := reservedJob(t, f.queue, f.clock.Add(testDelay))
	if err := p.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	stored := f.repo.items[a.ID]
	if stored.Status != StatusProcessed || len(stored.ProcessingLog) != 1 {
		t.Fatalf("unexpected stored analysis %+v", stored)
	}

	// A redelivered job is a no-op.
	if err := p.Handle(context.Background(), job); err != nil {
		t.Fatalf("second Handle: %v", err)
	}
	if len(f.repo.items[a.ID].ProcessingLog) != 1 {
		t.Fatal("processing must not run twice")
	}
}

func TestProcessor_DeletedAnalysisIsPermanent(t *testing.T) {
	f := newFixture()
	a := f.upload(t)
	if err := f.svc.Delete(context.Background(), f.doctorID, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	job := reservedJob(t, f.queue, f.clock.Add(testDelay))
	err := NewProcessor(f.svc, zerolog.Nop()).Handle(context.Background(), job)
	if !errors.Is(err, jobqueue.ErrPermanent) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestProcessor_BadPayloadIsPermanent(t *testing.T) {
	job := &jobqueue.Job{Kind: JobKind, Payload: []byte(`{"analysis_id":42}`)}
	err := NewProcessor(newFixture().svc, zerolog.Nop()).Handle(context.Background(), job)
	if !errors.Is(err, jobqueue.ErrPermanent) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestProcessor_RunsThroughWorker(t *testing.T) {
	f := newFixture()
	a := f.upload(t)

	w := jobqueue.NewWorker(f.queue, jobqueue.WorkerConfig{Concurrency: 1}, zerolog.Nop())
	NewProcessor(f.svc, zerolog.Nop()).Register(w)

	// The fixture clock lies in the past, so the job is already due.
	worked, err := w.ProcessNext(context.Background())
	if err != nil || !worked {
		t.Fatalf("ProcessNext: worked=%v err=%v", worked, err)
	}
	if f.repo.items[a.ID].Status != StatusProcessed {
		t.Fatal("expected analysis processed by the worker")
	}
	if jobs := f.queue.Jobs(); jobs[0].Status != jobqueue.StatusDone {
		t.Fatalf("expected job done, got %s", jobs[0].Status)
	}
}

func TestReconciler_SweepReenqueuesStale(t *testing.T) {
	f := newFixture()
	stale := pendingAnalysis(TypeECG, f.clock.Add(-10*time.Minute))
	stale.DoctorID = f.doctorID
	stale.PatientID = f.patient
	fresh := pendingAnalysis(TypeECG, f.clock.Add(-30*time.Second))
	fresh.DoctorID = f.doctorID
	f.repo.items[stale.ID] = stale
	f.repo.items[fresh.ID] = fresh

	r := NewReconciler(f.svc, time.Minute, 2*time.Minute, zerolog.Nop())
	n, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 re-enqueued, got %d", n)
	}
	jobs := f.queue.Jobs()
	if len(jobs) != 1 || jobs[0].DedupeKey != dedupeKey(stale.ID) {
		t.Fatalf("unexpected jobs %+v", jobs)
	}

	// The queued job deduplicates a second sweep.
	if n, _ := r.Sweep(context.Background()); n != 0 {
		t.Fatalf("expected dedupe on second sweep, got %d", n)
	}
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	f := newFixture()
	r := NewReconciler(f.svc, 10*time.Millisecond, time.Minute, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

