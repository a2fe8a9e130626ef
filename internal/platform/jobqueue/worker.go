package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HandlerFunc executes one job. Returning an error schedules a retry unless
// the error wraps ErrPermanent or the job ran out of attempts.
type HandlerFunc func(ctx context.Context, job *Job) error

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	Lease        time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:  2,
		PollInterval: 500 * time.Millisecond,
		Lease:        2 * time.Minute,
		BackoffBase:  2 * time.Second,
		BackoffMax:   time.Minute,
	}
}

// Worker polls a Queue and dispatches jobs to handlers by kind.
type Worker struct {
	queue    Queue
	cfg      WorkerConfig
	logger   zerolog.Logger
	handlers map[string]HandlerFunc
	now      func() time.Time
}

func NewWorker(q Queue, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	def := DefaultWorkerConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	return &Worker{
		queue:    q,
		cfg:      cfg,
		logger:   logger.With().Str("component", "jobqueue").Logger(),
		handlers: make(map[string]HandlerFunc),
		now:      time.Now,
	}
}

// Handle registers h for jobs of kind. Not safe to call after Run.
func (w *Worker) Handle(kind string, h HandlerFunc) {
	w.handlers[kind] = h
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Int("concurrency", w.cfg.Concurrency).Msg("job worker started")

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()

	w.logger.Info().Msg("job worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything that is due before sleeping again.
		for {
			worked, err := w.ProcessNext(ctx)
			if err != nil {
				w.logger.Error().Err(err).Msg("job queue poll failed")
				break
			}
			if !worked || ctx.Err() != nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessNext reserves and runs one due job. It reports whether a job ran.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.Reserve(ctx, w.now(), w.cfg.Lease)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := w.logger.With().Int64("job_id", job.ID).Str("kind", job.Kind).Int("attempt", job.Attempts).Logger()

	h, ok := w.handlers[job.Kind]
	if !ok {
		log.Error().Msg("no handler registered, burying job")
		return true, w.queue.Bury(ctx, job.ID, fmt.Sprintf("no handler for kind %q", job.Kind))
	}

	runErr := w.run(ctx, h, job)
	switch {
	case runErr == nil:
		log.Debug().Msg("job completed")
		return true, w.queue.Complete(ctx, job.ID)
	case errors.Is(runErr, ErrPermanent) || job.Attempts >= job.MaxAttempts:
		log.Error().Err(runErr).Msg("job failed permanently")
		return true, w.queue.Bury(ctx, job.ID, runErr.Error())
	default:
		delay := Backoff(job.Attempts, w.cfg.BackoffBase, w.cfg.BackoffMax)
		log.Warn().Err(runErr).Dur("retry_in", delay).Msg("job failed, retrying")
		return true, w.queue.Retry(ctx, job.ID, w.now().Add(delay), runErr.Error())
	}
}

func (w *Worker) run(ctx context.Context, h HandlerFunc, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return h(ctx, job)
}

// Backoff returns base * 2^(attempt-1), capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
