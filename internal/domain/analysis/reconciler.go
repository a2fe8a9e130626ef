package analysis

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const sweepBatch = 100

// Reconciler re-enqueues analyses left pending longer than StaleAfter, which
// covers lost or failed enqueues. Queue deduplication keeps it from doubling
// work that is already scheduled.
type Reconciler struct {
	svc        *Service
	interval   time.Duration
	staleAfter time.Duration
	logger     zerolog.Logger
}

func NewReconciler(svc *Service, interval, staleAfter time.Duration, logger zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	return &Reconciler{
		svc:        svc,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger.With().Str("component", "analysis-reconciler").Logger(),
	}
}

// Sweep runs one pass and returns how many analyses were re-enqueued.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	stale, err := r.svc.analyses.ListStalePending(ctx, r.svc.now().Add(-r.staleAfter), sweepBatch)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, a := range stale {
		ok, err := r.svc.Enqueue(ctx, a)
		if err != nil {
			return enqueued, err
		}
		if ok {
			enqueued++
		}
	}
	if enqueued > 0 {
		r.logger.Info().Int("stale", len(stale)).Int("enqueued", enqueued).Msg("re-enqueued stale analyses")
	}
	return enqueued, nil
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("reconcile sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
