package analysis

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/jobqueue"
)

// JobKind identifies simulated processing jobs in the queue.
const JobKind = "analysis.process"

type jobPayload struct {
	AnalysisID uuid.UUID `json:"analysis_id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
}

func dedupeKey(id uuid.UUID) string { return "analysis:" + id.String() }

// Processor executes analysis.process jobs.
type Processor struct {
	svc    *Service
	logger zerolog.Logger
}

func NewProcessor(svc *Service, logger zerolog.Logger) *Processor {
	return &Processor{svc: svc, logger: logger.With().Str("component", "analysis-processor").Logger()}
}

// Register binds the processor to w.
func (p *Processor) Register(w *jobqueue.Worker) {
	w.Handle(JobKind, p.Handle)
}

// Handle processes the analysis named by job. Jobs for analyses that are no
// longer pending complete without changes; deleted analyses are buried.
func (p *Processor) Handle(ctx context.Context, job *jobqueue.Job) error {
	var payload jobPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	a, err := p.svc.analyses.GetByID(ctx, payload.DoctorID, payload.AnalysisID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return jobqueue.Permanent(err)
		}
		return err
	}
	if a.Status != StatusPending {
		p.logger.Debug().Str("analysis_id", a.ID.String()).Str("status", a.Status).Msg("analysis already processed, skipping")
		return nil
	}
	err = p.svc.process(ctx, a)
	if errors.Is(err, apperr.ErrInvalidState) {
		// Processed concurrently, e.g. by a manual trigger.
		return nil
	}
	return err
}
