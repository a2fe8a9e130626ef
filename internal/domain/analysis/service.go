package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/blobstore"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/events"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/jobqueue"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/ref"
)

// PatientDirectory resolves the patients an analysis belongs to.
type PatientDirectory interface {
	ActiveSummary(ctx context.Context, doctorID, id uuid.UUID) (ref.PatientSummary, error)
	Summaries(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ref.PatientSummary, error)
}

// DoctorDirectory resolves reviewers.
type DoctorDirectory interface {
	DoctorSummary(ctx context.Context, id uuid.UUID) (ref.DoctorSummary, error)
}

type Config struct {
	// ProcessingDelay postpones the simulated processing after an upload.
	ProcessingDelay time.Duration
	MaxAttempts     int
	MaxUploadBytes  int64
}

type Service struct {
	analyses  Repository
	blobs     blobstore.Store
	patients  PatientDirectory
	doctors   DoctorDirectory
	queue     jobqueue.Queue
	publisher events.Publisher
	logger    zerolog.Logger
	cfg       Config
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewService(analyses Repository, blobs blobstore.Store, patients PatientDirectory, doctors DoctorDirectory,
	queue jobqueue.Queue, publisher events.Publisher, logger zerolog.Logger, cfg Config) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = blobstore.DefaultMaxFileSize
	}
	return &Service{
		analyses:  analyses,
		blobs:     blobs,
		patients:  patients,
		doctors:   doctors,
		queue:     queue,
		publisher: publisher,
		logger:    logger.With().Str("component", "analysis").Logger(),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func uploadErr(err error) error {
	switch {
	case errors.Is(err, blobstore.ErrFileTooLarge),
		errors.Is(err, blobstore.ErrInvalidContentType),
		errors.Is(err, blobstore.ErrMissingFileName):
		return apperr.Wrap(apperr.ErrValidation, err, err.Error())
	}
	return err
}

// Upload stores the file, records a pending analysis and schedules its
// processing. The stored file is removed again when the record cannot be
// created.
func (s *Service) Upload(ctx context.Context, doctorID uuid.UUID, in UploadInput, content io.Reader) (*Analysis, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperr.Validation("valid patient ID is required")
	}
	in.Type = strings.TrimSpace(in.Type)
	if err := validateType(in.Type); err != nil {
		return nil, err
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if err := validatePriority(in.Priority); err != nil {
		return nil, err
	}
	if err := blobstore.ValidateUpload(in.FileName, in.ContentType, in.Size, s.cfg.MaxUploadBytes); err != nil {
		return nil, uploadErr(err)
	}

	summary, err := s.patients.ActiveSummary(ctx, doctorID, in.PatientID)
	if err != nil {
		return nil, err
	}

	obj, err := s.blobs.Save(ctx, blobstore.Object{FileName: in.FileName, ContentType: in.ContentType}, content)
	if err != nil {
		return nil, fmt.Errorf("store analysis file: %w", uploadErr(err))
	}

	now := s.now()
	a := &Analysis{
		ID:            uuid.New(),
		DoctorID:      doctorID,
		PatientID:     in.PatientID,
		Type:          in.Type,
		FileName:      in.FileName,
		FileSize:      blobstore.FormatSize(obj.Size),
		FilePath:      obj.Key,
		ContentType:   in.ContentType,
		Status:        StatusPending,
		ProcessingLog: []LogEntry{},
		Priority:      in.Priority,
		Tags:          []string{},
		UploadDate:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.analyses.Create(ctx, a); err != nil {
		if derr := s.blobs.Delete(ctx, obj.Key); derr != nil && !errors.Is(derr, blobstore.ErrBlobNotFound) {
			s.logger.Error().Err(derr).Str("key", obj.Key).Msg("failed to remove orphaned analysis file")
		}
		return nil, wrapStore("create analysis", err)
	}
	a.Patient = &summary

	if _, err := s.Enqueue(ctx, a); err != nil {
		// The reconciler picks the analysis up again once it is stale.
		s.logger.Error().Err(err).Str("analysis_id", a.ID.String()).Msg("failed to schedule analysis processing")
	}

	s.logger.Info().Str("doctor_id", doctorID.String()).Str("analysis_id", a.ID.String()).
		Str("type", a.Type).Str("size", a.FileSize).Msg("analysis uploaded")
	s.emit(ctx, events.AnalysisUploaded, a)
	return a, nil
}

// Enqueue schedules processing of a. It reports false when a job for the
// analysis is already waiting.
func (s *Service) Enqueue(ctx context.Context, a *Analysis) (bool, error) {
	job, err := jobqueue.NewJob(JobKind, dedupeKey(a.ID), jobPayload{AnalysisID: a.ID, DoctorID: a.DoctorID},
		s.now().Add(s.cfg.ProcessingDelay), s.cfg.MaxAttempts)
	if err != nil {
		return false, err
	}
	return s.queue.Enqueue(ctx, job)
}

func (s *Service) Get(ctx context.Context, doctorID, id uuid.UUID) (*Analysis, error) {
	a, err := s.analyses.GetByID(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	if err := s.populate(ctx, doctorID, []*Analysis{a}); err != nil {
		return nil, err
	}
	if a.ReviewedBy != nil {
		reviewer, err := s.doctors.DoctorSummary(ctx, *a.ReviewedBy)
		if err == nil {
			a.Reviewer = &reviewer
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("populate reviewer: %w", err)
		}
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Analysis, int, error) {
	if err := filter.validate(); err != nil {
		return nil, 0, err
	}
	items, total, err := s.analyses.List(ctx, doctorID, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if err := s.populate(ctx, doctorID, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Process runs the simulated processing now. Only pending analyses qualify.
func (s *Service) Process(ctx context.Context, doctorID, id uuid.UUID) (*Analysis, error) {
	a, err := s.analyses.GetByID(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	if err := s.process(ctx, a); err != nil {
		return nil, err
	}
	if err := s.populate(ctx, doctorID, []*Analysis{a}); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) process(ctx context.Context, a *Analysis) error {
	s.rngMu.Lock()
	err := SimulateProcessing(a, s.rng, s.now())
	s.rngMu.Unlock()
	if err != nil {
		return err
	}
	if err := s.analyses.Update(ctx, a, StatusPending); err != nil {
		return wrapStore("update analysis", err)
	}
	entry := a.ProcessingLog[len(a.ProcessingLog)-1]
	s.logger.Info().Str("analysis_id", a.ID.String()).Float64("confidence", entry.Confidence).
		Dur("processing_time", a.ProcessingTime()).Msg("analysis processed")
	s.emit(ctx, events.AnalysisProcessed, a)
	return nil
}

// Review closes a processed analysis as reviewed or archived by the acting doctor.
func (s *Service) Review(ctx context.Context, doctorID, id uuid.UUID, in ReviewInput) (*Analysis, error) {
	target := in.Status
	if target == "" {
		target = StatusReviewed
	}
	a, err := s.analyses.GetByID(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	if err := Review(a, doctorID, strings.TrimSpace(in.Notes), target, s.now()); err != nil {
		return nil, err
	}
	if err := s.analyses.Update(ctx, a, StatusProcessed); err != nil {
		return nil, wrapStore("update analysis", err)
	}
	s.logger.Info().Str("analysis_id", a.ID.String()).Str("status", a.Status).Msg("analysis reviewed")
	s.emit(ctx, events.AnalysisReviewed, a)
	return s.Get(ctx, doctorID, id)
}

// UpdateMeta edits type, priority and tags in any state.
func (s *Service) UpdateMeta(ctx context.Context, doctorID, id uuid.UUID, in MetaInput) (*Analysis, error) {
	a, err := s.analyses.GetByID(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	if in.Type != nil {
		t := strings.TrimSpace(*in.Type)
		if err := validateType(t); err != nil {
			return nil, err
		}
		a.Type = t
	}
	if in.Priority != nil {
		if err := validatePriority(*in.Priority); err != nil {
			return nil, err
		}
		a.Priority = *in.Priority
	}
	if in.Tags != nil {
		a.Tags = trimAll(*in.Tags)
	}
	a.UpdatedAt = s.now()
	if err := s.analyses.Update(ctx, a, a.Status); err != nil {
		return nil, wrapStore("update analysis", err)
	}
	if err := s.populate(ctx, doctorID, []*Analysis{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes the stored file and then the record. A file that is
// already gone does not block the deletion; any other storage error does.
func (s *Service) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	a, err := s.analyses.GetByID(ctx, doctorID, id)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, a.FilePath); err != nil {
		if !errors.Is(err, blobstore.ErrBlobNotFound) {
			return fmt.Errorf("delete analysis file: %w", err)
		}
		s.logger.Warn().Str("analysis_id", id.String()).Str("key", a.FilePath).Msg("analysis file already missing")
	}
	if err := s.analyses.Delete(ctx, doctorID, id); err != nil {
		return wrapStore("delete analysis", err)
	}
	s.logger.Info().Str("doctor_id", doctorID.String()).Str("analysis_id", id.String()).Msg("analysis deleted")
	return nil
}

// Open returns the stored file of an analysis. The caller closes it.
func (s *Service) Open(ctx context.Context, doctorID, id uuid.UUID) (io.ReadCloser, *Analysis, error) {
	a, err := s.analyses.GetByID(ctx, doctorID, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, a.FilePath)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			return nil, nil, apperr.NotFound("analysis file not found")
		}
		return nil, nil, fmt.Errorf("open analysis file: %w", err)
	}
	return rc, a, nil
}

func (s *Service) Stats(ctx context.Context, doctorID uuid.UUID) (*Stats, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.analyses.Stats(ctx, doctorID, monthStart)
}

func (s *Service) populate(ctx context.Context, doctorID uuid.UUID, items []*Analysis) error {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]bool, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, a := range items {
		if !seen[a.PatientID] {
			seen[a.PatientID] = true
			ids = append(ids, a.PatientID)
		}
	}
	summaries, err := s.patients.Summaries(ctx, doctorID, ids)
	if err != nil {
		return fmt.Errorf("populate patients: %w", err)
	}
	for _, a := range items {
		if sum, ok := summaries[a.PatientID]; ok {
			sum := sum
			a.Patient = &sum
		}
	}
	return nil
}

func (s *Service) emit(ctx context.Context, eventType string, a *Analysis) {
	events.Emit(ctx, s.publisher, s.logger, events.New(eventType, a.DoctorID, "analysis", a.ID,
		map[string]interface{}{
			"patient_id": a.PatientID,
			"type":       a.Type,
			"status":     a.Status,
			"priority":   a.Priority,
		}))
}

func wrapStore(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
