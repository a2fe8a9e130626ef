package prescription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/events"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/ref"
)

// numberAttempts bounds how many fresh numbers Issue tries before giving up.
const numberAttempts = 3

var errNotPending = apperr.InvalidState("only pending prescriptions can be deleted")

// PatientDirectory resolves the patients a prescription refers to.
type PatientDirectory interface {
	ActiveSummary(ctx context.Context, doctorID, id uuid.UUID) (ref.PatientSummary, error)
	Summaries(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ref.PatientSummary, error)
}

// DoctorDirectory resolves the prescribing doctor for rendered documents.
type DoctorDirectory interface {
	DoctorSummary(ctx context.Context, id uuid.UUID) (ref.DoctorSummary, error)
}

type Service struct {
	prescriptions Repository
	patients      PatientDirectory
	doctors       DoctorDirectory
	publisher     events.Publisher
	logger        zerolog.Logger
	now           func() time.Time
	entropy       io.Reader
}

func NewService(prescriptions Repository, patients PatientDirectory, doctors DoctorDirectory, publisher events.Publisher, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		prescriptions: prescriptions,
		patients:      patients,
		doctors:       doctors,
		publisher:     publisher,
		logger:        logger.With().Str("component", "prescription").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Issue validates the medications, checks the patient and stores a pending
// prescription under a freshly generated number. A number collision is
// retried with a new number; the stored record is never overwritten.
func (s *Service) Issue(ctx context.Context, doctorID uuid.UUID, in IssueInput) (*Prescription, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperr.Validation("valid patient ID is required")
	}
	meds, err := normalizeMedications(in.Medications)
	if err != nil {
		return nil, err
	}
	now := s.now()
	validUntil := now.Add(DefaultValidity)
	if in.ValidUntil != nil {
		if !in.ValidUntil.After(now) {
			return nil, apperr.Validation("valid_until must be in the future")
		}
		validUntil = in.ValidUntil.UTC()
	}

	summary, err := s.patients.ActiveSummary(ctx, doctorID, in.PatientID)
	if err != nil {
		return nil, err
	}

	p := &Prescription{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		PatientID:   in.PatientID,
		Medications: meds,
		Status:      StatusPending,
		ValidUntil:  validUntil,
		Pharmacy:    strings.TrimSpace(in.Pharmacy),
		Notes:       strings.TrimSpace(in.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for attempt := 1; ; attempt++ {
		if p.Number, err = NewNumber(s.now(), s.entropy); err != nil {
			return nil, err
		}
		err = s.prescriptions.Create(ctx, p)
		if err == nil {
			break
		}
		if !errors.Is(err, apperr.ErrUniqueness) {
			return nil, fmt.Errorf("create prescription: %w", err)
		}
		s.logger.Warn().Str("number", p.Number).Int("attempt", attempt).Msg("prescription number collision")
		if attempt == numberAttempts {
			return nil, apperr.Uniqueness("could not allocate a unique prescription number")
		}
	}
	p.Patient = &summary

	s.logger.Info().Str("doctor_id", doctorID.String()).Str("prescription_id", p.ID.String()).
		Str("number", p.Number).Int("medications", len(p.Medications)).Msg("prescription issued")
	s.emit(ctx, events.PrescriptionIssued, p)
	return p, nil
}

// expire applies CheckExpiration and persists the change once.
func (s *Service) expire(ctx context.Context, p *Prescription) error {
	now := s.now()
	if !p.CheckExpiration(now) {
		return nil
	}
	if err := s.prescriptions.MarkExpired(ctx, p.DoctorID, p.ID, now); err != nil {
		return fmt.Errorf("expire prescription: %w", err)
	}
	s.emit(ctx, events.PrescriptionStatus, p)
	return nil
}

func (s *Service) load(ctx context.Context, doctorID, id uuid.UUID) (*Prescription, error) {
	p, err := s.prescriptions.GetByID(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	if err := s.expire(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, doctorID, id uuid.UUID) (*Prescription, error) {
	p, err := s.load(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	if err := s.populate(ctx, doctorID, []*Prescription{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Prescription, int, error) {
	if filter.Status != "" {
		if err := validateStatus(filter.Status); err != nil {
			return nil, 0, err
		}
	}
	items, total, err := s.prescriptions.List(ctx, doctorID, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, p := range items {
		if err := s.expire(ctx, p); err != nil {
			return nil, 0, err
		}
	}
	if err := s.populate(ctx, doctorID, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update applies a partial edit. Medications can only change while the
// prescription is pending; status changes go through the transition rules.
func (s *Service) Update(ctx context.Context, doctorID, id uuid.UUID, in UpdateInput) (*Prescription, error) {
	p, err := s.load(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	prevStatus := p.Status

	if in.Medications != nil {
		if p.Status != StatusPending {
			return nil, apperr.InvalidState("medications can only be changed while the prescription is pending")
		}
		if p.Medications, err = normalizeMedications(*in.Medications); err != nil {
			return nil, err
		}
	}
	if in.ValidUntil != nil {
		if !in.ValidUntil.After(now) {
			return nil, apperr.Validation("valid_until must be in the future")
		}
		p.ValidUntil = in.ValidUntil.UTC()
	}
	if in.Pharmacy != nil {
		p.Pharmacy = strings.TrimSpace(*in.Pharmacy)
	}
	if in.Notes != nil {
		p.Notes = strings.TrimSpace(*in.Notes)
	}
	if in.PharmacistNotes != nil {
		p.PharmacistNotes = strings.TrimSpace(*in.PharmacistNotes)
	}
	if in.Status != nil {
		if err := p.Transition(*in.Status, now); err != nil {
			return nil, err
		}
	}

	p.UpdatedAt = now
	if err := s.prescriptions.Update(ctx, p, prevStatus); err != nil {
		return nil, wrapStore("update prescription", err)
	}
	if err := s.populate(ctx, doctorID, []*Prescription{p}); err != nil {
		return nil, err
	}
	if p.Status != prevStatus {
		s.logger.Info().Str("prescription_id", p.ID.String()).Str("from", prevStatus).Str("to", p.Status).
			Msg("prescription status changed")
		s.emit(ctx, events.PrescriptionStatus, p)
	}
	return p, nil
}

// UpdateStatus is Update restricted to the status field.
func (s *Service) UpdateStatus(ctx context.Context, doctorID, id uuid.UUID, status string) (*Prescription, error) {
	return s.Update(ctx, doctorID, id, UpdateInput{Status: &status})
}

// Delete removes a prescription that is still pending. The store re-checks
// the status, so a prescription sent or filled after it was read survives.
func (s *Service) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	p, err := s.load(ctx, doctorID, id)
	if err != nil {
		return err
	}
	if p.Status != StatusPending {
		return errNotPending
	}
	err = s.prescriptions.DeletePending(ctx, doctorID, id)
	if errors.Is(err, apperr.ErrNotFound) {
		if _, getErr := s.prescriptions.GetByID(ctx, doctorID, id); getErr == nil {
			return errNotPending
		}
	}
	if err != nil {
		return wrapStore("delete prescription", err)
	}
	s.logger.Info().Str("doctor_id", doctorID.String()).Str("prescription_id", id.String()).Msg("prescription deleted")
	return nil
}

func (s *Service) Stats(ctx context.Context, doctorID uuid.UUID) (*Stats, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.prescriptions.Stats(ctx, doctorID, monthStart)
}

// Document renders the ordonnance for download.
func (s *Service) Document(ctx context.Context, doctorID, id uuid.UUID) (*Document, error) {
	p, err := s.Get(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	patient := ref.PatientSummary{ID: p.PatientID}
	if p.Patient != nil {
		patient = *p.Patient
	}
	doctor, err := s.doctors.DoctorSummary(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return RenderDocument(p, patient, doctor, s.now())
}

func (s *Service) populate(ctx context.Context, doctorID uuid.UUID, items []*Prescription) error {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]bool, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, p := range items {
		if !seen[p.PatientID] {
			seen[p.PatientID] = true
			ids = append(ids, p.PatientID)
		}
	}
	summaries, err := s.patients.Summaries(ctx, doctorID, ids)
	if err != nil {
		return fmt.Errorf("populate patients: %w", err)
	}
	for _, p := range items {
		if sum, ok := summaries[p.PatientID]; ok {
			sum := sum
			p.Patient = &sum
		}
	}
	return nil
}

func (s *Service) emit(ctx context.Context, eventType string, p *Prescription) {
	events.Emit(ctx, s.publisher, s.logger, events.New(eventType, p.DoctorID, "prescription", p.ID,
		map[string]interface{}{
			"patient_id":          p.PatientID,
			"prescription_number": p.Number,
			"status":              p.Status,
		}))
}

func wrapStore(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
