package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/db"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/events"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/ref"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type Service struct {
	patients  Repository
	vitals    VitalRepository
	tx        db.TxFunc
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(patients Repository, vitals VitalRepository, tx db.TxFunc, publisher events.Publisher, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoTx
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		patients:  patients,
		vitals:    vitals,
		tx:        tx,
		publisher: publisher,
		logger:    logger.With().Str("component", "patient").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates p, fills defaults, scores it and stores it for doctorID.
func (s *Service) Create(ctx context.Context, doctorID uuid.UUID, p *Patient) error {
	now := s.now()
	p.ID = uuid.New()
	p.DoctorID = doctorID
	p.IsActive = true
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.LastVisit.IsZero() {
		p.LastVisit = now
	}
	if p.Vitals == (Vitals{}) {
		p.Vitals = DefaultVitals(now)
	} else {
		p.Vitals = fillVitalDefaults(p.Vitals, now)
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}

	if _, err := s.patients.FindActiveByEmail(ctx, doctorID, p.Email); err == nil {
		return apperr.Uniqueness("patient with this email already exists")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("check patient email: %w", err)
	}

	score, err := ComputeRiskScore(p)
	if err != nil {
		return err
	}
	p.RiskScore = score

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.patients.Create(ctx, p); err != nil {
			return err
		}
		return s.vitals.Append(ctx, readingFrom(p))
	})
	if err != nil {
		return wrapStore("create patient", err)
	}

	s.logger.Info().Str("doctor_id", doctorID.String()).Str("patient_id", p.ID.String()).Int("risk_score", score).Msg("patient created")
	s.notifyRisk(ctx, p, 0)
	return nil
}

func fillVitalDefaults(v Vitals, now time.Time) Vitals {
	d := DefaultVitals(now)
	if v.BloodPressure == "" {
		v.BloodPressure = d.BloodPressure
	}
	if v.HeartRate == 0 {
		v.HeartRate = d.HeartRate
	}
	if v.Temperature == 0 {
		v.Temperature = d.Temperature
	}
	if v.OxygenSaturation == 0 {
		v.OxygenSaturation = d.OxygenSaturation
	}
	v.LastUpdated = now
	return v
}

func (s *Service) Get(ctx context.Context, doctorID, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, doctorID, id)
}

func (s *Service) List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Patient, int, error) {
	if filter.RiskLevel != "" {
		if _, _, ok := RiskBounds(filter.RiskLevel); !ok {
			return nil, 0, apperr.Validation("risk_level must be high, medium or low")
		}
	}
	return s.patients.List(ctx, doctorID, filter, limit, offset)
}

// Update applies a partial edit. The risk score is recomputed when age,
// conditions or vitals change.
func (s *Service) Update(ctx context.Context, doctorID, id uuid.UUID, u Update) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	previous := p.RiskScore
	prevEmail := p.Email
	now := s.now()

	u.apply(p, now)
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if p.Email != prevEmail {
		other, err := s.patients.FindActiveByEmail(ctx, doctorID, p.Email)
		switch {
		case err == nil && other.ID != p.ID:
			return nil, apperr.Uniqueness("patient with this email already exists")
		case err != nil && !errors.Is(err, apperr.ErrNotFound):
			return nil, fmt.Errorf("check patient email: %w", err)
		}
	}

	if u.affectsRisk() {
		score, err := ComputeRiskScore(p)
		if err != nil {
			return nil, err
		}
		p.RiskScore = score
	}
	p.UpdatedAt = now

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.patients.Update(ctx, p); err != nil {
			return err
		}
		if u.Vitals != nil {
			return s.vitals.Append(ctx, readingFrom(p))
		}
		return nil
	})
	if err != nil {
		return nil, wrapStore("update patient", err)
	}

	s.notifyRisk(ctx, p, previous)
	return p, nil
}

// UpdateVitals merges new readings, recomputes the risk score and records
// the reading in the vitals history.
func (s *Service) UpdateVitals(ctx context.Context, doctorID, id uuid.UUID, u VitalsUpdate) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	previous := p.RiskScore
	now := s.now()

	merged := p.Vitals.Merge(u, now)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	p.Vitals = merged

	score, err := ComputeRiskScore(p)
	if err != nil {
		return nil, err
	}
	p.RiskScore = score
	p.UpdatedAt = now

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.patients.Update(ctx, p); err != nil {
			return err
		}
		return s.vitals.Append(ctx, readingFrom(p))
	})
	if err != nil {
		return nil, wrapStore("update vitals", err)
	}

	s.logger.Debug().Str("patient_id", id.String()).Int("risk_score", score).Msg("vitals updated")
	s.notifyRisk(ctx, p, previous)
	return p, nil
}

func (s *Service) VitalsHistory(ctx context.Context, doctorID, id uuid.UUID, limit int) ([]*VitalReading, error) {
	if _, err := s.patients.GetByID(ctx, doctorID, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.vitals.ListByPatient(ctx, doctorID, id, limit)
}

// Delete soft-deletes the patient.
func (s *Service) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	if err := s.patients.Deactivate(ctx, doctorID, id); err != nil {
		return wrapStore("delete patient", err)
	}
	s.logger.Info().Str("doctor_id", doctorID.String()).Str("patient_id", id.String()).Msg("patient deactivated")
	return nil
}

func (s *Service) Stats(ctx context.Context, doctorID uuid.UUID) (*Stats, error) {
	return s.patients.Stats(ctx, doctorID)
}

// ActiveSummary returns the summary of an active patient of doctorID, or
// apperr.ErrNotFound.
func (s *Service) ActiveSummary(ctx context.Context, doctorID, id uuid.UUID) (ref.PatientSummary, error) {
	p, err := s.patients.GetByID(ctx, doctorID, id)
	if err != nil {
		return ref.PatientSummary{}, err
	}
	return summaryOf(p), nil
}

func (s *Service) Summaries(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ref.PatientSummary, error) {
	return s.patients.Summaries(ctx, doctorID, ids)
}

func (s *Service) SetNextAppointment(ctx context.Context, doctorID, id uuid.UUID, at time.Time) error {
	return s.patients.SetNextAppointment(ctx, doctorID, id, at)
}

// notifyRisk publishes patient.high_risk when the score crosses above the
// alert threshold.
func (s *Service) notifyRisk(ctx context.Context, p *Patient, previous int) {
	if p.RiskScore <= AlertRiskThreshold || previous > AlertRiskThreshold {
		return
	}
	events.Emit(ctx, s.publisher, s.logger, events.New(events.PatientHighRisk, p.DoctorID, "patient", p.ID,
		map[string]interface{}{"name": p.Name, "risk_score": p.RiskScore}))
}

// wrapStore keeps apperr kinds intact and wraps everything else.
func wrapStore(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
