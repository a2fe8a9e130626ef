package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "dashboard").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Stats(ctx context.Context, doctorID uuid.UUID) (*Stats, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.repo.Stats(ctx, doctorID, dayOf(now), monthStart, HighRiskThreshold)
}

// RecentActivity merges the newest appointments, analyses and prescriptions.
func (s *Service) RecentActivity(ctx context.Context, doctorID uuid.UUID, limit int) ([]Activity, error) {
	limit = clampLimit(limit, defaultActivityLimit)

	var (
		appointments  []AppointmentRow
		analyses      []AnalysisRow
		prescriptions []PrescriptionRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		appointments, err = s.repo.RecentAppointments(gctx, doctorID, limit)
		return err
	})
	g.Go(func() (err error) {
		analyses, err = s.repo.RecentAnalyses(gctx, doctorID, limit)
		return err
	})
	g.Go(func() (err error) {
		prescriptions, err = s.repo.RecentPrescriptions(gctx, doctorID, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return MergeActivity(appointments, analyses, prescriptions, limit), nil
}

func (s *Service) UpcomingAppointments(ctx context.Context, doctorID uuid.UUID, limit int) ([]AppointmentRow, error) {
	items, err := s.repo.UpcomingAppointments(ctx, doctorID, s.now(), clampLimit(limit, defaultUpcomingLimit))
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []AppointmentRow{}
	}
	return items, nil
}

// Alerts evaluates every alert rule for the doctor.
func (s *Service) Alerts(ctx context.Context, doctorID uuid.UUID) ([]Alert, error) {
	now := s.now()
	var in AlertInputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.HighRisk, err = s.repo.HighRiskPatients(gctx, doctorID, AlertRiskThreshold, alertsPerCategory)
		return err
	})
	g.Go(func() (err error) {
		in.Overdue, err = s.repo.OverdueAppointments(gctx, doctorID, now, alertsPerCategory)
		return err
	})
	g.Go(func() (err error) {
		in.Expired, err = s.repo.ExpiredPrescriptions(gctx, doctorID, now, alertsPerCategory)
		return err
	})
	g.Go(func() (err error) {
		in.StalePending, err = s.repo.PendingAnalysesBefore(gctx, doctorID, now.Add(-stalePendingAfter), alertsPerCategory)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	alerts := BuildAlerts(in)
	s.logger.Debug().Str("doctor_id", doctorID.String()).Int("alerts", len(alerts)).Msg("alerts evaluated")
	return alerts, nil
}

// AppointmentChart counts appointments per day over the last days days,
// today included.
func (s *Service) AppointmentChart(ctx context.Context, doctorID uuid.UUID, days int) ([]DayCount, error) {
	days = clampDays(days)
	today := dayOf(s.now())
	from := today.AddDate(0, 0, -(days - 1))
	counts, err := s.repo.AppointmentCounts(ctx, doctorID, from, today)
	if err != nil {
		return nil, err
	}
	return FillDays(from, days, counts), nil
}

// VitalsChart averages the recorded readings per day over the last days days.
func (s *Service) VitalsChart(ctx context.Context, doctorID uuid.UUID, patientID *uuid.UUID, days int) ([]VitalsPoint, error) {
	days = clampDays(days)
	since := dayOf(s.now()).AddDate(0, 0, -(days - 1))
	samples, err := s.repo.VitalSamples(ctx, doctorID, patientID, since)
	if err != nil {
		return nil, err
	}
	return AverageVitals(samples), nil
}
