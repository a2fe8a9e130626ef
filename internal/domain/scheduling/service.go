package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/db"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/events"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/ref"
)

// PatientDirectory is the slice of the patient service the scheduler needs.
type PatientDirectory interface {
	ActiveSummary(ctx context.Context, doctorID, id uuid.UUID) (ref.PatientSummary, error)
	Summaries(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ref.PatientSummary, error)
	SetNextAppointment(ctx context.Context, doctorID, id uuid.UUID, at time.Time) error
}

type Service struct {
	appointments Repository
	patients     PatientDirectory
	tx           db.TxFunc
	policy       StatusPolicy
	publisher    events.Publisher
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(appointments Repository, patients PatientDirectory, tx db.TxFunc, policy StatusPolicy, publisher events.Publisher, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoTx
	}
	if policy == "" {
		policy = PolicyPermissive
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		appointments: appointments,
		patients:     patients,
		tx:           tx,
		policy:       policy,
		publisher:    publisher,
		logger:       logger.With().Str("component", "scheduling").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Create books a scheduled appointment. The slot must be free and the patient
// must be an active patient of the doctor. The patient's next appointment is
// set to the booked date.
func (s *Service) Create(ctx context.Context, doctorID uuid.UUID, in CreateInput) (*Appointment, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperr.Validation("valid patient ID is required")
	}
	date, err := ParseDate(in.Date)
	if err != nil {
		return nil, err
	}
	hhmm, err := NormalizeTime(in.Time)
	if err != nil {
		return nil, err
	}
	if err := validateType(in.Type); err != nil {
		return nil, err
	}
	duration := DefaultDuration
	if in.Duration != nil {
		duration = *in.Duration
	}
	if err := validateDuration(duration); err != nil {
		return nil, err
	}
	meetLink := ""
	if in.Type == TypeTelemedicine {
		meetLink = strings.TrimSpace(in.MeetLink)
		if err := validateMeetLink(meetLink); err != nil {
			return nil, err
		}
	}

	summary, err := s.patients.ActiveSummary(ctx, doctorID, in.PatientID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSlot(ctx, doctorID, date, hhmm, uuid.Nil); err != nil {
		return nil, err
	}

	now := s.now()
	a := &Appointment{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		PatientID: in.PatientID,
		Date:      date,
		Time:      hhmm,
		Duration:  duration,
		Type:      in.Type,
		Status:    StatusScheduled,
		MeetLink:  meetLink,
		Notes:     strings.TrimSpace(in.Notes),
		Symptoms:  trimAll(in.Symptoms),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.appointments.Create(ctx, a); err != nil {
			return err
		}
		return s.patients.SetNextAppointment(ctx, doctorID, a.PatientID, a.Date)
	})
	if err != nil {
		return nil, wrapStore("create appointment", err)
	}
	a.Patient = &summary

	s.logger.Info().Str("doctor_id", doctorID.String()).Str("appointment_id", a.ID.String()).
		Str("date", a.Date.Format("2006-01-02")).Str("time", a.Time).Msg("appointment created")
	s.emit(ctx, events.AppointmentCreated, a)
	return a, nil
}

func (s *Service) checkSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, hhmm string, exclude uuid.UUID) error {
	_, err := s.appointments.FindScheduledAt(ctx, doctorID, date, hhmm, exclude)
	switch {
	case err == nil:
		return apperr.SlotConflict("time slot already booked")
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("check slot: %w", err)
	}
}

func (s *Service) Get(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	if err := s.populate(ctx, doctorID, []*Appointment{a}); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Appointment, int, error) {
	if err := filter.validate(); err != nil {
		return nil, 0, err
	}
	items, total, err := s.appointments.List(ctx, doctorID, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if err := s.populate(ctx, doctorID, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update applies a partial edit. A date, time or status change that leaves
// the appointment scheduled re-checks the slot, excluding the appointment
// itself. Status changes go through the configured policy.
func (s *Service) Update(ctx context.Context, doctorID, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	prevDate, prevTime, prevStatus := a.Date, a.Time, a.Status

	if in.Date != nil {
		if a.Date, err = ParseDate(*in.Date); err != nil {
			return nil, err
		}
	}
	if in.Time != nil {
		if a.Time, err = NormalizeTime(*in.Time); err != nil {
			return nil, err
		}
	}
	if in.Type != nil {
		if err := validateType(*in.Type); err != nil {
			return nil, err
		}
		a.Type = *in.Type
	}
	if in.Duration != nil {
		if err := validateDuration(*in.Duration); err != nil {
			return nil, err
		}
		a.Duration = *in.Duration
	}
	if in.Status != nil {
		if err := validateStatus(*in.Status); err != nil {
			return nil, err
		}
		suspicious, err := s.policy.Check(a.Status, *in.Status)
		if err != nil {
			return nil, err
		}
		if suspicious {
			s.logger.Warn().Str("appointment_id", id.String()).Str("from", a.Status).Str("to", *in.Status).
				Msg("reverse appointment status transition")
		}
		a.Status = *in.Status
	}
	if in.MeetLink != nil {
		a.MeetLink = strings.TrimSpace(*in.MeetLink)
	}
	if a.Type != TypeTelemedicine {
		a.MeetLink = ""
	} else if err := validateMeetLink(a.MeetLink); err != nil {
		return nil, err
	}
	if in.Notes != nil {
		a.Notes = strings.TrimSpace(*in.Notes)
	}
	if in.Symptoms != nil {
		a.Symptoms = trimAll(*in.Symptoms)
	}
	if in.Diagnosis != nil {
		a.Diagnosis = strings.TrimSpace(*in.Diagnosis)
	}
	if in.Treatment != nil {
		a.Treatment = strings.TrimSpace(*in.Treatment)
	}
	if in.FollowUpRequired != nil {
		a.FollowUpRequired = *in.FollowUpRequired
	}
	if in.FollowUpDate != nil {
		if *in.FollowUpDate == "" {
			a.FollowUpDate = nil
		} else {
			d, err := ParseDate(*in.FollowUpDate)
			if err != nil {
				return nil, err
			}
			a.FollowUpDate = &d
		}
	}

	slotMoved := !a.Date.Equal(prevDate) || a.Time != prevTime || a.Status != prevStatus
	if a.Status == StatusScheduled && slotMoved {
		if err := s.checkSlot(ctx, doctorID, a.Date, a.Time, a.ID); err != nil {
			return nil, err
		}
	}

	a.UpdatedAt = s.now()
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, wrapStore("update appointment", err)
	}
	if err := s.populate(ctx, doctorID, []*Appointment{a}); err != nil {
		return nil, err
	}

	s.emit(ctx, events.AppointmentUpdated, a)
	return a, nil
}

// Delete removes the appointment regardless of its status.
func (s *Service) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	a, err := s.appointments.GetByID(ctx, doctorID, id)
	if err != nil {
		return err
	}
	if err := s.appointments.Delete(ctx, doctorID, id); err != nil {
		return wrapStore("delete appointment", err)
	}
	s.logger.Info().Str("doctor_id", doctorID.String()).Str("appointment_id", id.String()).Msg("appointment deleted")
	s.emit(ctx, events.AppointmentDeleted, a)
	return nil
}

func (s *Service) Stats(ctx context.Context, doctorID uuid.UUID) (*Stats, error) {
	return s.appointments.Stats(ctx, doctorID, DayOf(s.now()))
}

// Calendar returns every appointment in the given month, ordered by date
// and time.
func (s *Service) Calendar(ctx context.Context, doctorID uuid.UUID, year, month int) ([]*Appointment, error) {
	if month < 1 || month > 12 || year < 1900 || year > 9999 {
		return nil, apperr.Validation("invalid calendar month %d-%d", year, month)
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	items, err := s.appointments.ListBetween(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	if err := s.populate(ctx, doctorID, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) populate(ctx context.Context, doctorID uuid.UUID, items []*Appointment) error {
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

func (s *Service) emit(ctx context.Context, eventType string, a *Appointment) {
	events.Emit(ctx, s.publisher, s.logger, events.New(eventType, a.DoctorID, "appointment", a.ID,
		map[string]interface{}{
			"patient_id": a.PatientID,
			"date":       a.Date.Format("2006-01-02"),
			"time":       a.Time,
			"status":     a.Status,
			"type":       a.Type,
		}))
}

func wrapStore(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
