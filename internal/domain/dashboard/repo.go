package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the read model behind the dashboard. Every query is scoped to
// one doctor. Appointment slots compare as UTC date plus "HH:MM" text.
type Repository interface {
	Stats(ctx context.Context, doctorID uuid.UUID, today, monthStart time.Time, highRiskAbove int) (*Stats, error)

	RecentAppointments(ctx context.Context, doctorID uuid.UUID, limit int) ([]AppointmentRow, error)
	RecentAnalyses(ctx context.Context, doctorID uuid.UUID, limit int) ([]AnalysisRow, error)
	RecentPrescriptions(ctx context.Context, doctorID uuid.UUID, limit int) ([]PrescriptionRow, error)

	// UpcomingAppointments lists scheduled appointments whose slot is at or
	// after now, soonest first.
	UpcomingAppointments(ctx context.Context, doctorID uuid.UUID, now time.Time, limit int) ([]AppointmentRow, error)
	// OverdueAppointments lists scheduled appointments whose slot is before now.
	OverdueAppointments(ctx context.Context, doctorID uuid.UUID, now time.Time, limit int) ([]AppointmentRow, error)

	HighRiskPatients(ctx context.Context, doctorID uuid.UUID, above, limit int) ([]PatientRow, error)
	// ExpiredPrescriptions lists prescriptions past validity that are neither
	// marked expired nor filled.
	ExpiredPrescriptions(ctx context.Context, doctorID uuid.UUID, now time.Time, limit int) ([]PrescriptionRow, error)
	PendingAnalysesBefore(ctx context.Context, doctorID uuid.UUID, before time.Time, limit int) ([]AnalysisRow, error)

	// AppointmentCounts counts appointments per day in [from, to].
	AppointmentCounts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (map[time.Time]int, error)
	// VitalSamples returns readings recorded since the cutoff, optionally
	// for a single patient.
	VitalSamples(ctx context.Context, doctorID uuid.UUID, patientID *uuid.UUID, since time.Time) ([]VitalSample, error)
}

func slotOf(now time.Time) (time.Time, string) {
	now = now.UTC()
	return dayOf(now), now.Format("15:04")
}
