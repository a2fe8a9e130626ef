package dashboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/roudayn-kouka/App4Doctors/internal/domain/patient"
)

// MergeActivity interleaves the three feeds newest first and keeps limit entries.
func MergeActivity(appointments []AppointmentRow, analyses []AnalysisRow, prescriptions []PrescriptionRow, limit int) []Activity {
	out := make([]Activity, 0, len(appointments)+len(analyses)+len(prescriptions))
	for _, a := range appointments {
		out = append(out, Activity{
			Type:        "appointment",
			ID:          a.ID,
			PatientName: a.Patient.Name,
			Description: fmt.Sprintf("Appointment scheduled for %s at %s", a.Date.Format("Mon Jan 02 2006"), a.Time),
			Timestamp:   a.CreatedAt,
			Status:      a.Status,
		})
	}
	for _, a := range analyses {
		out = append(out, Activity{
			Type:        "analysis",
			ID:          a.ID,
			PatientName: a.PatientName,
			Description: fmt.Sprintf("%s analysis uploaded", a.Type),
			Timestamp:   a.CreatedAt,
			Status:      a.Status,
		})
	}
	for _, p := range prescriptions {
		out = append(out, Activity{
			Type:        "prescription",
			ID:          p.ID,
			PatientName: p.PatientName,
			Description: fmt.Sprintf("Prescription created with %d medication(s)", p.Medications),
			Timestamp:   p.CreatedAt,
			Status:      p.Status,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// AlertInputs are the candidate rows of every alert category.
type AlertInputs struct {
	HighRisk     []PatientRow
	Overdue      []AppointmentRow
	Expired      []PrescriptionRow
	StalePending []AnalysisRow
}

// BuildAlerts derives alerts from the candidates, keeping at most five per
// category, and returns the ten most severe, newest first within a severity.
func BuildAlerts(in AlertInputs) []Alert {
	var out []Alert
	for i, p := range in.HighRisk {
		if i == alertsPerCategory {
			break
		}
		id := p.ID
		out = append(out, Alert{
			Type:       AlertHighRisk,
			Severity:   SeverityHigh,
			Message:    fmt.Sprintf("%s has a high risk score of %d%%", p.Name, p.RiskScore),
			PatientID:  &id,
			ResourceID: p.ID,
			Timestamp:  p.UpdatedAt,
		})
	}
	for i, a := range in.Overdue {
		if i == alertsPerCategory {
			break
		}
		out = append(out, Alert{
			Type:       AlertOverdueAppointment,
			Severity:   SeverityMedium,
			Message:    fmt.Sprintf("Overdue appointment with %s", a.Patient.Name),
			PatientID:  patientRef(a.Patient.ID),
			ResourceID: a.ID,
			Timestamp:  a.Date,
		})
	}
	for i, p := range in.Expired {
		if i == alertsPerCategory {
			break
		}
		out = append(out, Alert{
			Type:       AlertExpiredPrescription,
			Severity:   SeverityLow,
			Message:    fmt.Sprintf("Prescription for %s has expired", p.PatientName),
			PatientID:  patientRef(p.PatientID),
			ResourceID: p.ID,
			Timestamp:  p.ValidUntil,
		})
	}
	for i, a := range in.StalePending {
		if i == alertsPerCategory {
			break
		}
		out = append(out, Alert{
			Type:       AlertPendingAnalysis,
			Severity:   SeverityMedium,
			Message:    fmt.Sprintf("Analysis for %s is still pending", a.PatientName),
			PatientID:  patientRef(a.PatientID),
			ResourceID: a.ID,
			Timestamp:  a.CreatedAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := severityRank[out[i].Severity], severityRank[out[j].Severity]
		if ri != rj {
			return ri > rj
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > maxAlerts {
		out = out[:maxAlerts]
	}
	if out == nil {
		out = []Alert{}
	}
	return out
}

func patientRef(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// FillDays returns one entry per day from the day of start through days
// entries, taking counts from byDay and zero elsewhere.
func FillDays(start time.Time, days int, byDay map[time.Time]int) []DayCount {
	out := make([]DayCount, 0, days)
	d := dayOf(start)
	for i := 0; i < days; i++ {
		out = append(out, DayCount{
			Date:  d.Format("2006-01-02"),
			Day:   d.Format("Mon"),
			Count: byDay[d],
		})
		d = d.AddDate(0, 0, 1)
	}
	return out
}

// AverageVitals groups readings per UTC day and averages them. Days without
// readings are omitted. A reading with an unparsable blood pressure still
// counts for the other measures.
func AverageVitals(samples []VitalSample) []VitalsPoint {
	type acc struct {
		n, bpN                 int
		sys, dia, hr, temp, o2 float64
	}
	byDay := make(map[time.Time]*acc)
	for _, s := range samples {
		d := dayOf(s.RecordedAt)
		a, ok := byDay[d]
		if !ok {
			a = &acc{}
			byDay[d] = a
		}
		a.n++
		a.hr += float64(s.HeartRate)
		a.temp += s.Temperature
		a.o2 += float64(s.OxygenSaturation)
		if sys, dia, err := patient.ParseBloodPressure(s.BloodPressure); err == nil {
			a.bpN++
			a.sys += float64(sys)
			a.dia += float64(dia)
		}
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]VitalsPoint, 0, len(days))
	for _, d := range days {
		a := byDay[d]
		p := VitalsPoint{
			Date:             d.Format("2006-01-02"),
			Readings:         a.n,
			HeartRate:        round1(a.hr / float64(a.n)),
			Temperature:      round1(a.temp / float64(a.n)),
			OxygenSaturation: round1(a.o2 / float64(a.n)),
		}
		if a.bpN > 0 {
			p.Systolic = round1(a.sys / float64(a.bpN))
			p.Diastolic = round1(a.dia / float64(a.bpN))
		}
		out = append(out, p)
	}
	return out
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
