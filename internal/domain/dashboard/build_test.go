package dashboard

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

var base = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func TestBuildAlerts_OrderAndCaps(t *testing.T) {
	var in AlertInputs
	for i := 0; i < 7; i++ {
		in.HighRisk = append(in.HighRisk, PatientRow{ID: uuid.New(), Name: "P", RiskScore: 85, UpdatedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	in.Overdue = []AppointmentRow{{ID: uuid.New(), Patient: PatientBrief{ID: uuid.New(), Name: "Karim"}, Date: base.AddDate(0, 0, -1)}}
	in.StalePending = []AnalysisRow{{ID: uuid.New(), PatientID: uuid.New(), PatientName: "Ines", CreatedAt: base.AddDate(0, 0, -2)}}
	in.Expired = []PrescriptionRow{{ID: uuid.New(), PatientID: uuid.New(), PatientName: "Yasmine", ValidUntil: base}}

	alerts := BuildAlerts(in)
	if len(alerts) != 8 {
		t.Fatalf("expected 5 high + 2 medium + 1 low = 8 alerts, got %d", len(alerts))
	}
	for i := 0; i < 5; i++ {
		if alerts[i].Severity != SeverityHigh {
			t.Fatalf("alert %d: expected high first, got %+v", i, alerts[i])
		}
	}
	if !alerts[0].Timestamp.After(alerts[1].Timestamp) {
		t.Error("expected newest first within a severity")
	}
	if alerts[5].Type != AlertOverdueAppointment || alerts[6].Type != AlertPendingAnalysis {
		t.Errorf("expected medium alerts newest first, got %s then %s", alerts[5].Type, alerts[6].Type)
	}
	if alerts[7].Severity != SeverityLow || alerts[7].Message != "Prescription for Yasmine has expired" {
		t.Errorf("unexpected last alert %+v", alerts[7])
	}
	if alerts[0].PatientID == nil || *alerts[0].PatientID != alerts[0].ResourceID {
		t.Error("high-risk alerts reference the patient")
	}
}

func TestBuildAlerts_TopTen(t *testing.T) {
	var in AlertInputs
	for i := 0; i < 5; i++ {
		in.HighRisk = append(in.HighRisk, PatientRow{ID: uuid.New(), RiskScore: 90, UpdatedAt: base})
		in.Overdue = append(in.Overdue, AppointmentRow{ID: uuid.New(), Date: base})
		in.Expired = append(in.Expired, PrescriptionRow{ID: uuid.New(), ValidUntil: base})
		in.StalePending = append(in.StalePending, AnalysisRow{ID: uuid.New(), CreatedAt: base})
	}
	alerts := BuildAlerts(in)
	if len(alerts) != maxAlerts {
		t.Fatalf("expected %d alerts, got %d", maxAlerts, len(alerts))
	}
	for _, a := range alerts {
		if a.Severity == SeverityLow {
			t.Fatal("low severity alerts must be cut first")
		}
	}
}

func TestBuildAlerts_EmptyIsNotNil(t *testing.T) {
	if alerts := BuildAlerts(AlertInputs{}); alerts == nil || len(alerts) != 0 {
		t.Fatalf("expected empty slice, got %#v", alerts)
	}
}

func TestMergeActivity(t *testing.T) {
	appt := AppointmentRow{ID: uuid.New(), Patient: PatientBrief{Name: "Karim"}, Date: base, Time: "09:30", Status: "scheduled", CreatedAt: base.Add(-time.Hour)}
	an := AnalysisRow{ID: uuid.New(), PatientName: "Ines", Type: "ECG", Status: "pending", CreatedAt: base}
	rx := PrescriptionRow{ID: uuid.New(), PatientName: "Yasmine", Medications: 2, Status: "sent", CreatedAt: base.Add(-2 * time.Hour)}

	got := MergeActivity([]AppointmentRow{appt}, []AnalysisRow{an}, []PrescriptionRow{rx}, 2)
	if len(got) != 2 {
		t.Fatalf("expected limit applied, got %d", len(got))
	}
	if got[0].Type != "analysis" || got[0].Description != "ECG analysis uploaded" {
		t.Errorf("unexpected first activity %+v", got[0])
	}
	if got[1].Type != "appointment" || got[1].Description != "Appointment scheduled for Mon Jun 15 2026 at 09:30" {
		t.Errorf("unexpected second activity %+v", got[1])
	}

	all := MergeActivity(nil, nil, []PrescriptionRow{rx}, 10)
	if all[0].Description != "Prescription created with 2 medication(s)" {
		t.Errorf("unexpected description %q", all[0].Description)
	}
}

func TestFillDays(t *testing.T) {
	start := time.Date(2026, 6, 13, 18, 0, 0, 0, time.UTC)
	counts := map[time.Time]int{time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC): 3}

	got := FillDays(start, 3, counts)
	want := []DayCount{
		{Date: "2026-06-13", Day: "Sat", Count: 0},
		{Date: "2026-06-14", Day: "Sun", Count: 3},
		{Date: "2026-06-15", Day: "Mon", Count: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("day %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestAverageVitals(t *testing.T) {
	d1 := time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 2)
	samples := []VitalSample{
		{RecordedAt: d2, BloodPressure: "140/90", HeartRate: 90, Temperature: 99.0, OxygenSaturation: 95},
		{RecordedAt: d1, BloodPressure: "120/80", HeartRate: 70, Temperature: 98.6, OxygenSaturation: 98},
		{RecordedAt: d1.Add(4 * time.Hour), BloodPressure: "130/85", HeartRate: 80, Temperature: 98.8, OxygenSaturation: 96},
		{RecordedAt: d2.Add(time.Hour), BloodPressure: "bad", HeartRate: 100, Temperature: 99.4, OxygenSaturation: 93},
	}

	got := AverageVitals(samples)
	if len(got) != 2 {
		t.Fatalf("expected two days (gap omitted), got %d", len(got))
	}
	first := got[0]
	if first.Date != "2026-06-10" || first.Readings != 2 || first.Systolic != 125 || first.Diastolic != 82.5 || first.HeartRate != 75 || first.Temperature != 98.7 || first.OxygenSaturation != 97 {
		t.Errorf("unexpected first day %+v", first)
	}
	second := got[1]
	if second.Date != "2026-06-12" || second.Readings != 2 || second.Systolic != 140 || second.HeartRate != 95 {
		t.Errorf("unexpected second day %+v", second)
	}

	if out := AverageVitals(nil); len(out) != 0 {
		t.Errorf("expected no points, got %v", out)
	}
}

func TestClamp(t *testing.T) {
	if clampLimit(0, 10) != 10 || clampLimit(500, 10) != maxListLimit || clampLimit(3, 10) != 3 {
		t.Error("unexpected clampLimit")
	}
	if clampDays(0) != defaultChartDays || clampDays(1000) != maxChartDays || clampDays(14) != 14 {
		t.Error("unexpected clampDays")
	}
}
