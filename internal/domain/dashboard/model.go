// Package dashboard aggregates read-only views over patients, appointments,
// prescriptions, analyses and vital readings for the acting doctor.
package dashboard

import (
	"time"

	"github.com/google/uuid"

	"github.com/roudayn-kouka/App4Doctors/internal/domain/patient"
)

const (
	// HighRiskThreshold is the score above which a patient counts as high
	// risk in the statistics.
	HighRiskThreshold = patient.HighRiskThreshold
	// AlertRiskThreshold is the score above which a patient raises an alert.
	AlertRiskThreshold = 80

	alertsPerCategory = 5
	maxAlerts         = 10
	stalePendingAfter = 24 * time.Hour

	defaultActivityLimit = 10
	defaultUpcomingLimit = 5
	defaultChartDays     = 7
	maxChartDays         = 90
	maxListLimit         = 50
)

const (
	AlertHighRisk            = "high-risk"
	AlertOverdueAppointment  = "overdue-appointment"
	AlertExpiredPrescription = "expired-prescription"
	AlertPendingAnalysis     = "pending-analysis"
)

const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

var severityRank = map[string]int{SeverityHigh: 3, SeverityMedium: 2, SeverityLow: 1}

type Stats struct {
	TotalPatients          int `json:"total_patients"`
	TodayAppointments      int `json:"today_appointments"`
	HighRiskPatients       int `json:"high_risk_patients"`
	ThisMonthConsultations int `json:"this_month_consultations"`
	PendingAnalyses        int `json:"pending_analyses"`
	ActivePrescriptions    int `json:"active_prescriptions"`
}

// Activity is one line of the merged recent-activity feed.
type Activity struct {
	Type        string    `json:"type"`
	ID          uuid.UUID `json:"id"`
	PatientName string    `json:"patient_name"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
}

type PatientBrief struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	RiskScore int       `json:"risk_score"`
}

// AppointmentRow is an appointment joined with its patient.
type AppointmentRow struct {
	ID        uuid.UUID    `json:"id"`
	Patient   PatientBrief `json:"patient"`
	Date      time.Time    `json:"date"`
	Time      string       `json:"time"`
	Duration  int          `json:"duration"`
	Type      string       `json:"type"`
	Status    string       `json:"status"`
	MeetLink  string       `json:"meet_link,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type AnalysisRow struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	PatientName string
	Type        string
	Status      string
	CreatedAt   time.Time
}

type PrescriptionRow struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	PatientName string
	Medications int
	Status      string
	ValidUntil  time.Time
	CreatedAt   time.Time
}

type PatientRow struct {
	ID        uuid.UUID
	Name      string
	RiskScore int
	UpdatedAt time.Time
}

// VitalSample is one recorded vitals reading.
type VitalSample struct {
	RecordedAt       time.Time
	BloodPressure    string
	HeartRate        int
	Temperature      float64
	OxygenSaturation int
}

type Alert struct {
	Type       string     `json:"type"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	PatientID  *uuid.UUID `json:"patient_id,omitempty"`
	ResourceID uuid.UUID  `json:"resource_id"`
	Timestamp  time.Time  `json:"timestamp"`
}

type DayCount struct {
	Date  string `json:"date"`
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// VitalsPoint holds the averages of one day of readings.
type VitalsPoint struct {
	Date             string  `json:"date"`
	Readings         int     `json:"readings"`
	Systolic         float64 `json:"systolic"`
	Diastolic        float64 `json:"diastolic"`
	HeartRate        float64 `json:"heart_rate"`
	Temperature      float64 `json:"temperature"`
	OxygenSaturation float64 `json:"oxygen_saturation"`
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func clampDays(days int) int {
	if days <= 0 {
		return defaultChartDays
	}
	if days > maxChartDays {
		return maxChartDays
	}
	return days
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
