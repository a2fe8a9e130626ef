//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roudayn-kouka/App4Doctors/internal/domain/dashboard"
	"github.com/roudayn-kouka/App4Doctors/internal/domain/patient"
	"github.com/roudayn-kouka/App4Doctors/internal/domain/scheduling"
)

func TestDashboardRepo_StatsAndHighRisk(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	doctorID := uuid.New()

	createPatient(t, doctorID, "Lina Saidi", "lina@example.com", 30)
	risky := &patient.Patient{
		Name:       "Omar Belkacem",
		Email:      "omar@example.com",
		Phone:      "0700000000",
		Age:        70,
		Gender:     "male",
		Conditions: []string{"Type 2 Diabetes"},
		Allergies:  []string{},
		Vitals:     patient.Vitals{BloodPressure: "150/95", HeartRate: 110, Temperature: 37, OxygenSaturation: 92},
	}
	if err := newPatientService().Create(ctx, doctorID, risky); err != nil {
		t.Fatalf("create risky patient: %v", err)
	}
	if risky.RiskScore != 80 {
		t.Fatalf("expected risk score 80, got %d", risky.RiskScore)
	}

	today := dayOffset(0)
	appts := scheduling.NewRepoPG(pool)
	if err := appts.Create(ctx, newAppointment(doctorID, risky.ID, today, "23:59")); err != nil {
		t.Fatalf("create appointment: %v", err)
	}

	repo := dashboard.NewRepoPG(pool)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	stats, err := repo.Stats(ctx, doctorID, today, monthStart, dashboard.HighRiskThreshold)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPatients != 2 || stats.HighRiskPatients != 1 || stats.TodayAppointments != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	other, err := repo.Stats(ctx, uuid.New(), today, monthStart, dashboard.HighRiskThreshold)
	if err != nil {
		t.Fatalf("stats for another doctor: %v", err)
	}
	if *other != (dashboard.Stats{}) {
		t.Errorf("expected empty stats for another doctor, got %+v", other)
	}

	rows, err := repo.HighRiskPatients(ctx, doctorID, dashboard.AlertRiskThreshold-1, 5)
	if err != nil {
		t.Fatalf("high risk: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != risky.ID {
		t.Errorf("expected only the risky patient, got %+v", rows)
	}
}
