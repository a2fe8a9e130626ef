//go:build integration

// Package integration runs the Postgres repositories against a real database.
// Run with: go test -tags integration ./test/integration/...
// Set INTEGRATION_DATABASE_URL to reuse a running server instead of Docker.
package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/roudayn-kouka/App4Doctors/internal/domain/patient"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/db"
	"github.com/roudayn-kouka/App4Doctors/migrations"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr := os.Getenv("INTEGRATION_DATABASE_URL")
	cleanup := func() {}
	if connStr == "" {
		var err error
		connStr, cleanup, err = startPostgresContainer(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
			os.Exit(1)
		}
	}

	var err error
	pool, err = db.NewPool(ctx, connStr, 5, 1)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// resetTables empties every table so each test starts from a clean store.
func resetTables(t *testing.T) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE analyses, prescriptions, appointments, vital_readings, patients, doctors CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func newPatientService() *patient.Service {
	return patient.NewService(patient.NewRepoPG(pool), patient.NewVitalRepoPG(pool), db.PoolTx(pool), nil, zerolog.Nop())
}

// createPatient stores an active patient for doctorID and returns it.
func createPatient(t *testing.T, doctorID uuid.UUID, name, email string, age int) *patient.Patient {
	t.Helper()
	p := &patient.Patient{
		Name:       name,
		Email:      email,
		Phone:      "0612345678",
		Age:        age,
		Gender:     "female",
		Conditions: []string{},
		Allergies:  []string{},
	}
	if err := newPatientService().Create(context.Background(), doctorID, p); err != nil {
		t.Fatalf("create patient %s: %v", name, err)
	}
	return p
}

func dayOffset(days int) time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
}
