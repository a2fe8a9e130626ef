package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/auth"
)

// -- Mock Repository --

type mockRepo struct {
	mu    sync.Mutex
	calls map[string][]interface{}

	stats   Stats
	recent  []AppointmentRow
	overdue []AppointmentRow
	counts  map[time.Time]int
	samples []VitalSample
	failOn  string
}

func (m *mockRepo) record(name string, args ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string][]interface{})
	}
	m.calls[name] = args
	if m.failOn == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (m *mockRepo) Stats(_ context.Context, doctorID uuid.UUID, today, monthStart time.Time, above int) (*Stats, error) {
	if err := m.record("Stats", today, monthStart, above); err != nil {
		return nil, err
	}
	s := m.stats
	return &s, nil
}

func (m *mockRepo) RecentAppointments(_ context.Context, _ uuid.UUID, limit int) ([]AppointmentRow, error) {
	return m.recent, m.record("RecentAppointments", limit)
}

func (m *mockRepo) RecentAnalyses(_ context.Context, _ uuid.UUID, limit int) ([]AnalysisRow, error) {
	return nil, m.record("RecentAnalyses", limit)
}

func (m *mockRepo) RecentPrescriptions(_ context.Context, _ uuid.UUID, limit int) ([]PrescriptionRow, error) {
	return nil, m.record("RecentPrescriptions", limit)
}

func (m *mockRepo) UpcomingAppointments(_ context.Context, _ uuid.UUID, now time.Time, limit int) ([]AppointmentRow, error) {
	return nil, m.record("UpcomingAppointments", now, limit)
}

func (m *mockRepo) OverdueAppointments(_ context.Context, _ uuid.UUID, now time.Time, limit int) ([]AppointmentRow, error) {
	return m.overdue, m.record("OverdueAppointments", now, limit)
}

func (m *mockRepo) HighRiskPatients(_ context.Context, _ uuid.UUID, above, limit int) ([]PatientRow, error) {
	return nil, m.record("HighRiskPatients", above, limit)
}

func (m *mockRepo) ExpiredPrescriptions(_ context.Context, _ uuid.UUID, now time.Time, limit int) ([]PrescriptionRow, error) {
	return nil, m.record("ExpiredPrescriptions", now, limit)
}

func (m *mockRepo) PendingAnalysesBefore(_ context.Context, _ uuid.UUID, before time.Time, limit int) ([]AnalysisRow, error) {
	return nil, m.record("PendingAnalysesBefore", before, limit)
}

func (m *mockRepo) AppointmentCounts(_ context.Context, _ uuid.UUID, from, to time.Time) (map[time.Time]int, error) {
	return m.counts, m.record("AppointmentCounts", from, to)
}

func (m *mockRepo) VitalSamples(_ context.Context, _ uuid.UUID, patientID *uuid.UUID, since time.Time) ([]VitalSample, error) {
	return m.samples, m.record("VitalSamples", patientID, since)
}

var clock = time.Date(2026, 6, 15, 14, 45, 0, 0, time.UTC)

func newTestService(repo *mockRepo) *Service {
	svc := NewService(repo, zerolog.Nop())
	svc.now = func() time.Time { return clock }
	return svc
}

func TestService_StatsBoundaries(t *testing.T) {
	repo := &mockRepo{stats: Stats{TotalPatients: 12}}
	got, err := newTestService(repo).Stats(context.Background(), uuid.New())
	if err != nil || got.TotalPatients != 12 {
		t.Fatalf("Stats: %+v %v", got, err)
	}
	args := repo.calls["Stats"]
	if !args[0].(time.Time).Equal(time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected today %v", args[0])
	}
	if !args[1].(time.Time).Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected month start %v", args[1])
	}
	if args[2].(int) != 70 {
		t.Errorf("expected high-risk stat threshold 70, got %v", args[2])
	}
}

func TestService_AlertsQueriesEveryRule(t *testing.T) {
	repo := &mockRepo{overdue: []AppointmentRow{{ID: uuid.New(), Patient: PatientBrief{Name: "Karim"}, Date: clock}}}
	alerts, err := newTestService(repo).Alerts(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Message != "Overdue appointment with Karim" {
		t.Errorf("unexpected alerts %+v", alerts)
	}
	if args := repo.calls["HighRiskPatients"]; args[0].(int) != 80 || args[1].(int) != 5 {
		t.Errorf("unexpected high-risk query %v", args)
	}
	if args := repo.calls["PendingAnalysesBefore"]; !args[0].(time.Time).Equal(clock.Add(-24 * time.Hour)) {
		t.Errorf("unexpected pending cutoff %v", args)
	}
	for _, name := range []string{"OverdueAppointments", "ExpiredPrescriptions"} {
		if _, ok := repo.calls[name]; !ok {
			t.Errorf("%s not queried", name)
		}
	}
}

func TestService_AlertsPropagatesErrors(t *testing.T) {
	repo := &mockRepo{failOn: "ExpiredPrescriptions"}
	if _, err := newTestService(repo).Alerts(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error")
	}
}

func TestService_RecentActivityDefaultLimit(t *testing.T) {
	repo := &mockRepo{}
	items, err := newTestService(repo).RecentActivity(context.Background(), uuid.New(), 0)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty feed, got %#v", items)
	}
	if repo.calls["RecentAnalyses"][0].(int) != 10 {
		t.Errorf("expected default limit 10, got %v", repo.calls["RecentAnalyses"])
	}
}

func TestService_AppointmentChartWindow(t *testing.T) {
	repo := &mockRepo{counts: map[time.Time]int{time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC): 4}}
	points, err := newTestService(repo).AppointmentChart(context.Background(), uuid.New(), 0)
	if err != nil {
		t.Fatalf("AppointmentChart: %v", err)
	}
	if len(points) != 7 || points[0].Date != "2026-06-09" || points[6].Date != "2026-06-15" || points[6].Count != 4 {
		t.Errorf("unexpected chart %+v", points)
	}
}

func TestService_VitalsChartScopesPatient(t *testing.T) {
	pid := uuid.New()
	repo := &mockRepo{samples: []VitalSample{{RecordedAt: clock, BloodPressure: "120/80", HeartRate: 72, Temperature: 98.6, OxygenSaturation: 98}}}
	points, err := newTestService(repo).VitalsChart(context.Background(), uuid.New(), &pid, 3)
	if err != nil {
		t.Fatalf("VitalsChart: %v", err)
	}
	if len(points) != 1 || points[0].HeartRate != 72 {
		t.Errorf("unexpected points %+v", points)
	}
	args := repo.calls["VitalSamples"]
	if *args[0].(*uuid.UUID) != pid || !args[1].(time.Time).Equal(time.Date(2026, 6, 13, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected query %v", args)
	}
}

// -- Handler --

func newRequestContext(e *echo.Echo, target string, doctorID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if doctorID != uuid.Nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{ID: doctorID, Role: auth.RoleDoctor}))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError with %d, got %v", want, err)
	}
	if httpErr.Code != want {
		t.Fatalf("expected status %d, got %d (%v)", want, httpErr.Code, httpErr.Message)
	}
}

func TestHandler_Endpoints(t *testing.T) {
	repo := &mockRepo{stats: Stats{PendingAnalyses: 3}}
	h, e := NewHandler(newTestService(repo)), echo.New()
	doctorID := uuid.New()

	c, rec := newRequestContext(e, "/api/v1/dashboard/stats", doctorID)
	if err := h.GetStats(c); err != nil {
		t.Fatalf("stats: %v", err)
	}
	var s Stats
	_ = json.Unmarshal(rec.Body.Bytes(), &s)
	if s.PendingAnalyses != 3 {
		t.Errorf("unexpected stats %s", rec.Body.String())
	}

	c, rec = newRequestContext(e, "/api/v1/dashboard/alerts", doctorID)
	if err := h.GetAlerts(c); err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if rec.Body.String() != "[]\n" {
		t.Errorf("expected empty JSON array, got %q", rec.Body.String())
	}

	c, _ = newRequestContext(e, "/api/v1/dashboard/upcoming-appointments?limit=3", doctorID)
	if err := h.GetUpcomingAppointments(c); err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if repo.calls["UpcomingAppointments"][1].(int) != 3 {
		t.Errorf("limit not forwarded: %v", repo.calls["UpcomingAppointments"])
	}

	c, _ = newRequestContext(e, "/api/v1/dashboard/recent-activity?limit=abc", doctorID)
	expectHTTPStatus(t, h.GetRecentActivity(c), http.StatusBadRequest)

	c, _ = newRequestContext(e, "/api/v1/dashboard/charts/vitals?patient_id=nope", doctorID)
	expectHTTPStatus(t, h.GetVitalsChart(c), http.StatusBadRequest)

	c, _ = newRequestContext(e, "/api/v1/dashboard/charts/appointments?days=5", uuid.Nil)
	expectHTTPStatus(t, h.GetAppointmentChart(c), http.StatusUnauthorized)

	repo.failOn = "Stats"
	c, _ = newRequestContext(e, "/api/v1/dashboard/stats", doctorID)
	expectHTTPStatus(t, h.GetStats(c), http.StatusInternalServerError)
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	NewHandler(newTestService(&mockRepo{})).RegisterRoutes(e.Group("/api/v1"))
	got := make(map[string]bool)
	for _, r := range e.Routes() {
		got[r.Path] = true
	}
	for _, p := range []string{"stats", "recent-activity", "upcoming-appointments", "alerts", "charts/appointments", "charts/vitals"} {
		if !got["/api/v1/dashboard/"+p] {
			t.Errorf("missing route %s", p)
		}
	}
}
