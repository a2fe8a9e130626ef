package main

import (
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/roudayn-kouka/App4Doctors/internal/config"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/auth"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/blobstore"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/events"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/jobqueue"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/websocket"
)

const devDoctor = "00000000-0000-0000-0000-000000000001"

func testConfig(env string) *config.Config {
	return &config.Config{
		Env:                     env,
		StoreDriver:             "postgres",
		CORSOrigins:             []string{"http://localhost:5173"},
		JWTSecret:               "a-test-secret-that-is-long-enough!",
		JWTTTL:                  time.Hour,
		DevDoctorID:             devDoctor,
		RateLimitRPS:            100,
		RateLimitBurst:          200,
		RequestTimeout:          5 * time.Second,
		MaxUploadBytes:          1 << 20,
		ProcessingDelay:         3 * time.Second,
		ProcessingMaxAttempts:   5,
		AppointmentStatusPolicy: "permissive",
		EventsDriver:            "none",
	}
}

func testServices(t *testing.T, cfg *config.Config) *services {
	t.Helper()
	svc, err := newServices(cfg, pgRepositories(nil), blobstore.NewInMemoryStore(0),
		jobqueue.NewMemoryQueue(), events.Noop{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("newServices: %v", err)
	}
	return svc
}

func TestNewServices_RegistersEveryRoute(t *testing.T) {
	e := echo.New()
	testServices(t, testConfig("development")).registerRoutes(e.Group("/api/v1"))

	registered := make(map[string]bool)
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	want := []string{
		"POST /api/v1/auth/register",
		"POST /api/v1/auth/login",
		"GET /api/v1/auth/me",
		"GET /api/v1/patients",
		"PUT /api/v1/patients/:id/vitals",
		"GET /api/v1/patients/:id/vitals/history",
		"GET /api/v1/appointments/calendar/:year/:month",
		"POST /api/v1/appointments",
		"GET /api/v1/prescriptions/:id/download",
		"PUT /api/v1/prescriptions/:id/status",
		"POST /api/v1/analyses/upload",
		"PUT /api/v1/analyses/:id/review",
		"GET /api/v1/analyses/:id/download",
		"GET /api/v1/dashboard/stats",
		"GET /api/v1/dashboard/alerts",
		"GET /api/v1/dashboard/charts/vitals",
	}
	for _, route := range want {
		if !registered[route] {
			t.Errorf("route %s is not registered", route)
		}
	}
}

func TestNewServices_RejectsUnknownPolicy(t *testing.T) {
	cfg := testConfig("development")
	cfg.AppointmentStatusPolicy = "anything-goes"
	_, err := newServices(cfg, pgRepositories(nil), blobstore.NewInMemoryStore(0),
		jobqueue.NewMemoryQueue(), events.Noop{}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected an error for an unknown status policy")
	}
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	cfg := testConfig("production")
	mw, err := authMiddleware(cfg)
	if err != nil {
		t.Fatalf("authMiddleware: %v", err)
	}
	dbHealth := func(c echo.Context) error { return c.JSON(http.StatusOK, map[string]string{"status": "healthy"}) }
	e, _ := newServer(cfg, zerolog.Nop(), mw, dbHealth)

	rec := serve(e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"version":"`+version+`"`) {
		t.Fatalf("unexpected /health response %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(e, http.MethodGet, "/health/db", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected public /health/db, got %d", rec.Code)
	}
}

func TestServer_ProductionRequiresToken(t *testing.T) {
	cfg := testConfig("production")
	mw, err := authMiddleware(cfg)
	if err != nil {
		t.Fatalf("authMiddleware: %v", err)
	}
	e, api := newServer(cfg, zerolog.Nop(), mw, nil)
	testServices(t, cfg).registerRoutes(api)

	if rec := serve(e, http.MethodGet, "/api/v1/dashboard/stats", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", rec.Code)
	}
	// Login is public: a malformed body reaches the handler.
	if rec := serve(e, http.MethodPost, "/api/v1/auth/login", "{"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 from the login handler, got %d", rec.Code)
	}

	issuer := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.AuthIssuer, time.Hour)
	token, _, err := issuer.Issue(auth.Principal{ID: uuid.New(), Role: auth.RolePatient})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/alerts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a patient token, got %d", rec.Code)
	}
}

func TestAuthMiddleware_Development(t *testing.T) {
	cfg := testConfig("development")
	mw, err := authMiddleware(cfg)
	if err != nil {
		t.Fatalf("authMiddleware: %v", err)
	}
	e, api := newServer(cfg, zerolog.Nop(), mw, nil)
	api.GET("/whoami", func(c echo.Context) error {
		id, err := auth.DoctorID(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, id.String())
	})

	rec := serve(e, http.MethodGet, "/api/v1/whoami", "")
	if rec.Code != http.StatusOK || rec.Body.String() != devDoctor {
		t.Fatalf("expected the development doctor, got %d %q", rec.Code, rec.Body.String())
	}

	cfg.DevDoctorID = "not-a-uuid"
	if _, err := authMiddleware(cfg); err == nil {
		t.Error("expected an error for an invalid DEV_DOCTOR_ID")
	}
}

func TestBuildPublisher_HubOnly(t *testing.T) {
	hub := websocket.NewHub(zerolog.Nop())
	pub, closeFn, err := buildPublisher(testConfig("development"), hub, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildPublisher: %v", err)
	}
	defer closeFn()

	event := events.New(events.AnalysisUploaded, uuid.New(), "analysis", uuid.New(), nil)
	if err := pub.Publish(context.Background(), event); err != nil {
		t.Errorf("publish without subscribers: %v", err)
	}
}

func TestMigrationFiles_Embedded(t *testing.T) {
	entries, err := fs.Glob(migrationFiles(""), "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(entries) < 3 || entries[0] != "001_doctors_patients.sql" {
		t.Errorf("unexpected embedded migrations %v", entries)
	}
}
