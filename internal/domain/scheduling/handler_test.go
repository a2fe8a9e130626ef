package scheduling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/auth"
	"github.com/roudayn-kouka/App4Doctors/pkg/pagination"
)

func newRequestContext(e *echo.Echo, method, target, body string, doctorID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
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

func bookingBody(patientID uuid.UUID) string {
	return `{"patient_id":"` + patientID.String() + `","date":"2026-03-14","time":"9:30","type":"consultation"}`
}

func TestHandler_CreateAppointment(t *testing.T) {
	f := newFixture(PolicyPermissive)
	h, e := NewHandler(f.svc), echo.New()

	c, rec := newRequestContext(e, http.MethodPost, "/api/v1/appointments", bookingBody(f.patient), f.doctorID)
	if err := h.CreateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var a Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Time != "09:30" || a.Patient == nil {
		t.Errorf("unexpected appointment %+v", a)
	}

	c, _ = newRequestContext(e, http.MethodPost, "/api/v1/appointments", bookingBody(f.patient), f.doctorID)
	expectHTTPStatus(t, h.CreateAppointment(c), http.StatusConflict)
}

func TestHandler_CreateAppointment_Errors(t *testing.T) {
	f := newFixture(PolicyPermissive)
	h, e := NewHandler(f.svc), echo.New()

	c, _ := newRequestContext(e, http.MethodPost, "/api/v1/appointments", bookingBody(f.patient), uuid.Nil)
	expectHTTPStatus(t, h.CreateAppointment(c), http.StatusUnauthorized)

	c, _ = newRequestContext(e, http.MethodPost, "/api/v1/appointments", `{"patient_id":"`+f.patient.String()+`","date":"2026-03-14","time":"9h","type":"consultation"}`, f.doctorID)
	expectHTTPStatus(t, h.CreateAppointment(c), http.StatusBadRequest)

	c, _ = newRequestContext(e, http.MethodPost, "/api/v1/appointments", bookingBody(uuid.New()), f.doctorID)
	expectHTTPStatus(t, h.CreateAppointment(c), http.StatusNotFound)
}

func TestHandler_UpdateAppointment_ForwardOnly(t *testing.T) {
	f := newFixture(PolicyForwardOnly)
	h, e := NewHandler(f.svc), echo.New()
	a := f.book(t, "2026-03-14", "09:30")

	c, rec := newRequestContext(e, http.MethodPut, "/api/v1/appointments/"+a.ID.String(), `{"status":"completed","diagnosis":"Flu"}`, f.doctorID)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.UpdateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, _ = newRequestContext(e, http.MethodPut, "/api/v1/appointments/"+a.ID.String(), `{"status":"scheduled"}`, f.doctorID)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	expectHTTPStatus(t, h.UpdateAppointment(c), http.StatusConflict)
}

func TestHandler_GetAppointment_InvalidID(t *testing.T) {
	f := newFixture(PolicyPermissive)
	h, e := NewHandler(f.svc), echo.New()

	c, _ := newRequestContext(e, http.MethodGet, "/api/v1/appointments/nope", "", f.doctorID)
	c.SetParamNames("id")
	c.SetParamValues("nope")
	expectHTTPStatus(t, h.GetAppointment(c), http.StatusBadRequest)

	c, _ = newRequestContext(e, http.MethodGet, "/api/v1/appointments/x", "", f.doctorID)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	expectHTTPStatus(t, h.GetAppointment(c), http.StatusNotFound)
}

func TestHandler_DeleteAppointment(t *testing.T) {
	f := newFixture(PolicyPermissive)
	h, e := NewHandler(f.svc), echo.New()
	a := f.book(t, "2026-03-14", "09:30")

	c, rec := newRequestContext(e, http.MethodDelete, "/api/v1/appointments/"+a.ID.String(), "", f.doctorID)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.DeleteAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, err := f.repo.GetByID(context.Background(), f.doctorID, a.ID); err == nil {
		t.Fatal("expected appointment removed")
	}
}

func TestHandler_ListAppointments_Filters(t *testing.T) {
	f := newFixture(PolicyPermissive)
	h, e := NewHandler(f.svc), echo.New()
	f.book(t, "2026-03-14", "09:30")
	f.book(t, "2026-03-15", "09:30")

	c, rec := newRequestContext(e, http.MethodGet, "/api/v1/appointments?date=2026-03-15&status=scheduled", "", f.doctorID)
	if err := h.ListAppointments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp pagination.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("expected 1 appointment on 2026-03-15, got %d", resp.Total)
	}

	c, _ = newRequestContext(e, http.MethodGet, "/api/v1/appointments?patient_id=bad", "", f.doctorID)
	expectHTTPStatus(t, h.ListAppointments(c), http.StatusBadRequest)

	c, _ = newRequestContext(e, http.MethodGet, "/api/v1/appointments?type=surgery", "", f.doctorID)
	expectHTTPStatus(t, h.ListAppointments(c), http.StatusBadRequest)
}

func TestHandler_GetCalendar(t *testing.T) {
	f := newFixture(PolicyPermissive)
	h, e := NewHandler(f.svc), echo.New()
	f.book(t, "2026-03-14", "09:30")

	c, rec := newRequestContext(e, http.MethodGet, "/api/v1/appointments/calendar/2026/3", "", f.doctorID)
	c.SetParamNames("year", "month")
	c.SetParamValues("2026", "3")
	if err := h.GetCalendar(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 calendar entry, got %d", len(items))
	}

	c, _ = newRequestContext(e, http.MethodGet, "/api/v1/appointments/calendar/2026/march", "", f.doctorID)
	c.SetParamNames("year", "month")
	c.SetParamValues("2026", "march")
	expectHTTPStatus(t, h.GetCalendar(c), http.StatusBadRequest)
}

func TestHandler_RegisterRoutes(t *testing.T) {
	f := newFixture(PolicyPermissive)
	e := echo.New()
	NewHandler(f.svc).RegisterRoutes(e.Group("/api/v1"))

	want := []string{
		"GET /api/v1/appointments",
		"GET /api/v1/appointments/stats/overview",
		"GET /api/v1/appointments/calendar/:year/:month",
		"GET /api/v1/appointments/:id",
		"POST /api/v1/appointments",
		"PUT /api/v1/appointments/:id",
		"DELETE /api/v1/appointments/:id",
	}
	got := make(map[string]bool)
	for _, r := range e.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, route := range want {
		if !got[route] {
			t.Errorf("missing route %s", route)
		}
	}
}
