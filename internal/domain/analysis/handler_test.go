package analysis

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/auth"
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

func withID(c echo.Context, id string) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func multipartUpload(t *testing.T, fields map[string]string, fileName, contentType, content string, doctorID uuid.UUID) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileName != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+FormFileField+`"; filename="`+fileName+`"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write([]byte(content))
	}
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/upload", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{ID: doctorID, Role: auth.RoleDoctor}))
}

func TestHandler_UploadAnalysis(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	req := multipartUpload(t, map[string]string{"patient_id": f.patient.String(), "type": TypeECG, "priority": PriorityHigh},
		"ecg.png", "image/png", "png-bytes", f.doctorID)
	rec := httptest.NewRecorder()
	if err := h.UploadAnalysis(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var a Analysis
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Status != StatusPending || a.Priority != PriorityHigh || a.FileName != "ecg.png" || a.ContentType != "image/png" {
		t.Errorf("unexpected analysis %+v", a)
	}
}

func TestHandler_UploadErrors(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	req := multipartUpload(t, map[string]string{"patient_id": f.patient.String(), "type": TypeECG}, "", "", "", f.doctorID)
	expectHTTPStatus(t, h.UploadAnalysis(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)

	req = multipartUpload(t, map[string]string{"patient_id": "nope", "type": TypeECG}, "a.png", "image/png", "x", f.doctorID)
	expectHTTPStatus(t, h.UploadAnalysis(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)

	req = multipartUpload(t, map[string]string{"patient_id": f.patient.String(), "type": TypeECG}, "a.txt", "text/plain", "x", f.doctorID)
	expectHTTPStatus(t, h.UploadAnalysis(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)

	req = multipartUpload(t, map[string]string{"patient_id": uuid.NewString(), "type": TypeECG}, "a.png", "image/png", "x", f.doctorID)
	expectHTTPStatus(t, h.UploadAnalysis(e.NewContext(req, httptest.NewRecorder())), http.StatusNotFound)

	if f.blobs.Len() != 0 {
		t.Fatalf("rejected uploads left %d files", f.blobs.Len())
	}
}

func TestHandler_ProcessAndReview(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	a := f.upload(t)
	id := a.ID.String()

	c, _ := newRequestContext(e, http.MethodPut, "/api/v1/analyses/"+id+"/review", `{"status":"reviewed"}`, f.doctorID)
	expectHTTPStatus(t, h.ReviewAnalysis(withID(c, id)), http.StatusConflict)

	c, rec := newRequestContext(e, http.MethodPut, "/api/v1/analyses/"+id+"/process", "", f.doctorID)
	if err := h.ProcessAnalysis(withID(c, id)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, _ = newRequestContext(e, http.MethodPut, "/api/v1/analyses/"+id+"/process", "", f.doctorID)
	expectHTTPStatus(t, h.ProcessAnalysis(withID(c, id)), http.StatusConflict)

	c, _ = newRequestContext(e, http.MethodPut, "/api/v1/analyses/"+id+"/review", `{"status":"pending"}`, f.doctorID)
	expectHTTPStatus(t, h.ReviewAnalysis(withID(c, id)), http.StatusBadRequest)

	c, rec = newRequestContext(e, http.MethodPut, "/api/v1/analyses/"+id+"/review", `{"status":"archived","review_notes":"classé"}`, f.doctorID)
	if err := h.ReviewAnalysis(withID(c, id)); err != nil {
		t.Fatalf("review: %v", err)
	}
	var got Analysis
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != StatusArchived || got.ReviewNotes != "classé" {
		t.Errorf("unexpected review response %+v", got)
	}
}

func TestHandler_DownloadAndDelete(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	a := f.upload(t)
	id := a.ID.String()

	c, rec := newRequestContext(e, http.MethodGet, "/api/v1/analyses/"+id+"/download", "", f.doctorID)
	if err := h.DownloadAnalysis(withID(c, id)); err != nil {
		t.Fatalf("download: %v", err)
	}
	if rec.Body.String() != "%PDF-1.4 bilan" || rec.Header().Get(echo.HeaderContentType) != "application/pdf" {
		t.Errorf("unexpected download %q (%s)", rec.Body.String(), rec.Header().Get(echo.HeaderContentType))
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "bilan.pdf") {
		t.Errorf("unexpected disposition %q", rec.Header().Get(echo.HeaderContentDisposition))
	}

	c, rec = newRequestContext(e, http.MethodDelete, "/api/v1/analyses/"+id, "", f.doctorID)
	if err := h.DeleteAnalysis(withID(c, id)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	c, _ = newRequestContext(e, http.MethodGet, "/api/v1/analyses/"+id+"/download", "", f.doctorID)
	expectHTTPStatus(t, h.DownloadAnalysis(withID(c, id)), http.StatusNotFound)

	c, _ = newRequestContext(e, http.MethodGet, "/api/v1/analyses/x", "", f.doctorID)
	expectHTTPStatus(t, h.GetAnalysis(withID(c, "x")), http.StatusBadRequest)
}

func TestHandler_ListAndMeta(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	a := f.upload(t)

	c, rec := newRequestContext(e, http.MethodGet, "/api/v1/analyses?status=pending", "", f.doctorID)
	if err := h.ListAnalyses(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var page struct {
		Data  []Analysis `json:"data"`
		Total int        `json:"total"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Total != 1 || len(page.Data) != 1 {
		t.Errorf("unexpected page %s", rec.Body.String())
	}

	c, _ = newRequestContext(e, http.MethodGet, "/api/v1/analyses?patient_id=bad", "", f.doctorID)
	expectHTTPStatus(t, h.ListAnalyses(c), http.StatusBadRequest)

	id := a.ID.String()
	c, rec = newRequestContext(e, http.MethodPut, "/api/v1/analyses/"+id, `{"priority":"urgent","tags":["cardio"]}`, f.doctorID)
	if err := h.UpdateAnalysis(withID(c, id)); err != nil {
		t.Fatalf("update: %v", err)
	}
	var got Analysis
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Priority != PriorityUrgent || len(got.Tags) != 1 {
		t.Errorf("unexpected update %+v", got)
	}

	c, _ = newRequestContext(e, http.MethodGet, "/api/v1/analyses/stats/overview", "", uuid.Nil)
	expectHTTPStatus(t, h.GetStats(c), http.StatusUnauthorized)
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	NewHandler(newFixture().svc).RegisterRoutes(e.Group("/api/v1"))

	want := []string{
		"GET /api/v1/analyses",
		"GET /api/v1/analyses/stats/overview",
		"GET /api/v1/analyses/:id/download",
		"POST /api/v1/analyses/upload",
		"PUT /api/v1/analyses/:id/process",
		"PUT /api/v1/analyses/:id/review",
		"DELETE /api/v1/analyses/:id",
	}
	got := make(map[string]bool)
	for _, r := range e.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, w := range want {
		if !got[w] {
			t.Errorf("missing route %s", w)
		}
	}
}
