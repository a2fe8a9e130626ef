package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(okHandler)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})(okHandler)

	for i := 0; i < 2; i++ {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	err := handler(c)
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimit_PerDoctorIsolation(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler)

	call := func(doctor string) error {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.Set("principal_id", doctor)
		return handler(c)
	}

	if err := call("doctor-a"); err != nil {
		t.Fatalf("doctor-a first request: %v", err)
	}
	if err := call("doctor-a"); err == nil {
		t.Fatal("doctor-a second request: expected rate limit error")
	}
	if err := call("doctor-b"); err != nil {
		t.Fatalf("doctor-b first request: %v", err)
	}
}

func TestTake_ZeroRate(t *testing.T) {
	l := rate.NewLimiter(0, 1)
	now := time.Now()
	if ok, _ := take(l, now); !ok {
		t.Fatal("expected the burst token to be granted")
	}
	ok, retry := take(l, now)
	if ok || retry != 1 {
		t.Errorf("expected denial with retry 1 for zero rate, got ok=%v retry=%d", ok, retry)
	}
}

func TestTake_RetryAfterRoundsUp(t *testing.T) {
	l := rate.NewLimiter(0.5, 1)
	now := time.Now()
	take(l, now)
	ok, retry := take(l, now)
	if ok || retry != 2 {
		t.Errorf("expected retry 2s at half a token per second, got ok=%v retry=%d", ok, retry)
	}
	if ok, _ := take(l, now.Add(2*time.Second)); !ok {
		t.Error("expected a token after the retry window; denied reservations must not consume tokens")
	}
}

func TestLimiterStore_SameKeySameLimiter(t *testing.T) {
	store := newLimiterStore(DefaultRateLimitConfig())

	l1 := store.get("key1")
	if l1 != store.get("key1") {
		t.Error("expected same limiter instance for same key")
	}
	if l1 == store.get("key2") {
		t.Error("expected different limiter for different key")
	}
}
