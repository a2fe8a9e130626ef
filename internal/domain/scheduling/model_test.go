package scheduling

import (
	"errors"
	"testing"
	"time"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
)

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"09:30", "09:30", false},
		{"9:30", "09:30", false},
		{"23:59", "23:59", false},
		{" 7:05 ", "07:05", false},
		{"24:00", "", true},
		{"12:60", "", true},
		{"1230", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeTime(tt.in)
		if tt.wantErr {
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("NormalizeTime(%q): expected validation error, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizeTime(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2026-03-14", "2026-03-14T00:00:00Z", "2026-03-14T16:45:00Z"} {
		got, err := ParseDate(in)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseDate("14/03/2026"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestAppointment_StartsAtAndIsPast(t *testing.T) {
	a := &Appointment{Date: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), Time: "09:30"}
	if got := a.StartsAt(); !got.Equal(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("StartsAt() = %v", got)
	}
	if !a.IsPast(time.Date(2026, 3, 14, 9, 31, 0, 0, time.UTC)) {
		t.Error("expected past one minute after start")
	}
	if a.IsPast(time.Date(2026, 3, 14, 9, 29, 0, 0, time.UTC)) {
		t.Error("expected not past before start")
	}
}

func TestValidateMeetLink(t *testing.T) {
	for _, ok := range []string{"", "https://meet.example.com/abc", "http://localhost:8080/room"} {
		if err := validateMeetLink(ok); err != nil {
			t.Errorf("validateMeetLink(%q): unexpected error %v", ok, err)
		}
	}
	for _, bad := range []string{"meet.example.com", "ftp://files.example.com", "https://"} {
		if err := validateMeetLink(bad); err == nil {
			t.Errorf("validateMeetLink(%q): expected error", bad)
		}
	}
}

func TestStatusPolicy(t *testing.T) {
	tests := []struct {
		policy     StatusPolicy
		from, to   string
		wantErr    bool
		suspicious bool
	}{
		{PolicyPermissive, StatusScheduled, StatusCompleted, false, false},
		{PolicyPermissive, StatusCompleted, StatusScheduled, false, true},
		{PolicyPermissive, StatusCancelled, StatusCancelled, false, false},
		{PolicyForwardOnly, StatusScheduled, StatusNoShow, false, false},
		{PolicyForwardOnly, StatusCompleted, StatusScheduled, true, true},
		{PolicyForwardOnly, StatusCancelled, StatusCompleted, true, true},
		{PolicyForwardOnly, StatusCompleted, StatusCompleted, false, false},
	}
	for _, tt := range tests {
		suspicious, err := tt.policy.Check(tt.from, tt.to)
		if tt.wantErr != (err != nil) {
			t.Errorf("%s %s->%s: err = %v", tt.policy, tt.from, tt.to, err)
		}
		if err != nil && !errors.Is(err, apperr.ErrInvalidState) {
			t.Errorf("%s %s->%s: expected invalid state, got %v", tt.policy, tt.from, tt.to, err)
		}
		if suspicious != tt.suspicious {
			t.Errorf("%s %s->%s: suspicious = %v", tt.policy, tt.from, tt.to, suspicious)
		}
	}
}

func TestParseStatusPolicy(t *testing.T) {
	if p, err := ParseStatusPolicy(""); err != nil || p != PolicyPermissive {
		t.Errorf("empty policy = %q, %v", p, err)
	}
	if p, err := ParseStatusPolicy("Forward-Only"); err != nil || p != PolicyForwardOnly {
		t.Errorf("forward-only policy = %q, %v", p, err)
	}
	if _, err := ParseStatusPolicy("strict"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
