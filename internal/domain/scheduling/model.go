package scheduling

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/ref"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no-show"

	TypeConsultation = "consultation"
	TypeFollowUp     = "follow-up"
	TypeTelemedicine = "telemedicine"

	DefaultDuration = 30
	MinDuration     = 15
	MaxDuration     = 180
)

var (
	validStatuses = map[string]bool{
		StatusScheduled: true, StatusCompleted: true, StatusCancelled: true, StatusNoShow: true,
	}
	validTypes = map[string]bool{
		TypeConsultation: true, TypeFollowUp: true, TypeTelemedicine: true,
	}
	timeRe = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)
)

type Appointment struct {
	ID               uuid.UUID           `json:"id"`
	DoctorID         uuid.UUID           `json:"doctor_id"`
	PatientID        uuid.UUID           `json:"patient_id"`
	Patient          *ref.PatientSummary `json:"patient,omitempty"`
	Date             time.Time           `json:"date"`
	Time             string              `json:"time"`
	Duration         int                 `json:"duration"`
	Type             string              `json:"type"`
	Status           string              `json:"status"`
	MeetLink         string              `json:"meet_link,omitempty"`
	Notes            string              `json:"notes,omitempty"`
	Symptoms         []string            `json:"symptoms"`
	Diagnosis        string              `json:"diagnosis,omitempty"`
	Treatment        string              `json:"treatment,omitempty"`
	FollowUpRequired bool                `json:"follow_up_required"`
	FollowUpDate     *time.Time          `json:"follow_up_date,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// StartsAt combines the calendar date and the HH:MM time in UTC.
func (a *Appointment) StartsAt() time.Time {
	var h, m int
	fmt.Sscanf(a.Time, "%d:%d", &h, &m)
	return a.Date.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

// IsPast reports whether the appointment start is before now.
func (a *Appointment) IsPast(now time.Time) bool {
	return a.StartsAt().Before(now)
}

// NormalizeTime validates an HH:MM time and pads the hour to two digits.
func NormalizeTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !timeRe.MatchString(s) {
		return "", apperr.Validation("valid time format required (HH:MM)")
	}
	if len(s) == 4 {
		s = "0" + s
	}
	return s, nil
}

// ParseDate accepts YYYY-MM-DD or RFC 3339 and returns the calendar day at
// UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperr.Validation("valid date is required")
	}
	return DayOf(t), nil
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validateDuration(d int) error {
	if d < MinDuration || d > MaxDuration {
		return apperr.Validation("duration must be between %d and %d minutes", MinDuration, MaxDuration)
	}
	return nil
}

func validateType(t string) error {
	if !validTypes[t] {
		return apperr.Validation("valid appointment type required")
	}
	return nil
}

func validateStatus(s string) error {
	if !validStatuses[s] {
		return apperr.Validation("invalid appointment status: %s", s)
	}
	return nil
}

// validateMeetLink accepts an empty link or an absolute http(s) URL.
func validateMeetLink(link string) error {
	if link == "" {
		return nil
	}
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Validation("please enter a valid URL for the meeting link")
	}
	return nil
}

// CreateInput is the body of an appointment booking.
type CreateInput struct {
	PatientID uuid.UUID `json:"patient_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Type      string    `json:"type"`
	Duration  *int      `json:"duration"`
	Notes     string    `json:"notes"`
	MeetLink  string    `json:"meet_link"`
	Symptoms  []string  `json:"symptoms"`
}

// UpdateInput is a partial edit. Nil fields are left unchanged.
type UpdateInput struct {
	Date             *string   `json:"date"`
	Time             *string   `json:"time"`
	Type             *string   `json:"type"`
	Status           *string   `json:"status"`
	Duration         *int      `json:"duration"`
	Notes            *string   `json:"notes"`
	MeetLink         *string   `json:"meet_link"`
	Symptoms         *[]string `json:"symptoms"`
	Diagnosis        *string   `json:"diagnosis"`
	Treatment        *string   `json:"treatment"`
	FollowUpRequired *bool     `json:"follow_up_required"`
	FollowUpDate     *string   `json:"follow_up_date"`
}

type ListFilter struct {
	Date      *time.Time
	Status    string
	Type      string
	PatientID *uuid.UUID
}

func (f ListFilter) validate() error {
	if f.Status != "" {
		if err := validateStatus(f.Status); err != nil {
			return err
		}
	}
	if f.Type != "" {
		return validateType(f.Type)
	}
	return nil
}

type CountByKey struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type Stats struct {
	TodayAppointments    int          `json:"today_appointments"`
	TotalAppointments    int          `json:"total_appointments"`
	UpcomingAppointments int          `json:"upcoming_appointments"`
	ByStatus             []CountByKey `json:"by_status"`
	ByType               []CountByKey `json:"by_type"`
}
