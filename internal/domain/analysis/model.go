package analysis

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/ref"
)

const (
	TypeBloodTest  = "Analyse de sang"
	TypeXRay       = "Radiographie"
	TypeECG        = "ECG"
	TypeMRI        = "IRM"
	TypeCTScan     = "Scanner"
	TypeUltrasound = "Échographie"
	TypeUrineTest  = "Analyse d'urine"
	TypeBiopsy     = "Biopsie"
	TypeOther      = "Autre"
)

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusReviewed  = "reviewed"
	StatusArchived  = "archived"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var (
	validTypes = map[string]bool{
		TypeBloodTest: true, TypeXRay: true, TypeECG: true, TypeMRI: true, TypeCTScan: true,
		TypeUltrasound: true, TypeUrineTest: true, TypeBiopsy: true, TypeOther: true,
	}
	validStatuses = map[string]bool{
		StatusPending: true, StatusProcessed: true, StatusReviewed: true, StatusArchived: true,
	}
	validPriorities = map[string]bool{
		PriorityLow: true, PriorityNormal: true, PriorityHigh: true, PriorityUrgent: true,
	}
)

type AbnormalValue struct {
	Parameter string `json:"parameter" bson:"parameter"`
	Value     string `json:"value" bson:"value"`
	Normal    string `json:"normal" bson:"normal"`
	Severity  string `json:"severity" bson:"severity"`
}

type Results struct {
	Summary         string          `json:"summary" bson:"summary"`
	KeyFindings     []string        `json:"key_findings" bson:"key_findings"`
	Recommendations []string        `json:"recommendations" bson:"recommendations"`
	AbnormalValues  []AbnormalValue `json:"abnormal_values" bson:"abnormal_values"`
}

// LogEntry is one step of the append-only processing log.
type LogEntry struct {
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	Action     string    `json:"action" bson:"action"`
	Details    string    `json:"details,omitempty" bson:"details,omitempty"`
	Confidence float64   `json:"confidence" bson:"confidence"`
}

type Analysis struct {
	ID            uuid.UUID           `json:"id"`
	DoctorID      uuid.UUID           `json:"doctor_id"`
	PatientID     uuid.UUID           `json:"patient_id"`
	Patient       *ref.PatientSummary `json:"patient,omitempty"`
	Type          string              `json:"type"`
	FileName      string              `json:"file_name"`
	FileSize      string              `json:"file_size"`
	FilePath      string              `json:"file_path"`
	ContentType   string              `json:"content_type"`
	Status        string              `json:"status"`
	Results       *Results            `json:"results,omitempty"`
	ProcessingLog []LogEntry          `json:"processing_log"`
	ReviewedBy    *uuid.UUID          `json:"reviewed_by,omitempty"`
	Reviewer      *ref.DoctorSummary  `json:"reviewer,omitempty"`
	ReviewedAt    *time.Time          `json:"reviewed_at,omitempty"`
	ReviewNotes   string              `json:"review_notes,omitempty"`
	Priority      string              `json:"priority"`
	Tags          []string            `json:"tags"`
	UploadDate    time.Time           `json:"upload_date"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// ProcessingTime is the delay between upload and the processed log entry,
// or zero while the analysis is pending.
func (a *Analysis) ProcessingTime() time.Duration {
	for _, e := range a.ProcessingLog {
		if e.Action == StatusProcessed {
			return e.Timestamp.Sub(a.UploadDate)
		}
	}
	return 0
}

func validateType(t string) error {
	if !validTypes[t] {
		return apperr.Validation("valid analysis type is required")
	}
	return nil
}

func validatePriority(p string) error {
	if !validPriorities[p] {
		return apperr.Validation("priority must be one of low, normal, high, urgent")
	}
	return nil
}

// UploadInput describes a received analysis file and its metadata.
type UploadInput struct {
	PatientID   uuid.UUID
	Type        string
	Priority    string
	FileName    string
	ContentType string
	Size        int64
}

type ReviewInput struct {
	Status string `json:"status"`
	Notes  string `json:"review_notes"`
}

// MetaInput edits the fields allowed in any state. Nil fields are left
// unchanged.
type MetaInput struct {
	Type     *string   `json:"type"`
	Priority *string   `json:"priority"`
	Tags     *[]string `json:"tags"`
}

type ListFilter struct {
	Status    string
	Type      string
	PatientID *uuid.UUID
	// Search matches the patient name, the type or the file name.
	Search string
}

func (f ListFilter) validate() error {
	if f.Status != "" && !validStatuses[f.Status] {
		return apperr.Validation("invalid analysis status: %s", f.Status)
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
	TotalAnalyses     int          `json:"total_analyses"`
	ThisMonthAnalyses int          `json:"this_month_analyses"`
	PendingAnalyses   int          `json:"pending_analyses"`
	ByStatus          []CountByKey `json:"by_status"`
	ByType            []CountByKey `json:"by_type"`
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
