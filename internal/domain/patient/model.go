package patient

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
)

const (
	DefaultBloodPressure    = "120/80"
	DefaultHeartRate        = 72
	DefaultTemperature      = 98.6
	DefaultOxygenSaturation = 98
)

var (
	validGenders    = map[string]bool{"male": true, "female": true, "other": true}
	validBloodTypes = map[string]bool{
		"A+": true, "A-": true, "B+": true, "B-": true,
		"AB+": true, "AB-": true, "O+": true, "O-": true,
	}
	bloodPressureRe = regexp.MustCompile(`^\d{2,3}/\d{2,3}$`)
)

type Vitals struct {
	BloodPressure    string    `json:"blood_pressure"`
	HeartRate        int       `json:"heart_rate"`
	Temperature      float64   `json:"temperature"`
	OxygenSaturation int       `json:"oxygen_saturation"`
	LastUpdated      time.Time `json:"last_updated"`
}

// DefaultVitals returns the vitals assigned to a new patient.
func DefaultVitals(now time.Time) Vitals {
	return Vitals{
		BloodPressure:    DefaultBloodPressure,
		HeartRate:        DefaultHeartRate,
		Temperature:      DefaultTemperature,
		OxygenSaturation: DefaultOxygenSaturation,
		LastUpdated:      now,
	}
}

type Patient struct {
	ID              uuid.UUID  `json:"id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	Age             int        `json:"age"`
	Gender          string     `json:"gender"`
	BloodType       string     `json:"blood_type,omitempty"`
	Conditions      []string   `json:"conditions"`
	Allergies       []string   `json:"allergies"`
	Vitals          Vitals     `json:"vitals"`
	RiskScore       int        `json:"risk_score"`
	LastVisit       time.Time  `json:"last_visit"`
	NextAppointment *time.Time `json:"next_appointment,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RiskLevel returns the patient's risk bucket.
func (p *Patient) RiskLevel() string {
	return RiskLevel(p.RiskScore)
}

// Normalize trims free-text fields and lower-cases the email.
func (p *Patient) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = NormalizeEmail(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Notes = strings.TrimSpace(p.Notes)
	p.BloodType = strings.TrimSpace(p.BloodType)
	p.Conditions = trimAll(p.Conditions)
	p.Allergies = trimAll(p.Allergies)
}

// Validate checks the identity and demographic fields.
func (p *Patient) Validate() error {
	if len([]rune(p.Name)) < 2 {
		return apperr.Validation("name must be at least 2 characters")
	}
	if !validEmail(p.Email) {
		return apperr.Validation("please enter a valid email")
	}
	if len(p.Phone) < 10 {
		return apperr.Validation("phone number must be at least 10 characters")
	}
	if p.Age < 0 || p.Age > 150 {
		return apperr.Validation("age must be between 0 and 150")
	}
	if !validGenders[p.Gender] {
		return apperr.Validation("gender must be male, female, or other")
	}
	if p.BloodType != "" && !validBloodTypes[p.BloodType] {
		return apperr.Validation("invalid blood type: %s", p.BloodType)
	}
	return p.Vitals.Validate()
}

// Validate checks vitals ranges and the blood pressure format.
func (v Vitals) Validate() error {
	if !bloodPressureRe.MatchString(v.BloodPressure) {
		return apperr.Validation("blood pressure format should be XXX/XX")
	}
	if v.HeartRate < 30 || v.HeartRate > 200 {
		return apperr.Validation("heart rate must be between 30 and 200")
	}
	if v.Temperature < 90 || v.Temperature > 110 {
		return apperr.Validation("temperature must be between 90 and 110")
	}
	if v.OxygenSaturation < 70 || v.OxygenSaturation > 100 {
		return apperr.Validation("oxygen saturation must be between 70 and 100")
	}
	return nil
}

// VitalsUpdate holds a partial vitals change. Nil fields keep their value.
type VitalsUpdate struct {
	BloodPressure    *string  `json:"blood_pressure"`
	HeartRate        *int     `json:"heart_rate"`
	Temperature      *float64 `json:"temperature"`
	OxygenSaturation *int     `json:"oxygen_saturation"`
}

// Merge applies u over v and stamps LastUpdated.
func (v Vitals) Merge(u VitalsUpdate, now time.Time) Vitals {
	if u.BloodPressure != nil {
		v.BloodPressure = strings.TrimSpace(*u.BloodPressure)
	}
	if u.HeartRate != nil {
		v.HeartRate = *u.HeartRate
	}
	if u.Temperature != nil {
		v.Temperature = *u.Temperature
	}
	if u.OxygenSaturation != nil {
		v.OxygenSaturation = *u.OxygenSaturation
	}
	v.LastUpdated = now
	return v
}

// Update is a partial patient edit. Nil fields are left unchanged.
type Update struct {
	Name       *string       `json:"name"`
	Email      *string       `json:"email"`
	Phone      *string       `json:"phone"`
	Age        *int          `json:"age"`
	Gender     *string       `json:"gender"`
	BloodType  *string       `json:"blood_type"`
	Conditions *[]string     `json:"conditions"`
	Allergies  *[]string     `json:"allergies"`
	Vitals     *VitalsUpdate `json:"vitals"`
	Notes      *string       `json:"notes"`
	LastVisit  *time.Time    `json:"last_visit"`
}

// affectsRisk reports whether the edit touches a risk input.
func (u Update) affectsRisk() bool {
	return u.Age != nil || u.Conditions != nil || u.Vitals != nil
}

func (u Update) apply(p *Patient, now time.Time) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.Age != nil {
		p.Age = *u.Age
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	if u.BloodType != nil {
		p.BloodType = *u.BloodType
	}
	if u.Conditions != nil {
		p.Conditions = *u.Conditions
	}
	if u.Allergies != nil {
		p.Allergies = *u.Allergies
	}
	if u.Vitals != nil {
		p.Vitals = p.Vitals.Merge(*u.Vitals, now)
	}
	if u.Notes != nil {
		p.Notes = *u.Notes
	}
	if u.LastVisit != nil {
		p.LastVisit = *u.LastVisit
	}
}

// VitalReading is one entry of a patient's vitals history.
type VitalReading struct {
	ID               uuid.UUID `json:"id"`
	DoctorID         uuid.UUID `json:"doctor_id"`
	PatientID        uuid.UUID `json:"patient_id"`
	BloodPressure    string    `json:"blood_pressure"`
	HeartRate        int       `json:"heart_rate"`
	Temperature      float64   `json:"temperature"`
	OxygenSaturation int       `json:"oxygen_saturation"`
	RecordedAt       time.Time `json:"recorded_at"`
}

func readingFrom(p *Patient) *VitalReading {
	return &VitalReading{
		ID:               uuid.New(),
		DoctorID:         p.DoctorID,
		PatientID:        p.ID,
		BloodPressure:    p.Vitals.BloodPressure,
		HeartRate:        p.Vitals.HeartRate,
		Temperature:      p.Vitals.Temperature,
		OxygenSaturation: p.Vitals.OxygenSaturation,
		RecordedAt:       p.Vitals.LastUpdated,
	}
}

// ListFilter narrows a patient listing.
type ListFilter struct {
	Search    string
	RiskLevel string
}

// RiskBounds returns the inclusive score range for a risk level.
func RiskBounds(level string) (lo, hi int, ok bool) {
	switch level {
	case RiskHigh:
		return HighRiskThreshold + 1, 100, true
	case RiskMedium:
		return MediumRiskThreshold, HighRiskThreshold, true
	case RiskLow:
		return 0, MediumRiskThreshold - 1, true
	}
	return 0, 0, false
}

type Stats struct {
	TotalPatients      int     `json:"total_patients"`
	AverageAge         float64 `json:"average_age"`
	AverageRiskScore   float64 `json:"average_risk_score"`
	HighRiskPatients   int     `json:"high_risk_patients"`
	MediumRiskPatients int     `json:"medium_risk_patients"`
	LowRiskPatients    int     `json:"low_risk_patients"`
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, ".")
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
