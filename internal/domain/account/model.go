package account

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/auth"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var validRoles = map[string]bool{auth.RoleDoctor: true, auth.RolePatient: true, auth.RoleAdmin: true}

// Doctor is a practitioner account. The account id is the tenant scope of
// every record the doctor owns.
type Doctor struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Specialty    string    `json:"specialty"`
	License      string    `json:"license_number"`
	Phone        string    `json:"phone"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FullName  string `json:"full_name"`
	Specialty string `json:"specialty"`
	License   string `json:"license_number"`
	Phone     string `json:"phone"`
}

func (in *RegisterInput) normalize() {
	in.Email = NormalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Specialty = strings.TrimSpace(in.Specialty)
	in.License = strings.TrimSpace(in.License)
	in.Phone = strings.TrimSpace(in.Phone)
}

func (in RegisterInput) validate() error {
	if !validEmail(in.Email) {
		return apperr.Validation("valid email is required")
	}
	if len(in.Password) < MinPasswordLength {
		return apperr.Validation("password must be at least %d characters", MinPasswordLength)
	}
	if in.FullName == "" {
		return apperr.Validation("full name is required")
	}
	return nil
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is returned by a successful login or registration.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Doctor    *Doctor   `json:"doctor"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, ".")
}
