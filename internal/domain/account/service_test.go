package account

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/auth"
)

type mockDoctorRepo struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]*Doctor
	getErr  error
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.doctors {
		if existing.Email == d.Email {
			return apperr.Uniqueness("an account with this email already exists")
		}
	}
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor not found")
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) GetByEmail(_ context.Context, email string) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, d := range m.doctors {
		if d.Email == email {
			cp := *d
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("doctor not found")
}

var testKey = []byte("test-signing-key")

func newTestService() (*Service, *mockDoctorRepo) {
	repo := newMockDoctorRepo()
	issuer := auth.NewIssuer(testKey, "app4doctors", time.Hour)
	return NewService(repo, issuer, bcrypt.MinCost, zerolog.Nop()), repo
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Email:     "  Amina.Benali@Example.com ",
		Password:  "correct-horse",
		FullName:  "Dr. Amina Benali",
		Specialty: "Cardiology",
		License:   "MED-2231",
		Phone:     "0612345678",
	}
}

func TestService_Register(t *testing.T) {
	svc, repo := newTestService()

	sess, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Token == "" || sess.ExpiresAt.IsZero() {
		t.Fatalf("expected a signed token, got %+v", sess)
	}
	d := sess.Doctor
	if d.Email != "amina.benali@example.com" {
		t.Errorf("expected normalized email, got %q", d.Email)
	}
	if d.Role != auth.RoleDoctor {
		t.Errorf("expected doctor role, got %q", d.Role)
	}
	stored := repo.doctors[d.ID]
	if stored.PasswordHash == "correct-horse" || stored.PasswordHash == "" {
		t.Fatal("expected the password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct-horse")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestService_Register_Validation(t *testing.T) {
	svc, _ := newTestService()
	tests := []struct {
		name   string
		mutate func(in *RegisterInput)
	}{
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }},
		{"email without domain dot", func(in *RegisterInput) { in.Email = "amina@localhost" }},
		{"short password", func(in *RegisterInput) { in.Password = "short" }},
		{"missing name", func(in *RegisterInput) { in.FullName = "   " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validRegistration()
			tt.mutate(&in)
			_, err := svc.Register(context.Background(), in)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := validRegistration()
	in.Email = "AMINA.BENALI@example.com"
	_, err := svc.Register(context.Background(), in)
	if !errors.Is(err, apperr.ErrUniqueness) {
		t.Fatalf("expected uniqueness error, got %v", err)
	}
}

func TestService_Login(t *testing.T) {
	svc, _ := newTestService()
	reg, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, err := svc.Login(context.Background(), LoginInput{Email: "AMINA.benali@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Doctor.ID != reg.Doctor.ID || sess.Token == "" {
		t.Fatalf("unexpected session %+v", sess)
	}

	if _, err := svc.Login(context.Background(), LoginInput{Email: "amina.benali@example.com", Password: "wrong-password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "correct-horse"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginInput{Email: "", Password: ""}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty input: expected validation error, got %v", err)
	}
}

func TestService_Login_StoreFailure(t *testing.T) {
	svc, repo := newTestService()
	repo.getErr = errors.New("connection reset")

	_, err := svc.Login(context.Background(), LoginInput{Email: "amina@example.com", Password: "correct-horse"})
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected a store error, got %v", err)
	}
	if apperr.Status(err) != 500 {
		t.Errorf("expected 500, got %d", apperr.Status(err))
	}
}

func TestService_LoginWithoutSigningKey(t *testing.T) {
	repo := newMockDoctorRepo()
	svc := NewService(repo, auth.NewIssuer(nil, "app4doctors", time.Hour), bcrypt.MinCost, zerolog.Nop())
	if _, err := svc.Register(context.Background(), validRegistration()); err == nil {
		t.Fatal("expected an error when tokens cannot be signed")
	}
}

func TestService_DoctorSummary(t *testing.T) {
	svc, _ := newTestService()
	reg, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum, err := svc.DoctorSummary(context.Background(), reg.Doctor.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.FullName != "Dr. Amina Benali" || sum.License != "MED-2231" || sum.Specialty != "Cardiology" {
		t.Errorf("unexpected summary %+v", sum)
	}

	if _, err := svc.DoctorSummary(context.Background(), uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
