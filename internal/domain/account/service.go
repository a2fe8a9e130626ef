package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/auth"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/ref"
)

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong
// password. Callers cannot tell the two apart.
var ErrInvalidCredentials = errors.New("invalid email or password")

// TokenIssuer signs access tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(p auth.Principal) (string, time.Time, error)
}

type Service struct {
	doctors Repository
	tokens  TokenIssuer
	cost    int
	logger  zerolog.Logger
	now     func() time.Time

	// dummyHash is compared on unknown emails so both login failures cost
	// one bcrypt comparison.
	dummyHash []byte
}

// NewService builds the account service. A bcrypt cost of zero uses
// bcrypt.DefaultCost.
func NewService(doctors Repository, tokens TokenIssuer, cost int, logger zerolog.Logger) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	return &Service{
		doctors:   doctors,
		tokens:    tokens,
		cost:      cost,
		logger:    logger.With().Str("component", "account").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		dummyHash: dummy,
	}
}

// Register creates a doctor account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	d := &Doctor{
		ID:           uuid.New(),
		Email:        in.Email,
		PasswordHash: string(hash),
		FullName:     in.FullName,
		Specialty:    in.Specialty,
		License:      in.License,
		Phone:        in.Phone,
		Role:         auth.RoleDoctor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, wrapStore("create doctor", err)
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Msg("doctor registered")
	return s.session(d)
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	d, err := s.doctors.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, wrapStore("get doctor", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(in.Password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(d.PasswordHash), []byte(in.Password)); err != nil {
		s.logger.Debug().Str("doctor_id", d.ID.String()).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}
	return s.session(d)
}

func (s *Service) session(d *Doctor) (*Session, error) {
	role := d.Role
	if !validRoles[role] {
		role = auth.RoleDoctor
	}
	token, exp, err := s.tokens.Issue(auth.Principal{ID: d.ID, Role: role, Email: d.Email})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: exp, Doctor: d}, nil
}

// Me returns the authenticated doctor's account.
func (s *Service) Me(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, wrapStore("get doctor", err)
	}
	return d, nil
}

// DoctorSummary resolves the public fields of a doctor for other domains.
func (s *Service) DoctorSummary(ctx context.Context, id uuid.UUID) (ref.DoctorSummary, error) {
	d, err := s.Me(ctx, id)
	if err != nil {
		return ref.DoctorSummary{}, err
	}
	return ref.DoctorSummary{
		ID:        d.ID,
		FullName:  d.FullName,
		Email:     d.Email,
		Specialty: d.Specialty,
		License:   d.License,
	}, nil
}

func wrapStore(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
