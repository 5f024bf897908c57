package users

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/models"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 6
	MaxNameLength     = 50
	MaxBioLength      = 500
)

var ErrInvalidCredentials = apperr.Unauthorized("Invalid email or password")

// Service encapsulates user-related business logic
type Service struct {
	repo     UserRepository
	cost     int
	resetTTL time.Duration
	now      func() time.Time
}

func NewService(r UserRepository, bcryptCost int, resetTTL time.Duration) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	if resetTTL <= 0 {
		resetTTL = 10 * time.Minute
	}
	return &Service{repo: r, cost: bcryptCost, resetTTL: resetTTL, now: func() time.Time { return time.Now().UTC() }}
}

func validateName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", apperr.InvalidArgument("Name is required")
	}
	if utf8.RuneCountInString(n) > MaxNameLength {
		return "", apperr.InvalidArgument("Name cannot exceed %d characters", MaxNameLength)
	}
	return n, nil
}

func validatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return apperr.InvalidArgument("Password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

func (s *Service) hash(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), s.cost)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "hash password")
	}
	return string(h), nil
}

// Register creates an account. Duplicate emails are rejected.
func (s *Service) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	n, err := validateName(name)
	if err != nil {
		return nil, err
	}
	e := NormalizeEmail(email)
	if e == "" || !strings.Contains(e, "@") {
		return nil, apperr.InvalidArgument("Please provide a valid email")
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	h, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, &models.User{Name: n, Email: e, PasswordHash: h, LastActive: s.now()})
}

// Authenticate checks email and password and bumps LastActive.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	u.LastActive = s.now()
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// VerifyCredential reports whether secret matches the stored credential of id.
func (s *Service) VerifyCredential(ctx context.Context, id, secret string) (bool, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(secret)) == nil, nil
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repo.FindByEmail(ctx, email)
}

func (s *Service) FindByID(ctx context.Context, id string) (*models.User, error) {
	return s.repo.FindByID(ctx, id)
}

// ProfileUpdate carries optional profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name   *string
	Avatar *string
	Bio    *string
}

func (s *Service) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (*models.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		n, err := validateName(*p.Name)
		if err != nil {
			return nil, err
		}
		u.Name = n
	}
	if p.Avatar != nil {
		u.Avatar = strings.TrimSpace(*p.Avatar)
	}
	if p.Bio != nil {
		b := strings.TrimSpace(*p.Bio)
		if utf8.RuneCountInString(b) > MaxBioLength {
			return nil, apperr.InvalidArgument("Bio cannot exceed %d characters", MaxBioLength)
		}
		u.Bio = b
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return apperr.InvalidArgument("Current password is incorrect")
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	h, err := s.hash(next)
	if err != nil {
		return err
	}
	u.PasswordHash = h
	return s.repo.Update(ctx, u)
}

func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ForgotPassword issues a reset token for email and returns it raw; only
// its SHA-256 digest is stored.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, *models.User, error) {
	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	raw := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	exp := s.now().Add(s.resetTTL)
	u.ResetTokenHash = hashResetToken(raw)
	u.ResetTokenExpiry = &exp
	if err := s.repo.Update(ctx, u); err != nil {
		return "", nil, err
	}
	return raw, u, nil
}

// ResetPassword consumes a reset token and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, token, password string) (*models.User, error) {
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	u, err := s.repo.FindByResetToken(ctx, hashResetToken(token), s.now())
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.InvalidArgument("Invalid or expired reset token")
		}
		return nil, err
	}
	h, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = h
	u.ResetTokenHash = ""
	u.ResetTokenExpiry = nil
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
