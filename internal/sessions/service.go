package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
)

// Service wraps repository operations with refresh-token rotation.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(r Repository) *Service {
	return &Service{repo: r, now: func() time.Time { return time.Now().UTC() }}
}

func newRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "generate refresh token")
	}
	return hex.EncodeToString(b), nil
}

// CreateSession stores a new refresh session and returns the refresh token
func (s *Service) CreateSession(ctx context.Context, userID, userAgent string, ttl time.Duration) (string, error) {
	r, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	now := s.now()
	sess := &Session{
		RefreshToken: r,
		UserID:       userID,
		UserAgent:    userAgent,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return "", err
	}
	return r, nil
}

// ValidateRefresh returns the session if refresh token is valid and not expired
func (s *Service) ValidateRefresh(ctx context.Context, refresh string) (*Session, error) {
	sess, err := s.repo.GetByRefresh(ctx, refresh)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Expired(s.now()) {
		_ = s.repo.DeleteByRefresh(ctx, refresh)
		return nil, nil
	}
	return sess, nil
}

// Rotate swaps a valid refresh token for a new one. The old token stops working.
func (s *Service) Rotate(ctx context.Context, refresh string, ttl time.Duration) (*Session, string, error) {
	sess, err := s.ValidateRefresh(ctx, refresh)
	if err != nil {
		return nil, "", err
	}
	if sess == nil {
		return nil, "", apperr.Unauthorized("invalid refresh token")
	}
	if err := s.repo.DeleteByRefresh(ctx, refresh); err != nil {
		return nil, "", err
	}
	next, err := s.CreateSession(ctx, sess.UserID, sess.UserAgent, ttl)
	if err != nil {
		return nil, "", err
	}
	return sess, next, nil
}

func (s *Service) DeleteRefresh(ctx context.Context, refresh string) error {
	return s.repo.DeleteByRefresh(ctx, refresh)
}
