package users

import (
	"context"
	"testing"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService() *Service {
	return NewService(NewMemoryUserRepository(), bcrypt.MinCost, 10*time.Minute)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, "  Alice ", " Alice@Example.com ", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	require.Equal(t, "Alice", u.Name)
	require.Equal(t, "alice@example.com", u.Email)
	require.NotEqual(t, "secret1", u.PasswordHash)

	got, err := svc.Authenticate(ctx, "ALICE@example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = svc.Authenticate(ctx, "alice@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody@example.com", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRejectsDuplicateAndBadInput(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "A", "a@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "B", "A@EXAMPLE.COM", "secret2")
	require.ErrorIs(t, err, ErrEmailTaken)
	require.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))

	_, err = svc.Register(ctx, "", "c@example.com", "secret1")
	require.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))
	_, err = svc.Register(ctx, "C", "not-an-email", "secret1")
	require.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))
	_, err = svc.Register(ctx, "C", "c@example.com", "123")
	require.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))
}

func TestVerifyCredential(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	u, err := svc.Register(ctx, "A", "a@example.com", "secret1")
	require.NoError(t, err)

	ok, err := svc.VerifyCredential(ctx, u.ID, "secret1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = svc.VerifyCredential(ctx, u.ID, "nope")
	require.NoError(t, err)
	require.False(t, ok)
	_, err = svc.VerifyCredential(ctx, "missing", "secret1")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateProfileAndChangePassword(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	u, _ := svc.Register(ctx, "A", "a@example.com", "secret1")

	bio := "writes things"
	name := "Alice"
	updated, err := svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Name: &name, Bio: &bio})
	require.NoError(t, err)
	require.Equal(t, "Alice", updated.Name)
	require.Equal(t, "writes things", updated.Bio)

	err = svc.ChangePassword(ctx, u.ID, "wrong", "another1")
	require.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))
	require.NoError(t, svc.ChangePassword(ctx, u.ID, "secret1", "another1"))
	_, err = svc.Authenticate(ctx, "a@example.com", "another1")
	require.NoError(t, err)
}

func TestForgotAndResetPassword(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, _ = svc.Register(ctx, "A", "a@example.com", "secret1")

	raw, u, err := svc.ForgotPassword(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.NotEqual(t, raw, u.ResetTokenHash)

	_, err = svc.ResetPassword(ctx, "bogus", "fresh-pass")
	require.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))

	_, err = svc.ResetPassword(ctx, raw, "fresh-pass")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "a@example.com", "fresh-pass")
	require.NoError(t, err)

	// tokens are single use
	_, err = svc.ResetPassword(ctx, raw, "again-pass")
	require.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))
}

func TestResetTokenExpires(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, _ = svc.Register(ctx, "A", "a@example.com", "secret1")
	raw, _, err := svc.ForgotPassword(ctx, "a@example.com")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().UTC().Add(11 * time.Minute) }
	_, err = svc.ResetPassword(ctx, raw, "fresh-pass")
	require.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))
}
