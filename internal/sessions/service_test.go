package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/stretchr/testify/require"
)

func TestCreateAndValidateSession(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	r, err := svc.CreateSession(ctx, "user-1", "test-agent", time.Hour)
	require.NoError(t, err)
	require.Len(t, r, 64)

	sess, err := svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, "user-1", sess.UserID)

	require.NoError(t, svc.DeleteRefresh(ctx, r))
	sess, err = svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)
	require.Nil(t, sess)
}

func TestValidateRefreshDropsExpired(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	r, err := svc.CreateSession(ctx, "user-1", "", time.Minute)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	sess, err := svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)
	require.Nil(t, sess)
	stored, _ := repo.GetByRefresh(ctx, r)
	require.Nil(t, stored)
}

func TestRotate(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	r, _ := svc.CreateSession(ctx, "user-1", "", time.Hour)

	sess, next, err := svc.Rotate(ctx, r, time.Hour)
	require.NoError(t, err)
	require.Equal(t, "user-1", sess.UserID)
	require.NotEqual(t, r, next)

	_, _, err = svc.Rotate(ctx, r, time.Hour)
	require.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	got, err := svc.ValidateRefresh(ctx, next)
	require.NoError(t, err)
	require.NotNil(t, got)
}
