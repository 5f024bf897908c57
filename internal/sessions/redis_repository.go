package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/redis/go-redis/v9"
)

// RedisRepository implements Repository on Redis. Sessions are JSON values
// under "<prefix><refreshToken>" with TTL = expiresAt - now.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based session repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "collab:session:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(refresh string) string {
	return r.prefix + refresh
}

func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(s)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "encode session")
	}
	exp := time.Until(s.ExpiresAt)
	if exp <= 0 {
		exp = time.Second
	}
	if err := r.client.Set(ctx, r.key(s.RefreshToken), b, exp).Err(); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "session store unavailable")
	}
	return nil
}

func (r *RedisRepository) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	b, err := r.client.Get(ctx, r.key(refresh)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "session store unavailable")
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "decode session")
	}
	if s.Expired(time.Now().UTC()) {
		_ = r.client.Del(ctx, r.key(refresh)).Err()
		return nil, nil
	}
	return &s, nil
}

func (r *RedisRepository) DeleteByRefresh(ctx context.Context, refresh string) error {
	if err := r.client.Del(ctx, r.key(refresh)).Err(); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "session store unavailable")
	}
	return nil
}
