package sessions

import (
	"context"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "collab:blacklist:access:"

// package-level Redis client used for token blacklist (optional)
var blacklistClient *redis.Client

// SetBlacklistClient configures the Redis client used for blacklist operations.
// Passing nil disables the blacklist.
func SetBlacklistClient(c *redis.Client) {
	blacklistClient = c
}

// BlacklistAccessToken stores token until ttl elapses. No-op without Redis.
func BlacklistAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	if blacklistClient == nil || ttl <= 0 {
		return nil
	}
	if err := blacklistClient.Set(ctx, blacklistPrefix+token, "1", ttl).Err(); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "blacklist unavailable")
	}
	return nil
}

// IsAccessTokenBlacklisted reports whether token was revoked. Always false without Redis.
func IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	if blacklistClient == nil {
		return false, nil
	}
	exists, err := blacklistClient.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.KindUnavailable, err, "blacklist unavailable")
	}
	return exists > 0, nil
}
