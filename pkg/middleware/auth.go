package middleware

import (
	"context"
	"strings"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/sessions"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middlewares.
const (
	ClaimsKey   = "claims"
	IdentityKey = "identity"
	TokenKey    = "accessToken"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}

// authenticate verifies raw and stores claims, identity and raw token on c.
func authenticate(c *gin.Context, ver Verifier, raw string) error {
	blacklisted, err := sessions.IsAccessTokenBlacklisted(c.Request.Context(), raw)
	if err != nil {
		logger.Warnf("blacklist check failed: %v", err)
	}
	if blacklisted {
		return apperr.Unauthorized("token revoked")
	}
	tok, err := ver.Verify(c.Request.Context(), raw)
	if err != nil {
		return apperr.Wrap(apperr.KindUnauthorized, err, "Token is not valid")
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return apperr.Wrap(apperr.KindUnauthorized, err, "failed to parse claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return apperr.Unauthorized("token has no subject")
	}
	c.Set(ClaimsKey, claims)
	c.Set(IdentityKey, sub)
	c.Set(TokenKey, raw)
	return nil
}

// AuthMiddleware rejects requests without a valid, non-revoked bearer token.
func AuthMiddleware(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			apperr.Respond(c, apperr.Unauthorized("No token, authorization denied"))
			return
		}
		raw, ok := bearer(auth)
		if !ok {
			apperr.Respond(c, apperr.Unauthorized("invalid Authorization header"))
			return
		}
		if err := authenticate(c, ver, raw); err != nil {
			apperr.Respond(c, err)
			return
		}
		c.Next()
	}
}

// OptionalAuth sets the identity when a valid bearer token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := bearer(c.GetHeader("Authorization")); ok {
			if err := authenticate(c, ver, raw); err != nil {
				logger.Debugf("optional auth ignored token: %v", err)
			}
		}
		c.Next()
	}
}

// Identity returns the authenticated subject, or "" for anonymous requests.
func Identity(c *gin.Context) string {
	return c.GetString(IdentityKey)
}

// Claims returns the verified claims, if any.
func Claims(c *gin.Context) map[string]interface{} {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]interface{})
	return m
}
