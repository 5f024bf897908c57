package tokens

import (
	"context"
	"encoding/json"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/config"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/models"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// GenerateAccessToken creates a signed JWT access token for the user
func GenerateAccessToken(cfg *config.Config, u *models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   u.ID,
		"name":  u.Name,
		"email": u.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := jt.SignedString([]byte(cfg.JWT.Secret))
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "sign access token")
	}
	return s, nil
}

type verifiedToken struct {
	claims jwt.MapClaims
}

func (t *verifiedToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// HS256Verifier verifies access tokens issued by GenerateAccessToken.
type HS256Verifier struct {
	secret []byte
}

func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret)}
}

func (v *HS256Verifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, err, "invalid token")
	}
	if sub, _ := claims.GetSubject(); sub == "" {
		return nil, apperr.Unauthorized("token has no subject")
	}
	return &verifiedToken{claims: claims}, nil
}

// RemainingTTL returns how long a token with the given exp claim stays valid.
func RemainingTTL(claims map[string]interface{}, now time.Time) time.Duration {
	exp, ok := claims["exp"].(float64)
	if !ok {
		return 0
	}
	d := time.Unix(int64(exp), 0).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
